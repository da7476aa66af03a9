package query

import (
	"fmt"
	"strings"

	"github.com/entrybook/syncgw/internal/store/schema"
)

// Validate checks that f can be embedded in a statement on t without
// escaping the account scope.
func (f Filter) Validate(t *schema.Table) error {
	if err := checkSelection(f.Selection); err != nil {
		return err
	}
	_, err := sortOrder(t, f.SortOrder)
	return err
}

// checkSelection rejects a selection that could close the parenthesis it is
// wrapped in or terminate the statement. Quoted text is skipped.
func checkSelection(sel string) error {
	depth := 0
	for i := 0; i < len(sel); i++ {
		switch c := sel[i]; c {
		case '\'', '"', '`':
			end := closingQuote(sel, i+1, c)
			if end < 0 {
				return fmt.Errorf("%w: unterminated quote", ErrInvalidSelection)
			}
			i = end
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unbalanced parentheses", ErrInvalidSelection)
			}
		case ';':
			return fmt.Errorf("%w: statement separator", ErrInvalidSelection)
		case '-':
			if i+1 < len(sel) && sel[i+1] == '-' {
				return fmt.Errorf("%w: comment", ErrInvalidSelection)
			}
		case '/':
			if i+1 < len(sel) && sel[i+1] == '*' {
				return fmt.Errorf("%w: comment", ErrInvalidSelection)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unbalanced parentheses", ErrInvalidSelection)
	}
	return nil
}

// closingQuote returns the index of the quote ending the literal opened
// before from, or -1. A doubled quote is an escaped one.
func closingQuote(s string, from int, q byte) int {
	for i := from; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i
	}
	return -1
}

// sortOrder normalizes order into ORDER BY terms on t's columns.
func sortOrder(t *schema.Table, order string) ([]string, error) {
	if strings.TrimSpace(order) == "" {
		return nil, nil
	}
	var terms []string
	for _, part := range strings.Split(order, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 || len(fields) > 2 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSortOrder, strings.TrimSpace(part))
		}
		if _, ok := t.Column(schema.ColumnID(fields[0])); !ok {
			return nil, fmt.Errorf("%w: unknown column %s.%s", ErrInvalidSortOrder, t.Name, fields[0])
		}
		term := fields[0]
		if len(fields) == 2 {
			dir := strings.ToUpper(fields[1])
			if dir != "ASC" && dir != "DESC" {
				return nil, fmt.Errorf("%w: direction %q", ErrInvalidSortOrder, fields[1])
			}
			term += " " + dir
		}
		terms = append(terms, term)
	}
	return terms, nil
}
