package schema

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

var (
	// ErrUnknownColumn is returned when a payload names a column the table
	// does not declare.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrInvalidValue is returned when a payload value cannot be converted
	// to the column's type.
	ErrInvalidValue = errors.New("invalid column value")

	// ErrReadOnlyColumn is returned when a payload tries to set the row id.
	ErrReadOnlyColumn = errors.New("column is read-only")
)

// Values is a validated field/value payload for one table. Keys are always
// declared columns of that table and values are normalized to one of
// int64, float64, string, []byte or nil (SQL NULL).
type Values map[ColumnID]any

// Parse validates a loosely typed payload against the table declaration and
// returns the normalized Values. JSON numbers, booleans and base64 strings
// for BLOB columns are accepted.
func (t *Table) Parse(raw map[string]any) (Values, error) {
	out := make(Values, len(raw))
	for name, v := range raw {
		id := ColumnID(name)
		c, ok := t.index[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, name)
		}
		if id == ColID {
			return nil, fmt.Errorf("%w: %s.%s", ErrReadOnlyColumn, t.Name, name)
		}
		nv, err := normalize(c, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name, name, err)
		}
		out[id] = nv
	}
	return out, nil
}

// MustParse is Parse for payloads built in code. It panics on error.
func (t *Table) MustParse(raw map[string]any) Values {
	v, err := t.Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func normalize(c Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Type {
	case TypeInteger:
		return toInt(v)
	case TypeBool:
		if b, ok := v.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		if n != 0 {
			return int64(1), nil
		}
		return int64(0), nil
	case TypeReal:
		return toFloat(v)
	case TypeText:
		switch s := v.(type) {
		case string:
			return s, nil
		case json.Number:
			return s.String(), nil
		}
		return nil, fmt.Errorf("%w: want text, got %T", ErrInvalidValue, v)
	case TypeBlob:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			data, err := base64.StdEncoding.DecodeString(b)
			if err != nil {
				return nil, fmt.Errorf("%w: blob is not base64: %v", ErrInvalidValue, err)
			}
			return data, nil
		}
		return nil, fmt.Errorf("%w: want blob, got %T", ErrInvalidValue, v)
	}
	return nil, fmt.Errorf("%w: unsupported column type %d", ErrInvalidValue, c.Type)
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, n)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return i, nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%w: want integer, got %T", ErrInvalidValue, v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: want real, got %T", ErrInvalidValue, v)
}

// Has reports whether the payload sets any of the given columns.
func (v Values) Has(ids ...ColumnID) bool {
	for _, id := range ids {
		if _, ok := v[id]; ok {
			return true
		}
	}
	return false
}

// Int returns the integer value of a column. ok is false when the column is
// absent or NULL.
func (v Values) Int(id ColumnID) (n int64, ok bool) {
	n, ok = v[id].(int64)
	return n, ok
}

// Text returns the text value of a column, or "" when absent or NULL.
func (v Values) Text(id ColumnID) string {
	s, _ := v[id].(string)
	return s
}

// Columns returns the payload's column ids sorted by name.
func (v Values) Columns() []ColumnID {
	ids := make([]ColumnID, 0, len(v))
	for id := range v {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Map returns the payload keyed by plain column name, the form SQL builders
// expect.
func (v Values) Map() map[string]any {
	m := make(map[string]any, len(v))
	for id, val := range v {
		m[string(id)] = val
	}
	return m
}

// Clone returns a shallow copy of the payload.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for id, val := range v {
		out[id] = val
	}
	return out
}
