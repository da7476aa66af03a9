// Package query builds account-scoped SQL statements for the gateway.
//
// Every statement joins through the owning collection and filters by the
// caller's account name AND type, so a client scoped to one account can
// never read or mutate another account's rows. Statements use ? placeholders
// and are produced with squirrel.
package query

import (
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/entrybook/syncgw/internal/store/schema"
)

// Account is the external identity that scopes a set of collections.
type Account struct {
	Name string
	Type string
}

// String implements fmt.Stringer.
func (a Account) String() string {
	return a.Name + " (" + a.Type + ")"
}

// Scope is the identity a statement is built for.
type Scope struct {
	Account Account

	// Trusted marks the owning application. Only a trusted scope may
	// address the local account type.
	Trusted bool

	// LocalType overrides the reserved local account type.
	LocalType string
}

// Target is the table a statement addresses and, for single-item access,
// the row id. ID 0 means collection access.
type Target struct {
	Table *schema.Table
	ID    int64
}

// Single reports whether the target addresses one row.
func (t Target) Single() bool {
	return t.ID > 0
}

// Filter is the caller-supplied part of a read, update or delete.
// Selection is a single SQL expression with ? placeholders bound to Args;
// it is ANDed under the account scope and must be balanced. SortOrder is a
// comma list of columns, each optionally followed by ASC or DESC.
type Filter struct {
	Selection  string
	Args       []any
	Projection []string
	SortOrder  string
}

// Builder produces statements for one scope.
type Builder struct {
	scope Scope
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}

// New validates scope and returns a Builder for it.
func New(scope Scope) (*Builder, error) {
	if scope.Account.Name == "" || scope.Account.Type == "" {
		return nil, ErrMissingAccountScope
	}
	local := scope.LocalType
	if local == "" {
		local = schema.DefaultLocalAccountType
	}
	if scope.Account.Type == local && !scope.Trusted {
		return nil, fmt.Errorf("%w: account type %s is local-only", ErrUnauthorizedCaller, local)
	}
	return &Builder{scope: scope}, nil
}

// Scope returns the scope the builder was created for.
func (b *Builder) Scope() Scope {
	return b.scope
}

// accountCond restricts rows of t to the builder's account.
func (b *Builder) accountCond(t *schema.Table) squirrel.Sqlizer {
	name, typ := b.scope.Account.Name, b.scope.Account.Type
	switch {
	case t == schema.Collection:
		return squirrel.Eq{
			string(schema.ColAccountName): name,
			string(schema.ColAccountType): typ,
		}
	case t == schema.Entry:
		return squirrel.Expr(
			"collection_id IN (SELECT id FROM collection WHERE account_name = ? AND account_type = ?)",
			name, typ)
	default:
		return squirrel.Expr(
			"entry_id IN (SELECT e.id FROM entry e JOIN collection c ON c.id = e.collection_id"+
				" WHERE c.account_name = ? AND c.account_type = ?)",
			name, typ)
	}
}

// where returns every condition for target: account scope, id, linked
// instance exclusion and the caller's selection. The selection is checked
// first so its parenthesized group cannot reach the other conditions.
func (b *Builder) where(target Target, f Filter) ([]squirrel.Sqlizer, error) {
	if err := checkSelection(f.Selection); err != nil {
		return nil, err
	}
	conds := []squirrel.Sqlizer{b.accountCond(target.Table)}
	if target.Single() {
		conds = append(conds, squirrel.Eq{string(schema.ColID): target.ID})
	} else if target.Table == schema.Entry {
		// Generated recurrence copies are only reachable by id.
		conds = append(conds, squirrel.Expr("(recur_linkedinstance IS NULL OR recur_linkedinstance = 0)"))
	}
	if f.Selection != "" {
		conds = append(conds, squirrel.Expr("("+f.Selection+")", f.Args...))
	}
	return conds, nil
}

func (b *Builder) projection(t *schema.Table, cols []string) ([]string, error) {
	if len(cols) == 0 {
		return t.ColumnNames(), nil
	}
	for _, c := range cols {
		if _, ok := t.Column(schema.ColumnID(c)); !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrInvalidProjection, t.Name, c)
		}
	}
	return cols, nil
}

// Select builds the read statement for target.
func (b *Builder) Select(target Target, f Filter) (string, []any, error) {
	cols, err := b.projection(target.Table, f.Projection)
	if err != nil {
		return "", nil, err
	}
	order, err := sortOrder(target.Table, f.SortOrder)
	if err != nil {
		return "", nil, err
	}
	where, err := b.where(target, f)
	if err != nil {
		return "", nil, err
	}
	q := builder().Select(cols...).From(string(target.Table.Name))
	for _, c := range where {
		q = q.Where(c)
	}
	if len(order) > 0 {
		q = q.OrderBy(order...)
	}
	return q.ToSql()
}

// Count builds the statement counting the rows Select would return.
func (b *Builder) Count(target Target, f Filter) (string, []any, error) {
	where, err := b.where(target, f)
	if err != nil {
		return "", nil, err
	}
	q := builder().Select("COUNT(*)").From(string(target.Table.Name))
	for _, c := range where {
		q = q.Where(c)
	}
	return q.ToSql()
}

// IDs builds the statement listing the ids of the rows a write would touch.
func (b *Builder) IDs(target Target, f Filter) (string, []any, error) {
	where, err := b.where(target, f)
	if err != nil {
		return "", nil, err
	}
	q := builder().Select(string(schema.ColID)).From(string(target.Table.Name))
	for _, c := range where {
		q = q.Where(c)
	}
	return q.OrderBy(string(schema.ColID)).ToSql()
}

// Update builds the update statement for target.
func (b *Builder) Update(target Target, values schema.Values, f Filter) (string, []any, error) {
	if len(values) == 0 {
		return "", nil, fmt.Errorf("update of %s: no values", target.Table.Name)
	}
	if err := b.checkAccountColumns(target.Table, values); err != nil {
		return "", nil, err
	}
	where, err := b.where(target, f)
	if err != nil {
		return "", nil, err
	}
	q := builder().Update(string(target.Table.Name)).SetMap(values.Map())
	for _, c := range where {
		q = q.Where(c)
	}
	return q.ToSql()
}

// Delete builds the delete statement for target.
func (b *Builder) Delete(target Target, f Filter) (string, []any, error) {
	where, err := b.where(target, f)
	if err != nil {
		return "", nil, err
	}
	q := builder().Delete(string(target.Table.Name))
	for _, c := range where {
		q = q.Where(c)
	}
	return q.ToSql()
}

// Insert builds the insert statement for one row of t. Collection rows are
// always stamped with the builder's account.
func (b *Builder) Insert(t *schema.Table, values schema.Values) (string, []any, error) {
	values = values.Clone()
	if t == schema.Collection {
		values[schema.ColAccountName] = b.scope.Account.Name
		values[schema.ColAccountType] = b.scope.Account.Type
	} else if _, ok := values.Int(t.Owner); !ok {
		return "", nil, fmt.Errorf("%w: %s.%s", ErrMissingOwner, t.Name, t.Owner)
	}

	cols := values.Columns()
	names := make([]string, len(cols))
	vals := make([]any, len(cols))
	for i, c := range cols {
		names[i] = string(c)
		vals[i] = values[c]
	}
	return builder().Insert(string(t.Name)).Columns(names...).Values(vals...).ToSql()
}

// OwnerCheck builds a statement counting the owner rows referenced by values
// that belong to the builder's account; a result of 0 means the owner is
// missing or foreign. It returns an empty statement when values does not set
// the owner column or t has none.
func (b *Builder) OwnerCheck(t *schema.Table, values schema.Values) (string, []any, error) {
	if t.Owner == "" {
		return "", nil, nil
	}
	owner, ok := values.Int(t.Owner)
	if !ok {
		return "", nil, nil
	}

	parent := schema.Entry
	if t == schema.Entry {
		parent = schema.Collection
	}
	return builder().Select("COUNT(*)").From(string(parent.Name)).
		Where(squirrel.Eq{string(schema.ColID): owner}).
		Where(b.accountCond(parent)).
		ToSql()
}

// checkAccountColumns refuses updates that would move a collection to
// another account.
func (b *Builder) checkAccountColumns(t *schema.Table, values schema.Values) error {
	if t != schema.Collection {
		return nil
	}
	if v, ok := values[schema.ColAccountName]; ok && v != b.scope.Account.Name {
		return fmt.Errorf("%w: account_name cannot change", ErrUnauthorizedCaller)
	}
	if v, ok := values[schema.ColAccountType]; ok && v != b.scope.Account.Type {
		return fmt.Errorf("%w: account_type cannot change", ErrUnauthorizedCaller)
	}
	return nil
}
