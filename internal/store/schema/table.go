package schema

import (
	"fmt"
	"sort"
)

// TableName identifies one of the store's tables. Table names double as the
// entity segment of a resource path.
type TableName string

const (
	TableCollection TableName = "collection"
	TableEntry      TableName = "entry"
	TableAttendee   TableName = "attendee"
	TableCategory   TableName = "category"
	TableComment    TableName = "comment"
	TableOrganizer  TableName = "organizer"
	TableRelatedTo  TableName = "relatedto"
	TableResource   TableName = "resource"
	TableAttachment TableName = "attachment"
	TableAlarm      TableName = "alarm"
	TableUnknown    TableName = "unknown"
)

// ColumnID names a column. The set of valid ids is closed per table.
type ColumnID string

// ColumnType is the storage class a column accepts.
type ColumnType int

const (
	TypeInteger ColumnType = iota
	TypeReal
	TypeText
	TypeBlob
	// TypeBool is stored as INTEGER 0/1.
	TypeBool
)

// String returns the SQLite affinity name of the type.
func (t ColumnType) String() string {
	switch t {
	case TypeInteger, TypeBool:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	case TypeText:
		return "TEXT"
	case TypeBlob:
		return "BLOB"
	default:
		return "unknown"
	}
}

// Column is a single typed column of a table.
type Column struct {
	ID   ColumnID
	Type ColumnType
}

// Table is the declaration of one entity table.
type Table struct {
	Name TableName

	// Owner is the foreign-key column linking a row to its parent:
	// collection_id for entries, entry_id for child tables and empty for
	// collections.
	Owner ColumnID

	columns []Column
	index   map[ColumnID]Column
}

func newTable(name TableName, owner ColumnID, cols ...Column) *Table {
	t := &Table{
		Name:    name,
		Owner:   owner,
		columns: append([]Column{{ID: ColID, Type: TypeInteger}}, cols...),
		index:   make(map[ColumnID]Column, len(cols)+1),
	}
	for _, c := range t.columns {
		t.index[c.ID] = c
	}
	return t
}

// Columns returns the table's columns in declaration order, id first.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = string(c.ID)
	}
	return names
}

// Column looks up a column by id.
func (t *Table) Column(id ColumnID) (Column, bool) {
	c, ok := t.index[id]
	return c, ok
}

// IsChild reports whether rows of the table are owned by an entry.
func (t *Table) IsChild() bool {
	return t.Owner == ColEntryID
}

// CopyableColumns returns every column except id and the owner column,
// sorted by name. It is used when child rows are duplicated onto another
// entry.
func (t *Table) CopyableColumns() []ColumnID {
	var ids []ColumnID
	for _, c := range t.columns {
		if c.ID == ColID || c.ID == t.Owner {
			continue
		}
		ids = append(ids, c.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// String implements fmt.Stringer.
func (t *Table) String() string {
	return string(t.Name)
}

var tables = map[TableName]*Table{}

func register(t *Table) *Table {
	if _, dup := tables[t.Name]; dup {
		panic(fmt.Sprintf("schema: table %s registered twice", t.Name))
	}
	tables[t.Name] = t
	return t
}

// Lookup returns the table declaration for name.
func Lookup(name TableName) (*Table, bool) {
	t, ok := tables[name]
	return t, ok
}

// All returns every table, parents before children.
func All() []*Table {
	return []*Table{
		Collection, Entry, Attendee, Category, Comment, Organizer,
		RelatedTo, Resource, Attachment, Alarm, Unknown,
	}
}

// Children returns the tables whose rows are owned by an entry.
func Children() []*Table {
	return []*Table{
		Attendee, Category, Comment, Organizer, RelatedTo,
		Resource, Attachment, Alarm, Unknown,
	}
}
