package db

import (
	"context"
	"fmt"

	"github.com/entrybook/syncgw/internal/store/schema"
)

// TableCount is the row count of one table.
type TableCount struct {
	Table schema.TableName `json:"table" yaml:"table"`
	Rows  int64            `json:"rows" yaml:"rows"`
}

// TableCounts returns the row count of every table, parents first.
func (db *DB) TableCounts(ctx context.Context) ([]TableCount, error) {
	tables := schema.All()
	out := make([]TableCount, 0, len(tables))
	for _, t := range tables {
		var n int64
		// Table names come from the closed schema registry.
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s", t.Name)
		if err := db.conn.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", t.Name, err)
		}
		out = append(out, TableCount{Table: t.Name, Rows: n})
	}
	return out, nil
}

// LinkedInstanceCount returns the number of generated recurrence instances.
func (db *DB) LinkedInstanceCount(ctx context.Context) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entry WHERE recur_linkedinstance = 1").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count linked instances: %w", err)
	}
	return n, nil
}
