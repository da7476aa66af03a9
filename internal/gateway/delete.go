package gateway

import (
	"context"
	"fmt"

	"github.com/entrybook/syncgw/internal/gateway/query"
	"github.com/entrybook/syncgw/internal/store/db"
	"github.com/entrybook/syncgw/internal/store/schema"
)

// Delete removes the rows of req's resource matching f and returns how
// many were removed. Entry and collection deletes also remove instances
// whose master is gone. Every delete schedules an attachment sweep.
func (g *Gateway) Delete(ctx context.Context, req Request, f query.Filter) (int64, error) {
	route, b, err := g.prepare(req)
	if err != nil {
		return 0, err
	}
	if err := checkFilter(route, f); err != nil {
		return 0, err
	}
	t := target(route)

	var (
		count   int64
		ids     []int64
		orphans int64
	)
	err = g.store.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		stmt, args, err := b.Count(t, f)
		if err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&count); err != nil {
			return fmt.Errorf("failed to count %s: %w", route, err)
		}
		if count == 0 {
			return nil
		}
		if len(g.observers) > 0 {
			if ids, err = g.selectIDs(ctx, tx, b, t, f); err != nil {
				return err
			}
		}

		stmt, args, err = b.Delete(t, f)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to delete %s: %w", route, err)
		}

		if route.Table == schema.Entry || route.Table == schema.Collection {
			if orphans, err = g.recur.RemoveOrphans(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if g.sweeper != nil {
		g.sweeper.Schedule()
	}
	if count > 0 {
		g.logger.Debug("deleted rows", "table", route.Table.Name, "count", count, "orphans", orphans)
	}
	g.notify(ctx, req, route.Table.Name, ActionDeleted, ids, count)
	return count, nil
}
