package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/entrybook/syncgw/internal/gateway/query"
	"github.com/entrybook/syncgw/internal/gateway/router"
	"github.com/entrybook/syncgw/internal/store/db"
	"github.com/entrybook/syncgw/internal/store/schema"
)

// Insert adds one row to req's entity and returns its id. Ids are assigned
// by the store, so a single-item path is rejected. A row that violates a
// store constraint is logged and skipped; Insert then returns id 0 and no
// error.
func (g *Gateway) Insert(ctx context.Context, req Request, raw map[string]any) (int64, error) {
	ids, err := g.BulkInsert(ctx, req, []map[string]any{raw})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// BulkInsert adds rows to req's entity. Every payload is validated before
// the first insert. Rows that violate a store constraint are skipped and
// reported with id 0 while the others proceed. Entries without a uid are
// given a random one.
func (g *Gateway) BulkInsert(ctx context.Context, req Request, raws []map[string]any) ([]int64, error) {
	route, b, err := g.prepare(req)
	if err != nil {
		return nil, err
	}
	if route.Single {
		return nil, fmt.Errorf("%w: insert into single item %s", ErrInvalidRequest, route)
	}

	batch := make([]schema.Values, len(raws))
	for i, raw := range raws {
		values, err := parseValues(route.Table, raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := validateRecurrence(route.Table, values); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := g.checkAttachmentURI(route.Table, values); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if route.Table == schema.Entry && values.Text(schema.ColUID) == "" {
			values[schema.ColUID] = uuid.NewString()
		}
		batch[i] = values
	}

	ids := make([]int64, len(batch))
	var inserted []int64
	for i, values := range batch {
		id, err := g.insertRow(ctx, b, route, values)
		if errors.Is(err, ErrConstraintViolation) {
			g.logger.Warn("skipping row", "table", route.Table.Name, "row", i, "error", err)
			continue
		}
		if err != nil {
			g.notify(ctx, req, route.Table.Name, ActionInserted, inserted, int64(len(inserted)))
			return nil, err
		}
		ids[i] = id
		inserted = append(inserted, id)
		g.afterInsert(ctx, req, route.Table, id, values)
	}

	g.notify(ctx, req, route.Table.Name, ActionInserted, inserted, int64(len(inserted)))
	return ids, nil
}

func (g *Gateway) insertRow(ctx context.Context, b *query.Builder, route router.Route, values schema.Values) (int64, error) {
	ok, err := g.ownerVisible(ctx, g.store, b, route.Table, values)
	if err != nil {
		return 0, fmt.Errorf("failed to check owner of %s row: %w", route.Table.Name, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: owner of %s row", ErrNotFound, route.Table.Name)
	}

	stmt, args, err := b.Insert(route.Table, values)
	if errors.Is(err, query.ErrMissingOwner) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err != nil {
		return 0, err
	}

	res, err := g.store.ExecContext(ctx, stmt, args...)
	if db.IsConstraintViolation(err) {
		return 0, fmt.Errorf("%w: %v", ErrConstraintViolation, err)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", route.Table.Name, err)
	}
	return res.LastInsertId()
}

// afterInsert runs the side effects of a committed insert.
func (g *Gateway) afterInsert(ctx context.Context, req Request, t *schema.Table, id int64, values schema.Values) {
	switch t {
	case schema.Entry:
		if values.Text(schema.ColRRule) != "" ||
			values.Text(schema.ColExDate) != "" ||
			values.Text(schema.ColRDate) != "" {
			g.regenerate(ctx, req, id)
		}
	case schema.Attachment:
		g.materialize(ctx, id)
	case schema.Alarm:
		g.recalculateAlarm(ctx, id)
	}
}
