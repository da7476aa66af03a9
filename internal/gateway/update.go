package gateway

import (
	"context"
	"fmt"

	"github.com/entrybook/syncgw/internal/gateway/query"
	"github.com/entrybook/syncgw/internal/store/schema"
)

// Update sets the columns in raw on every row of req's resource matching f
// and returns the number of rows changed. Entry updates touching recurrence
// fields regenerate instances, and entry or alarm updates touching
// scheduling or trigger fields recompute alarm triggers, for every affected
// row. Attachment updates touching the uri or binary payload materialize
// the row again; a row that keeps a uri drops the payload.
func (g *Gateway) Update(ctx context.Context, req Request, raw map[string]any, f query.Filter) (int64, error) {
	route, b, err := g.prepare(req)
	if err != nil {
		return 0, err
	}
	if err := checkFilter(route, f); err != nil {
		return 0, err
	}
	values, err := parseValues(route.Table, raw)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: no values", ErrInvalidRequest)
	}
	if err := validateRecurrence(route.Table, values); err != nil {
		return 0, err
	}
	if err := g.checkAttachmentURI(route.Table, values); err != nil {
		return 0, err
	}

	ok, err := g.ownerVisible(ctx, g.store, b, route.Table, values)
	if err != nil {
		return 0, fmt.Errorf("failed to check owner of %s: %w", route, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: new owner of %s", ErrNotFound, route)
	}

	t := target(route)
	recurrenceChanged := route.Table == schema.Entry && values.Has(schema.RecurrenceColumns...)
	schedulingChanged := route.Table == schema.Entry && values.Has(schema.SchedulingColumns...)
	sequenceChanged := route.Table == schema.Entry && route.Single && values.Has(schema.ColSequence)
	triggerChanged := route.Table == schema.Alarm && values.Has(schema.AlarmTriggerColumns...)
	contentChanged := route.Table == schema.Attachment && values.Has(schema.ColURI, schema.ColBinary)

	// Resolved before the write: the update may change what f matches.
	var ids []int64
	if recurrenceChanged || schedulingChanged || sequenceChanged || triggerChanged || contentChanged || len(g.observers) > 0 {
		ids, err = g.selectIDs(ctx, g.store, b, t, f)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve rows of %s: %w", route, err)
		}
	}

	stmt, args, err := b.Update(t, values, f)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	res, err := g.store.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", route, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if sequenceChanged {
			g.detach(ctx, id)
		}
		switch {
		case recurrenceChanged:
			// Regeneration recomputes the alarms of new instances; the
			// master's own alarms still need a pass below.
			g.regenerate(ctx, req, id)
			if schedulingChanged {
				g.recalculateEntry(ctx, id)
			}
		case schedulingChanged:
			g.recalculateEntry(ctx, id)
		case triggerChanged:
			g.recalculateAlarm(ctx, id)
		case contentChanged:
			g.materialize(ctx, id)
		}
	}

	if contentChanged && g.sweeper != nil {
		g.sweeper.Schedule()
	}
	g.notify(ctx, req, route.Table.Name, ActionUpdated, ids, n)
	return n, nil
}
