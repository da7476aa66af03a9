package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/entrybook/syncgw/internal/recurrence"
	"github.com/entrybook/syncgw/internal/store/db"
	"github.com/entrybook/syncgw/internal/store/schema"
)

// Side-effect transactions are retried while the store stays locked past
// its busy timeout.
const (
	sideEffectAttempts = 3
	sideEffectPause    = 50 * time.Millisecond
)

// sideEffectTx runs fn in its own transaction, retrying on a busy store.
func (g *Gateway) sideEffectTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	return g.store.WithRetryTx(ctx, sideEffectAttempts, sideEffectPause, fn)
}

// regenerate rebuilds the instances of master id in one transaction. On
// failure the previous instance set stays and the error is only logged.
func (g *Gateway) regenerate(ctx context.Context, req Request, id int64) {
	var res *recurrence.Result
	err := g.sideEffectTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		res, err = g.recur.Regenerate(ctx, tx, id)
		return err
	})
	if err != nil {
		g.logger.Warn("recurrence regeneration failed, keeping previous instances",
			"entry_id", id, "error", err)
		return
	}
	g.alarms.Notify(ctx, res.AlarmIDs)
	if len(res.Created) > 0 || res.Deleted > 0 {
		g.notify(ctx, req, schema.TableEntry, ActionRegenerated, res.Created, int64(len(res.Created)))
	}
}

// recalculateEntry recomputes the alarms of entry id.
func (g *Gateway) recalculateEntry(ctx context.Context, id int64) {
	var ids []int64
	err := g.sideEffectTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		ids, err = g.alarms.RecalculateEntry(ctx, tx, id)
		return err
	})
	if err != nil {
		g.logger.Warn("alarm recalculation failed", "entry_id", id, "error", err)
		return
	}
	g.alarms.Notify(ctx, ids)
}

// recalculateAlarm recomputes one alarm.
func (g *Gateway) recalculateAlarm(ctx context.Context, id int64) {
	ids, err := g.alarms.RecalculateAlarm(ctx, g.store, id)
	if err != nil {
		g.logger.Warn("alarm recalculation failed", "alarm_id", id, "error", err)
		return
	}
	g.alarms.Notify(ctx, ids)
}

// detach marks an edited linked instance as an exception.
func (g *Gateway) detach(ctx context.Context, id int64) {
	if _, err := g.recur.DetachIfEdited(ctx, g.store, id); err != nil {
		g.logger.Warn("failed to detach instance", "entry_id", id, "error", err)
	}
}

// materialize gives attachment id a backing file. An I/O failure leaves
// the row without a URI and is only logged.
func (g *Gateway) materialize(ctx context.Context, id int64) {
	_, err := g.files.Materialize(ctx, g.store, id)
	if errors.Is(err, ErrIOFailure) {
		g.logger.Warn("attachment left without backing file", "attachment_id", id, "error", err)
		return
	}
	if err != nil {
		g.logger.Error("attachment materialization failed", "attachment_id", id, "error", err)
	}
}
