package recurrence

import (
	"context"
	"fmt"

	"github.com/entrybook/syncgw/internal/store/db"
)

// DetachIfEdited turns the linked instance id into an exception when its
// sequence has been raised above its master's. A detached instance keeps
// its back-reference and recurrence id, becomes visible to collection reads
// and survives regeneration. It reports whether the row was detached.
func (e *Engine) DetachIfEdited(ctx context.Context, q db.DBTX, id int64) (bool, error) {
	out, err := q.ExecContext(ctx, `
		UPDATE entry SET recur_linkedinstance = 0
		WHERE id = ?
		  AND recur_linkedinstance = 1
		  AND recur_original_id IS NOT NULL
		  AND COALESCE(sequence, 0) > COALESCE(
		      (SELECT m.sequence FROM entry m WHERE m.id = entry.recur_original_id), 0)`, id)
	if err != nil {
		return false, fmt.Errorf("failed to detach instance %d: %w", id, err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		e.logger.Info("instance detached from master", "entry_id", id)
	}
	return n > 0, nil
}

// RemoveOrphans deletes every instance, linked or detached, whose master no
// longer exists. Child rows follow through ON DELETE CASCADE.
func (e *Engine) RemoveOrphans(ctx context.Context, q db.DBTX) (int64, error) {
	out, err := q.ExecContext(ctx, `
		DELETE FROM entry
		WHERE recur_original_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM entry m WHERE m.id = entry.recur_original_id)`)
	if err != nil {
		return 0, fmt.Errorf("failed to remove orphaned instances: %w", err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("removed orphaned instances", "count", n)
	}
	return n, nil
}
