// Package alarm recomputes absolute alarm trigger times from relative
// triggers.
//
// An alarm with a trigger_relative_duration fires at its entry's start (or
// due date when trigger_relative_to is END) plus that duration. Triggers
// are recalculated when the alarm is inserted or changed and when the
// owning entry's scheduling fields change.
package alarm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/entrybook/syncgw/internal/store/db"
	"github.com/entrybook/syncgw/internal/store/schema"
)

// Scheduler is told which alarms received a new trigger time so it can
// reschedule the matching reminders.
type Scheduler interface {
	AlarmsRescheduled(ctx context.Context, alarmIDs []int64)
}

// Recalculator updates trigger_time and trigger_timezone of alarms.
type Recalculator struct {
	scheduler Scheduler
	logger    *slog.Logger
}

// New creates a Recalculator. scheduler may be nil.
func New(scheduler Scheduler, logger *slog.Logger) *Recalculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recalculator{
		scheduler: scheduler,
		logger:    logger.With("component", "alarm"),
	}
}

type reference struct {
	dtstart   sql.NullInt64
	dtstartTZ sql.NullString
	due       sql.NullInt64
	dueTZ     sql.NullString
}

// pick returns the reference timestamp and timezone for a relative-to
// marker. ok is false when the entry has no such date.
func (r reference) pick(relativeTo string) (ms int64, tz sql.NullString, ok bool) {
	if relativeTo == schema.RelativeToEnd {
		return r.due.Int64, r.dueTZ, r.due.Valid
	}
	return r.dtstart.Int64, r.dtstartTZ, r.dtstart.Valid
}

// RecalculateEntry recomputes every relative alarm of the entry and returns
// the ids of alarms whose trigger was written. Malformed durations are
// logged and skipped.
func (r *Recalculator) RecalculateEntry(ctx context.Context, q db.DBTX, entryID int64) ([]int64, error) {
	return r.recalculate(ctx, q, "entry_id = ?", entryID)
}

// RecalculateAlarm recomputes one alarm.
func (r *Recalculator) RecalculateAlarm(ctx context.Context, q db.DBTX, alarmID int64) ([]int64, error) {
	return r.recalculate(ctx, q, "id = ?", alarmID)
}

func (r *Recalculator) recalculate(ctx context.Context, q db.DBTX, cond string, arg int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.id, a.entry_id, COALESCE(a.trigger_relative_to, ''), a.trigger_relative_duration,
		       e.dtstart, e.dtstart_timezone, e.due, e.due_timezone
		FROM alarm a JOIN entry e ON e.id = a.entry_id
		WHERE a.`+cond+` AND a.trigger_relative_duration IS NOT NULL AND a.trigger_relative_duration != ''
		ORDER BY a.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to load alarms: %w", err)
	}

	type pending struct {
		id, entryID int64
		relativeTo  string
		duration    string
		ref         reference
	}
	var list []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.entryID, &p.relativeTo, &p.duration,
			&p.ref.dtstart, &p.ref.dtstartTZ, &p.ref.due, &p.ref.dueTZ); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	var updated []int64
	for _, p := range list {
		ms, tz, ok := p.ref.pick(p.relativeTo)
		if !ok {
			r.logger.Debug("alarm reference date missing",
				"alarm_id", p.id, "entry_id", p.entryID, "relative_to", p.relativeTo)
			continue
		}
		at, err := Trigger(schema.FromMillis(ms, tz.String), p.duration)
		if errors.Is(err, ErrMalformedDuration) {
			r.logger.Warn("skipping alarm with malformed duration",
				"alarm_id", p.id, "entry_id", p.entryID, "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}

		if _, err := q.ExecContext(ctx,
			`UPDATE alarm SET trigger_time = ?, trigger_timezone = ? WHERE id = ?`,
			schema.Millis(at), tz, p.id); err != nil {
			return nil, fmt.Errorf("failed to update alarm %d: %w", p.id, err)
		}
		updated = append(updated, p.id)
	}
	return updated, nil
}

// Notify hands recalculated alarm ids to the scheduler. Call it after the
// transaction that recalculated them committed.
func (r *Recalculator) Notify(ctx context.Context, alarmIDs []int64) {
	if r.scheduler == nil || len(alarmIDs) == 0 {
		return
	}
	r.scheduler.AlarmsRescheduled(ctx, alarmIDs)
}
