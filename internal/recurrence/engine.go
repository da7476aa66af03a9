// Package recurrence keeps the generated instances of recurring master
// entries in step with their rule, exception dates and addition dates.
//
// A master entry is an entry without a recur_original_id. Regenerate
// deletes its disposable linked instances and inserts one linked copy per
// occurrence after the master's own start. Instances that were edited
// (detached, or with a sequence above the master's) are preserved and
// their occurrences are not regenerated.
package recurrence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/entrybook/syncgw/internal/store/db"
	"github.com/entrybook/syncgw/internal/store/schema"
)

// AlarmRecalculator recomputes the triggers of an entry's alarms inside the
// caller's transaction and returns the ids of the alarms it changed.
type AlarmRecalculator interface {
	RecalculateEntry(ctx context.Context, q db.DBTX, entryID int64) ([]int64, error)
}

// Result summarizes one regeneration.
type Result struct {
	MasterID  int64
	Deleted   int64
	Created   []int64
	Preserved int
	// AlarmIDs are the alarms of created instances whose triggers were
	// computed.
	AlarmIDs []int64
}

// Engine regenerates linked instances.
type Engine struct {
	limits Limits
	alarms AlarmRecalculator
	logger *slog.Logger
}

// NewEngine creates an Engine. alarms may be nil, in which case copied
// alarms keep the master's trigger values.
func NewEngine(limits Limits, alarms AlarmRecalculator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		limits: limits,
		alarms: alarms,
		logger: logger.With("component", "recurrence"),
	}
}

// propagatedChildren are the child tables copied from a master onto each
// generated instance.
var propagatedChildren = []*schema.Table{
	schema.Category,
	schema.Comment,
	schema.Resource,
	schema.Attendee,
	schema.Organizer,
	schema.Alarm,
}

// instanceExcluded are the entry columns not copied from the master.
var instanceExcluded = map[schema.ColumnID]bool{
	schema.ColID:              true,
	schema.ColDTStart:         true,
	schema.ColDTStartTZ:       true,
	schema.ColDue:             true,
	schema.ColDueTZ:           true,
	schema.ColCompleted:       true,
	schema.ColCompletedTZ:     true,
	schema.ColRRule:           true,
	schema.ColExDate:          true,
	schema.ColRDate:           true,
	schema.ColRecurID:         true,
	schema.ColRecurIDTZ:       true,
	schema.ColRecurLinked:     true,
	schema.ColRecurOriginalID: true,
	schema.ColSequence:        true,
	schema.ColETag:            true,
	schema.ColScheduleTag:     true,
	schema.ColFileName:        true,
}

type master struct {
	id         int64
	originalID sql.NullInt64
	rrule      sql.NullString
	exdate     sql.NullString
	rdate      sql.NullString
	dtstart    sql.NullInt64
	dtstartTZ  sql.NullString
	due        sql.NullInt64
	sequence   int64
}

func loadMaster(ctx context.Context, q db.DBTX, id int64) (*master, error) {
	m := &master{id: id}
	err := q.QueryRowContext(ctx, `
		SELECT recur_original_id, rrule, exdate, rdate, dtstart, dtstart_timezone, due, COALESCE(sequence, 0)
		FROM entry WHERE id = ?`, id).
		Scan(&m.originalID, &m.rrule, &m.exdate, &m.rdate, &m.dtstart, &m.dtstartTZ, &m.due, &m.sequence)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Regenerate rebuilds the linked instances of the master entry id. It runs
// every statement on q; callers wrap it in a transaction so a failure
// leaves the previous instance set in place. Regenerating with unchanged
// inputs yields the same occurrence set.
func (e *Engine) Regenerate(ctx context.Context, q db.DBTX, id int64) (*Result, error) {
	m, err := loadMaster(ctx, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return &Result{MasterID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load master %d: %w", id, err)
	}
	if m.originalID.Valid {
		e.logger.Debug("skipping regeneration of an instance", "entry_id", id)
		return &Result{MasterID: id}, nil
	}

	res := &Result{MasterID: id}

	// Disposable: still linked and not edited past the master's baseline.
	out, err := q.ExecContext(ctx, `
		DELETE FROM entry
		WHERE recur_original_id = ? AND recur_linkedinstance = 1 AND COALESCE(sequence, 0) <= ?`,
		id, m.sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to delete instances of %d: %w", id, err)
	}
	res.Deleted, _ = out.RowsAffected()

	preserved, err := preservedRecurIDs(ctx, q, id)
	if err != nil {
		return nil, err
	}
	res.Preserved = len(preserved)

	if m.rrule.String == "" && m.rdate.String == "" {
		return res, nil
	}
	if !m.dtstart.Valid {
		e.logger.Warn("recurring entry has no start date, not expanding", "entry_id", id)
		return res, nil
	}

	occurrences, err := e.occurrences(m)
	if err != nil {
		return nil, err
	}

	for _, occ := range occurrences {
		ms := schema.Millis(occ)
		if ms == m.dtstart.Int64 || preserved[ms] {
			continue
		}
		instanceID, err := insertInstance(ctx, q, m, ms)
		if err != nil {
			return nil, fmt.Errorf("failed to insert instance of %d at %d: %w", id, ms, err)
		}
		res.Created = append(res.Created, instanceID)

		if err := copyChildren(ctx, q, id, instanceID); err != nil {
			return nil, err
		}
		if e.alarms != nil {
			ids, err := e.alarms.RecalculateEntry(ctx, q, instanceID)
			if err != nil {
				return nil, fmt.Errorf("failed to recalculate alarms of instance %d: %w", instanceID, err)
			}
			res.AlarmIDs = append(res.AlarmIDs, ids...)
		}
	}

	e.logger.Debug("regenerated instances",
		"entry_id", id,
		"deleted", res.Deleted,
		"created", len(res.Created),
		"preserved", res.Preserved)
	return res, nil
}

func (e *Engine) occurrences(m *master) ([]time.Time, error) {
	tz := m.dtstartTZ.String
	exdates, err := schema.ParseDateList(m.exdate.String)
	if err != nil {
		return nil, fmt.Errorf("%w: exdate: %v", ErrInvalidRecurrenceRule, err)
	}
	rdates, err := schema.ParseDateList(m.rdate.String)
	if err != nil {
		return nil, fmt.Errorf("%w: rdate: %v", ErrInvalidRecurrenceRule, err)
	}

	in := Input{
		Rule:  m.rrule.String,
		Start: schema.FromMillis(m.dtstart.Int64, tz),
	}
	for _, ms := range exdates {
		in.ExDates = append(in.ExDates, schema.FromMillis(ms, tz))
	}
	for _, ms := range rdates {
		in.RDates = append(in.RDates, schema.FromMillis(ms, tz))
	}
	return Expand(in, e.limits)
}

// preservedRecurIDs returns the recurrence ids of the master's surviving
// instances.
func preservedRecurIDs(ctx context.Context, q db.DBTX, id int64) (map[int64]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT recurid FROM entry WHERE recur_original_id = ? AND recurid IS NOT NULL`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list preserved instances of %d: %w", id, err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, err
		}
		out[ms] = true
	}
	return out, rows.Err()
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}

// insertInstance copies master onto a new linked row starting at ms. A due
// date keeps the master's distance from the start.
func insertInstance(ctx context.Context, q db.DBTX, m *master, ms int64) (int64, error) {
	var due any
	if m.due.Valid {
		due = ms + (m.due.Int64 - m.dtstart.Int64)
	}

	var copied []string
	for _, c := range schema.Entry.Columns() {
		if !instanceExcluded[c.ID] {
			copied = append(copied, string(c.ID))
		}
	}

	sel := builder().Select(copied...).
		Column("?", ms).
		Column(string(schema.ColDTStartTZ)).
		Column("?", due).
		Column(string(schema.ColDueTZ)).
		Column("?", ms).
		Column(string(schema.ColDTStartTZ)).
		Column("1").
		Column(string(schema.ColID)).
		Column("COALESCE(sequence, 0)").
		From(string(schema.TableEntry)).
		Where(squirrel.Eq{string(schema.ColID): m.id})

	cols := append(append([]string(nil), copied...),
		string(schema.ColDTStart),
		string(schema.ColDTStartTZ),
		string(schema.ColDue),
		string(schema.ColDueTZ),
		string(schema.ColRecurID),
		string(schema.ColRecurIDTZ),
		string(schema.ColRecurLinked),
		string(schema.ColRecurOriginalID),
		string(schema.ColSequence),
	)

	query, args, err := builder().Insert(string(schema.TableEntry)).Columns(cols...).Select(sel).ToSql()
	if err != nil {
		return 0, err
	}
	out, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return out.LastInsertId()
}

// copyChildren duplicates the master's property rows onto an instance.
func copyChildren(ctx context.Context, q db.DBTX, from, to int64) error {
	for _, t := range propagatedChildren {
		var cols []string
		for _, c := range t.CopyableColumns() {
			cols = append(cols, string(c))
		}
		query, args, err := builder().
			Insert(string(t.Name)).
			Columns(append([]string{string(schema.ColEntryID)}, cols...)...).
			Select(builder().Select().Column("?", to).Columns(cols...).
				From(string(t.Name)).
				Where(squirrel.Eq{string(schema.ColEntryID): from})).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to copy %s rows onto instance %d: %w", t.Name, to, err)
		}
	}
	return nil
}
