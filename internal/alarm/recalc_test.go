package alarm

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrybook/syncgw/internal/store/db"
	"github.com/entrybook/syncgw/internal/store/schema"
)

type recordingScheduler struct {
	calls [][]int64
}

func (s *recordingScheduler) AlarmsRescheduled(_ context.Context, ids []int64) {
	s.calls = append(s.calls, ids)
}

var start = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*db.DB, int64) {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	res, err := store.ExecContext(ctx, `INSERT INTO collection (account_name, account_type) VALUES ('a', 'caldav')`)
	require.NoError(t, err)
	collID, _ := res.LastInsertId()

	res, err = store.ExecContext(ctx, `
		INSERT INTO entry (collection_id, dtstart, dtstart_timezone, due, due_timezone)
		VALUES (?, ?, 'Europe/Vienna', ?, NULL)`,
		collID, schema.Millis(start), schema.Millis(start.Add(2*time.Hour)))
	require.NoError(t, err)
	entryID, _ := res.LastInsertId()
	return store, entryID
}

func addAlarm(t *testing.T, store *db.DB, entryID int64, relativeTo, dur any) int64 {
	t.Helper()
	res, err := store.ExecContext(context.Background(), `
		INSERT INTO alarm (entry_id, action, trigger_relative_to, trigger_relative_duration, trigger_time)
		VALUES (?, 'DISPLAY', ?, ?, 42)`, entryID, relativeTo, dur)
	require.NoError(t, err)
	id, _ := res.LastInsertId()
	return id
}

func triggerOf(t *testing.T, store *db.DB, alarmID int64) (int64, sql.NullString) {
	t.Helper()
	var ms int64
	var tz sql.NullString
	require.NoError(t, store.QueryRowContext(context.Background(),
		`SELECT trigger_time, trigger_timezone FROM alarm WHERE id = ?`, alarmID).Scan(&ms, &tz))
	return ms, tz
}

func TestRecalculateEntry(t *testing.T) {
	store, entryID := setup(t)
	ctx := context.Background()

	fromStart := addAlarm(t, store, entryID, schema.RelativeToStart, "-PT15M")
	fromEnd := addAlarm(t, store, entryID, schema.RelativeToEnd, "PT5M")
	defaulted := addAlarm(t, store, entryID, nil, "-PT1H")
	malformed := addAlarm(t, store, entryID, schema.RelativeToStart, "soon")
	absolute := addAlarm(t, store, entryID, nil, nil)

	r := New(nil, nil)
	ids, err := r.RecalculateEntry(ctx, store, entryID)
	require.NoError(t, err)
	assert.Equal(t, []int64{fromStart, fromEnd, defaulted}, ids)

	ms, tz := triggerOf(t, store, fromStart)
	assert.Equal(t, schema.Millis(start.Add(-15*time.Minute)), ms)
	assert.Equal(t, "Europe/Vienna", tz.String)

	ms, tz = triggerOf(t, store, fromEnd)
	assert.Equal(t, schema.Millis(start.Add(2*time.Hour+5*time.Minute)), ms)
	assert.False(t, tz.Valid, "floating due date gives a floating trigger")

	ms, _ = triggerOf(t, store, defaulted)
	assert.Equal(t, schema.Millis(start.Add(-time.Hour)), ms, "missing relative_to means START")

	ms, _ = triggerOf(t, store, malformed)
	assert.Equal(t, int64(42), ms, "malformed duration keeps the stale trigger")
	ms, _ = triggerOf(t, store, absolute)
	assert.Equal(t, int64(42), ms, "absolute alarms are untouched")
}

func TestRecalculate_FollowsEntryChange(t *testing.T) {
	store, entryID := setup(t)
	ctx := context.Background()
	alarmID := addAlarm(t, store, entryID, schema.RelativeToStart, "-PT15M")
	r := New(nil, nil)

	_, err := r.RecalculateAlarm(ctx, store, alarmID)
	require.NoError(t, err)

	moved := start.Add(24 * time.Hour)
	_, err = store.ExecContext(ctx, `UPDATE entry SET dtstart = ? WHERE id = ?`, schema.Millis(moved), entryID)
	require.NoError(t, err)

	ids, err := r.RecalculateEntry(ctx, store, entryID)
	require.NoError(t, err)
	assert.Equal(t, []int64{alarmID}, ids)

	ms, _ := triggerOf(t, store, alarmID)
	assert.Equal(t, schema.Millis(moved.Add(-15*time.Minute)), ms)
}

func TestRecalculate_MissingReference(t *testing.T) {
	store, entryID := setup(t)
	ctx := context.Background()
	alarmID := addAlarm(t, store, entryID, schema.RelativeToEnd, "PT5M")

	_, err := store.ExecContext(ctx, `UPDATE entry SET due = NULL WHERE id = ?`, entryID)
	require.NoError(t, err)

	ids, err := New(nil, nil).RecalculateAlarm(ctx, store, alarmID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNotify(t *testing.T) {
	s := &recordingScheduler{}
	r := New(s, nil)

	r.Notify(context.Background(), nil)
	r.Notify(context.Background(), []int64{3, 4})

	require.Len(t, s.calls, 1)
	assert.Equal(t, []int64{3, 4}, s.calls[0])

	New(nil, nil).Notify(context.Background(), []int64{1})
}
