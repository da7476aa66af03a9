package attachment

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeWatcher_UpdatesFileSize(t *testing.T) {
	store, m, entryID := setup(t)
	ctx := context.Background()

	id := insertAttachment(t, store, entryID, "notes.txt", nil, nil)
	uri, err := m.Materialize(ctx, store, id)
	require.NoError(t, err)

	w, err := NewSizeWatcher(m, store, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	p, err := m.Resolve(uri)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("hello world"), 0644))

	assert.Eventually(t, func() bool {
		var size int64
		err := store.QueryRowContext(ctx, `SELECT filesize FROM attachment WHERE id = ?`, id).Scan(&size)
		return err == nil && size == 11
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSizeWatcher_Apply(t *testing.T) {
	store, m, entryID := setup(t)
	ctx := context.Background()

	id := insertAttachment(t, store, entryID, "notes.txt", nil, nil)
	uri, err := m.Materialize(ctx, store, id)
	require.NoError(t, err)
	p, err := m.Resolve(uri)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("four"), 0644))

	w, err := NewSizeWatcher(m, store, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.watcher.Close() })

	u, ok := w.apply(p)
	require.True(t, ok)
	assert.Equal(t, int64(4), u.Size)
	assert.Equal(t, int64(1), u.Rows)

	_, ok = w.apply(p)
	assert.False(t, ok, "unchanged size touches no rows")
	_, ok = w.apply(filepath.Join(t.TempDir(), "elsewhere.txt"))
	assert.False(t, ok)
}

func TestSizeWatcher_StartTwice(t *testing.T) {
	store, m, _ := setup(t)

	w, err := NewSizeWatcher(m, store, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	assert.Error(t, w.Start())
}

func TestSizeWatcher_StopIdempotent(t *testing.T) {
	store, m, _ := setup(t)

	w, err := NewSizeWatcher(m, store, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
