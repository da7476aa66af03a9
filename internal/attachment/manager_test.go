package attachment

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrybook/syncgw/internal/store/db"
)

func setup(t *testing.T) (*db.DB, *Manager, int64) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := db.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	m, err := NewManager(Config{Dir: filepath.Join(dir, "files"), Authority: "test"}, nil)
	require.NoError(t, err)

	res, err := store.ExecContext(ctx, `INSERT INTO collection (account_name, account_type) VALUES ('a', 'caldav')`)
	require.NoError(t, err)
	collID, _ := res.LastInsertId()
	res, err = store.ExecContext(ctx, `INSERT INTO entry (collection_id) VALUES (?)`, collID)
	require.NoError(t, err)
	entryID, _ := res.LastInsertId()

	return store, m, entryID
}

func insertAttachment(t *testing.T, store *db.DB, entryID int64, filename, fmttype any, payload []byte) int64 {
	t.Helper()
	res, err := store.ExecContext(context.Background(),
		`INSERT INTO attachment (entry_id, filename, fmttype, binary) VALUES (?, ?, ?, ?)`,
		entryID, filename, fmttype, payload)
	require.NoError(t, err)
	id, _ := res.LastInsertId()
	return id
}

type row struct {
	uri      sql.NullString
	binary   []byte
	fmttype  sql.NullString
	filename sql.NullString
	filesize sql.NullInt64
}

func loadRow(t *testing.T, store *db.DB, id int64) row {
	t.Helper()
	var r row
	require.NoError(t, store.QueryRowContext(context.Background(),
		`SELECT uri, binary, fmttype, filename, filesize FROM attachment WHERE id = ?`, id).
		Scan(&r.uri, &r.binary, &r.fmttype, &r.filename, &r.filesize))
	return r
}

func TestMaterialize_Placeholder(t *testing.T) {
	store, m, entryID := setup(t)
	id := insertAttachment(t, store, entryID, "a.pdf", nil, nil)

	uri, err := m.Materialize(context.Background(), store, id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "content://test/attachments/"), uri)
	assert.True(t, strings.HasSuffix(uri, ".pdf"), uri)

	r := loadRow(t, store, id)
	assert.Equal(t, uri, r.uri.String)
	assert.Nil(t, r.binary)
	assert.Equal(t, "a.pdf", r.filename.String)
	assert.Equal(t, "application/pdf", r.fmttype.String)
	assert.Equal(t, int64(0), r.filesize.Int64)

	p, err := m.Resolve(uri)
	require.NoError(t, err)
	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestMaterialize_PayloadAndMimeExtension(t *testing.T) {
	store, m, entryID := setup(t)
	id := insertAttachment(t, store, entryID, nil, "image/png", []byte("png-bytes"))

	uri, err := m.Materialize(context.Background(), store, id)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(uri, ".png"), uri)

	r := loadRow(t, store, id)
	assert.Nil(t, r.binary, "binary is cleared once a uri exists")
	assert.Equal(t, int64(len("png-bytes")), r.filesize.Int64)
	assert.True(t, strings.HasSuffix(r.filename.String, ".png"))

	f, err := m.Open(uri, false)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestMaterialize_KeepsExistingURI(t *testing.T) {
	store, m, entryID := setup(t)
	res, err := store.ExecContext(context.Background(),
		`INSERT INTO attachment (entry_id, uri) VALUES (?, 'https://example.com/x.pdf')`, entryID)
	require.NoError(t, err)
	id, _ := res.LastInsertId()

	uri, err := m.Materialize(context.Background(), store, id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x.pdf", uri)

	files, _, err := m.Usage()
	require.NoError(t, err)
	assert.Zero(t, files)
}

func TestMaterialize_URIDropsPayload(t *testing.T) {
	store, m, entryID := setup(t)
	res, err := store.ExecContext(context.Background(),
		`INSERT INTO attachment (entry_id, uri, binary) VALUES (?, 'https://example.com/a.pdf', ?)`,
		entryID, []byte("hello"))
	require.NoError(t, err)
	id, _ := res.LastInsertId()

	uri, err := m.Materialize(context.Background(), store, id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.pdf", uri)

	r := loadRow(t, store, id)
	assert.Equal(t, "https://example.com/a.pdf", r.uri.String)
	assert.Nil(t, r.binary)

	files, _, err := m.Usage()
	require.NoError(t, err)
	assert.Zero(t, files)
}

func TestMaterialize_IOFailure(t *testing.T) {
	store, m, entryID := setup(t)
	id := insertAttachment(t, store, entryID, "a.txt", nil, nil)

	require.NoError(t, os.RemoveAll(m.Dir()))
	require.NoError(t, os.WriteFile(m.Dir(), nil, 0644))

	_, err := m.Materialize(context.Background(), store, id)
	assert.True(t, errors.Is(err, ErrIOFailure), "got %v", err)
	assert.False(t, loadRow(t, store, id).uri.Valid, "row stays without uri")
}

func TestResolve(t *testing.T) {
	_, m, _ := setup(t)

	p, err := m.Resolve(m.URI("abc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m.Dir(), "abc.pdf"), p)

	bad := []string{
		"https://test/attachments/abc.pdf",
		"content://other/attachments/abc.pdf",
		"content://test/files/abc.pdf",
		"content://test/attachments/../db.sqlite",
		"content://test/attachments/",
		"content://test/attachments/a/b",
		"::not a uri",
	}
	for _, uri := range bad {
		_, err := m.Resolve(uri)
		assert.True(t, errors.Is(err, ErrNotManaged), "%q: %v", uri, err)
	}
}

func TestOpen_Missing(t *testing.T) {
	_, m, _ := setup(t)

	_, err := m.Open(m.URI("missing.bin"), true)
	assert.True(t, errors.Is(err, ErrNoBackingFile))
}

func TestSweep(t *testing.T) {
	store, m, entryID := setup(t)
	ctx := context.Background()

	keep := insertAttachment(t, store, entryID, "keep.txt", nil, []byte("keep"))
	drop := insertAttachment(t, store, entryID, "drop.txt", nil, []byte("drop"))
	_, err := m.Materialize(ctx, store, keep)
	require.NoError(t, err)
	dropURI, err := m.Materialize(ctx, store, drop)
	require.NoError(t, err)

	_, err = store.ExecContext(ctx, `DELETE FROM attachment WHERE id = ?`, drop)
	require.NoError(t, err)

	young := filepath.Join(m.Dir(), "fresh.bin")
	require.NoError(t, os.WriteFile(young, []byte("x"), 0644))

	m.grace = time.Minute
	m.now = func() time.Time { return time.Now().Add(30 * time.Second) }
	res, err := m.Sweep(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Removed, "files inside the grace period survive")
	assert.Equal(t, 2, res.Young)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	res, err = m.Sweep(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, int64(len("drop")+1), res.Freed)

	dropPath, _ := m.Resolve(dropURI)
	assert.NoFileExists(t, dropPath)
	assert.NoFileExists(t, young)

	files, size, err := m.Usage()
	require.NoError(t, err)
	assert.Equal(t, 1, files)
	assert.Equal(t, int64(len("keep")), size)

	res, err = m.Sweep(ctx, store)
	require.NoError(t, err)
	assert.Zero(t, res.Removed, "sweeping again is a no-op")
}
