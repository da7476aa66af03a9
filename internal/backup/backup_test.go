package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrybook/syncgw/internal/attachment"
	"github.com/entrybook/syncgw/internal/gateway"
	"github.com/entrybook/syncgw/internal/gateway/query"
	"github.com/entrybook/syncgw/internal/store/db"
	"github.com/entrybook/syncgw/internal/store/schema"
)

var start = schema.Millis(time.Date(2024, 3, 4, 8, 30, 0, 0, time.UTC))

func setup(t *testing.T) (*gateway.Gateway, *db.DB) {
	t.Helper()
	dir := t.TempDir()
	store, err := db.Open(filepath.Join(dir, "backup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	files, err := attachment.NewManager(attachment.Config{Dir: filepath.Join(dir, "files"), Authority: "test"}, nil)
	require.NoError(t, err)
	gw, err := gateway.New(store, gateway.DefaultConfig(), gateway.Deps{Files: files})
	require.NoError(t, err)
	return gw, store
}

func account(name string) gateway.Request {
	return gateway.Request{SyncAdapter: true, AccountName: name, AccountType: "caldav", Caller: "backup-test"}
}

func insert(t *testing.T, gw *gateway.Gateway, req gateway.Request, path string, raw map[string]any) int64 {
	t.Helper()
	req.Path = path
	id, err := gw.Insert(context.Background(), req, raw)
	require.NoError(t, err)
	require.NotZero(t, id)
	return id
}

// seed stores a recurring entry with one edited occurrence, child rows and
// an attachment in alice's account.
func seed(t *testing.T, gw *gateway.Gateway, store *db.DB) {
	t.Helper()
	ctx := context.Background()
	alice := account("alice")

	coll := insert(t, gw, alice, "collection", map[string]any{"display_name": "Work", "url": "https://dav.example.com/work"})
	master := insert(t, gw, alice, "entry", map[string]any{
		"collection_id": coll,
		"uid":           "standup",
		"summary":       "Standup",
		"dtstart":       start,
		"rrule":         "FREQ=DAILY;COUNT=3",
	})
	insert(t, gw, alice, "category", map[string]any{"entry_id": master, "text": "work"})
	insert(t, gw, alice, "alarm", map[string]any{
		"entry_id": master, "action": "DISPLAY", "trigger_relative_duration": "-PT15M",
	})
	insert(t, gw, alice, "attachment", map[string]any{
		"entry_id": master, "filename": "notes.txt", "binary": []byte("hello"),
	})

	var instance int64
	require.NoError(t, store.QueryRowContext(ctx,
		`SELECT id FROM entry WHERE recur_original_id = ? ORDER BY recurid LIMIT 1`, master).Scan(&instance))
	alice.Path = fmt.Sprintf("entry/%d", instance)
	_, err := gw.Update(ctx, alice, map[string]any{"summary": "Standup (moved)", "sequence": 1}, query.Filter{})
	require.NoError(t, err)
}

func countIn(t *testing.T, store *db.DB, accountName, stmt string) int {
	t.Helper()
	var n int
	require.NoError(t, store.QueryRowContext(context.Background(), stmt, accountName).Scan(&n))
	return n
}

const (
	entriesOf = `SELECT COUNT(*) FROM entry e JOIN collection c ON c.id = e.collection_id WHERE c.account_name = ?`
	catsOf    = `SELECT COUNT(*) FROM category x JOIN entry e ON e.id = x.entry_id
		JOIN collection c ON c.id = e.collection_id WHERE c.account_name = ?`
)

func TestExportImport_JSONL(t *testing.T) {
	gw, store := setup(t)
	seed(t, gw, store)
	ctx := context.Background()

	var buf bytes.Buffer
	stats, err := Export(ctx, gw, account("alice"), &buf, FormatJSONL)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ByTable[schema.TableCollection])
	assert.Equal(t, 2, stats.ByTable[schema.TableEntry], "master and exception, no linked instances")
	assert.Equal(t, 2, stats.ByTable[schema.TableCategory])
	assert.Equal(t, 1, stats.ByTable[schema.TableAttachment])
	assert.Equal(t, stats.Records, strings.Count(buf.String(), "\n"))
	assert.NotContains(t, buf.String(), "content://", "managed files travel inline")

	imported, err := Import(ctx, gw, account("carol"), &buf, FormatJSONL)
	require.NoError(t, err)
	assert.Equal(t, stats.Records, imported.Records)
	assert.Zero(t, imported.Skipped)

	assert.Equal(t, 3, countIn(t, store, "carol", entriesOf), "master, exception and one regenerated instance")
	assert.Equal(t, 3, countIn(t, store, "carol", catsOf), "regenerated instance copies the imported category")

	carol := account("carol")
	carol.Path = "entry"
	rows, err := gw.Query(ctx, carol, query.Filter{Projection: []string{"summary"}, SortOrder: "id"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Standup", rows[0]["summary"])
	assert.Equal(t, "Standup (moved)", rows[1]["summary"])

	carol.Path = "attachment"
	rows, err = gw.Query(ctx, carol, query.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0]["binary"])
	carol.Path = fmt.Sprintf("attachment/%d", rows[0]["id"].(int64))
	f, err := gw.OpenAttachment(ctx, carol, false)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "hello", string(data))

	carol.Path = "alarm"
	rows, err = gw.Query(ctx, carol, query.Filter{Selection: "trigger_time = ?", Args: []any{start - 15*60*1000}})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "master alarm recomputed on import")
}

func TestExportImport_YAML(t *testing.T) {
	gw, store := setup(t)
	seed(t, gw, store)
	ctx := context.Background()

	var buf bytes.Buffer
	_, err := Export(ctx, gw, account("alice"), &buf, FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "table: collection")

	_, err = Import(ctx, gw, account("dave"), &buf, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, 3, countIn(t, store, "dave", entriesOf))
}

func TestImport_SkipsOrphans(t *testing.T) {
	gw, store := setup(t)
	in := strings.NewReader(`{"table":"collection","id":5,"values":{"display_name":"A"}}
{"table":"entry","id":9,"values":{"collection_id":5,"summary":"kept"}}
{"table":"entry","id":10,"values":{"collection_id":6,"summary":"no collection"}}
{"table":"category","id":1,"values":{"entry_id":9,"text":"x"}}
{"table":"category","id":2,"values":{"entry_id":77,"text":"y"}}
`)
	stats, err := Import(context.Background(), gw, account("erin"), in, FormatJSONL)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, countIn(t, store, "erin", entriesOf))
}

func TestImport_Rejects(t *testing.T) {
	gw, _ := setup(t)
	ctx := context.Background()

	_, err := Import(ctx, gw, account("erin"), strings.NewReader(`{"table":"tasks","id":1,"values":{}}`), FormatJSONL)
	assert.Error(t, err)

	_, err = Import(ctx, gw, account("erin"), strings.NewReader(`{"table":`), FormatJSONL)
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSONL, f)
	_, err = ParseFormat("csv")
	assert.Error(t, err)
}
