package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrybook/syncgw/internal/gateway"
	"github.com/entrybook/syncgw/internal/gateway/query"
	"github.com/entrybook/syncgw/internal/store/schema"
)

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(DefaultConfig(), nil)
	hub.Start()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		hub.Accept(w, r, query.Account{Name: q.Get("account_name"), Type: q.Get("account_type")})
	}))
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, ctx context.Context, url, account string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url+"/ws?account_type=caldav&account_name="+account, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	msg := read(t, ctx, conn)
	require.Equal(t, MessageTypeHello, msg.Type)
	var hello HelloData
	require.NoError(t, json.Unmarshal(msg.Data, &hello))
	require.Equal(t, account, hello.AccountName)
	return conn
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_ConnectAndCount(t *testing.T) {
	hub, url := newTestHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dial(t, ctx, url, "alice")
	dial(t, ctx, url, "bob")
	assert.Equal(t, 2, hub.ClientCount())
}

func TestHub_ChangesStayInAccount(t *testing.T) {
	hub, url := newTestHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dial(t, ctx, url, "alice")
	bob := dial(t, ctx, url, "bob")

	hub.Changed(ctx, gateway.Change{
		Table:   schema.TableEntry,
		IDs:     []int64{7},
		Count:   1,
		Action:  gateway.ActionDeleted,
		Account: query.Account{Name: "bob", Type: "caldav"},
	})
	hub.Changed(ctx, gateway.Change{
		Table:   schema.TableCollection,
		IDs:     []int64{1},
		Count:   1,
		Action:  gateway.ActionInserted,
		Account: query.Account{Name: "alice", Type: "caldav"},
	})

	msg := read(t, ctx, alice)
	require.Equal(t, MessageTypeChange, msg.Type)
	var change map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &change))
	assert.Equal(t, "collection", change["table"])
	assert.Equal(t, "inserted", change["action"])
	assert.NotContains(t, change, "Account", "account is never streamed")

	msg = read(t, ctx, bob)
	require.NoError(t, json.Unmarshal(msg.Data, &change))
	assert.Equal(t, "entry", change["table"])
	assert.Equal(t, "deleted", change["action"])
}

func TestHub_AlarmsReachEveryone(t *testing.T) {
	hub, url := newTestHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dial(t, ctx, url, "alice")
	bob := dial(t, ctx, url, "bob")

	hub.AlarmsRescheduled(ctx, []int64{3, 4})

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := read(t, ctx, conn)
		require.Equal(t, MessageTypeAlarms, msg.Type)
		assert.False(t, msg.Timestamp.IsZero())
		var data AlarmsData
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, []int64{3, 4}, data.AlarmIDs)
	}
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	hub, url := newTestHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, url, "alice")
	require.Equal(t, 1, hub.ClientCount())
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_StopIsIdempotent(t *testing.T) {
	hub := NewHub(Config{}, nil)
	hub.Start()
	hub.Stop()
	hub.Stop()
	hub.AlarmsRescheduled(context.Background(), []int64{1})
	assert.Zero(t, hub.ClientCount())
}

func TestHub_AcceptAfterStop(t *testing.T) {
	hub := NewHub(DefaultConfig(), nil)
	hub.Start()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Accept(w, r, query.Account{Name: "alice", Type: "caldav"})
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Clients racing the shutdown either register before it or are refused.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.Dial(ctx, url, nil)
			if err == nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
			}
		}()
	}
	hub.Stop()
	wg.Wait()
	assert.Zero(t, hub.ClientCount())

	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}
	assert.Zero(t, hub.ClientCount())
}
