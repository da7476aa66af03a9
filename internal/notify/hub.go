// Package notify streams content changes to websocket clients.
//
// The Hub is registered as a gateway observer and as the alarm scheduler.
// Each client subscribes with an account; change messages reach only the
// clients of the account the change was made in.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/entrybook/syncgw/internal/gateway"
	"github.com/entrybook/syncgw/internal/gateway/query"
)

// MessageType defines the type of a streamed message.
type MessageType string

const (
	// MessageTypeHello is sent once after a client connects.
	MessageTypeHello MessageType = "hello"

	// MessageTypeChange reports a committed insert, update, delete or
	// instance regeneration.
	MessageTypeChange MessageType = "change"

	// MessageTypeAlarms reports alarms whose trigger time was recomputed.
	MessageTypeAlarms MessageType = "alarms_rescheduled"
)

// Message is one streamed message.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// HelloData is the payload of a hello message.
type HelloData struct {
	AccountName string `json:"account_name"`
	AccountType string `json:"account_type"`
}

// AlarmsData is the payload of an alarms_rescheduled message.
type AlarmsData struct {
	AlarmIDs []int64 `json:"alarm_ids"`
}

// Config holds hub configuration.
type Config struct {
	// Buffer is the number of queued messages before new ones are dropped.
	Buffer int

	// WriteTimeout bounds a single client write.
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Buffer:       100,
		WriteTimeout: 5 * time.Second,
	}
}

type envelope struct {
	msg Message
	// nil reaches every client
	account *query.Account
}

// Hub fans messages out to connected websocket clients.
type Hub struct {
	config Config

	clients   map[*websocket.Conn]query.Account
	clientsMu sync.RWMutex

	broadcast chan envelope

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger *slog.Logger
}

// NewHub creates a hub. Call Start before accepting clients.
func NewHub(config Config, logger *slog.Logger) *Hub {
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		config:    config,
		clients:   make(map[*websocket.Conn]query.Account),
		broadcast: make(chan envelope, config.Buffer),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With("component", "notify"),
	}
}

// Start begins the broadcast loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.broadcastLoop()
}

// Stop disconnects every client and waits for the hub's goroutines.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()

		h.clientsMu.Lock()
		conns := make([]*websocket.Conn, 0, len(h.clients))
		for conn := range h.clients {
			conns = append(conns, conn)
			delete(h.clients, conn)
		}
		h.clientsMu.Unlock()

		for _, conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		h.wg.Wait()
		h.logger.Info("change hub stopped")
	})
}

// Changed implements gateway.Observer.
func (h *Hub) Changed(_ context.Context, c gateway.Change) {
	data, err := json.Marshal(c)
	if err != nil {
		h.logger.Error("failed to marshal change", "error", err)
		return
	}
	account := c.Account
	h.enqueue(envelope{
		msg:     Message{Type: MessageTypeChange, Timestamp: c.Timestamp, Data: data},
		account: &account,
	})
}

// AlarmsRescheduled implements alarm.Scheduler.
func (h *Hub) AlarmsRescheduled(_ context.Context, alarmIDs []int64) {
	data, err := json.Marshal(AlarmsData{AlarmIDs: alarmIDs})
	if err != nil {
		h.logger.Error("failed to marshal alarm ids", "error", err)
		return
	}
	h.enqueue(envelope{msg: Message{Type: MessageTypeAlarms, Data: data}})
}

func (h *Hub) enqueue(e envelope) {
	select {
	case h.broadcast <- e:
	case <-h.ctx.Done():
	default:
		h.logger.Warn("broadcast queue full, dropping message", "type", e.msg.Type)
	}
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case e := <-h.broadcast:
			if e.msg.Timestamp.IsZero() {
				e.msg.Timestamp = time.Now().UTC()
			}
			data, err := json.Marshal(e.msg)
			if err != nil {
				h.logger.Error("failed to marshal message", "error", err)
				continue
			}

			h.clientsMu.RLock()
			targets := make([]*websocket.Conn, 0, len(h.clients))
			for conn, account := range h.clients {
				if e.account == nil || *e.account == account {
					targets = append(targets, conn)
				}
			}
			h.clientsMu.RUnlock()

			for _, conn := range targets {
				ctx, cancel := context.WithTimeout(h.ctx, h.config.WriteTimeout)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					h.logger.Debug("failed to send to client", "error", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

// Accept upgrades r to a websocket subscribed to account's changes. The
// caller has already authorized the request.
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request, account query.Account) {
	if h.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	// Registration and wg.Add happen under the lock Stop takes after
	// cancelling, so Stop either sees this client or Accept sees the cancel.
	h.clientsMu.Lock()
	if h.ctx.Err() != nil {
		h.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.clients[conn] = account
	count := len(h.clients)
	h.wg.Add(1)
	h.clientsMu.Unlock()
	h.logger.Info("client connected", "account_name", account.Name, "clients", count)

	hello, _ := json.Marshal(HelloData{AccountName: account.Name, AccountType: account.Type})
	welcome, _ := json.Marshal(Message{Type: MessageTypeHello, Timestamp: time.Now().UTC(), Data: hello})
	ctx, cancel := context.WithTimeout(h.ctx, h.config.WriteTimeout)
	_ = conn.Write(ctx, websocket.MessageText, welcome)
	cancel()

	go h.readLoop(conn)
}

// readLoop drains client frames until the connection closes.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.wg.Done()
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	count := len(h.clients)
	h.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Info("client disconnected", "clients", count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
