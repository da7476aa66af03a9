package gateway

import (
	"context"
	"time"

	"github.com/entrybook/syncgw/internal/gateway/query"
	"github.com/entrybook/syncgw/internal/store/schema"
)

// Request identifies the caller and the resource of one gateway operation.
type Request struct {
	// Path is "<entity>" or "<entity>/<id>".
	Path string

	// SyncAdapter must be true; only sync clients may use the gateway.
	SyncAdapter bool

	AccountName string
	AccountType string

	// Caller names the calling application. The configured owner caller
	// may address the local account.
	Caller string
}

// Account returns the account the request is scoped to.
func (r Request) Account() query.Account {
	return query.Account{Name: r.AccountName, Type: r.AccountType}
}

// Row is one result row keyed by column name.
type Row map[string]any

// Action names the kind of change an observer is told about.
type Action string

const (
	ActionInserted    Action = "inserted"
	ActionUpdated     Action = "updated"
	ActionDeleted     Action = "deleted"
	ActionRegenerated Action = "regenerated"
)

// Change describes a committed mutation.
type Change struct {
	Table     schema.TableName `json:"table"`
	IDs       []int64          `json:"ids,omitempty"`
	Count     int64            `json:"count"`
	Action    Action           `json:"action"`
	Account   query.Account    `json:"-"`
	Timestamp time.Time        `json:"timestamp"`
}

// Observer is notified after every successful mutation.
type Observer interface {
	Changed(ctx context.Context, c Change)
}

// Sweeper accepts requests for a background orphan sweep.
type Sweeper interface {
	Schedule()
}
