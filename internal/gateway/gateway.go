// Package gateway mediates every external read and write of the entry
// store.
//
// A request names a resource path and the caller's account. The gateway
// routes the path, builds an account-scoped statement, executes it and runs
// the side effects a mutation implies: recurrence regeneration, alarm
// trigger recalculation and attachment file management. Side effects run
// after the triggering write in their own transaction; a failed side effect
// is logged and rolled back without undoing the write.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/entrybook/syncgw/internal/alarm"
	"github.com/entrybook/syncgw/internal/attachment"
	"github.com/entrybook/syncgw/internal/gateway/query"
	"github.com/entrybook/syncgw/internal/gateway/router"
	"github.com/entrybook/syncgw/internal/recurrence"
	"github.com/entrybook/syncgw/internal/store/db"
	"github.com/entrybook/syncgw/internal/store/schema"
)

// Config holds gateway policy.
type Config struct {
	// OwnerCaller is the caller name of the owning application. Only it
	// may address the local account.
	OwnerCaller string

	// LocalAccountType is the reserved local-only account type.
	LocalAccountType string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		OwnerCaller:      "syncgw",
		LocalAccountType: schema.DefaultLocalAccountType,
	}
}

// Deps are the collaborators of a Gateway. Files is required; nil
// Recurrence and Alarms get default instances.
type Deps struct {
	Recurrence *recurrence.Engine
	Alarms     *alarm.Recalculator
	Files      *attachment.Manager
	Grants     *attachment.Grants
	Sweeper    Sweeper
	Observers  []Observer
	Logger     *slog.Logger
}

// Gateway executes account-scoped CRUD requests.
type Gateway struct {
	store     *db.DB
	config    Config
	recur     *recurrence.Engine
	alarms    *alarm.Recalculator
	files     *attachment.Manager
	grants    *attachment.Grants
	sweeper   Sweeper
	observers []Observer
	logger    *slog.Logger
}

// New creates a Gateway over store.
func New(store *db.DB, config Config, deps Deps) (*Gateway, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deps.Files == nil {
		return nil, fmt.Errorf("attachment manager cannot be nil")
	}
	if config.LocalAccountType == "" {
		config.LocalAccountType = schema.DefaultLocalAccountType
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Alarms == nil {
		deps.Alarms = alarm.New(nil, logger)
	}
	if deps.Recurrence == nil {
		deps.Recurrence = recurrence.NewEngine(recurrence.DefaultLimits(), deps.Alarms, logger)
	}
	if deps.Grants == nil {
		deps.Grants = attachment.NewGrants(0)
	}

	return &Gateway{
		store:     store,
		config:    config,
		recur:     deps.Recurrence,
		alarms:    deps.Alarms,
		files:     deps.Files,
		grants:    deps.Grants,
		sweeper:   deps.Sweeper,
		observers: deps.Observers,
		logger:    logger.With("component", "gateway"),
	}, nil
}

// Grants returns the capability registry used for attachment reads.
func (g *Gateway) Grants() *attachment.Grants {
	return g.grants
}

// Files returns the attachment manager.
func (g *Gateway) Files() *attachment.Manager {
	return g.files
}

// Authorize checks that req comes from a sync client and names an account
// its caller may address.
func (g *Gateway) Authorize(req Request) error {
	_, err := g.scope(req)
	return err
}

func (g *Gateway) scope(req Request) (*query.Builder, error) {
	if !req.SyncAdapter {
		return nil, fmt.Errorf("%w: not a sync client", ErrUnauthorizedCaller)
	}
	if req.AccountName == "" || req.AccountType == "" {
		return nil, ErrMissingAccountScope
	}
	return query.New(query.Scope{
		Account:   req.Account(),
		Trusted:   g.config.OwnerCaller != "" && req.Caller == g.config.OwnerCaller,
		LocalType: g.config.LocalAccountType,
	})
}

// prepare authorizes req and routes its path.
func (g *Gateway) prepare(req Request) (router.Route, *query.Builder, error) {
	b, err := g.scope(req)
	if err != nil {
		return router.Route{}, nil, err
	}
	route, err := router.Parse(req.Path)
	if err != nil {
		return router.Route{}, nil, err
	}
	return route, b, nil
}

// checkFilter rejects a filter whose selection or sort order is malformed.
func checkFilter(route router.Route, f query.Filter) error {
	if err := f.Validate(route.Table); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func target(r router.Route) query.Target {
	if r.Single {
		return query.Target{Table: r.Table, ID: r.ID}
	}
	return query.Target{Table: r.Table}
}

// Query returns the rows of req's resource matching f. A single-item read
// that matches nothing fails with ErrNotFound. Reading the attachment
// collection grants the caller access to each returned backing file.
func (g *Gateway) Query(ctx context.Context, req Request, f query.Filter) ([]Row, error) {
	route, b, err := g.prepare(req)
	if err != nil {
		return nil, err
	}
	if err := checkFilter(route, f); err != nil {
		return nil, err
	}
	stmt, args, err := b.Select(target(route), f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	rows, err := g.store.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", route, err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", route, err)
	}
	if route.Single && len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, route)
	}

	if route.Table == schema.Attachment && !route.Single {
		g.grantFiles(req.Caller, out)
	}
	return out, nil
}

func (g *Gateway) grantFiles(caller string, rows []Row) {
	for _, r := range rows {
		uri, _ := r[string(schema.ColURI)].(string)
		if uri == "" {
			continue
		}
		if _, err := g.files.FileName(uri); err != nil {
			continue
		}
		gr := g.grants.Issue(caller, uri)
		g.logger.Debug("granted attachment access", "caller", caller, "uri", uri, "expires", gr.Expires)
	}
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok && types[i].DatabaseTypeName() != "BLOB" {
				vals[i] = string(b)
			}
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// notify tells every observer about a committed change.
func (g *Gateway) notify(ctx context.Context, req Request, table schema.TableName, action Action, ids []int64, count int64) {
	if len(g.observers) == 0 || (count == 0 && len(ids) == 0) {
		return
	}
	c := Change{
		Table:     table,
		IDs:       ids,
		Count:     count,
		Action:    action,
		Account:   req.Account(),
		Timestamp: time.Now().UTC(),
	}
	for _, o := range g.observers {
		o.Changed(ctx, c)
	}
}

// selectIDs resolves the ids of the rows a write addressed by t and f
// would touch.
func (g *Gateway) selectIDs(ctx context.Context, q db.DBTX, b *query.Builder, t query.Target, f query.Filter) ([]int64, error) {
	stmt, args, err := b.IDs(t, f)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ownerVisible reports whether the owner row values point at lies inside
// the builder's account.
func (g *Gateway) ownerVisible(ctx context.Context, q db.DBTX, b *query.Builder, t *schema.Table, values schema.Values) (bool, error) {
	stmt, args, err := b.OwnerCheck(t, values)
	if err != nil {
		return false, err
	}
	if stmt == "" {
		return true, nil
	}
	var n int64
	if err := q.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// validateRecurrence fails when values carries a malformed rule or date
// list.
func validateRecurrence(t *schema.Table, values schema.Values) error {
	if t != schema.Entry {
		return nil
	}
	if err := recurrence.Validate(values.Text(schema.ColRRule)); err != nil {
		return err
	}
	for _, c := range []schema.ColumnID{schema.ColExDate, schema.ColRDate} {
		if _, err := schema.ParseDateList(values.Text(c)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRecurrenceRule, c, err)
		}
	}
	return nil
}

func parseValues(t *schema.Table, raw map[string]any) (schema.Values, error) {
	values, err := t.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return values, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
