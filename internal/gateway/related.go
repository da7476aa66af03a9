package gateway

import (
	"context"
	"fmt"

	"github.com/entrybook/syncgw/internal/gateway/query"
	"github.com/entrybook/syncgw/internal/store/schema"
)

// ResolveRelated looks up the entries a single relatedto row refers to by
// UID, within the caller's account. A reference whose target is not stored
// resolves to no ids.
func (g *Gateway) ResolveRelated(ctx context.Context, req Request) ([]int64, error) {
	route, b, err := g.prepare(req)
	if err != nil {
		return nil, err
	}
	if route.Table != schema.RelatedTo || !route.Single {
		return nil, fmt.Errorf("%w: %s is not a single relatedto row", ErrInvalidRequest, route)
	}

	stmt, args, err := b.Select(target(route), query.Filter{Projection: []string{string(schema.ColText)}})
	if err != nil {
		return nil, err
	}
	var uid *string
	err = g.store.QueryRowContext(ctx, stmt, args...).Scan(&uid)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, route)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", route, err)
	}
	if uid == nil || *uid == "" {
		return nil, nil
	}

	return g.selectIDs(ctx, g.store, b, query.Target{Table: schema.Entry}, query.Filter{
		Selection: "uid = ?",
		Args:      []any{*uid},
	})
}
