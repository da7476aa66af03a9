package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/entrybook/syncgw/internal/attachment"
	"github.com/entrybook/syncgw/internal/gateway/query"
	"github.com/entrybook/syncgw/internal/store/schema"
)

// OpenAttachment opens the backing file of a single attachment,
// read-only or read/write. The caller must close the file.
func (g *Gateway) OpenAttachment(ctx context.Context, req Request, writable bool) (*os.File, error) {
	route, b, err := g.prepare(req)
	if err != nil {
		return nil, err
	}
	if route.Table != schema.Attachment || !route.Single {
		return nil, fmt.Errorf("%w: %s is not a single attachment", ErrInvalidRequest, route)
	}

	stmt, args, err := b.Select(target(route), query.Filter{Projection: []string{string(schema.ColURI)}})
	if err != nil {
		return nil, err
	}
	var uri *string
	err = g.store.QueryRowContext(ctx, stmt, args...).Scan(&uri)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, route)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", route, err)
	}
	if uri == nil || *uri == "" {
		return nil, fmt.Errorf("%w: %s has no uri", ErrNotFound, route)
	}

	f, err := g.files.Open(*uri, writable)
	switch {
	case errors.Is(err, attachment.ErrNotManaged):
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	case errors.Is(err, attachment.ErrNoBackingFile):
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	case err != nil:
		return nil, err
	}
	return f, nil
}

// checkAttachmentURI refuses a payload that names a managed URI. Managed
// URIs are assigned by materialization only, so a client cannot point a row
// at a file it was never granted.
func (g *Gateway) checkAttachmentURI(t *schema.Table, values schema.Values) error {
	if t != schema.Attachment {
		return nil
	}
	uri := values.Text(schema.ColURI)
	if uri == "" {
		return nil
	}
	if _, err := g.files.FileName(uri); err == nil {
		return fmt.Errorf("%w: managed uri %s cannot be supplied", ErrInvalidRequest, uri)
	}
	return nil
}
