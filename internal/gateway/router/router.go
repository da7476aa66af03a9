// Package router maps resource paths to entity tables.
//
// A path is either "<entity>" (collection access) or "<entity>/<id>"
// (single-item access). The mapping is pure and holds no state.
package router

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/entrybook/syncgw/internal/store/schema"
)

// ErrUnknownResource is returned for any path that does not name a known
// entity, or whose id segment is not a positive integer.
var ErrUnknownResource = errors.New("unknown resource")

// Route is the result of parsing a resource path.
type Route struct {
	Table *schema.Table

	// Single is true when the path addresses one row by id.
	Single bool
	ID     int64
}

// Parse resolves path into a Route. A single leading or trailing slash is
// tolerated.
func Parse(path string) (Route, error) {
	p := strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/")
	if p == "" {
		return Route{}, fmt.Errorf("%w: empty path", ErrUnknownResource)
	}

	entity, idPart, single := strings.Cut(p, "/")
	table, ok := schema.Lookup(schema.TableName(entity))
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownResource, path)
	}
	if !single {
		return Route{Table: table}, nil
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownResource, path)
	}
	return Route{Table: table, Single: true, ID: id}, nil
}

// Path formats the route back into its canonical resource path.
func (r Route) Path() string {
	if r.Single {
		return fmt.Sprintf("%s/%d", r.Table.Name, r.ID)
	}
	return string(r.Table.Name)
}

// String implements fmt.Stringer.
func (r Route) String() string {
	return r.Path()
}
