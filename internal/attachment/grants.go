package attachment

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Grant is a transient capability for one caller to read and write one
// backing file without going through the gateway.
type Grant struct {
	Token   string
	Caller  string
	URI     string
	Expires time.Time
}

type grantKey struct {
	caller string
	uri    string
}

// Grants tracks live capabilities. Re-granting extends the expiry.
type Grants struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	grants map[grantKey]Grant
}

// NewGrants creates a registry whose grants live for ttl.
func NewGrants(ttl time.Duration) *Grants {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Grants{
		ttl:    ttl,
		now:    time.Now,
		grants: make(map[grantKey]Grant),
	}
}

// Issue grants caller access to uri.
func (g *Grants) Issue(caller, uri string) Grant {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := grantKey{caller: caller, uri: uri}
	gr, ok := g.grants[key]
	if !ok {
		gr = Grant{Token: uuid.NewString(), Caller: caller, URI: uri}
	}
	gr.Expires = g.now().Add(g.ttl)
	g.grants[key] = gr
	return gr
}

// Allowed reports whether caller holds a live grant for uri.
func (g *Grants) Allowed(caller, uri string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	gr, ok := g.grants[grantKey{caller: caller, uri: uri}]
	return ok && g.now().Before(gr.Expires)
}

// Revoke drops every grant for uri.
func (g *Grants) Revoke(uri string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for k := range g.grants {
		if k.uri == uri {
			delete(g.grants, k)
		}
	}
}

// Prune removes expired grants and returns how many were removed.
func (g *Grants) Prune() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	n := 0
	for k, gr := range g.grants {
		if !now.Before(gr.Expires) {
			delete(g.grants, k)
			n++
		}
	}
	return n
}

// Len returns the number of grants held, expired ones included.
func (g *Grants) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.grants)
}
