package schemaclient

import (
	"database/sql"
	"sync"
)

// Handle is a request-scoped lease on a schema client. Each Acquire returns
// a fresh handle; the request releases it exactly once when it finishes.
// Release is idempotent so deferred cleanup and explicit error paths cannot
// double-decrement the lease count.
type Handle struct {
	schema  string
	db      *sql.DB
	cache   *Cache
	release sync.Once
}

// DB returns the schema-scoped database handle. Queries run with the
// tenant's schema as the search path.
func (h *Handle) DB() *sql.DB { return h.db }

// Schema returns the tenant schema this handle is bound to.
func (h *Handle) Schema() string { return h.schema }

// Release returns the lease. The underlying client stays cached for other
// requests; only the cache decides when to actually close it.
func (h *Handle) Release() {
	h.release.Do(func() {
		h.cache.releaseClient(h.schema)
	})
}
