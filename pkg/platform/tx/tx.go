// Package tx threads a database transaction through context so stores can
// participate in a caller-managed transaction without changing their API.
package tx

import (
	"context"
	"database/sql"
)

type contextKey struct{}

// WithTx returns a context carrying the transaction.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, contextKey{}, tx)
}

// From extracts the transaction from the context, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(contextKey{}).(*sql.Tx)
	return tx, ok
}
