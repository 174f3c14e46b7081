package schemaclient

import (
	"context"
	"database/sql"
	"fmt"

	"kopra/internal/platform/config"
	"kopra/internal/platform/database"
)

// NewPostgresFactory builds schema clients against the shared database.
// Each client is a small pool whose connections pin search_path to the
// tenant's schema, so data-plane queries cannot cross tenants. The client
// is pinged before being handed to the cache; a schema that does not exist
// yet (half-provisioned tenant) fails here, not on first query.
func NewPostgresFactory(cfg config.DatabaseConfig) Factory {
	return func(ctx context.Context, schemaName string) (*sql.DB, error) {
		db, err := database.OpenSchema(cfg, schemaName)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping schema %s: %w", schemaName, err)
		}
		var found bool
		err = db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
			schemaName).Scan(&found)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("check schema %s: %w", schemaName, err)
		}
		if !found {
			_ = db.Close()
			return nil, fmt.Errorf("schema %s does not exist", schemaName)
		}
		return db, nil
	}
}
