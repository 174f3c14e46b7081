// Package migrate applies ordered SQL migrations to a named schema.
// The same runner serves the control-plane schema at startup and every
// tenant schema during provisioning, so "already applied" detection works
// identically in both places.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Migration is a single versioned .up.sql file.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

var (
	// Migration files follow NNNN_description.up.sql.
	migrationFile = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.up\.sql$`)

	// Schema names are restricted to safe SQL identifiers; they are derived
	// from validated subdomains but re-checked here because they end up
	// interpolated into DDL.
	validSchemaName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
)

// EnsureSchema creates the schema if it does not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB, schemaName string) error {
	if err := checkSchemaName(schemaName); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName)); err != nil {
		return fmt.Errorf("create schema %s: %w", schemaName, err)
	}
	return nil
}

// Apply runs every pending migration from fsys against the given schema,
// in version order, each inside its own transaction. Already-applied
// versions (tracked in <schema>.schema_migrations) are skipped, which makes
// Apply safe to re-invoke after a partial failure. Returns the number of
// migrations applied.
func Apply(ctx context.Context, db *sql.DB, schemaName string, fsys fs.FS, logger *slog.Logger) (int, error) {
	if err := checkSchemaName(schemaName); err != nil {
		return 0, err
	}

	if err := ensureVersionTable(ctx, db, schemaName); err != nil {
		return 0, err
	}

	migrations, err := Load(fsys)
	if err != nil {
		return 0, err
	}

	applied, err := appliedVersions(ctx, db, schemaName)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := applyOne(ctx, db, schemaName, m); err != nil {
			return count, fmt.Errorf("apply migration %04d_%s to %s: %w", m.Version, m.Name, schemaName, err)
		}
		if logger != nil {
			logger.InfoContext(ctx, "migration applied",
				"schema", schemaName,
				"version", m.Version,
				"name", m.Name,
			)
		}
		count++
	}
	return count, nil
}

// Load reads and orders all migration files in fsys.
// It fails on duplicate versions so a bad merge cannot silently skip a file.
func Load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		match := migrationFile.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("malformed migration filename %q", entry.Name())
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, fmt.Errorf("malformed migration version %q", entry.Name())
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d (%s and %s)", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		raw, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    match[2],
			SQL:     string(raw),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func ensureVersionTable(ctx context.Context, db *sql.DB, schemaName string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, schemaName)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema_migrations in %s: %w", schemaName, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB, schemaName string) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT version FROM %s.schema_migrations", schemaName))
	if err != nil {
		return nil, fmt.Errorf("read applied versions from %s: %w", schemaName, err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func applyOne(ctx context.Context, db *sql.DB, schemaName string, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	// Migration files reference tables unqualified; pin the search_path for
	// the duration of this transaction so they land in the target schema.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL search_path TO %s", schemaName)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}

func checkSchemaName(schemaName string) error {
	if !validSchemaName.MatchString(schemaName) {
		return fmt.Errorf("invalid schema name %q", schemaName)
	}
	return nil
}
