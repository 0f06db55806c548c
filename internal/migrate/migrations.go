// Package migrate brings a proposal workspace database up to the current
// schema. Migrations are embedded SQL files named <version>_<label>.sql and
// applied one transaction each; the schema_migrations ledger records what ran.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed sql/*.sql
var schemaFS embed.FS

type migration struct {
	Version int
	Label   string
	SQL     string
}

func load() ([]migration, error) {
	entries, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}
	out := make([]migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			return nil, fmt.Errorf("migration %s: name must start with a version: %w", name, err)
		}
		data, err := schemaFS.ReadFile("sql/" + name)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
		out = append(out, migration{
			Version: version,
			Label:   strings.TrimSuffix(name, ".sql"),
			SQL:     string(data),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func appliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()
	applied := map[int]bool{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// Migrate applies every pending migration in version order. Re-running against
// an up-to-date database is a no-op.
func Migrate(db *sql.DB) error {
	migrations, err := load()
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		label TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := apply(db, m); err != nil {
			return err
		}
	}
	return nil
}

// apply runs one migration and its ledger row in a single transaction, so a
// half-applied migration never counts as done.
func apply(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.Label, err)
	}
	_, err = tx.Exec(`INSERT INTO schema_migrations(version,label,applied_at) VALUES (?,?,?)`,
		m.Version, m.Label, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record migration %s: %w", m.Label, err)
	}
	return tx.Commit()
}
