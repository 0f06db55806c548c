// Package db opens the per-workspace proposal database. Each workspace keeps
// its state under a .fdpg directory; the store and the audit log share one
// SQLite file there.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir = ".fdpg"
	databaseFile = "fdpg.db"
)

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the workspace state directory if it is missing and
// returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspaceRoot(workspace), workspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// Open ensures the workspace exists and opens its database. Foreign keys are
// enforced and a busy timeout covers concurrent CLI invocations against the
// same workspace.
func Open(cfg Config) (*sql.DB, error) {
	dir, err := EnsureWorkspace(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		filepath.Join(dir, databaseFile))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open proposal database: %w", err)
	}
	return conn, nil
}

// Path returns the database file path for a workspace without creating it.
func Path(workspace string) string {
	return filepath.Join(workspaceRoot(workspace), workspaceDir, databaseFile)
}

func workspaceRoot(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}
