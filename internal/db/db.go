package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	defaultDBName = "tally.db"
	workspaceDir  = ".tally"

	// DefaultBusyTimeoutMS bounds how long a writer waits on another writer's lock.
	DefaultBusyTimeoutMS = 10000
)

type Config struct {
	Workspace     string
	BusyTimeoutMS int
	MaxOpenConns  int
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, defaultDBName)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// DSN builds the sqlite connection string. Transactions begin IMMEDIATE so a
// writer takes the database write lock before its first read.
func DSN(cfg Config) string {
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = DefaultBusyTimeoutMS
	}
	return fmt.Sprintf("file:%s?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		dbPath(cfg.Workspace), busy)
}

// Open opens the SQLite database with foreign keys on.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", DSN(cfg))
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", dbPath(cfg.Workspace), err)
	}
	return conn, nil
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}
