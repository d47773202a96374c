// Package db holds the DuckDB facility index.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
}

// Get returns the singleton DuckDB connection.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			initErr = eris.Wrap(err, "db: create duckdb directory")
			return
		}

		dbPath := filepath.Join(duckdbDir, cfg.DBName+".duckdb")
		instance, initErr = Open(dbPath, "spatial")
	})
	return instance, initErr
}

// Open opens a DuckDB database at path and loads the given extensions when
// available. An empty path is in-memory.
func Open(path string, extensions ...string) (*sql.DB, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, eris.Wrapf(err, "db: open %q", path)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, eris.Wrapf(err, "db: ping %q", path)
	}

	for _, ext := range extensions {
		if _, err := conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			zap.L().Debug("db: extension unavailable", zap.String("extension", ext), zap.Error(err))
		}
	}
	return conn, nil
}

// Close closes the singleton connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}
