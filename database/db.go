package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// DB wraps the SQLite application database used for job tracking,
// the dashboard result cache and the query log.
type DB struct {
	App *sql.DB
}

// Initialize opens (or creates) the app database and applies the schema.
// An empty path or ":memory:" opens a private in-memory database.
func Initialize(appPath string) (*DB, error) {
	dsn := appPath
	if appPath == "" || appPath == ":memory:" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(appPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	appDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open app db: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps in-memory DBs alive
	appDB.SetMaxOpenConns(1)

	if _, err := appDB.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		log.Printf("Warning: Failed to set WAL mode: %v", err)
	}
	if err := appDB.Ping(); err != nil {
		appDB.Close()
		return nil, fmt.Errorf("failed to ping app db: %w", err)
	}

	db := &DB{App: appDB}
	if err := db.createSchema(); err != nil {
		appDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) createSchema() error {
	for _, stmt := range strings.Split(sqliteSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.App.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w\nStatement: %s", err, stmt)
		}
	}
	return nil
}

// Ping checks the app database connection
func (db *DB) Ping() error {
	return db.App.Ping()
}

func (db *DB) Close() {
	if db.App != nil {
		db.App.Close()
	}
}
