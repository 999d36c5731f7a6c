package store

import (
    "context"
    "database/sql"
    "fmt"
    "log"
    "os"
    "path/filepath"

    _ "modernc.org/sqlite"
)

// SQLite is a single-file store for one-node deployments and tests. The
// schema is applied on open.
type SQLite struct {
    *sqlStore
    path string
}

func NewSQLite(path string) (*SQLite, error) {
    if path != ":memory:" {
        if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
            return nil, fmt.Errorf("sqlite dir: %w", err)
        }
    }
    log.Printf("store: opening sqlite at %s", path)
    db, err := sql.Open("sqlite", path)
    if err != nil {
        return nil, fmt.Errorf("open sqlite: %w", err)
    }
    // one connection keeps :memory: databases shared and avoids SQLITE_BUSY
    db.SetMaxOpenConns(1)
    pragmas := []string{
        "PRAGMA foreign_keys = ON",
        "PRAGMA journal_mode = WAL",
        "PRAGMA busy_timeout = 5000",
    }
    for _, p := range pragmas {
        if _, err := db.Exec(p); err != nil {
            _ = db.Close()
            return nil, fmt.Errorf("sqlite %s: %w", p, err)
        }
    }
    s := &SQLite{sqlStore: &sqlStore{db: db}, path: path}
    if err := s.Migrate(context.Background()); err != nil {
        _ = db.Close()
        return nil, err
    }
    return s, nil
}

func (s *SQLite) Path() string { return s.path }
