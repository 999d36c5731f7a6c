package store

import (
    "database/sql"

    _ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres stores runs and webhook state in PostgreSQL through the pgx
// database/sql driver.
type Postgres struct {
    *sqlStore
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        _ = db.Close()
        return nil, err
    }
    return &Postgres{sqlStore: &sqlStore{db: db, dollar: true}}, nil
}
