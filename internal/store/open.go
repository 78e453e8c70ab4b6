package store

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/mcptick/internal/store/pg"
	"github.com/nextlevelbuilder/mcptick/internal/store/sqlite"
)

// Open picks the engine from the URL: postgres:// / postgresql:// go to the
// networked engine, everything else is treated as a sqlite path (an optional
// sqlite:// prefix is stripped).
func Open(url string) (Store, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		db, err := pg.OpenDB(url)
		if err != nil {
			return nil, err
		}
		return newSQLStore(db, "postgres")
	}

	path := strings.TrimPrefix(url, "sqlite://")
	if path == "" {
		return nil, fmt.Errorf("empty database URL")
	}
	db, err := sqlite.OpenDB(path)
	if err != nil {
		return nil, err
	}
	return newSQLStore(db, "sqlite")
}

// NewWithDB wraps an already-open database. Used by tests.
func NewWithDB(db *sqlx.DB, kind string) (Store, error) {
	return newSQLStore(db, kind)
}

func newSQLStore(db *sqlx.DB, kind string) (*sqlStore, error) {
	s := &sqlStore{db: db, kind: kind}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
