package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations
var migrations embed.FS

// migrate applies every pending up migration of the store's dialect.
//
// SQLite migrates through s.db itself since a :memory: database lives in its
// only connection; closing that migrate instance would close s.db. Postgres
// migrates over a separate handle that is closed afterwards.
func (s *Store) migrate() error {
	src, err := iofs.New(migrations, "migrations/"+string(s.dialect))
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	var driver database.Driver
	switch s.dialect {
	case SQLite:
		driver, err = sqlite3.WithInstance(s.db, &sqlite3.Config{})
	case Postgres:
		var mdb *sql.DB
		if mdb, err = sql.Open("pgx", s.dsn); err != nil {
			return fmt.Errorf("failed to open migration connection: %w", err)
		}
		driver, err = migratepgx.WithInstance(mdb, &migratepgx.Config{})
		if err != nil {
			mdb.Close()
		}
	default:
		return fmt.Errorf("unknown dialect %q", s.dialect)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s migration driver: %w", s.dialect, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(s.dialect), driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if s.dialect == Postgres {
		defer m.Close()
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		log.WithFields(log.Fields{"dialect": s.dialect, "version": version, "dirty": dirty}).Debug("Schema migrated")
	}
	return nil
}
