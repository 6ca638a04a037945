package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Direction selects which way Migrate walks the schema history.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// newMigrator builds a migrator over the shared pool. The returned release
// func closes only the embedded source: closing the postgres driver would
// also close db.
func newMigrator(db *sqlx.DB) (*migrate.Migrate, func(), error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("open migration source: %w", err)
	}
	release := func() { _ = src.Close() }

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("open migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("init migrator: %w", err)
	}
	return m, release, nil
}

// Migrate applies (Up) or rolls back (Down) migrations. steps <= 0 means all
// of them. An already current schema is not an error.
func Migrate(ctx context.Context, db *sqlx.DB, dir Direction, steps int) error {
	m, release, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer release()

	done := make(chan error, 1)
	go func() {
		done <- run(m, dir, steps)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		m.GracefulStop <- true
		err = <-done
		if err == nil {
			err = ctx.Err()
		}
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}
	return nil
}

// Version reports the current schema version and whether it is dirty.
func Version(db *sqlx.DB) (uint, bool, error) {
	m, release, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	defer release()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func run(m *migrate.Migrate, dir Direction, steps int) error {
	switch dir {
	case Up:
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	case Down:
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	default:
		return fmt.Errorf("unknown direction %q", dir)
	}
}
