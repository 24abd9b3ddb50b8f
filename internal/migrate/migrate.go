// Package migrate applies the SQL files in migrations/ to the database.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/zaldivarmena/mindy/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// DefaultSource is the migration directory relative to the working directory.
const DefaultSource = "file://migrations"

// Up applies all pending migrations from source to the database at dbURL.
func Up(dbURL, source string) error {
	if source == "" {
		source = DefaultSource
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("[Migrate] Schema up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("[Migrate] Schema migrated", "version", version, "dirty", dirty)
	return nil
}
