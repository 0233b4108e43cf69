package db

import (
	"errors"
	"fmt"
	"path/filepath"

	"ResourceAPI/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies the migrations in dir to dsn. steps 0 migrates all the way
// up, a negative steps rolls that many migrations back.
func Migrate(dsn, dir string, steps int) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("abs migrations: %w", err)
	}
	// file:// wants an absolute path with forward slashes
	src := "file://" + filepath.ToSlash(abs)

	m, err := migrate.New(src, dsn)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if steps == 0 {
		err = m.Up()
	} else {
		err = m.Steps(steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("migrate version: %w", verr)
	}
	logger.Info("migrations_applied", map[string]any{
		"dir":     abs,
		"version": version,
		"dirty":   dirty,
	})
	return nil
}
