package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "schema_migrations"

// MigrationStatus reports one known migration version.
type MigrationStatus struct {
	Version uint
	Applied bool
	Current bool
}

// Migrator applies versioned "NNN_name.up.sql" / "NNN_name.down.sql" files
// from an fs.FS.
type Migrator struct {
	m     *migrate.Migrate
	src   source.Driver
	sqlDB *sql.DB
}

// NewMigrator opens a golang-migrate instance over files against databaseURL.
func NewMigrator(databaseURL string, files fs.FS, logger zerolog.Logger) (*Migrator, error) {
	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	m.Log = migrateLogger{logger: logger}

	return &Migrator{m: m, src: src, sqlDB: sqlDB}, nil
}

// Up applies every pending migration and reports whether anything changed.
func (mg *Migrator) Up() (bool, error) {
	err := mg.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	return err == nil, err
}

// Down rolls back the given number of applied migrations.
func (mg *Migrator) Down(steps int) error {
	if steps < 1 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	err := mg.m.Steps(-steps)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Force sets the recorded version without running SQL, clearing a dirty flag.
func (mg *Migrator) Force(version int) error {
	return mg.m.Force(version)
}

// Status lists every known version and whether the database has reached it.
// dirty is true when the last migration failed halfway.
func (mg *Migrator) Status() (statuses []MigrationStatus, dirty bool, err error) {
	current, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		current, err = 0, nil
	}
	if err != nil {
		return nil, false, err
	}
	versions, err := sourceVersions(mg.src)
	if err != nil {
		return nil, false, err
	}
	return buildStatus(versions, current), dirty, nil
}

// Close releases the source and database drivers.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr, mg.sqlDB.Close())
}

func sourceVersions(src source.Driver) ([]uint, error) {
	v, err := src.First()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	versions := []uint{v}
	for {
		v, err = src.Next(v)
		if errors.Is(err, os.ErrNotExist) {
			return versions, nil
		}
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
}

func buildStatus(versions []uint, current uint) []MigrationStatus {
	statuses := make([]MigrationStatus, 0, len(versions))
	for _, v := range versions {
		statuses = append(statuses, MigrationStatus{
			Version: v,
			Applied: current > 0 && v <= current,
			Current: v == current,
		})
	}
	return statuses
}

type migrateLogger struct {
	logger zerolog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Info().Msgf(format, v...)
}

func (l migrateLogger) Verbose() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}
