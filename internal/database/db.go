package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaenova/prompty/internal/config"
	"github.com/kaenova/prompty/internal/store"
)

//go:embed migrations
var migrationsFS embed.FS

// Postgres wraps the Postgres database connection pool
type Postgres struct {
	Pool *pgxpool.Pool
}

// DSN builds a postgres:// URL from cfg.
func DSN(cfg config.Database) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	// URL-encode password to handle special characters (/, +, =, etc.)
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password), cfg.Host, cfg.Port, cfg.Name, sslMode)
}

// NewPostgres creates a new connection pool and runs migrations
func NewPostgres(ctx context.Context, cfg config.Database) (*Postgres, error) {
	dsn := DSN(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := MigratePostgres(cfg); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{Pool: pool}, nil
}

// Close closes the database connection
func (db *Postgres) Close() error {
	db.Pool.Close()
	return nil
}

// MigratePostgres applies every pending migration. A configured
// MigrationsPath takes precedence over the embedded files.
func MigratePostgres(cfg config.Database) error {
	dsn := DSN(cfg)
	if cfg.MigrationsPath != "" {
		m, err := migrate.New("file://"+cfg.MigrationsPath, dsn)
		if err != nil {
			return fmt.Errorf("failed to create migration instance: %w", err)
		}
		return up(m)
	}
	src, err := embeddedSource("postgres")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	return up(m)
}

// OpenSQLite opens (creating if needed) an on-disk SQLite database and runs migrations.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" || strings.Contains(path, ":memory:") {
		return nil, fmt.Errorf("sqlite store needs a file path, got %q", path)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if err := MigrateSQLite(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// MigrateSQLite applies every pending migration to the database file at path.
// It uses its own connection so the caller's handle stays open.
func MigrateSQLite(path string) error {
	src, err := embeddedSource("sqlite")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+path)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	return up(m)
}

// OpenStore builds the configured document store. The returned closer
// releases the underlying connections.
func OpenStore(ctx context.Context, cfg *config.App) (store.Store, func() error, error) {
	var (
		base   store.Store
		closer func() error
	)
	switch strings.ToLower(cfg.Store.Driver) {
	case "memory":
		base = store.NewMemoryStore()
		closer = func() error { return nil }
	case "sqlite":
		db, err := OpenSQLite(cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		base = store.NewSQLiteStore(db)
		closer = db.Close
	case "postgres":
		pg, err := NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		base = store.NewPostgresStore(pg.Pool)
		closer = pg.Close
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return store.WithTimeout(base, cfg.Store.Timeout), closer, nil
}

func embeddedSource(driver string) (source.Driver, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(sub, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s migrations: %w", driver, err)
	}
	return src, nil
}

func up(m *migrate.Migrate) error {
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
