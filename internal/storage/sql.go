package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	logx "leaguewatch/pkg/logx"
)

//go:embed migrations
var migrationsFS embed.FS

// sqlStore implements Store on any database/sql driver via sqlx. Queries use
// '?' placeholders and are rebound for the driver.
type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; it also keeps ":memory:" on one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	if path != ":memory:" {
		_, _ = db.Exec("PRAGMA journal_mode = WAL")
	}
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite migrate driver")
	}
	// The sqlite migrate driver closes the shared handle on Close, so it is
	// left open here and owned by the store.
	if err := runMigrations("migrations/sqlite", "sqlite", driver, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqlStore{db: db, log: log, now: time.Now}, nil
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	// Migrations get their own handle; the postgres driver pins a connection
	// and closes its database on Close.
	mdb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	driver, err := migratepg.WithInstance(mdb, &migratepg.Config{})
	if err != nil {
		_ = mdb.Close()
		return nil, errors.Wrap(err, "postgres migrate driver")
	}
	err = runMigrations("migrations/postgres", "postgres", driver, log)
	_ = driver.Close()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &sqlStore{db: db, log: log, now: time.Now}, nil
}

func runMigrations(dir, name string, driver database.Driver, log logx.Logger) error {
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return errors.Wrap(err, "open migrations")
	}
	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	if v, dirty, err := m.Version(); err == nil {
		log.Debug("schema ready", logx.Int("version", int(v)), logx.Bool("dirty", dirty))
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) q(query string) string { return s.db.Rebind(query) }

// in expands a single IN (?) list and rebinds the result.
func (s *sqlStore) in(query string, args ...any) (string, []any, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return s.db.Rebind(q), a, nil
}

func (s *sqlStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
