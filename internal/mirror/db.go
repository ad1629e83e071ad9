package mirror

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Row is one mirrored record.
type Row struct {
	ID          string
	CreatedAt   int64
	UpdatedAt   int64
	ContentHash string
	Payload     string
	SyncedAt    int64
}

// DB is the mirror database.
type DB struct {
	db   *sql.DB
	path string
}

// OpenDB opens or creates the mirror database at path and migrates it to
// the latest schema.
func OpenDB(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create mirror directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	m := &DB{db: db, path: path}
	if err := m.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *DB) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load mirror migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(m.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate mirror schema: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (m *DB) SchemaVersion(ctx context.Context) (uint, error) {
	var version uint
	row := m.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1")
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Path returns the database file location.
func (m *DB) Path() string { return m.path }

// Close closes the underlying database connection.
func (m *DB) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Ping checks that the database answers.
func (m *DB) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Upsert inserts or replaces a row.
func (m *DB) Upsert(ctx context.Context, r Row) error {
	_, err := m.db.ExecContext(ctx, `
        INSERT INTO records (id, created_at, updated_at, content_hash, payload, synced_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            created_at = excluded.created_at,
            updated_at = excluded.updated_at,
            content_hash = excluded.content_hash,
            payload = excluded.payload,
            synced_at = excluded.synced_at`,
		r.ID, r.CreatedAt, r.UpdatedAt, r.ContentHash, r.Payload, r.SyncedAt)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", r.ID, err)
	}
	return nil
}

// Delete removes a row. Deleting an absent row is not an error.
func (m *DB) Delete(ctx context.Context, id string) error {
	if _, err := m.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Get returns the row for id.
func (m *DB) Get(ctx context.Context, id string) (Row, bool, error) {
	var r Row
	err := m.db.QueryRowContext(ctx,
		"SELECT id, created_at, updated_at, content_hash, payload, synced_at FROM records WHERE id = ?", id).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt, &r.ContentHash, &r.Payload, &r.SyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("get %s: %w", id, err)
	}
	return r, true, nil
}

// Count returns the number of mirrored rows.
func (m *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}
