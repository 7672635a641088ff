// ABOUTME: SQLite implementation of the SessionStore interface using modernc.org/sqlite
// ABOUTME: Sessions are stored as JSON bodies behind a version column used for conditional writes

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the SessionStore interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps pragmas and :memory: databases consistent;
	// version checks provide the per-session serializability.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			version    INTEGER NOT NULL,
			status     TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies column additions to databases created by older builds
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		check  string
		apply  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('sessions') WHERE name = 'stage'`,
			apply:  `ALTER TABLE sessions ADD COLUMN stage TEXT NOT NULL DEFAULT ''`,
			column: "stage",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to sessions: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "sessions")
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Get retrieves a session by ID. Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	return s.load(ctx, id)
}

// Update applies fn under optimistic versioning.
func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	return updateVersioned(ctx, s, id, fn)
}

func (s *SQLiteStore) load(ctx context.Context, id string) (*Session, error) {
	var body string
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version, body FROM sessions WHERE id = ?`, id,
	).Scan(&version, &body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(body), &sess); err != nil {
		return nil, fmt.Errorf("decoding session body: %w", err)
	}
	// The column is authoritative for concurrency control
	sess.Version = version
	return &sess, nil
}

func (s *SQLiteStore) save(ctx context.Context, sess *Session, prev int64) error {
	body, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	updated := sess.UpdatedAt.UTC().Format(time.RFC3339Nano)

	var res sql.Result
	if prev == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO sessions (id, version, status, stage, body, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, sess.ID, sess.Version, string(sess.Status), string(sess.Stage), string(body),
			sess.CreatedAt.UTC().Format(time.RFC3339Nano), updated)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE sessions
			SET version = ?, status = ?, stage = ?, body = ?, updated_at = ?
			WHERE id = ? AND version = ?
		`, sess.Version, string(sess.Status), string(sess.Stage), string(body), updated, sess.ID, prev)
	}
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
