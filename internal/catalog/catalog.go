package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	_ "modernc.org/sqlite" // pure Go driver

	"github.com/formlab/formd/internal/metrics"
)

// ErrNotFound is returned when a catalog entry does not exist.
var ErrNotFound = errors.New("catalog entry not found")

const schemaVersion = 1

// Entry is one cataloged video with its label and probe metadata.
type Entry struct {
	ID            string  `json:"id"`
	Exercise      string  `json:"exercise"`
	Form          string  `json:"form"`
	RawPath       string  `json:"raw_path"`
	ProcessedPath string  `json:"processed_path"`
	Frames        int     `json:"frames"`
	Codec         string  `json:"codec,omitempty"`
	Width         int     `json:"width,omitempty"`
	Height        int     `json:"height,omitempty"`
	FPS           float64 `json:"fps,omitempty"`
	Duration      float64 `json:"duration_seconds,omitempty"`
	UpdatedAtUnix int64   `json:"updated_at"`
}

// Store persists catalog entries in SQLite.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle. The schema must already exist.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the catalog database at path, creating it and migrating the
// schema as needed. The driver is instrumented for tracing.
func Open(path string) (*Store, error) {
	driverName, err := otelsql.Register("sqlite",
		otelsql.WithAttributes(semconv.DBSystemSqlite),
		otelsql.WithSQLCommenter(true),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	// _pragma in the DSN applies to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open failed: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping failed: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		exercise TEXT NOT NULL,
		form TEXT NOT NULL,
		raw_path TEXT NOT NULL,
		processed_path TEXT NOT NULL,
		frames INTEGER NOT NULL DEFAULT 0,
		codec TEXT NOT NULL DEFAULT '',
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		fps REAL NOT NULL DEFAULT 0,
		duration_seconds REAL NOT NULL DEFAULT 0,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_videos_exercise ON videos(exercise);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Upsert inserts or replaces the entry for e.ID.
func (s *Store) Upsert(ctx context.Context, e Entry) error {
	query := `
	INSERT INTO videos (
		id, exercise, form, raw_path, processed_path,
		frames, codec, width, height, fps, duration_seconds, updated_at_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		exercise = excluded.exercise,
		form = excluded.form,
		raw_path = excluded.raw_path,
		processed_path = excluded.processed_path,
		frames = excluded.frames,
		codec = excluded.codec,
		width = excluded.width,
		height = excluded.height,
		fps = excluded.fps,
		duration_seconds = excluded.duration_seconds,
		updated_at_ms = excluded.updated_at_ms
	`

	updatedAt := e.UpdatedAtUnix
	if updatedAt == 0 {
		updatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Exercise, e.Form, e.RawPath, e.ProcessedPath,
		e.Frames, e.Codec, e.Width, e.Height, e.FPS, e.Duration, updatedAt*1000,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", e.ID, err)
	}
	metrics.IncCatalogUpsert()
	return nil
}

// Get returns the entry with the given id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM videos WHERE id = ?", id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// List returns all entries ordered by id.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+" FROM videos ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Delete removes the entry with the given id. Missing ids are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	return err
}

const selectColumns = `SELECT id, exercise, form, raw_path, processed_path,
	frames, codec, width, height, fps, duration_seconds, updated_at_ms`

func scanEntry(scanner interface {
	Scan(dest ...interface{}) error
}) (*Entry, error) {
	var e Entry
	var updatedAtMs int64

	err := scanner.Scan(
		&e.ID, &e.Exercise, &e.Form, &e.RawPath, &e.ProcessedPath,
		&e.Frames, &e.Codec, &e.Width, &e.Height, &e.FPS, &e.Duration, &updatedAtMs,
	)
	if err != nil {
		return nil, err
	}
	e.UpdatedAtUnix = updatedAtMs / 1000
	return &e, nil
}
