// Package store persists batch analysis runs in SQLite.
//
// Each successful batch is written once under a fresh UUID and never
// modified afterwards. The schema is managed with embedded migrations that
// run on Open.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/thermal-dots-mcp/internal/aggregate"
	"github.com/ironsheep/thermal-dots-mcp/internal/areas"
	"github.com/ironsheep/thermal-dots-mcp/internal/detection"
	"github.com/ironsheep/thermal-dots-mcp/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// RunMeta describes the inputs of a batch run.
type RunMeta struct {
	Source      string            `json:"source"`
	Frames      int               `json:"frames"`
	Stride      int               `json:"stride"`
	Params      detection.Params  `json:"params"`
	Areas       []areas.NamedArea `json:"areas"`
	Percentiles []int             `json:"percentiles"`
}

// Run is a stored batch run.
type Run struct {
	ID        string            `json:"run_id"`
	CreatedAt time.Time         `json:"created_at"`
	Meta      RunMeta           `json:"meta"`
	Result    *aggregate.Result `json:"result"`
}

// RunSummary is a listing entry.
type RunSummary struct {
	ID        string         `json:"run_id"`
	CreatedAt time.Time      `json:"created_at"`
	Source    string         `json:"source"`
	Frames    int            `json:"frames"`
	Stride    int            `json:"stride"`
	AreaMax   map[string]int `json:"area_max"`
}

// Store is a handle on the results database. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	log logrus.FieldLogger
	now func() time.Time
}

// Open opens or creates the database at path and applies pending migrations.
// A nil logger discards migration logs.
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logging.Discard()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	// SQLite allows a single writer; the pragma below is per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, log: log, now: time.Now}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m is not closed: closing it would close the shared connection.
	m.Log = &migrateLogger{log: s.log}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger on top of logrus.
type migrateLogger struct {
	log logrus.FieldLogger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// SaveRun stores a finished run and returns its new ID.
func (s *Store) SaveRun(ctx context.Context, meta RunMeta, result *aggregate.Result) (string, error) {
	if result == nil {
		return "", errors.New("nil result")
	}
	params, err := json.Marshal(meta.Params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}
	pcts, err := json.Marshal(meta.Percentiles)
	if err != nil {
		return "", fmt.Errorf("failed to encode percentiles: %w", err)
	}
	res, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}

	id := uuid.NewString()
	created := s.now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, created_at, source, frames, stride, params, percentiles, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, created, meta.Source, meta.Frames, meta.Stride, string(params), string(pcts), string(res),
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	for i, a := range meta.Areas {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_areas (run_id, position, name, x, y, width, height, area_max)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, a.Name, a.X, a.Y, a.Width, a.Height, result.AreaMax[a.Name],
		); err != nil {
			return "", fmt.Errorf("failed to insert area %q: %w", a.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}

	s.log.WithFields(logrus.Fields{"run_id": id, "frames": meta.Frames}).Info("run saved")
	return id, nil
}

// LoadRun returns a stored run.
func (s *Store) LoadRun(ctx context.Context, id string) (*Run, error) {
	var (
		created, params, pcts, res string
		run                        = &Run{ID: id}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, source, frames, stride, params, percentiles, result FROM runs WHERE run_id = ?`, id,
	).Scan(&created, &run.Meta.Source, &run.Meta.Frames, &run.Meta.Stride, &params, &pcts, &res)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("failed to parse run time: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &run.Meta.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params: %w", err)
	}
	if err := json.Unmarshal([]byte(pcts), &run.Meta.Percentiles); err != nil {
		return nil, fmt.Errorf("failed to decode percentiles: %w", err)
	}
	run.Result = &aggregate.Result{}
	if err := json.Unmarshal([]byte(res), run.Result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, x, y, width, height FROM run_areas WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load areas: %w", err)
	}
	defer rows.Close()
	run.Meta.Areas = []areas.NamedArea{}
	for rows.Next() {
		var a areas.NamedArea
		if err := rows.Scan(&a.Name, &a.X, &a.Y, &a.Width, &a.Height); err != nil {
			return nil, fmt.Errorf("failed to scan area: %w", err)
		}
		run.Meta.Areas = append(run.Meta.Areas, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read areas: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, created_at, source, frames, stride FROM runs
		 ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	out := make([]RunSummary, 0)
	for rows.Next() {
		var (
			r       RunSummary
			created string
		)
		if err := rows.Scan(&r.ID, &created, &r.Source, &r.Frames, &r.Stride); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("failed to parse run time: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	rows.Close()

	for i := range out {
		m, err := s.areaMax(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].AreaMax = m
	}
	return out, nil
}

func (s *Store) areaMax(ctx context.Context, id string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, area_max FROM run_areas WHERE run_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load area maxima: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan area maximum: %w", err)
		}
		out[name] = n
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its areas.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_areas WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run areas: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	s.log.WithField("run_id", id).Info("run deleted")
	return nil
}
