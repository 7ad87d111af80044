package modelstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"curewatch/internal/faults"
)

const (
	databaseFile = "models.db"
	lockFile     = "models.lock"
)

// Store is a model store rooted at one model directory.
type Store struct {
	db   *sql.DB
	dir  string
	lock *flock.Flock
}

// Open initializes or connects to the store database in dir and applies
// migrations. The directory is created when missing.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, databaseFile))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, dir: dir, lock: flock.New(filepath.Join(dir, lockFile))}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenExisting opens the store in dir only if its database already exists.
// The boolean is false when there is nothing to open.
func OpenExisting(ctx context.Context, dir string) (*Store, bool, error) {
	if dir == "" {
		return nil, false, nil
	}
	if _, err := os.Stat(filepath.Join(dir, databaseFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat model store: %w", err)
	}
	s, err := Open(ctx, dir)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Dir returns the model directory.
func (s *Store) Dir() string { return s.dir }

// Close closes the underlying database connection and releases the lock.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.lock != nil && s.lock.Locked() {
		_ = s.lock.Unlock()
	}
	return s.db.Close()
}

// Lock takes the exclusive training lock without waiting.
func (s *Store) Lock() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire model store lock: %w", err)
	}
	if !ok {
		return faults.Wrap(faults.ErrBusy, "modelstore", "lock", "another training run holds "+s.lock.Path(), nil)
	}
	return nil
}

// Unlock releases the training lock.
func (s *Store) Unlock() error {
	return s.lock.Unlock()
}

// Put writes entries in one transaction, replacing any entry with the same
// (device, autoclave, group key).
func (s *Store) Put(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO model_entries (
            device, autoclave, group_key, recipe, training_id, trained_at, r2, mse, row_count, payload
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(device, autoclave, group_key) DO UPDATE SET
            recipe = excluded.recipe,
            training_id = excluded.training_id,
            trained_at = excluded.trained_at,
            r2 = excluded.r2,
            mse = excluded.mse,
            row_count = excluded.row_count,
            payload = excluded.payload`)
	if err != nil {
		return fmt.Errorf("prepare put: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry %s/%s/%s: %w", e.Device, e.Autoclave, e.GroupKey, err)
		}
		if _, err := stmt.ExecContext(ctx,
			e.Device, e.Autoclave, e.GroupKey, e.Recipe, e.TrainingID,
			e.TrainedAt.UTC().Format(time.RFC3339Nano),
			nullableFloat(e.Metrics.R2), nullableFloat(e.Metrics.MSE), e.TrainingRows,
			string(payload),
		); err != nil {
			return fmt.Errorf("insert entry %s/%s/%s: %w", e.Device, e.Autoclave, e.GroupKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put: %w", err)
	}
	return nil
}

// Get returns the entry stored under (device, autoclave, groupKey).
func (s *Store) Get(ctx context.Context, device, autoclave, groupKey string) (Entry, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM model_entries WHERE device = ? AND autoclave = ? AND group_key = ?",
		device, autoclave, groupKey,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("query entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry %s/%s/%s: %w", device, autoclave, groupKey, err)
	}
	e.lazy = &lazyModel{}
	return e, true, nil
}

// List returns summaries of every stored entry ordered by device, autoclave
// and group key.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device, autoclave, group_key, recipe, training_id, trained_at, r2, mse, row_count
        FROM model_entries ORDER BY device, autoclave, group_key`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum       Summary
			trainedAt string
			r2, mse   sql.NullFloat64
		)
		if err := rows.Scan(&sum.Device, &sum.Autoclave, &sum.GroupKey, &sum.Recipe, &sum.TrainingID, &trainedAt, &r2, &mse, &sum.TrainingRows); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		sum.TrainedAt, _ = time.Parse(time.RFC3339Nano, trainedAt)
		sum.R2 = floatOrNaN(r2)
		sum.MSE = floatOrNaN(mse)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func nullableFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
