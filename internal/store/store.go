// Package store persists tournament runs and their games in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/GriffinCanCode/kothrunner/internal/domain/tournament"
	"github.com/GriffinCanCode/kothrunner/internal/shared/id"
	"github.com/GriffinCanCode/kothrunner/internal/store/migrations"
)

// ErrInterrupted is recorded on runs that were still running when their
// process stopped.
var ErrInterrupted = errors.New("store: run interrupted by shutdown")

var pragmas = []string{
	`PRAGMA journal_mode=WAL;`,
	`PRAGMA foreign_keys=ON;`,
	`PRAGMA busy_timeout=5000;`,
	`PRAGMA synchronous=NORMAL;`,
}

// Store implements tournament.Store.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ tournament.Store = (*Store)(nil)

type runRow struct {
	ID         string        `db:"id"`
	Name       string        `db:"name"`
	Status     string        `db:"status"`
	Seed       string        `db:"seed"`
	StartedAt  int64         `db:"started_at"`
	FinishedAt sql.NullInt64 `db:"finished_at"`
	Snapshot   []byte        `db:"snapshot"`
}

type gameRow struct {
	RunID      string `db:"run_id"`
	Match      int    `db:"match_index"`
	Game       int    `db:"game_index"`
	TaskID     string `db:"task_id"`
	Seed       string `db:"seed"`
	Error      string `db:"error"`
	FinishedAt int64  `db:"finished_at"`
	Record     []byte `db:"record"`
}

// Open opens (creating if needed) the database at path and applies
// migrations. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// single writer; pragmas stick to the one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, stmt := range pragmas {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("Store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database. It is safe on a nil store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun inserts or replaces a run.
func (s *Store) SaveRun(ctx context.Context, run tournament.Run) error {
	blob, err := encode(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	var finished sql.NullInt64
	if run.FinishedAt != nil {
		finished = sql.NullInt64{Int64: run.FinishedAt.UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, status, seed, started_at, finished_at, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			seed = excluded.seed,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			snapshot = excluded.snapshot
	`, run.ID.String(), run.Name, string(run.Status), string(run.Seed),
		run.StartedAt.UnixMilli(), finished, blob)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// SaveGame inserts or replaces one game of a run.
func (s *Store) SaveGame(ctx context.Context, runID id.RunID, g tournament.GameRecord) error {
	blob, err := encode(g)
	if err != nil {
		return fmt.Errorf("encode game %d/%d: %w", g.Match, g.Game, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO games (run_id, match_index, game_index, task_id, seed, error, finished_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID.String(), g.Match, g.Game, g.TaskID.String(), string(g.Seed), g.Error,
		g.Finished.UnixMilli(), blob)
	if err != nil {
		return fmt.Errorf("save game %d/%d of %s: %w", g.Match, g.Game, runID, err)
	}
	return nil
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (tournament.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, runID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return tournament.Run{}, fmt.Errorf("%w: %s", tournament.ErrRunNotFound, runID)
	}
	if err != nil {
		return tournament.Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return row.decode()
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means no
// limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]tournament.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]tournament.Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.decode()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ListGames returns a run's games ordered by match and game index.
func (s *Store) ListGames(ctx context.Context, runID id.RunID) ([]tournament.GameRecord, error) {
	var rows []gameRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM games
		WHERE run_id = ?
		ORDER BY match_index ASC, game_index ASC
	`, runID.String()); err != nil {
		return nil, fmt.Errorf("list games of %s: %w", runID, err)
	}

	games := make([]tournament.GameRecord, 0, len(rows))
	for _, row := range rows {
		var g tournament.GameRecord
		if err := decode(row.Record, &g); err != nil {
			return nil, fmt.Errorf("decode game %d/%d of %s: %w", row.Match, row.Game, runID, err)
		}
		games = append(games, g)
	}
	return games, nil
}

// DeleteRun removes a run and its games.
func (s *Store) DeleteRun(ctx context.Context, runID id.RunID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID.String())
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", tournament.ErrRunNotFound, runID)
	}
	return nil
}

// MarkInterrupted fails every run still recorded as running. It is called
// at startup, before any run of this process exists.
func (s *Store) MarkInterrupted(ctx context.Context) (int, error) {
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM runs WHERE status = ?`, string(tournament.StatusRunning)); err != nil {
		return 0, fmt.Errorf("find interrupted runs: %w", err)
	}

	now := time.Now().UTC()
	for _, row := range rows {
		run, err := row.decode()
		if err != nil {
			return 0, err
		}
		run.Status = tournament.StatusFailed
		run.Error = ErrInterrupted.Error()
		run.FinishedAt = &now
		if err := s.SaveRun(ctx, run); err != nil {
			return 0, err
		}
		s.logger.Warn("Marked run as interrupted", zap.String("run_id", row.ID))
	}
	return len(rows), nil
}

func (r runRow) decode() (tournament.Run, error) {
	var run tournament.Run
	if err := decode(r.Snapshot, &run); err != nil {
		return tournament.Run{}, fmt.Errorf("decode run %s: %w", r.ID, err)
	}
	return run, nil
}
