package tournament

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/domain/roster"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/kothrunner/internal/shared/id"
	"github.com/GriffinCanCode/kothrunner/internal/shared/random"
)

var errCancelled = errors.New("tournament: cancelled")

const storeTimeout = 5 * time.Second

// DefaultRetainedRuns is how many finished runs a manager keeps in memory.
const DefaultRetainedRuns = 64

// HandlerFactory builds the game handler for a definition.
type HandlerFactory func(def *config.Definition) (match.SubHandler, error)

// Store persists runs and their games.
type Store interface {
	SaveRun(ctx context.Context, run Run) error
	SaveGame(ctx context.Context, runID id.RunID, game GameRecord) error
	GetRun(ctx context.Context, runID id.RunID) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListGames(ctx context.Context, runID id.RunID) ([]GameRecord, error)
}

// StartRequest describes a run to start. An empty Seed draws a fresh one.
type StartRequest struct {
	Definition *config.Definition `json:"definition"`
	Entries    []match.Entry      `json:"entries"`
	Seed       random.Seed        `json:"seed,omitempty"`
}

// Manager starts tournaments in the background and keeps their state.
type Manager struct {
	mu       sync.RWMutex
	runs     map[id.RunID]*liveRun // Protected by mu
	finished []id.RunID            // Protected by mu, oldest first
	retain   int

	factory     HandlerFactory
	store       Store
	broadcaster *Broadcaster
	metrics     *monitoring.Metrics
	tracer      *tracing.Tracer
	logger      *zap.Logger
	concurrency int

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup
	closed bool // Protected by mu
}

type liveRun struct {
	mu     sync.Mutex
	run    Run
	games  []GameRecord
	report *Report
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func (r *liveRun) snapshot() Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run
}

// NewManager creates a manager. concurrency is the match-level ceiling for
// definitions that do not set their own.
func NewManager(factory HandlerFactory, concurrency int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Manager{
		runs:        make(map[id.RunID]*liveRun),
		retain:      DefaultRetainedRuns,
		factory:     factory,
		broadcaster: NewBroadcaster(0),
		logger:      logger,
		concurrency: concurrency,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithTracer sets the tracer used for run spans.
func (m *Manager) WithTracer(tracer *tracing.Tracer) *Manager {
	m.tracer = tracer
	return m
}

// WithStore persists runs and games to store.
func (m *Manager) WithStore(store Store) *Manager {
	m.store = store
	return m
}

// WithRetention keeps at most n finished runs in memory. Older ones are
// served from the store, or forgotten when there is none.
func (m *Manager) WithRetention(n int) *Manager {
	if n < 0 {
		n = 0
	}
	m.retain = n
	return m
}

// WithBroadcaster replaces the default, unthrottled broadcaster.
func (m *Manager) WithBroadcaster(b *Broadcaster) *Manager {
	m.broadcaster = b
	return m
}

// Start validates req, builds the tournament and runs it in the background.
// Configuration errors are returned before anything runs.
func (m *Manager) Start(req StartRequest) (Run, error) {
	def := req.Definition
	if def == nil {
		return Run{}, config.ErrMissingGameType
	}
	if err := def.Validate(); err != nil {
		return Run{}, err
	}

	teams, err := roster.Build(def.TeamType, req.Entries, def.TeamArgs)
	if err != nil {
		return Run{}, err
	}
	handler, err := m.factory(def)
	if err != nil {
		return Run{}, err
	}
	t, err := New(def, teams, handler,
		WithLogger(m.logger),
		WithConcurrency(m.concurrency))
	if err != nil {
		return Run{}, err
	}

	seed := req.Seed
	if seed == "" {
		seed = random.MakeSeed()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Run{}, ErrManagerClosed
	}
	ctx, cancel := context.WithCancelCause(m.ctx)
	lr := &liveRun{
		run: Run{
			ID:         id.NewRunID(),
			Name:       def.Name,
			Status:     StatusRunning,
			Seed:       seed,
			Definition: def,
			Teams:      len(teams),
			StartedAt:  time.Now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.broadcaster.Open(lr.run.ID)
	m.runs[lr.run.ID] = lr
	m.wg.Add(1)
	m.mu.Unlock()

	run := lr.snapshot()
	m.save(run)
	m.metrics.TournamentStarted()
	m.logger.Info("Tournament started",
		zap.String("run_id", run.ID.String()),
		zap.String("name", run.Name),
		zap.Int("teams", run.Teams))

	go m.execute(ctx, lr, t)
	return run, nil
}

func (m *Manager) execute(ctx context.Context, lr *liveRun, t *Tournament) {
	defer m.wg.Done()
	defer close(lr.done)
	defer lr.cancel(nil)

	start := lr.snapshot()
	runID := start.ID
	ctx, span := m.tracer.Start(ctx, "tournament.run",
		attribute.String("run.id", runID.String()),
		attribute.String("run.name", start.Name),
		attribute.String("run.seed", string(start.Seed)),
		attribute.Int("run.teams", start.Teams))

	report, err := t.Run(ctx, start.Seed, Hooks{
		Progress: func(p match.Progress) {
			lr.mu.Lock()
			lr.run.Progress = p.Overall
			lr.run.Matches = p.Total
			lr.run.MatchesDone = p.Completed
			lr.mu.Unlock()
			m.broadcaster.Publish(Event{
				Type:      EventProgress,
				RunID:     runID,
				Progress:  p.Overall,
				Completed: p.Completed,
				Total:     p.Total,
			})
		},
		Game: func(g GameRecord) {
			lr.mu.Lock()
			lr.games = append(lr.games, g)
			lr.run.GamesDone++
			if g.Error != "" {
				lr.run.GamesFailed++
			}
			progress := lr.run.Progress
			lr.mu.Unlock()

			m.saveGame(runID, g)
			m.broadcaster.Publish(Event{Type: EventGame, RunID: runID, Progress: progress, Game: &g})
		},
	})

	now := time.Now().UTC()
	lr.mu.Lock()
	lr.run.FinishedAt = &now
	switch {
	case err == nil:
		lr.run.Status = StatusFinished
		lr.run.Progress = 1
		lr.run.Leaderboard = report.Leaderboard
		lr.report = report
	case errors.Is(context.Cause(ctx), errCancelled), errors.Is(context.Cause(ctx), ErrManagerClosed):
		lr.run.Status = StatusCancelled
		lr.run.Error = context.Cause(ctx).Error()
	default:
		lr.run.Status = StatusFailed
		lr.run.Error = err.Error()
	}
	run := lr.run
	lr.mu.Unlock()

	span.SetAttributes(attribute.String("run.status", string(run.Status)), attribute.Int("run.games", run.GamesDone))
	tracing.End(span, err)
	m.save(run)
	m.metrics.TournamentEnded(string(run.Status))

	fields := []zap.Field{
		zap.String("run_id", run.ID.String()),
		zap.String("status", string(run.Status)),
		zap.Int("games", run.GamesDone),
		zap.Int("games_failed", run.GamesFailed),
	}
	if err != nil {
		m.logger.Warn("Tournament ended", append(fields, zap.Error(err))...)
	} else {
		m.logger.Info("Tournament finished", fields...)
	}

	m.broadcaster.Publish(Event{Type: EventFinished, RunID: run.ID, Progress: run.Progress, Run: &run})
	m.broadcaster.Close(run.ID)
	m.retire(run.ID)
}

// retire marks runID finished and evicts the oldest finished runs beyond
// the retention limit.
func (m *Manager) retire(runID id.RunID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finished = append(m.finished, runID)
	for len(m.finished) > m.retain {
		delete(m.runs, m.finished[0])
		m.finished = m.finished[1:]
	}
}

func (m *Manager) save(run Run) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	timer := monitoring.NewTimer(m.metrics, monitoring.OpStoreWrite)
	if err := m.store.SaveRun(ctx, run); err != nil {
		timer.Stop(monitoring.StatusError)
		m.logger.Error("Failed to persist run", zap.String("run_id", run.ID.String()), zap.Error(err))
		return
	}
	timer.Stop(monitoring.StatusOK)
}

func (m *Manager) saveGame(runID id.RunID, g GameRecord) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	timer := monitoring.NewTimer(m.metrics, monitoring.OpStoreWrite)
	if err := m.store.SaveGame(ctx, runID, g); err != nil {
		timer.Stop(monitoring.StatusError)
		m.logger.Error("Failed to persist game",
			zap.String("run_id", runID.String()),
			zap.Int("match", g.Match),
			zap.Int("game", g.Game),
			zap.Error(err))
		return
	}
	timer.Stop(monitoring.StatusOK)
}

func (m *Manager) lookup(runID id.RunID) (*liveRun, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lr, ok := m.runs[runID]
	return lr, ok
}

// Get returns a run, falling back to the store for runs from earlier
// processes.
func (m *Manager) Get(ctx context.Context, runID id.RunID) (Run, error) {
	if lr, ok := m.lookup(runID); ok {
		return lr.snapshot(), nil
	}
	if m.store == nil {
		return Run{}, ErrRunNotFound
	}
	return m.store.GetRun(ctx, runID)
}

// List returns up to limit runs, newest first. limit <= 0 means no limit.
func (m *Manager) List(ctx context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	runs := make([]Run, 0, len(m.runs))
	seen := make(map[id.RunID]bool, len(m.runs))
	for runID, lr := range m.runs {
		runs = append(runs, lr.snapshot())
		seen[runID] = true
	}
	m.mu.RUnlock()

	if m.store != nil {
		stored, err := m.store.ListRuns(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("list stored runs: %w", err)
		}
		for _, r := range stored {
			if !seen[r.ID] {
				runs = append(runs, r)
			}
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Games returns the games a run has finished so far, in completion order
// for live runs and in match/game order for stored ones.
func (m *Manager) Games(ctx context.Context, runID id.RunID) ([]GameRecord, error) {
	if lr, ok := m.lookup(runID); ok {
		lr.mu.Lock()
		defer lr.mu.Unlock()
		if lr.report != nil {
			return append([]GameRecord(nil), lr.report.Games...), nil
		}
		return append([]GameRecord(nil), lr.games...), nil
	}
	if m.store == nil {
		return nil, ErrRunNotFound
	}
	if _, err := m.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return m.store.ListGames(ctx, runID)
}

// Report returns the full report of a run that finished in this process and
// is still retained in memory.
func (m *Manager) Report(runID id.RunID) (*Report, error) {
	lr, ok := m.lookup(runID)
	if !ok {
		return nil, ErrRunNotFound
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.report == nil {
		return nil, ErrRunNotFinished
	}
	return lr.report, nil
}

// Cancel stops a running tournament.
func (m *Manager) Cancel(runID id.RunID) error {
	lr, ok := m.lookup(runID)
	if !ok {
		return m.cancelStored(runID)
	}
	if lr.snapshot().Status.Final() {
		return ErrRunFinished
	}
	lr.cancel(errCancelled)
	return nil
}

func (m *Manager) cancelStored(runID id.RunID) error {
	if m.store == nil {
		return ErrRunNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Final() {
		return ErrRunFinished
	}
	// running in an earlier process that died before marking it
	return ErrRunNotFound
}

// Wait blocks until the run ends or ctx is done.
func (m *Manager) Wait(ctx context.Context, runID id.RunID) (Run, error) {
	lr, ok := m.lookup(runID)
	if !ok {
		return m.Get(ctx, runID)
	}
	select {
	case <-lr.done:
		return lr.snapshot(), nil
	case <-ctx.Done():
		return lr.snapshot(), ctx.Err()
	}
}

// Subscribe returns the run's current state and a stream of its events.
// The stream of a finished run is already closed.
func (m *Manager) Subscribe(ctx context.Context, runID id.RunID) (Run, <-chan Event, func(), error) {
	lr, ok := m.lookup(runID)
	if !ok {
		run, err := m.Get(ctx, runID)
		if err != nil {
			return Run{}, nil, nil, err
		}
		ch := make(chan Event)
		close(ch)
		return run, ch, func() {}, nil
	}
	_, ch, unsubscribe := m.broadcaster.Subscribe(runID)
	return lr.snapshot(), ch, unsubscribe, nil
}

// Shutdown cancels every running tournament and waits for them to record
// their final state.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel(ErrManagerClosed)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
