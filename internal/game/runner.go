package game

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/kothrunner/internal/modules"
	"github.com/GriffinCanCode/kothrunner/internal/sandbox"
)

// bootstrapTemplate loads the game module and only then starts listening,
// so the begin message always waits in the context's queue.
const bootstrapTemplate = `(function (gameType) {
	requireModule(gameType).then(function (game) {
		if (!game || typeof game.handle !== 'function') {
			postMessage({ type: 'error', message: 'game module ' + gameType + ' exports no handle function' });
			return;
		}
		addEventListener('message', function (e) {
			game.handle(e.data, postMessage);
		});
	}, function (err) {
		postMessage({ type: 'error', message: 'failed to load game: ' + String(err) });
	});
})(%s);
`

// Runner plays one game per sub-match, each in a fresh execution context.
type Runner struct {
	def       *config.Definition
	sandbox   sandbox.Config
	source    modules.Source
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
	bootstrap string
}

// Option configures a Runner.
type Option func(*Runner)

// WithSandboxConfig sets the execution context configuration.
func WithSandboxConfig(cfg sandbox.Config) Option {
	return func(r *Runner) { r.sandbox = cfg }
}

// WithSource sets where game modules are loaded from.
func WithSource(source modules.Source) Option {
	return func(r *Runner) { r.source = source }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(r *Runner) { r.metrics = metrics }
}

// WithTracer sets the tracer used for per-game spans.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// NewRunner creates a runner for the game named by def.
func NewRunner(def *config.Definition, opts ...Option) (*Runner, error) {
	if def == nil || def.GameType == "" {
		return nil, config.ErrMissingGameType
	}
	if err := modules.ValidatePath(def.GameType); err != nil {
		return nil, fmt.Errorf("game type: %w", err)
	}

	r := &Runner{
		def:     def,
		sandbox: sandbox.DefaultConfig(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.source == nil {
		r.source = modules.NewMapSource(nil)
	}

	gameType, err := sonic.MarshalString(def.GameType)
	if err != nil {
		return nil, err
	}
	r.bootstrap = fmt.Sprintf(bootstrapTemplate, gameType)
	return r, nil
}

// Handle is a match.SubHandler.
func (r *Runner) Handle(ctx context.Context, task match.SubgameTask, report func(float64)) (interface{}, error) {
	ctx, span := r.tracer.Start(ctx, "game.play",
		attribute.String("game.type", r.def.GameType),
		attribute.Int("game.index", task.Index),
		attribute.String("game.seed", string(task.Seed)),
		attribute.Int("game.teams", len(task.Teams)))
	timer := monitoring.NewTimer(r.metrics, monitoring.OpSubgame)
	outcome, err := r.play(ctx, task, report)
	tracing.End(span, err)

	switch {
	case err == nil:
		timer.Stop(monitoring.StatusOK)
		return outcome, nil
	case match.IsFatal(err):
		timer.Stop(monitoring.StatusFatal)
	default:
		timer.Stop(monitoring.StatusError)
	}
	return nil, err
}

func (r *Runner) play(ctx context.Context, task match.SubgameTask, report func(float64)) (*Outcome, error) {
	logger := r.logger.With(append(tracing.LogFields(ctx),
		zap.Int("index", task.Index),
		zap.String("task_id", task.ID.String()))...)

	b, err := sandbox.Spawn(ctx, r.sandbox, r.bootstrap,
		sandbox.WithSource(r.source),
		sandbox.WithLogger(logger),
		sandbox.WithMetrics(r.metrics))
	if err != nil {
		return nil, match.Fatal(fmt.Errorf("game %d: %w", task.Index, err))
	}
	defer b.Terminate()

	if err := b.WaitReady(ctx); err != nil {
		return nil, fmt.Errorf("game %d: %w", task.Index, err)
	}

	begin := Begin{
		Type:   TypeBegin,
		Index:  task.Index,
		Seed:   task.Seed,
		Teams:  task.Teams,
		Config: r.def.GameConfig,
		Play:   r.def.PlayConfig,
		Hidden: r.def.PlayHiddenConfig,
	}
	if err := b.Send(begin); err != nil {
		return nil, fmt.Errorf("game %d: %w", task.Index, err)
	}

	for {
		select {
		case raw, ok := <-b.Messages():
			if !ok {
				if err := b.Err(); err != nil {
					return nil, fmt.Errorf("game %d: %w", task.Index, err)
				}
				return nil, fmt.Errorf("game %d: %w", task.Index, ErrNoResult)
			}

			var msg Inbound
			if err := sonic.Unmarshal(raw, &msg); err != nil {
				logger.Debug("Ignoring non-protocol message", zap.ByteString("raw", raw))
				continue
			}

			switch msg.Type {
			case TypeProgress:
				if report != nil {
					report(msg.Value)
				}
			case TypeComplete:
				return newOutcome(task, msg)
			case TypeError:
				return nil, &GameError{Index: task.Index, Message: msg.Message}
			default:
				logger.Debug("Ignoring unknown message type", zap.String("type", msg.Type))
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// newOutcome checks reported scores against the task's teams. Teams the
// game did not score get zero.
func newOutcome(task match.SubgameTask, msg Inbound) (*Outcome, error) {
	byTeam := make(map[string]float64, len(task.Teams))
	known := make(map[string]bool, len(task.Teams))
	for _, t := range task.Teams {
		known[t.ID] = true
	}
	for _, s := range msg.Scores {
		if !known[s.TeamID] {
			return nil, fmt.Errorf("%w: unknown team %q", ErrInvalidResult, s.TeamID)
		}
		if _, dup := byTeam[s.TeamID]; dup {
			return nil, fmt.Errorf("%w: team %q scored twice", ErrInvalidResult, s.TeamID)
		}
		byTeam[s.TeamID] = s.Score
	}

	out := &Outcome{Steps: msg.Steps}
	best := 0.0
	for i, t := range task.Teams {
		score := byTeam[t.ID]
		out.Scores = append(out.Scores, TeamScore{TeamID: t.ID, Score: score})
		if i == 0 || score > best {
			best = score
		}
	}
	for _, s := range out.Scores {
		if s.Score == best {
			out.Winners = append(out.Winners, s.TeamID)
		}
	}
	sort.Strings(out.Winners)
	return out, nil
}

// IsContestantFailure reports whether err came from the game or its
// contestants rather than from the runner.
func IsContestantFailure(err error) bool {
	var (
		ge *GameError
		pe *sandbox.ProgramError
	)
	return errors.As(err, &ge) || errors.As(err, &pe) || errors.Is(err, sandbox.ErrTimeout)
}
