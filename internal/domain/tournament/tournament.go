// Package tournament runs a tournament definition end to end: it builds the
// two node levels, drives them with a game handler and turns the flat list
// of games into a leaderboard. Manager adds run bookkeeping, persistence and
// event fan-out on top.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/shared/random"
)

// Hooks receive events while a tournament runs. Calls to each hook are
// serialized per level; hooks must not block for long.
type Hooks struct {
	Progress func(match.Progress)
	Game     func(GameRecord)
}

// Report is the result of a finished tournament.
type Report struct {
	Seed        random.Seed    `json:"seed"`
	Teams       []match.Team   `json:"teams"`
	Results     []match.Result `json:"results"`
	Games       []GameRecord   `json:"games"`
	Leaderboard []Standing     `json:"leaderboard"`
}

// Tournament is a configured, runnable tournament.
type Tournament struct {
	def     *config.Definition
	teams   []match.Team
	root    match.Node
	inner   match.Node
	handler match.SubHandler
	logger  *zap.Logger
}

// Option configures a Tournament.
type Option func(*Tournament, *settings)

type settings struct {
	concurrency int
}

// WithLogger sets the logger used by the tournament and its schedulers.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tournament, _ *settings) { t.logger = logger }
}

// WithConcurrency sets the match-level ceiling. A definition's
// maxConcurrency can only lower it.
func WithConcurrency(n int) Option {
	return func(_ *Tournament, s *settings) { s.concurrency = n }
}

// New builds the tournament and match nodes named by def. handler plays one
// game. The tournament level runs one match at a time; games inside a match
// run up to the definition's concurrency.
func New(def *config.Definition, teams []match.Team, handler match.SubHandler, opts ...Option) (*Tournament, error) {
	if def == nil {
		return nil, config.ErrMissingGameType
	}
	if handler == nil {
		return nil, errors.New("tournament: nil game handler")
	}

	t := &Tournament{def: def, teams: teams, handler: handler, logger: zap.NewNop()}
	s := settings{concurrency: 1}
	for _, opt := range opts {
		opt(t, &s)
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}

	root, err := match.New(def.TournamentType, def.TournamentArgs,
		match.WithConcurrency(1),
		match.WithLogger(t.logger.Named("tournament")))
	if err != nil {
		return nil, fmt.Errorf("tournamentType: %w", err)
	}
	inner, err := match.New(def.MatchType, def.MatchArgs,
		match.WithConcurrency(def.Concurrency(s.concurrency)),
		match.WithLogger(t.logger.Named("match")))
	if err != nil {
		return nil, fmt.Errorf("matchType: %w", err)
	}
	t.root = root
	t.inner = inner
	return t, nil
}

// Teams returns the teams the tournament was built with.
func (t *Tournament) Teams() []match.Team {
	return t.teams
}

type matchKey struct{}

// Run plays the tournament from seed. An empty seed draws a fresh one; the
// seed used is returned in the report. Task failures are recorded per game;
// only fatal failures and cancellation end the run with an error.
func (t *Tournament) Run(ctx context.Context, seed random.Seed, hooks Hooks) (*Report, error) {
	if seed == "" {
		seed = random.MakeSeed()
	}

	var (
		mu    sync.Mutex
		games []GameRecord
	)
	record := func(g GameRecord) {
		mu.Lock()
		games = append(games, g)
		mu.Unlock()
		if hooks.Game != nil {
			hooks.Game(g)
		}
	}

	game := func(ctx context.Context, task match.SubgameTask, report func(float64)) (interface{}, error) {
		outcome, err := t.handler(ctx, task, report)
		if match.IsFatal(err) {
			return nil, err
		}
		// aborted games are not results
		if ctx.Err() != nil {
			return outcome, err
		}
		g := GameRecord{
			Match:    matchIndex(ctx),
			Game:     task.Index,
			TaskID:   task.ID,
			Seed:     task.Seed,
			Teams:    teamIDs(task.Teams),
			Finished: time.Now().UTC(),
		}
		if err != nil {
			g.Error = err.Error()
		} else {
			g.Outcome = outcome
		}
		record(g)
		return outcome, err
	}

	matchHandler := match.NodeHandler(t.inner, game)
	perMatch := func(ctx context.Context, task match.SubgameTask, report func(float64)) (interface{}, error) {
		return matchHandler(context.WithValue(ctx, matchKey{}, task.Index), task, report)
	}

	t.logger.Info("Starting tournament",
		zap.String("name", t.def.Name),
		zap.String("seed", string(seed)),
		zap.Int("teams", len(t.teams)))

	results, err := t.root.Run(ctx, random.New(seed), t.teams, perMatch, hooks.Progress)
	if err != nil {
		return nil, err
	}

	sort.Slice(games, func(i, j int) bool {
		if games[i].Match != games[j].Match {
			return games[i].Match < games[j].Match
		}
		return games[i].Game < games[j].Game
	})

	return &Report{
		Seed:        seed,
		Teams:       t.teams,
		Results:     results,
		Games:       games,
		Leaderboard: NewLeaderboard(t.teams, games),
	}, nil
}

func matchIndex(ctx context.Context) int {
	if v, ok := ctx.Value(matchKey{}).(int); ok {
		return v
	}
	return 0
}

func teamIDs(teams []match.Team) []string {
	ids := make([]string, len(teams))
	for i, t := range teams {
		ids[i] = t.ID
	}
	return ids
}
