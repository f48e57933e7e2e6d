package tournament

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/domain/roster"
	"github.com/GriffinCanCode/kothrunner/internal/shared/random"
)

func teams(t *testing.T, ids ...string) []match.Team {
	t.Helper()
	out, err := roster.Build(roster.KindFreeForAll, entries(ids...), nil)
	require.NoError(t, err)
	return out
}

func TestRunPlaysEveryGame(t *testing.T) {
	trn, err := New(definition(2, 3), teams(t, "a", "b", "c"), fixedScores)
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		hooked  int
		overall []float64
	)
	report, err := trn.Run(context.Background(), "seed-1", Hooks{
		Progress: func(p match.Progress) { overall = append(overall, p.Overall) },
		Game: func(GameRecord) {
			mu.Lock()
			hooked++
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	assert.Equal(t, random.Seed("seed-1"), report.Seed)
	assert.Len(t, report.Results, 2)
	require.Len(t, report.Games, 6)
	assert.Equal(t, 6, hooked)

	for i, g := range report.Games {
		assert.Equal(t, i/3, g.Match)
		assert.Equal(t, i%3, g.Game)
		assert.Len(t, g.Teams, 3)
		assert.NotEmpty(t, g.Seed)
		assert.Empty(t, g.Error)
	}
	assert.Len(t, match.Flatten(report.Results), 6)
	require.NotEmpty(t, overall)
	assert.InDelta(t, 1.0, overall[len(overall)-1], 1e-9)
	assert.Len(t, report.Leaderboard, 3)
}

func TestRunIsReproducible(t *testing.T) {
	play := func() []GameRecord {
		trn, err := New(definition(2, 2), teams(t, "a", "b", "c", "d"), fixedScores)
		require.NoError(t, err)
		report, err := trn.Run(context.Background(), "replay", Hooks{})
		require.NoError(t, err)
		return report.Games
	}

	first, second := play(), play()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Seed, second[i].Seed)
		assert.Equal(t, first[i].Teams, second[i].Teams)
		assert.Equal(t, first[i].Outcome, second[i].Outcome)
	}
}

func TestRunDrawsSeedWhenEmpty(t *testing.T) {
	trn, err := New(definition(1, 1), teams(t, "a"), fixedScores)
	require.NoError(t, err)

	report, err := trn.Run(context.Background(), "", Hooks{})
	require.NoError(t, err)
	assert.NotEmpty(t, report.Seed)
}

func TestRunRecordsTaskErrors(t *testing.T) {
	crash := errors.New("contestant crashed")
	handler := func(ctx context.Context, task match.SubgameTask, report func(float64)) (interface{}, error) {
		if task.Index == 1 {
			return nil, crash
		}
		return fixedScores(ctx, task, report)
	}

	trn, err := New(definition(1, 3), teams(t, "a", "b"), handler)
	require.NoError(t, err)

	report, err := trn.Run(context.Background(), "errors", Hooks{})
	require.NoError(t, err)
	require.Len(t, report.Games, 3)
	assert.Equal(t, crash.Error(), report.Games[1].Error)
	assert.Nil(t, report.Games[1].Outcome)
	for _, s := range report.Leaderboard {
		assert.Equal(t, 1, s.Errors)
		assert.Equal(t, 2, s.Games)
	}
}

func TestRunFatalStopsTournament(t *testing.T) {
	infra := errors.New("spawn failed")
	handler := func(context.Context, match.SubgameTask, func(float64)) (interface{}, error) {
		return nil, match.Fatal(infra)
	}

	trn, err := New(definition(2, 2), teams(t, "a", "b"), handler)
	require.NoError(t, err)

	var games int
	report, err := trn.Run(context.Background(), "fatal", Hooks{Game: func(GameRecord) { games++ }})
	assert.Nil(t, report)
	require.Error(t, err)
	assert.True(t, match.IsFatal(err))
	assert.ErrorIs(t, err, infra)
	assert.Zero(t, games, "fatal failures are not game records")
}

func TestRunCancelled(t *testing.T) {
	handler := func(ctx context.Context, _ match.SubgameTask, _ func(float64)) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	trn, err := New(definition(1, 1), teams(t, "a"), handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = trn.Run(ctx, "cancel", Hooks{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*testing.T) error
	}{
		{"nil definition", func(t *testing.T) error {
			_, err := New(nil, nil, fixedScores)
			return err
		}},
		{"nil handler", func(t *testing.T) error {
			_, err := New(definition(1, 1), nil, nil)
			return err
		}},
		{"unknown tournament type", func(t *testing.T) error {
			def := definition(1, 1)
			def.TournamentType = "swiss"
			_, err := New(def, nil, fixedScores)
			return err
		}},
		{"bad match args", func(t *testing.T) error {
			_, err := New(definition(1, 0), nil, fixedScores)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.mutate(t))
		})
	}
}

func TestMatchConcurrencyFollowsDefinition(t *testing.T) {
	var (
		mu           sync.Mutex
		active, peak int
		once         sync.Once
		gate         = make(chan struct{})
	)
	handler := func(ctx context.Context, task match.SubgameTask, report func(float64)) (interface{}, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		if active == 2 {
			once.Do(func() { close(gate) })
		}
		mu.Unlock()
		<-gate
		mu.Lock()
		active--
		mu.Unlock()
		return fixedScores(ctx, task, report)
	}

	def := definition(1, 4)
	def.MaxConcurrency = 2
	trn, err := New(def, teams(t, "a", "b"), handler, WithConcurrency(8))
	require.NoError(t, err)

	_, err = trn.Run(context.Background(), "conc", Hooks{})
	require.NoError(t, err)
	assert.Equal(t, 2, peak)
}

func TestDefinitionCannotRaiseConcurrencyCeiling(t *testing.T) {
	var (
		mu           sync.Mutex
		active, peak int
	)
	handler := func(ctx context.Context, task match.SubgameTask, report func(float64)) (interface{}, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return fixedScores(ctx, task, report)
	}

	def := definition(1, 32)
	def.MaxConcurrency = 64
	trn, err := New(def, teams(t, "a", "b"), handler, WithConcurrency(2))
	require.NoError(t, err)

	_, err = trn.Run(context.Background(), "ceiling", Hooks{})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 2)
}

func TestRunDoesNotRecordAbortedGames(t *testing.T) {
	tests := []struct {
		name  string
		abort func(cancel context.CancelFunc, started <-chan struct{}) error
	}{
		{
			name: "user cancelled",
			abort: func(cancel context.CancelFunc, started <-chan struct{}) error {
				<-started
				cancel()
				return nil
			},
		},
		{
			name: "sibling failed fatally",
			abort: func(_ context.CancelFunc, started <-chan struct{}) error {
				<-started
				return match.Fatal(errors.New("spawn failed"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			started := make(chan struct{})
			handler := func(ctx context.Context, task match.SubgameTask, _ func(float64)) (interface{}, error) {
				if task.Index == 0 {
					if err := tt.abort(cancel, started); err != nil {
						return nil, err
					}
					<-ctx.Done()
					return nil, ctx.Err()
				}
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			}

			trn, err := New(definition(1, 2), teams(t, "a", "b"), handler, WithConcurrency(2))
			require.NoError(t, err)

			var (
				mu    sync.Mutex
				games []GameRecord
			)
			report, err := trn.Run(ctx, "aborted", Hooks{Game: func(g GameRecord) {
				mu.Lock()
				games = append(games, g)
				mu.Unlock()
			}})
			assert.Nil(t, report)
			require.Error(t, err)
			assert.Empty(t, games)
		})
	}
}
