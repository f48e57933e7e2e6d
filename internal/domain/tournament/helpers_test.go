package tournament

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/shared/id"
)

// scores is a Scored outcome keyed by team id.
type scores map[string]float64

func (s scores) ScoreOf(teamID string) (float64, bool) {
	v, ok := s[teamID]
	return v, ok
}

func (s scores) IsWinner(teamID string) bool {
	best, ok := s[teamID]
	if !ok {
		return false
	}
	for _, v := range s {
		if v > best {
			return false
		}
	}
	return true
}

func entries(ids ...string) []match.Entry {
	out := make([]match.Entry, len(ids))
	for i, e := range ids {
		out[i] = match.Entry{ID: e, Title: "entry " + e, Enabled: true}
	}
	return out
}

func definition(tournamentCount, matchCount int) *config.Definition {
	def := config.NewDefinition()
	def.Name = "test"
	def.GameType = "test-game"
	def.TournamentArgs = map[string]interface{}{"count": tournamentCount}
	def.MatchArgs = map[string]interface{}{"count": matchCount}
	return def
}

// fixedScores scores each team by the length of its id plus its position.
func fixedScores(_ context.Context, task match.SubgameTask, report func(float64)) (interface{}, error) {
	report(0.5)
	out := scores{}
	for i, t := range task.Teams {
		out[t.ID] = float64(len(task.Teams) - i)
	}
	return out, nil
}

type memStore struct {
	mu    sync.Mutex
	runs  map[id.RunID]Run
	games map[id.RunID][]GameRecord
	fail  error
}

func newMemStore() *memStore {
	return &memStore{runs: map[id.RunID]Run{}, games: map[id.RunID][]GameRecord{}}
}

func (s *memStore) SaveRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.runs[run.ID] = run
	return nil
}

func (s *memStore) SaveGame(_ context.Context, runID id.RunID, g GameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.games[runID] = append(s.games[runID], g)
	return nil
}

func (s *memStore) GetRun(_ context.Context, runID id.RunID) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return r, nil
}

func (s *memStore) ListRuns(_ context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListGames(_ context.Context, runID id.RunID) ([]GameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GameRecord(nil), s.games[runID]...), nil
}

var errBroken = errors.New("store unavailable")
