package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/domain/tournament"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/kothrunner/internal/ingest"
	"github.com/GriffinCanCode/kothrunner/internal/shared/id"
)

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

func byPosition(_ context.Context, task match.SubgameTask, _ func(float64)) (interface{}, error) {
	out := scores{}
	for i, t := range task.Teams {
		out[t.ID] = float64(len(task.Teams) - i)
	}
	return out, nil
}

type fakeTournaments struct {
	mu       sync.Mutex
	started  []tournament.StartRequest
	startErr error
	run      tournament.Run
	games    []tournament.GameRecord
	report   *tournament.Report
	cancel   error
}

func (f *fakeTournaments) Start(req tournament.StartRequest) (tournament.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return tournament.Run{}, f.startErr
	}
	f.started = append(f.started, req)
	return tournament.Run{ID: id.NewRunID(), Status: tournament.StatusRunning, Seed: req.Seed}, nil
}

func (f *fakeTournaments) Get(_ context.Context, runID id.RunID) (tournament.Run, error) {
	if runID != f.run.ID {
		return tournament.Run{}, tournament.ErrRunNotFound
	}
	return f.run, nil
}

func (f *fakeTournaments) List(_ context.Context, limit int) ([]tournament.Run, error) {
	runs := []tournament.Run{f.run, f.run, f.run}
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

func (f *fakeTournaments) Games(_ context.Context, runID id.RunID) ([]tournament.GameRecord, error) {
	if runID != f.run.ID {
		return nil, tournament.ErrRunNotFound
	}
	return f.games, nil
}

func (f *fakeTournaments) Report(id.RunID) (*tournament.Report, error) {
	if f.report == nil {
		return nil, tournament.ErrRunNotFinished
	}
	return f.report, nil
}

func (f *fakeTournaments) Cancel(id.RunID) error {
	return f.cancel
}

type fakeResolver struct {
	entries []match.Entry
	err     error
	gotURL  string
	gotDef  *config.Definition
}

func (r *fakeResolver) Resolve(_ context.Context, def *config.Definition, url string) ([]match.Entry, error) {
	r.gotURL, r.gotDef = url, def
	return r.entries, r.err
}

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

const startBody = `{
	"definition": {"name": "Roll off", "gameType": "highroll"},
	"seed": "replay-me",
	"entries": [
		{"id": "alpha", "title": "Alpha", "code": "1", "enabled": true},
		{"id": "beta", "title": "<b>Beta</b>", "code": "2", "enabled": true},
		{"id": "gamma", "code": "3", "enabled": true}
	]
}`

func TestStartTournamentRunsToCompletion(t *testing.T) {
	manager := tournament.NewManager(func(*config.Definition) (match.SubHandler, error) {
		return byPosition, nil
	}, 2, nil)
	defer manager.Shutdown(context.Background())

	router := newRouter(NewHandlers(manager, nil, NewHandlerMetrics(monitoring.NewMetrics()), nil))

	w := do(router, http.MethodPost, "/tournaments", startBody)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	body := decode(t, w)
	run := body["run"].(map[string]interface{})
	runID := id.RunID(run["id"].(string))
	assert.Equal(t, "replay-me", run["seed"])
	assert.Equal(t, "running", run["status"])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := manager.Wait(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, tournament.StatusFinished, final.Status)

	w = do(router, http.MethodGet, "/tournaments/"+runID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)["run"].(map[string]interface{})
	assert.Equal(t, "finished", got["status"])
	assert.Equal(t, "Roll off", got["name"])

	w = do(router, http.MethodGet, "/tournaments/"+runID.String()+"/results", "")
	require.Equal(t, http.StatusOK, w.Code)
	results := decode(t, w)
	assert.Equal(t, true, results["complete"])
	assert.Len(t, results["games"], 1)
	assert.Len(t, results["leaderboard"], 3)

	w = do(router, http.MethodPost, "/tournaments/"+runID.String()+"/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartTournamentRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fake   *fakeTournaments
		want   int
		errMsg string
	}{
		{name: "invalid json", body: `{"definition":`, want: http.StatusBadRequest},
		{name: "no definition", body: `{"entries": []}`, want: http.StatusBadRequest, errMsg: "gameType"},
		{name: "no game type", body: `{"definition": {"name": "x"}}`, want: http.StatusBadRequest, errMsg: "gameType"},
		{name: "unsupported definition field type", body: `{"definition": {"gameType": 5}}`, want: http.StatusBadRequest},
		{name: "no entries without resolver", body: `{"definition": {"gameType": "g"}}`, want: http.StatusBadRequest, errMsg: "no entries"},
		{
			name:   "duplicate entries",
			body:   `{"definition": {"gameType": "g"}, "entries": [{"id": "a", "code": "1"}, {"id": "a", "code": "2"}]}`,
			want:   http.StatusBadRequest,
			errMsg: "duplicate",
		},
		{
			name:   "bad entry id",
			body:   `{"definition": {"gameType": "g"}, "entries": [{"id": "a b", "code": "1"}]}`,
			want:   http.StatusBadRequest,
			errMsg: "invalid characters",
		},
		{
			name: "configuration rejected by manager",
			body: `{"definition": {"gameType": "g"}, "entries": [{"id": "a", "code": "1", "enabled": true}]}`,
			fake: &fakeTournaments{startErr: &match.ConfigError{Field: "count", Err: errors.New("must be positive")}},
			want: http.StatusBadRequest,
		},
		{
			name: "manager shut down",
			body: `{"definition": {"gameType": "g"}, "entries": [{"id": "a", "code": "1", "enabled": true}]}`,
			fake: &fakeTournaments{startErr: tournament.ErrManagerClosed},
			want: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := tt.fake
			if fake == nil {
				fake = &fakeTournaments{}
			}
			router := newRouter(NewHandlers(fake, nil, nil, nil))

			w := do(router, http.MethodPost, "/tournaments", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			if tt.errMsg != "" {
				assert.Contains(t, body["error"], tt.errMsg)
			}
			assert.Empty(t, fake.started)
		})
	}
}

func TestStartTournamentResolvesEntries(t *testing.T) {
	fake := &fakeTournaments{}
	resolver := &fakeResolver{entries: []match.Entry{{ID: "x", Code: "1", Enabled: true}}}
	router := newRouter(NewHandlers(fake, resolver, nil, nil))

	body := `{"definition": {"gameType": "g", "site": "codegolf", "qid": "7"}, "entriesUrl": "http://answers.test/q/7"}`
	w := do(router, http.MethodPost, "/tournaments", body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	assert.Equal(t, "http://answers.test/q/7", resolver.gotURL)
	assert.Equal(t, "codegolf", resolver.gotDef.Site)
	require.Len(t, fake.started, 1)
	assert.Equal(t, resolver.entries, fake.started[0].Entries)
	assert.Empty(t, fake.started[0].Seed)
	assert.Equal(t, "g", fake.started[0].Definition.GameType)
	assert.Equal(t, "free_for_all", fake.started[0].Definition.TeamType, "definition defaults apply")
}

func TestStartTournamentResolverFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nothing to load", err: ingest.ErrNoEntries, want: http.StatusBadRequest},
		{name: "upstream down", err: errors.New("connection refused"), want: http.StatusBadGateway},
		{name: "host not allowed", err: fmt.Errorf("%w: 10.0.0.1", ingest.ErrHostNotAllowed), want: http.StatusForbidden},
		{name: "page too large", err: fmt.Errorf("load entries: %w", httpclient.ErrTooLarge), want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(NewHandlers(&fakeTournaments{}, &fakeResolver{err: tt.err}, nil, nil))
			w := do(router, http.MethodPost, "/tournaments", `{"definition": {"gameType": "g"}}`)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestGetTournamentNotFound(t *testing.T) {
	router := newRouter(NewHandlers(&fakeTournaments{run: tournament.Run{ID: id.NewRunID()}}, nil, nil, nil))

	for _, path := range []string{"/tournaments/nope", "/tournaments/" + id.NewRunID().String(), "/tournaments/bogus/results"} {
		w := do(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestListTournaments(t *testing.T) {
	router := newRouter(NewHandlers(&fakeTournaments{run: tournament.Run{ID: id.NewRunID()}}, nil, nil, nil))

	w := do(router, http.MethodGet, "/tournaments", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3.0, decode(t, w)["count"])

	w = do(router, http.MethodGet, "/tournaments?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w)["count"])

	w = do(router, http.MethodGet, "/tournaments?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResultsOfRunningTournament(t *testing.T) {
	fake := &fakeTournaments{
		run: tournament.Run{ID: id.NewRunID(), Status: tournament.StatusRunning},
		games: []tournament.GameRecord{
			{Match: 0, Game: 0, Teams: []string{"a", "b"}},
		},
	}
	router := newRouter(NewHandlers(fake, nil, nil, nil))

	w := do(router, http.MethodGet, "/tournaments/"+fake.run.ID.String()+"/results", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["complete"])
	assert.Len(t, body["games"], 1)
}

func TestCancelTournament(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "running", want: http.StatusAccepted},
		{name: "already finished", err: tournament.ErrRunFinished, want: http.StatusConflict},
		{name: "unknown", err: tournament.ErrRunNotFound, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(NewHandlers(&fakeTournaments{cancel: tt.err}, nil, nil, nil))
			w := do(router, http.MethodPost, "/tournaments/"+id.NewRunID().String()+"/cancel", "")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHealthAndRoot(t *testing.T) {
	metrics := monitoring.NewMetrics()
	metrics.TournamentStarted()
	router := newRouter(NewHandlers(&fakeTournaments{}, nil, NewHandlerMetrics(metrics), nil))

	w := do(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 1.0, body["active_tournaments"])

	w = do(router, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "kothrunner", decode(t, w)["service"])
}

func TestMetricsAggregator(t *testing.T) {
	metrics := monitoring.NewMetrics()
	metrics.RecordHTTPRequest("GET", "/tournaments", "200", time.Millisecond)
	metrics.RecordHTTPRequest("GET", "/tournaments/:id", "404", time.Millisecond)
	metrics.RecordOperation(monitoring.OpSubgame, monitoring.StatusOK, time.Millisecond)
	metrics.RecordOperation(monitoring.OpSubgame, monitoring.StatusError, time.Millisecond)

	breaker := resilience.New("modules-http", resilience.Settings{})
	agg := NewMetricsAggregator(metrics, breaker, nil)

	snapshot := agg.Collect()
	assert.Equal(t, int64(2), snapshot.Summary.TotalRequests)
	assert.InDelta(t, 0.5, snapshot.Summary.ErrorRate, 1e-9)
	assert.InDelta(t, 0.5, snapshot.Summary.SubgameFailRate, 1e-9)
	require.Contains(t, snapshot.Breakers, "modules-http")
	assert.Equal(t, "closed", snapshot.Breakers["modules-http"].State)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics/json", agg.GetAggregatedMetrics)
	w := do(r, http.MethodGet, "/metrics/json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "summary")
}
