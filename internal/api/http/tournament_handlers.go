package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/domain/tournament"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/kothrunner/internal/ingest"
	"github.com/GriffinCanCode/kothrunner/internal/shared/random"
	"github.com/GriffinCanCode/kothrunner/internal/shared/utils"
)

const defaultListLimit = 50

// StartRequest is the body of POST /tournaments. Definition uses the same
// JSON shape as a definition file.
type StartRequest struct {
	Definition json.RawMessage `json:"definition"`
	Entries    []match.Entry   `json:"entries,omitempty"`
	EntriesURL string          `json:"entriesUrl,omitempty"`
	Seed       string          `json:"seed,omitempty"`
}

// StartTournament validates a definition and starts the run in the
// background.
func (h *Handlers) StartTournament(c *gin.Context) {
	track := h.metrics.Track("start")

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, utils.MaxJSONSize))
	if err != nil {
		track(false)
		respondError(c, http.StatusRequestEntityTooLarge, fmt.Errorf("invalid request: %w", err))
		return
	}
	if err := utils.DefaultJSONValidator().ValidateJSON(body); err != nil {
		track(false)
		respondError(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}

	var req StartRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		track(false)
		respondError(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if len(req.Definition) == 0 {
		track(false)
		respondError(c, http.StatusBadRequest, config.ErrMissingGameType)
		return
	}

	def, err := config.ParseDefinition(req.Definition, "json")
	if err != nil {
		track(false)
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := validateDefinition(def); err != nil {
		track(false)
		respondError(c, http.StatusBadRequest, err)
		return
	}

	entries, status, err := h.loadEntries(c, def, req)
	if err != nil {
		track(false)
		respondError(c, status, err)
		return
	}

	run, err := h.tournaments.Start(tournament.StartRequest{
		Definition: def,
		Entries:    entries,
		Seed:       random.Seed(req.Seed),
	})
	if err != nil {
		track(false)
		status := http.StatusBadRequest
		if errors.Is(err, tournament.ErrManagerClosed) {
			status = http.StatusServiceUnavailable
		}
		respondError(c, status, err)
		return
	}
	track(true)

	h.logger.Info("Tournament accepted",
		zap.String("run_id", run.ID.String()),
		zap.String("game_type", def.GameType),
		zap.Int("entries", len(entries)))

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"run":     run,
	})
}

func (h *Handlers) loadEntries(c *gin.Context, def *config.Definition, req StartRequest) ([]match.Entry, int, error) {
	if len(req.Entries) > 0 {
		entries, err := ingest.Prepare(req.Entries)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		return entries, 0, nil
	}
	if h.entries == nil {
		return nil, http.StatusBadRequest, ingest.ErrNoEntries
	}

	entries, err := h.entries.Resolve(c.Request.Context(), def, req.EntriesURL)
	switch {
	case err == nil:
		return entries, 0, nil
	case errors.Is(err, ingest.ErrHostNotAllowed):
		return nil, http.StatusForbidden, err
	case errors.Is(err, ingest.ErrNoEntries), errors.Is(err, httpclient.ErrNotFound),
		errors.Is(err, httpclient.ErrTooLarge):
		return nil, http.StatusBadRequest, err
	default:
		h.logger.Warn("Failed to load entries", zap.Error(err))
		return nil, http.StatusBadGateway, err
	}
}

func validateDefinition(def *config.Definition) error {
	if err := utils.ValidateString(def.Name, "name", 0, utils.MaxTitleLength, false); err != nil {
		return err
	}
	if err := utils.ValidateConfig(def.GameConfig, "gameConfig"); err != nil {
		return err
	}
	return utils.ValidateConfig(def.PlayConfig, "playConfig")
}

// ListTournaments lists runs, newest first
func (h *Handlers) ListTournaments(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	track := h.metrics.Track("list")
	runs, err := h.tournaments.List(c.Request.Context(), limit)
	track(err == nil)
	if err != nil {
		respondError(c, lookupStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetTournament returns one run
func (h *Handlers) GetTournament(c *gin.Context) {
	runID, ok := runID(c)
	if !ok {
		return
	}

	run, err := h.tournaments.Get(c.Request.Context(), runID)
	if err != nil {
		respondError(c, lookupStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

// GetResults returns the games a run has played and its leaderboard. Runs
// still in progress return the games finished so far.
func (h *Handlers) GetResults(c *gin.Context) {
	runID, ok := runID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	run, err := h.tournaments.Get(ctx, runID)
	if err != nil {
		respondError(c, lookupStatus(err), err)
		return
	}

	if report, err := h.tournaments.Report(runID); err == nil {
		c.JSON(http.StatusOK, gin.H{
			"run":         run,
			"complete":    true,
			"games":       report.Games,
			"leaderboard": report.Leaderboard,
		})
		return
	}

	games, err := h.tournaments.Games(ctx, runID)
	if err != nil {
		respondError(c, lookupStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run":         run,
		"complete":    run.Status == tournament.StatusFinished,
		"games":       games,
		"leaderboard": run.Leaderboard,
	})
}

// CancelTournament stops a running tournament
func (h *Handlers) CancelTournament(c *gin.Context) {
	runID, ok := runID(c)
	if !ok {
		return
	}

	track := h.metrics.Track("cancel")
	err := h.tournaments.Cancel(runID)
	track(err == nil)
	if err != nil {
		respondError(c, lookupStatus(err), err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Tournament cancellation requested",
	})
}
