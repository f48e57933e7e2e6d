package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/domain/tournament"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/shared/id"
)

// Tournaments is the part of tournament.Manager the handlers use.
type Tournaments interface {
	Start(req tournament.StartRequest) (tournament.Run, error)
	Get(ctx context.Context, runID id.RunID) (tournament.Run, error)
	List(ctx context.Context, limit int) ([]tournament.Run, error)
	Games(ctx context.Context, runID id.RunID) ([]tournament.GameRecord, error)
	Report(runID id.RunID) (*tournament.Report, error)
	Cancel(runID id.RunID) error
}

// EntryResolver loads entries for requests that carry none.
type EntryResolver interface {
	Resolve(ctx context.Context, def *config.Definition, url string) ([]match.Entry, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	tournaments Tournaments
	entries     EntryResolver
	metrics     *HandlerMetrics
	logger      *zap.Logger
}

// NewHandlers creates a new handler set. entries may be nil, in which case
// every request must carry its entries.
func NewHandlers(tournaments Tournaments, entries EntryResolver, metrics *HandlerMetrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		tournaments: tournaments,
		entries:     entries,
		metrics:     metrics,
		logger:      logger,
	}
}

// Register mounts the tournament routes on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.POST("/tournaments", h.StartTournament)
	r.GET("/tournaments", h.ListTournaments)
	r.GET("/tournaments/:id", h.GetTournament)
	r.GET("/tournaments/:id/results", h.GetResults)
	r.POST("/tournaments/:id/cancel", h.CancelTournament)
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "kothrunner",
		"version": "1.0.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	snapshot := h.metrics.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"active_tournaments": snapshot.ActiveTournaments,
		"active_contexts":    snapshot.ActiveContexts,
		"uptime_seconds":     snapshot.UptimeSeconds,
	})
}

func runID(c *gin.Context) (id.RunID, bool) {
	raw := c.Param("id")
	if !id.IsValid(raw, id.RunPrefix) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "tournament not found",
		})
		return "", false
	}
	return id.RunID(raw), true
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

// lookupStatus maps run lookup errors to HTTP statuses.
func lookupStatus(err error) int {
	switch {
	case errors.Is(err, tournament.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, tournament.ErrRunFinished), errors.Is(err, tournament.ErrRunNotFinished):
		return http.StatusConflict
	case errors.Is(err, tournament.ErrManagerClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
