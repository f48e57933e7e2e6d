package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/domain/tournament"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kothrunner/internal/shared/id"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxInbound   = 4096
)

// Subscriber is the part of tournament.Manager the stream needs.
type Subscriber interface {
	Subscribe(ctx context.Context, runID id.RunID) (tournament.Run, <-chan tournament.Event, func(), error)
}

// Message is a server message that is not a run event.
type Message struct {
	Type    string          `json:"type"`
	Run     *tournament.Run `json:"run,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Handler manages WebSocket connections
type Handler struct {
	tournaments Subscriber
	metrics     *monitoring.Metrics
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. Origins are checked by the
// CORS middleware in front of it.
func NewHandler(tournaments Subscriber, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		tournaments: tournaments,
		metrics:     metrics,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleStream upgrades the request and streams the run's events.
func (h *Handler) HandleStream(c *gin.Context) {
	raw := c.Param("id")
	if !id.IsValid(raw, id.RunPrefix) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "tournament not found"})
		return
	}
	runID := id.RunID(raw)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	run, events, unsubscribe, err := h.tournaments.Subscribe(ctx, runID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tournament.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	s := &stream{conn: conn, metrics: h.metrics}
	go s.read(cancel)

	logger := h.logger.With(zap.String("run_id", runID.String()))
	logger.Debug("Stream opened")

	if err := s.send("snapshot", Message{Type: "snapshot", Run: &run}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				s.close(websocket.CloseNormalClosure, "run ended")
				logger.Debug("Stream closed")
				return
			}
			if err := s.send(string(ev.Type), ev); err != nil {
				logger.Debug("Stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := s.ping(); err != nil {
				return
			}
		case <-ctx.Done():
			s.close(websocket.CloseGoingAway, "stream cancelled")
			return
		}
	}
}

// stream serializes writes to one connection.
type stream struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	metrics *monitoring.Metrics
}

func (s *stream) send(msgType string, v interface{}) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	s.metrics.RecordWSMessage("out", msgType)
	return nil
}

func (s *stream) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *stream) close(code int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}

// read handles client pings and notices disconnects. It cancels the stream
// when the connection goes away.
func (s *stream) read(cancel context.CancelFunc) {
	defer cancel()

	s.conn.SetReadLimit(maxInbound)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg struct {
			Type string `json:"type"`
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := sonic.Unmarshal(data, &msg); err != nil {
			_ = s.send("error", Message{Type: "error", Message: "invalid message"})
			continue
		}
		switch msg.Type {
		case "ping":
			s.metrics.RecordWSMessage("in", "ping")
			_ = s.send("pong", Message{Type: "pong"})
		default:
			s.metrics.RecordWSMessage("in", "unknown")
			_ = s.send("error", Message{Type: "error", Message: "unknown message type"})
		}
	}
}
