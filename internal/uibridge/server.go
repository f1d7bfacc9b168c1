package uibridge

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	v1 "github.com/gdshr/attendance-agent/pkg/api/v1"

	"github.com/gdshr/attendance-agent/internal/common/config"
	"github.com/gdshr/attendance-agent/internal/common/logger"
	"github.com/gdshr/attendance-agent/internal/events"
	"github.com/gdshr/attendance-agent/internal/events/bus"
)

// Agent is the slice of the controller the bridge talks to.
type Agent interface {
	// Status returns the current status snapshot. Safe to call from any
	// goroutine.
	Status() v1.AgentStatus
	// SubmitBreak forwards an annotation from the UI and blocks, bounded,
	// until the reason was saved or buffered.
	SubmitBreak(ctx context.Context, sub v1.BreakSubmission) (v1.BreakSubmissionResult, error)
}

// Server is the loopback HTTP and websocket bridge. It doubles as the
// controller's popup channel: popup commands are pushed to whichever UI
// clients are connected.
type Server struct {
	cfg   config.UIBridgeConfig
	agent Agent
	hub   *hub
	log   *logger.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer creates the bridge. Call Start to begin serving.
func NewServer(cfg config.UIBridgeConfig, agent Agent, log *logger.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		agent: agent,
		hub:   newHub(log),
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The listener binds to loopback only; any local origin is ours.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	router.GET("/health", s.handleHealth)

	api := router.Group("/api/v1")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/break/categories", s.handleCategories)
		api.POST("/break/submit", s.handleBreakSubmit)
	}

	router.GET("/ws", s.handleWebsocket)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
	}
	return s
}

// Start serves until the context is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ui bridge listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.closeAll()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("ui bridge listener failed: %w", err)
	}
}

// ShowPopup pushes a show command with the selectable categories.
func (s *Server) ShowPopup() {
	s.hub.broadcast(v1.PopupCommand{
		Action:     "show",
		Categories: v1.BreakCategories,
		IssuedAt:   time.Now().UTC(),
	})
}

// HidePopup pushes a hide command.
func (s *Server) HidePopup() {
	s.hub.broadcast(v1.PopupCommand{
		Action:   "hide",
		IssuedAt: time.Now().UTC(),
	})
}

// Notify pushes a one-way message, for example the suspicious-activity
// warning.
func (s *Server) Notify(kind, message string) {
	s.hub.broadcast(v1.Notification{
		Kind:     kind,
		Message:  message,
		IssuedAt: time.Now().UTC(),
	})
}

// Connected reports whether any UI client is listening.
func (s *Server) Connected() bool {
	return s.hub.clientCount() > 0
}

// ForwardEvents mirrors agent telemetry events to connected UI clients,
// which lets the UI react to state changes without polling status.
func (s *Server) ForwardEvents(b bus.EventBus) error {
	_, err := b.Subscribe(events.AllAgentEvents, func(_ context.Context, ev *bus.Event) error {
		s.hub.broadcast(ev)
		return nil
	})
	return err
}

// requestLogger logs each request at debug level. The bridge is chatty
// (the UI polls status) so anything louder would drown the log.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("ui request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
