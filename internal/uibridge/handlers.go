package uibridge

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	v1 "github.com/gdshr/attendance-agent/pkg/api/v1"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": v1.AgentVersion,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.agent.Status())
}

func (s *Server) handleCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": v1.BreakCategories})
}

// handleBreakSubmit accepts the employee's break annotation. The call
// blocks, bounded by the configured wait, until the reason was either
// saved server-side or buffered locally; either way the UI can dismiss
// the popup.
func (s *Server) handleBreakSubmit(c *gin.Context) {
	var sub v1.BreakSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category and reason are required"})
		return
	}

	valid := false
	for _, cat := range v1.BreakCategories {
		if sub.Category == cat {
			valid = true
			break
		}
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown break category"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.AnnotateWait())
	defer cancel()

	result, err := s.agent.SubmitBreak(ctx, sub)
	if err != nil {
		s.log.Error("break submission failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleWebsocket upgrades the connection and parks it in the hub. The
// channel is push-only; inbound messages are read and discarded to keep
// the connection's control frames flowing.
func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.hub.add(conn)

	go func() {
		defer s.hub.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
