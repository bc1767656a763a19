// routes_dialog.go - Handler fuer Dialog-Anfragen
// Enthaelt: DialogHandler, StopHandler, requestIDMiddleware

package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lokal-ai/lokal/api"
	"github.com/lokal-ai/lokal/runner/dialogrunner"
)

// requestIDMiddleware vergibt jeder Anfrage eine X-Request-Id, falls
// der Client keine mitschickt
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}

		c.Header("X-Request-Id", id)
		c.Set("requestID", id)
		c.Next()
	}
}

// DialogHandler dekodiert den Anfrage-Umschlag und bereitet eine
// Dialogsequenz vor. Ein gesetztes Stop-Flag beendet stattdessen die
// laufende Sequenz.
func (s *Server) DialogHandler(c *gin.Context) {
	var env api.DialogEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := dialogrunner.RequestFromEnvelope(&env)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Stop {
		response, finished, code := s.runner.FinishStep(req.ID, true, "", true, false)
		c.JSON(http.StatusOK, gin.H{
			"id":       req.ID,
			"status":   code.String(),
			"finished": finished,
			"response": response,
		})
		return
	}

	if err := s.runner.Acquire(c.Request.Context()); err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "no sequence slot available"})
		return
	}
	defer s.runner.Release()

	seq, err := s.runner.NewSequence(req)
	if err != nil {
		slog.Error("failed to prepare sequence", "id", req.ID, "error", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             seq.ID(),
		"prompt_tokens":  seq.NumTokens(),
		"chunks":         seq.NumChunks(),
		"cropped_tokens": seq.CroppedTokens(),
	})
}

type stopRequest struct {
	ID       int32  `json:"id"`
	Success  bool   `json:"success"`
	Response string `json:"response"`
	TooLong  bool   `json:"too_long"`
}

// StopHandler verbucht den letzten Inferenzschritt einer Sequenz und
// gibt ihren Zustand frei
func (s *Server) StopHandler(c *gin.Context) {
	req := stopRequest{Success: true}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, finished, code := s.runner.FinishStep(req.ID, req.Success, req.Response, true, req.TooLong)
	c.JSON(http.StatusOK, gin.H{
		"id":       req.ID,
		"status":   code.String(),
		"finished": finished,
		"response": response,
	})
}
