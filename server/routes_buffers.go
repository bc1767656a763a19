// routes_buffers.go - Handler fuer vor-dekodierte Modal-Puffer
// Enthaelt: CreateBufferHandler, DeleteBufferHandler

package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lokal-ai/lokal/vision"
)

// maxBufferSize begrenzt die Groesse eines Modal-Puffers (32 MiB)
const maxBufferSize = 32 << 20

// CreateBufferHandler registriert den Request-Body als Modal-Puffer
// und gibt das Handle zurueck, das in modal_prts referenziert wird
func (s *Server) CreateBufferHandler(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBufferSize+1))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(data) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "empty buffer"})
		return
	}
	if len(data) > maxBufferSize {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "buffer too large"})
		return
	}

	// nur bekannte Bildformate annehmen, die Dekodierung selbst
	// passiert erst bei der Sequenz-Vorbereitung
	if err := vision.ValidateFormat(vision.DetectFormat(data)); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	handle := s.runner.Buffers().Register(data)
	c.JSON(http.StatusOK, gin.H{
		"handle": strconv.FormatUint(handle, 10),
		"length": len(data),
	})
}

// DeleteBufferHandler gibt einen registrierten Modal-Puffer frei
func (s *Server) DeleteBufferHandler(c *gin.Context) {
	handle, err := strconv.ParseUint(c.Param("handle"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid buffer handle"})
		return
	}

	if !s.runner.Buffers().Release(handle) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown buffer handle"})
		return
	}

	c.Status(http.StatusNoContent)
}
