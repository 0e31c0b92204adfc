package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	contractx "github.com/tanpawarit/Camara-Agent-Gateway/agent/contract"
	dedupx "github.com/tanpawarit/Camara-Agent-Gateway/dedup"
)

// statusClientClosedRequest is nginx's non-standard code for a caller that
// went away; used when the execution was cancelled.
const statusClientClosedRequest = 499

const streamChunkSize = 50

func (s *Server) handleQuery(c *gin.Context) {
	var req contractx.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := s.runner.Answer(c.Request.Context(), req)
	if err != nil {
		status, message := mapError(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	s.recordResolution(req, res)
	c.JSON(http.StatusOK, res)
}

// handleQueryStream resolves the query exactly like handleQuery, then chunks
// the single resolved answer as SSE events. The core publishes results
// all-or-nothing, so streaming is a presentation concern layered after
// resolution.
func (s *Server) handleQueryStream(c *gin.Context) {
	var req contractx.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := s.runner.Answer(c.Request.Context(), req)
	if err != nil {
		status, message := mapError(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	s.recordResolution(req, res)

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	answer := res.Answer
	for start := 0; start < len(answer); {
		end := chunkEnd(answer, start)
		if !writeSSE(c, "", gin.H{"chunk": answer[start:end]}) {
			return
		}
		start = end
	}
	writeSSE(c, "complete", gin.H{"done": true})
}

// chunkEnd returns the end offset of the chunk starting at start, at most
// streamChunkSize bytes but never splitting a UTF-8 rune across chunks.
func chunkEnd(s string, start int) int {
	end := start + streamChunkSize
	if end >= len(s) {
		return len(s)
	}
	for end > start && !utf8.RuneStart(s[end]) {
		end--
	}
	if end == start {
		// Not valid UTF-8; fall back to the raw byte boundary.
		return start + streamChunkSize
	}
	return end
}

// writeSSE emits one SSE message and flushes it. Returns false once the
// client is gone.
func writeSSE(c *gin.Context, event string, payload any) bool {
	select {
	case <-c.Request.Context().Done():
		return false
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	if event != "" {
		if _, err := c.Writer.WriteString("event: " + event + "\n"); err != nil {
			return false
		}
	}
	if _, err := c.Writer.WriteString("data: " + string(data) + "\n\n"); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, dedupx.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, dedupx.ErrCancelled):
		return statusClientClosedRequest, err.Error()
	case errors.Is(err, dedupx.ErrClosed):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusBadGateway, err.Error()
	}
}
