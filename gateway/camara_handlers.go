package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// The /camara/* routes forward verbs to the configured backend through the
// deduplicating client, so concurrent identical calls from different
// consumers share one downstream request.

func (s *Server) handleCamaraGet(c *gin.Context) {
	body, err := s.camara.Get(c.Request.Context(), c.Param("endpoint"))
	s.renderCamara(c, body, err)
}

func (s *Server) handleCamaraPost(c *gin.Context) {
	payload, ok := readOptionalJSON(c)
	if !ok {
		return
	}
	body, err := s.camara.Post(c.Request.Context(), c.Param("endpoint"), payload)
	s.renderCamara(c, body, err)
}

func (s *Server) handleCamaraDelete(c *gin.Context) {
	payload, ok := readOptionalJSON(c)
	if !ok {
		return
	}
	body, err := s.camara.Delete(c.Request.Context(), c.Param("endpoint"), payload)
	s.renderCamara(c, body, err)
}

func (s *Server) renderCamara(c *gin.Context, body map[string]any, err error) {
	if err != nil {
		status, message := mapError(err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(http.StatusOK, body)
}

// readOptionalJSON decodes a request body into a map when one is present. An
// empty body is valid and yields a nil payload.
func readOptionalJSON(c *gin.Context) (map[string]any, bool) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return nil, false
	}
	if len(raw) == 0 {
		return nil, true
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return nil, false
	}
	return payload, true
}
