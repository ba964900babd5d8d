package content

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pleyazul/oraculo-api/pkg/response"
)

// GinHandlers contains HTTP handlers for the content endpoints
type GinHandlers struct {
	repo *Repository
}

func NewGinHandlers(repo *Repository) *GinHandlers {
	return &GinHandlers{repo: repo}
}

// GetContentHandler serves a catalog file verbatim
// URL parameter: type (spreads, tarot, iching, rueda, presets, meditaciones)
func (h *GinHandlers) GetContentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := h.repo.Raw(c.Param("type"))
		if err != nil {
			response.NotFound(c, err.Error())
			return
		}

		c.Data(200, "application/json", data)
	}
}

// SaveContentHandler replaces a catalog file. Protected by the admin JWT
// middleware; the cache for the touched type is refreshed on success.
func (h *GinHandlers) SaveContentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Type    string          `json:"type"`
			Content json.RawMessage `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Type == "" {
			response.BadRequest(c, "type and content are required")
			return
		}

		if err := h.repo.Save(req.Type, req.Content); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		log.Info().Str("content_type", req.Type).Msg("content updated")
		response.Success(c, gin.H{"saved": req.Type})
	}
}
