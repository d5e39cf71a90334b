package httpapi

import (
	"github.com/gin-gonic/gin"

	"momo-checkout/internal/apperr"
)

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// writeError maps err to its status code and the stable error body.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{
		"error": errorBody{Kind: apperr.KindOf(err), Message: apperr.Message(err)},
	})
}
