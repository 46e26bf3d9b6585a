package utils

import (
	"net/http"

	"TrainAI/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Fail writes {"error": message} with the status derived from err.
// Server-side failures are logged.
func Fail(c *gin.Context, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
