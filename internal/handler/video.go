package handler

import (
	"net/http"

	"TrainAI/internal/dto"
	"TrainAI/internal/service"
	"TrainAI/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type VideoHandler struct {
	svc    *service.VideoService
	logger *zap.Logger
}

func NewVideoHandler(svc *service.VideoService, logger *zap.Logger) *VideoHandler {
	return &VideoHandler{svc: svc, logger: logger}
}

// ListVideos handles GET /upload/videos.
func (h *VideoHandler) ListVideos(c *gin.Context) {
	owner, ok := requireOwner(c, h.logger)
	if !ok {
		return
	}
	var req dto.ListVideosRequest
	if err := dto.BindQuery(c, &req); err != nil {
		utils.Fail(c, h.logger, err)
		return
	}
	videos, err := h.svc.ListVideos(c.Request.Context(), owner, req.Limit)
	if err != nil {
		utils.Fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListVideosResponse{Videos: videos})
}
