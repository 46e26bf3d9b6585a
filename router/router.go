package router

import (
	"time"

	"TrainAI/config"
	"TrainAI/internal/dto"
	"TrainAI/internal/handler"
	"TrainAI/utils"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	Upload *handler.UploadHandler
	Video  *handler.VideoHandler
}

// InitRouter builds API routes.
func InitRouter(cfg config.Config, logger *zap.Logger, h Handlers) *gin.Engine {
	dto.RegisterValidation()

	r := gin.New()
	r.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(logger, true))
	r.Use(utils.CORSMiddleware())

	r.GET("/healthz", handler.Health)

	upload := r.Group("/upload")
	upload.Use(utils.AuthMiddleware(cfg.JWTSecret))
	{
		upload.POST("/init", h.Upload.InitUpload)
		upload.POST("/chunk", h.Upload.UploadChunk)
		upload.POST("/finalize", h.Upload.FinalizeUpload)
		upload.GET("/status/:sessionId", h.Upload.UploadStatus)
		upload.GET("/videos", h.Video.ListVideos)
	}
	return r
}
