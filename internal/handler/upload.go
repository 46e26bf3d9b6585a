package handler

import (
	"net/http"

	"TrainAI/internal/apperr"
	"TrainAI/internal/dto"
	"TrainAI/internal/service"
	"TrainAI/model"
	"TrainAI/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartOverhead leaves room for form fields and boundaries on top of one chunk.
const multipartOverhead = 1 << 20

type UploadHandler struct {
	svc       *service.UploadService
	maxUpload int64
	logger    *zap.Logger
}

func NewUploadHandler(svc *service.UploadService, maxUpload int64, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{svc: svc, maxUpload: maxUpload, logger: logger}
}

// requireOwner writes 401 when the auth middleware stored no caller.
func requireOwner(c *gin.Context, logger *zap.Logger) (model.Owner, bool) {
	owner, ok := utils.CurrentOwner(c)
	if !ok {
		utils.Fail(c, logger, apperr.Authf("unauthorized"))
	}
	return owner, ok
}

// InitUpload handles POST /upload/init.
func (h *UploadHandler) InitUpload(c *gin.Context) {
	owner, ok := requireOwner(c, h.logger)
	if !ok {
		return
	}
	var req dto.InitUploadRequest
	if err := dto.BindJSON(c, &req); err != nil {
		utils.Fail(c, h.logger, err)
		return
	}
	resp, err := h.svc.InitSession(c.Request.Context(), owner, req)
	if err != nil {
		utils.Fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UploadChunk handles POST /upload/chunk.
func (h *UploadHandler) UploadChunk(c *gin.Context) {
	owner, ok := requireOwner(c, h.logger)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)

	var form dto.ChunkForm
	if err := dto.BindForm(c, &form); err != nil {
		utils.Fail(c, h.logger, err)
		return
	}
	src, err := form.Chunk.Open()
	if err != nil {
		utils.Fail(c, h.logger, apperr.Validationf("chunk is unreadable"))
		return
	}
	defer src.Close()

	resp, err := h.svc.ReceiveChunk(
		c.Request.Context(),
		owner,
		form.SessionID,
		*form.ChunkIndex,
		form.Chunk.Size,
		src,
	)
	if err != nil {
		utils.Fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// FinalizeUpload handles POST /upload/finalize.
func (h *UploadHandler) FinalizeUpload(c *gin.Context) {
	owner, ok := requireOwner(c, h.logger)
	if !ok {
		return
	}
	var req dto.FinalizeRequest
	if err := dto.BindJSON(c, &req); err != nil {
		utils.Fail(c, h.logger, err)
		return
	}
	result, err := h.svc.Finalize(c.Request.Context(), owner, req.SessionID)
	if err != nil {
		utils.Fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewFinalizeResponse(result))
}

// UploadStatus handles GET /upload/status/:sessionId.
func (h *UploadHandler) UploadStatus(c *gin.Context) {
	owner, ok := requireOwner(c, h.logger)
	if !ok {
		return
	}
	var req dto.StatusRequest
	if err := dto.BindURI(c, &req); err != nil {
		utils.Fail(c, h.logger, err)
		return
	}
	resp, err := h.svc.Status(c.Request.Context(), owner, req.SessionID)
	if err != nil {
		utils.Fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
