package dto

import "mime/multipart"

// InitUploadRequest opens an upload session.
type InitUploadRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	FileSize    int64  `json:"fileSize" binding:"required,gt=0"`
	FileType    string `json:"fileType" binding:"required"`
	UploadID    string `json:"uploadId" binding:"required,uploadid"`
	TotalChunks int    `json:"totalChunks" binding:"gte=0"`
}

// ChunkForm is the multipart body of one chunk upload.
type ChunkForm struct {
	SessionID  string                `form:"sessionId" binding:"required,sessionid"`
	ChunkIndex *int                  `form:"chunkIndex" binding:"required,gte=0"`
	Chunk      *multipart.FileHeader `form:"chunk" binding:"required"`
}

type FinalizeRequest struct {
	SessionID string `json:"sessionId" binding:"required,sessionid"`
}

type StatusRequest struct {
	SessionID string `uri:"sessionId" binding:"required,sessionid"`
}

type ListVideosRequest struct {
	Limit int `form:"limit" binding:"gte=0"`
}
