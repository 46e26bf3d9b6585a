package dto

import (
	"time"

	"TrainAI/model"
)

type InitUploadResponse struct {
	SessionID     string    `json:"sessionId"`
	UploadPath    string    `json:"uploadPath"`
	UploadURL     string    `json:"uploadUrl"`
	ChunkEndpoint string    `json:"chunkEndpoint"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type ChunkResponse struct {
	Success    bool   `json:"success"`
	ChunkIndex int    `json:"chunkIndex"`
	ChunkPath  string `json:"chunkPath"`
}

type FinalizeResponse struct {
	URL             string `json:"url"`
	Path            string `json:"path"`
	FileSize        int64  `json:"fileSize"`
	ChunksProcessed int    `json:"chunksProcessed"`
	Checksum        string `json:"checksum"`
}

// NewFinalizeResponse maps a stored result onto the wire shape.
func NewFinalizeResponse(obj *model.FinalObject) FinalizeResponse {
	return FinalizeResponse{
		URL:             obj.URL,
		Path:            obj.Path,
		FileSize:        obj.Size,
		ChunksProcessed: obj.ChunksProcessed,
		Checksum:        obj.Checksum,
	}
}

// StatusResponse reports upload progress. Progress is set only when the
// client declared totalChunks.
type StatusResponse struct {
	SessionID      string             `json:"sessionId"`
	Status         model.UploadStatus `json:"status"`
	ReceivedChunks []int              `json:"receivedChunks"`
	TotalChunks    int                `json:"totalChunks,omitempty"`
	Progress       *int               `json:"progress,omitempty"`
	ExpiresAt      time.Time          `json:"expiresAt"`
	Result         *FinalizeResponse  `json:"result,omitempty"`
}

type ListVideosResponse struct {
	Videos []model.VideoAsset `json:"videos"`
}
