package model

import "time"

type UploadStatus string

const (
	UploadStatusUploading  UploadStatus = "uploading"
	UploadStatusFinalizing UploadStatus = "finalizing"
	UploadStatusFinalized  UploadStatus = "finalized"
)

// Owner is the authenticated caller an upload belongs to.
type Owner struct {
	ID    string
	Email string
}

// UploadSession is the server-side record of one chunked upload attempt.
// It lives in the session store with a TTL and is never written to the database.
type UploadSession struct {
	SessionID  string `json:"sessionId"`
	OwnerID    string `json:"ownerId"`
	OwnerEmail string `json:"ownerEmail,omitempty"`
	UploadID   string `json:"uploadId"`
	UploadPath string `json:"uploadPath"`

	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	FileType string `json:"fileType"`

	// TotalChunks is 0 when the client did not declare it.
	TotalChunks int `json:"totalChunks,omitempty"`

	Status UploadStatus `json:"status"`
	Result *FinalObject `json:"result,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FinalObject describes the assembled recording.
type FinalObject struct {
	Path            string `json:"path"`
	URL             string `json:"url"`
	Size            int64  `json:"size"`
	ContentType     string `json:"contentType"`
	ChunksProcessed int    `json:"chunksProcessed"`
	Checksum        string `json:"checksum"`
}
