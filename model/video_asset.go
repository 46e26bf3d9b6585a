package model

import "time"

// VideoAsset records a finalized recording so the rest of the app can reference it.
type VideoAsset struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	OwnerID   string `gorm:"column:owner_id;size:128;not null;uniqueIndex:idx_owner_session;index" json:"ownerId"`
	SessionID string `gorm:"column:session_id;size:191;not null;uniqueIndex:idx_owner_session" json:"sessionId"`

	ObjectPath  string `gorm:"column:object_path;size:512;not null" json:"path"`
	PublicURL   string `gorm:"column:public_url;type:text;not null" json:"url"`
	FileName    string `gorm:"column:file_name;size:255" json:"fileName"`
	ContentType string `gorm:"column:content_type;size:64;not null" json:"contentType"`

	Size       int64  `gorm:"column:size;not null" json:"fileSize"`
	ChunkCount int    `gorm:"column:chunk_count;not null" json:"chunksProcessed"`
	Checksum   string `gorm:"column:checksum;size:64" json:"checksum"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the database table name.
func (VideoAsset) TableName() string {
	return "video_asset"
}
