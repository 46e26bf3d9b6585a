package model

import "time"

const (
	CleanupStatusPending   = "pending"
	CleanupStatusRunning   = "running"
	CleanupStatusRetrying  = "retrying"
	CleanupStatusCompleted = "completed"
	CleanupStatusFailed    = "failed"
)

const (
	CleanupReasonFinalize = "finalize" // chunk removal failed after a finalize
	CleanupReasonExpired  = "expired"  // session TTL elapsed before finalize
)

// CleanupTask tracks removal of orphaned chunk objects under Prefix.
type CleanupTask struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	OwnerID   string `gorm:"column:owner_id;size:128;index;not null" json:"owner_id"`
	SessionID string `gorm:"column:session_id;size:191;not null" json:"session_id"`
	Prefix    string `gorm:"column:prefix;size:512;not null" json:"prefix"`
	Reason    string `gorm:"column:reason;type:varchar(32);not null" json:"reason"`

	Status      string     `gorm:"column:status;type:varchar(32);index;not null" json:"status"`
	Removed     int        `gorm:"column:removed;default:0" json:"removed"`
	ErrorMsg    string     `gorm:"column:error_msg;type:text" json:"error_msg"`
	RetryCount  int        `gorm:"column:retry_count;default:0" json:"retry_count"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at" json:"next_retry_at"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at"`
	FinishedAt  *time.Time `gorm:"column:finished_at" json:"finished_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (CleanupTask) TableName() string {
	return "cleanup_task"
}
