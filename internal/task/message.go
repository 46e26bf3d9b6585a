package task

import (
	"context"

	"github.com/go-faster/errors"
)

type MessageType string

const (
	MessageCleanup    MessageType = "cleanup"
	MessageVideoReady MessageType = "video_ready"
)

// ErrUnknownMessage marks a payload the worker cannot handle. It is never retried.
var ErrUnknownMessage = errors.New("unknown task message")

// Message is the payload sent to the worker.
type Message struct {
	Type    MessageType `json:"type"`
	TaskID  uint64      `json:"task_id,omitempty"`
	Attempt int         `json:"attempt"`

	OwnerID    string `json:"owner_id,omitempty"`
	OwnerEmail string `json:"owner_email,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	URL        string `json:"url,omitempty"`
}

// Publisher sends an encoded Message to the task queue.
type Publisher interface {
	PublishTask(ctx context.Context, body []byte) error
}
