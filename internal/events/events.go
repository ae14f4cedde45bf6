// Package events publishes task and page lifecycle events.
package events

import (
	"context"
	"time"
)

// Type names a lifecycle event.
type Type string

const (
	TaskSubmitted Type = "task.submitted"
	TaskStarted   Type = "task.started"
	TaskCompleted Type = "task.completed"
	TaskFailed    Type = "task.failed"
	TaskCancelled Type = "task.cancelled"
	TaskDeleted   Type = "task.deleted"
	PageCreated   Type = "page.created"
	PageFailed    Type = "page.failed"
	InviteSent    Type = "invite.sent"
	InviteFailed  Type = "invite.failed"
)

// Event is one lifecycle notification.
type Event struct {
	Type     Type      `json:"type"`
	TaskID   string    `json:"task_id,omitempty"`
	PageID   string    `json:"page_id,omitempty"`
	InviteID string    `json:"invite_id,omitempty"`
	Status   string    `json:"status,omitempty"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// Publisher delivers events. Publishing is best effort: callers log
// failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
