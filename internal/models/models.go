// Package models defines the core domain types for pageforge.
package models

import (
	"math"
	"time"
)

// TaskStatus represents the current state of a page-generation task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskStatuses lists every task status in lifecycle order.
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusRunning,
	TaskStatusCompleted,
	TaskStatusFailed,
	TaskStatusCancelled,
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	for _, v := range TaskStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// CanTransition reports whether a task may move from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning || next == TaskStatusCancelled
	case TaskStatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// PageStatus is the lifecycle state of a single generated page.
type PageStatus string

const (
	PageStatusCreating PageStatus = "creating"
	PageStatusCreated  PageStatus = "created"
	PageStatusFailed   PageStatus = "failed"
)

// Gender attached to a page's generated identity.
type Gender string

const (
	GenderFemale  Gender = "female"
	GenderMale    Gender = "male"
	GenderUnknown Gender = "unknown"
)

// InviteStatus is the lifecycle state of an invitation.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusDeclined InviteStatus = "declined"
	InviteStatusExpired  InviteStatus = "expired"
)

// Role granted to an invitee on a page.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleEditor     Role = "editor"
	RoleModerator  Role = "moderator"
	RoleAdvertiser Role = "advertiser"
	RoleAnalyst    Role = "analyst"
)

// Roles lists every assignable page role.
var Roles = []Role{RoleAdmin, RoleEditor, RoleModerator, RoleAdvertiser, RoleAnalyst}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, v := range Roles {
		if r == v {
			return true
		}
	}
	return false
}

// Task is a request to create Count pages sharing a base name.
type Task struct {
	ID             string     `json:"id"`
	BaseName       string     `json:"base_name"`
	Count          int        `json:"count"`
	Status         TaskStatus `json:"status"`
	PagesCreated   int        `json:"pages_created"`
	PagesFailed    int        `json:"pages_failed"`
	InvitesSent    int        `json:"invites_sent"`
	InvitesFailed  int        `json:"invites_failed"`
	ProfileURL     string     `json:"profile_url,omitempty"`
	InviteRole     Role       `json:"invite_role,omitempty"`
	CreatorProfile string     `json:"creator_profile,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	// Read-side only; not persisted in the tasks table.
	Progress        int  `json:"progress"`
	CancelRequested bool `json:"cancel_requested,omitempty"`
}

// Attempted returns the number of pages with a terminal outcome.
func (t *Task) Attempted() int {
	return t.PagesCreated + t.PagesFailed
}

// ComputeProgress returns the rounded percentage of attempted pages, clamped to [0,100].
func (t *Task) ComputeProgress() int {
	if t.Count <= 0 {
		return 0
	}
	p := int(math.Round(float64(t.Attempted()) / float64(t.Count) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// GeneratedPage is one page attempt belonging to a task.
type GeneratedPage struct {
	ID           string     `json:"id"`
	TaskID       string     `json:"task_id"`
	Sequence     int        `json:"sequence"`
	Name         string     `json:"name"`
	Gender       Gender     `json:"gender"`
	Status       PageStatus `json:"status"`
	ExternalID   string     `json:"external_id,omitempty"`
	URL          string     `json:"url,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	DurationMS   int64      `json:"duration_ms"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Invite is an invitation for an external profile to collaborate on a page.
type Invite struct {
	ID         string       `json:"id"`
	PageID     string       `json:"page_id"`
	PageName   string       `json:"page_name"`
	Invitee    string       `json:"invitee"`
	Role       Role         `json:"role"`
	InviteLink string       `json:"invite_link,omitempty"`
	InvitedBy  string       `json:"invited_by,omitempty"`
	Status     InviteStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	AcceptedAt *time.Time   `json:"accepted_at,omitempty"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskID     string    `json:"task_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
