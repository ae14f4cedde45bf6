// Package driver defines the Automation Driver capability used to create
// pages and send invites on the target platform.
package driver

import (
	"context"
	"strings"
	"time"

	"github.com/fentz26/pageforge/internal/models"
)

// Outcome classifies a page-creation attempt.
type Outcome string

const (
	// OutcomeSucceeded means the page exists on the platform.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed is a failure of this one attempt; the task continues.
	OutcomeFailed Outcome = "failed"
	// OutcomeSessionFailed means the controlling session is unusable and
	// no further page in the task can succeed.
	OutcomeSessionFailed Outcome = "session_failed"
)

// CreatePageRequest carries the identity of the page to create.
type CreatePageRequest struct {
	DisplayName string        `json:"display_name"`
	Gender      models.Gender `json:"gender"`
}

// PageResult is the driver's report of a page-creation attempt.
type PageResult struct {
	Outcome    Outcome       `json:"outcome"`
	ExternalID string        `json:"external_id,omitempty"`
	URL        string        `json:"url,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Succeeded reports whether the page was created.
func (r *PageResult) Succeeded() bool {
	return r != nil && r.Outcome == OutcomeSucceeded
}

// InviteRequest describes an invitation to send for an existing page.
type InviteRequest struct {
	PageExternalID string      `json:"page_external_id"`
	PageName       string      `json:"page_name"`
	Invitee        string      `json:"invitee"`
	Role           models.Role `json:"role"`
	InvitedBy      string      `json:"invited_by,omitempty"`
}

// InviteResult is the driver's report of an invite attempt.
type InviteResult struct {
	Success    bool   `json:"success"`
	InviteLink string `json:"invite_link,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HealthStatus reports whether the driver can currently create pages.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Driver  string        `json:"driver"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
}

// Driver executes automation steps against the platform. A returned error
// means the call itself could not be made; callers treat it as an ordinary
// failed attempt.
type Driver interface {
	// Name returns the driver identifier.
	Name() string

	// CreatePage performs one page-creation attempt.
	CreatePage(ctx context.Context, req CreatePageRequest) (*PageResult, error)

	// SendInvite performs one invite attempt.
	SendInvite(ctx context.Context, req InviteRequest) (*InviteResult, error)

	// Health checks the driver can reach the platform.
	Health(ctx context.Context) (*HealthStatus, error)
}

// Options tune a driver instance.
type Options struct {
	Headless bool
	Timeout  time.Duration
}

// Factory builds a driver for the given options.
type Factory func(opts Options) (Driver, error)

// sessionPhrases mark errors that poison the whole session rather than one attempt.
var sessionPhrases = []string{
	"account blocked",
	"account disabled",
	"account suspended",
	"checkpoint",
	"login failed",
	"session expired",
	"not logged in",
}

// Classify maps a failed attempt's diagnostic text to an outcome. Rate
// limiting ("too many", "try again later", "slow down") stays an ordinary
// attempt failure.
func Classify(errText string) Outcome {
	lower := strings.ToLower(errText)
	for _, p := range sessionPhrases {
		if strings.Contains(lower, p) {
			return OutcomeSessionFailed
		}
	}
	return OutcomeFailed
}
