// Package simulated provides an in-process Automation Driver that fakes the
// platform. It is used in test mode and for dry-run benchmarks.
package simulated

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/fentz26/pageforge/internal/driver"
	"github.com/google/uuid"
)

// Config controls the simulated platform behaviour.
type Config struct {
	// Latency is the simulated duration of each automation call.
	Latency time.Duration
	// FailureRate is the probability in [0,1] that a page attempt fails.
	FailureRate float64
	// SessionFailureAfter makes the session unusable after this many page
	// attempts. Zero disables it.
	SessionFailureAfter int
	// BaseURL prefixes generated page URLs.
	BaseURL string
	// Source seeds the failure draws. Nil uses a random seed.
	Source rand.Source
}

// attemptErrors are the transient failures a real session produces.
var attemptErrors = []string{
	"too many requests, try again later",
	"page name rejected by platform",
	"create button not found",
	"temporarily blocked from creating pages, slow down",
}

// Simulated implements driver.Driver without touching any network.
type Simulated struct {
	cfg Config

	mu       sync.Mutex
	rng      *rand.Rand
	attempts int
	pages    map[string]string
}

// New creates a simulated driver.
func New(cfg Config) *Simulated {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.facebook.com"
	}
	src := cfg.Source
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Simulated{
		cfg:   cfg,
		rng:   rand.New(src),
		pages: make(map[string]string),
	}
}

// Factory returns a driver.Factory that builds simulated drivers sharing cfg.
// Options.Timeout caps the simulated latency.
func Factory(cfg Config) driver.Factory {
	return func(opts driver.Options) (driver.Driver, error) {
		c := cfg
		if opts.Timeout > 0 && c.Latency > opts.Timeout {
			c.Latency = opts.Timeout
		}
		return New(c), nil
	}
}

// Name returns the driver identifier.
func (s *Simulated) Name() string {
	return "simulated"
}

// CreatePage fakes one page-creation attempt.
func (s *Simulated) CreatePage(ctx context.Context, req driver.CreatePageRequest) (*driver.PageResult, error) {
	start := time.Now()
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, fmt.Errorf("display name required")
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	fail := s.cfg.FailureRate > 0 && s.rng.Float64() < s.cfg.FailureRate
	reason := attemptErrors[s.rng.IntN(len(attemptErrors))]
	s.mu.Unlock()

	if s.cfg.SessionFailureAfter > 0 && attempt > s.cfg.SessionFailureAfter {
		return &driver.PageResult{
			Outcome:  driver.OutcomeSessionFailed,
			Error:    "account blocked: controlling profile is restricted from creating pages",
			Duration: time.Since(start),
		}, nil
	}
	if fail {
		return &driver.PageResult{
			Outcome:  driver.OutcomeFailed,
			Error:    reason,
			Duration: time.Since(start),
		}, nil
	}

	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:15]
	s.mu.Lock()
	s.pages[id] = req.DisplayName
	s.mu.Unlock()

	return &driver.PageResult{
		Outcome:    driver.OutcomeSucceeded,
		ExternalID: id,
		URL:        fmt.Sprintf("%s/profile.php?id=%s", s.cfg.BaseURL, id),
		Duration:   time.Since(start),
	}, nil
}

// SendInvite fakes an invite for a page this driver created.
func (s *Simulated) SendInvite(ctx context.Context, req driver.InviteRequest) (*driver.InviteResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, ok := s.pages[req.PageExternalID]
	s.mu.Unlock()

	if !ok {
		return &driver.InviteResult{Success: false, Error: "page not found on platform"}, nil
	}
	if strings.TrimSpace(req.Invitee) == "" {
		return &driver.InviteResult{Success: false, Error: "invitee profile required"}, nil
	}
	return &driver.InviteResult{
		Success:    true,
		InviteLink: fmt.Sprintf("%s/%s/settings/?tab=admin_roles&invite=%s", s.cfg.BaseURL, req.PageExternalID, uuid.New().String()),
	}, nil
}

// Health always reports healthy.
func (s *Simulated) Health(ctx context.Context) (*driver.HealthStatus, error) {
	return &driver.HealthStatus{Healthy: true, Driver: s.Name(), Message: "test mode"}, nil
}

func (s *Simulated) wait(ctx context.Context) error {
	if s.cfg.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.cfg.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
