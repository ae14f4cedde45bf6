// Package remote implements the Automation Driver as an HTTP client of a
// browser-automation sidecar process.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fentz26/pageforge/internal/driver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultTimeout bounds every sidecar call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

var tracer = otel.Tracer("github.com/fentz26/pageforge/internal/driver/remote")

// Remote talks to a sidecar over JSON/HTTP.
type Remote struct {
	endpoint   string
	headless   bool
	httpClient *http.Client
}

// New creates a remote driver for the sidecar at endpoint.
func New(endpoint string, opts driver.Options) (*Remote, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("remote driver: endpoint required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Remote{
		endpoint:   endpoint,
		headless:   opts.Headless,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Factory returns a driver.Factory for the sidecar at endpoint.
func Factory(endpoint string) driver.Factory {
	return func(opts driver.Options) (driver.Driver, error) {
		return New(endpoint, opts)
	}
}

// Name returns the driver identifier.
func (r *Remote) Name() string {
	return "remote"
}

type createPageBody struct {
	Name     string `json:"name"`
	Gender   string `json:"gender"`
	Headless bool   `json:"headless"`
}

type createPageResponse struct {
	Success  bool   `json:"success"`
	PageID   string `json:"page_id"`
	PageURL  string `json:"page_url"`
	Error    string `json:"error"`
	Category string `json:"category"`
}

// CreatePage asks the sidecar to create one page.
func (r *Remote) CreatePage(ctx context.Context, req driver.CreatePageRequest) (*driver.PageResult, error) {
	ctx, span := tracer.Start(ctx, "driver.CreatePage")
	defer span.End()
	span.SetAttributes(attribute.String("page.name", req.DisplayName))

	start := time.Now()
	var resp createPageResponse
	err := r.post(ctx, "/pages", createPageBody{
		Name:     req.DisplayName,
		Gender:   string(req.Gender),
		Headless: r.headless,
	}, &resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &driver.PageResult{Duration: time.Since(start)}
	switch {
	case resp.Success:
		result.Outcome = driver.OutcomeSucceeded
		result.ExternalID = resp.PageID
		result.URL = resp.PageURL
	case resp.Category == string(driver.OutcomeSessionFailed) || resp.Category == "session":
		result.Outcome = driver.OutcomeSessionFailed
		result.Error = resp.Error
	default:
		result.Outcome = driver.Classify(resp.Error)
		result.Error = resp.Error
	}
	span.SetAttributes(attribute.String("page.outcome", string(result.Outcome)))
	return result, nil
}

type sendInviteBody struct {
	PageID    string `json:"page_id"`
	PageName  string `json:"page_name"`
	Invitee   string `json:"profile_url"`
	Role      string `json:"role"`
	InvitedBy string `json:"invited_by,omitempty"`
}

// SendInvite asks the sidecar to invite a profile to a page.
func (r *Remote) SendInvite(ctx context.Context, req driver.InviteRequest) (*driver.InviteResult, error) {
	ctx, span := tracer.Start(ctx, "driver.SendInvite")
	defer span.End()

	var resp driver.InviteResult
	err := r.post(ctx, "/invites", sendInviteBody{
		PageID:    req.PageExternalID,
		PageName:  req.PageName,
		Invitee:   req.Invitee,
		Role:      string(req.Role),
		InvitedBy: req.InvitedBy,
	}, &resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &resp, nil
}

// Health probes the sidecar's health endpoint.
func (r *Remote) Health(ctx context.Context) (*driver.HealthStatus, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return &driver.HealthStatus{Healthy: false, Driver: r.Name(), Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	var body struct {
		Healthy bool   `json:"healthy"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	return &driver.HealthStatus{
		Healthy: resp.StatusCode == http.StatusOK && body.Healthy,
		Driver:  r.Name(),
		Message: body.Message,
		Latency: time.Since(start),
	}, nil
}

func (r *Remote) post(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sidecar request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read sidecar response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sidecar error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode sidecar response: %w", err)
	}
	return nil
}
