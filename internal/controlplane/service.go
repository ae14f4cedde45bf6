// Package controlplane provides the HTTP API and service layer for pageforge.
package controlplane

import (
	"context"
	"time"

	"github.com/fentz26/pageforge/internal/driver"
	"github.com/fentz26/pageforge/internal/efficiency"
	"github.com/fentz26/pageforge/internal/invites"
	"github.com/fentz26/pageforge/internal/models"
	"github.com/fentz26/pageforge/internal/orchestrator"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Service joins the orchestrator, the invite coordinator and the
// efficiency aggregator behind one API.
type Service struct {
	orch    *orchestrator.Orchestrator
	invites *invites.Coordinator
	report  *efficiency.Aggregator
}

// NewService creates a new control plane service.
func NewService(orch *orchestrator.Orchestrator, inv *invites.Coordinator, agg *efficiency.Aggregator) *Service {
	return &Service{
		orch:    orch,
		invites: inv,
		report:  agg,
	}
}

// TaskDetail is a task with its pages.
type TaskDetail struct {
	*models.Task
	Pages []models.GeneratedPage `json:"pages"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	OK      bool                 `json:"ok"`
	Version string               `json:"version"`
	Time    string               `json:"time"`
	DB      string               `json:"db"`
	Driver  *driver.HealthStatus `json:"driver,omitempty"`
	Pool    orchestrator.Stats   `json:"pool"`
	Error   string               `json:"error,omitempty"`
}

// --- Task Operations ---

func (s *Service) SubmitTask(ctx context.Context, req orchestrator.SubmitRequest) (*models.Task, error) {
	return s.orch.Submit(ctx, req)
}

func (s *Service) ListTasks(ctx context.Context, status models.TaskStatus) ([]models.Task, error) {
	tasks, err := s.orch.List(ctx, status)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// GetTask returns the task together with its pages.
func (s *Service) GetTask(ctx context.Context, id string) (*TaskDetail, error) {
	task, err := s.orch.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pages, err := s.orch.Pages(ctx, id)
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []models.GeneratedPage{}
	}
	return &TaskDetail{Task: task, Pages: pages}, nil
}

func (s *Service) StartTask(ctx context.Context, id string) (*models.Task, error) {
	return s.orch.Start(ctx, id)
}

func (s *Service) CancelTask(ctx context.Context, id string) (*models.Task, error) {
	return s.orch.Cancel(ctx, id)
}

func (s *Service) DeleteTask(ctx context.Context, id string) error {
	return s.orch.Delete(ctx, id)
}

func (s *Service) TaskLog(ctx context.Context, id string) ([]models.PDREntry, error) {
	entries, err := s.orch.Log(ctx, id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.PDREntry{}
	}
	return entries, nil
}

// ListPages returns the pages of one task, or of every task when taskID is empty.
func (s *Service) ListPages(ctx context.Context, taskID string) ([]models.GeneratedPage, error) {
	pages, err := s.orch.Pages(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []models.GeneratedPage{}
	}
	return pages, nil
}

// --- Invite Operations ---

func (s *Service) SendInvite(ctx context.Context, req invites.SendRequest) (*invites.SendResult, error) {
	return s.invites.Send(ctx, req)
}

func (s *Service) PageInvites(ctx context.Context, pageID string) ([]models.Invite, error) {
	list, err := s.invites.ListForPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Invite{}
	}
	return list, nil
}

func (s *Service) ListInvites(ctx context.Context) ([]models.Invite, error) {
	list, err := s.invites.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Invite{}
	}
	return list, nil
}

func (s *Service) AcceptInvite(ctx context.Context, id string) (*models.Invite, error) {
	return s.invites.Accept(ctx, id)
}

func (s *Service) DeclineInvite(ctx context.Context, id string) (*models.Invite, error) {
	return s.invites.Decline(ctx, id)
}

// --- Reporting ---

func (s *Service) Report(ctx context.Context) (*efficiency.Report, error) {
	return s.report.Report(ctx)
}

func (s *Service) Benchmark(ctx context.Context, req orchestrator.BenchmarkRequest) (*orchestrator.BenchmarkResult, error) {
	return s.orch.RunBenchmark(ctx, req)
}

// Health checks the store and the driver. It never returns an error;
// failures are reported in the response.
func (s *Service) Health(ctx context.Context) *HealthResponse {
	resp := &HealthResponse{
		OK:      true,
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
		DB:      "ok",
		Pool:    s.orch.Stats(),
	}
	status, err := s.orch.Health(ctx)
	if err != nil {
		resp.OK = false
		resp.DB = "error"
		resp.Error = err.Error()
		return resp
	}
	resp.Driver = status
	if status != nil && !status.Healthy {
		resp.OK = false
	}
	return resp
}
