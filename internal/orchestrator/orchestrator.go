package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/fentz26/pageforge/internal/apperr"
	"github.com/fentz26/pageforge/internal/audit"
	"github.com/fentz26/pageforge/internal/cancel"
	"github.com/fentz26/pageforge/internal/driver"
	"github.com/fentz26/pageforge/internal/events"
	"github.com/fentz26/pageforge/internal/identity"
	"github.com/fentz26/pageforge/internal/invites"
	"github.com/fentz26/pageforge/internal/models"
	"github.com/fentz26/pageforge/internal/reports"
	"github.com/fentz26/pageforge/internal/store"
)

// Messages recorded when a loop stops for reasons outside the task.
const (
	msgShutdown  = "interrupted: daemon shutting down"
	msgRestarted = "interrupted: daemon restarted"
)

// IdentitySource produces page identities.
type IdentitySource interface {
	Generate(baseName string, seq int) identity.Identity
}

// InviteSender sends an invite for a freshly created page.
type InviteSender interface {
	Send(ctx context.Context, req invites.SendRequest) (*invites.SendResult, error)
}

// Orchestrator manages task submission, execution and cancellation.
type Orchestrator struct {
	store    *store.Store
	driver   driver.Driver
	factory  driver.Factory
	flags    cancel.Flags
	pdr      *audit.PDRWriter
	events   events.Publisher
	invites  InviteSender
	identity IdentitySource
	archiver reports.Archiver
	config   *Config
	pool     *pool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithConfig overrides the default limits.
func WithConfig(cfg *Config) Option {
	return func(o *Orchestrator) { o.config = cfg.withDefaults() }
}

// WithEvents publishes lifecycle events to p.
func WithEvents(p events.Publisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithInviteSender enables inline invites for tasks that carry a profile.
func WithInviteSender(s InviteSender) Option {
	return func(o *Orchestrator) { o.invites = s }
}

// WithIdentitySource replaces the default identity generator.
func WithIdentitySource(src IdentitySource) Option {
	return func(o *Orchestrator) { o.identity = src }
}

// WithDriverFactory builds benchmark drivers with per-run options.
func WithDriverFactory(f driver.Factory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

// WithArchiver stores benchmark results.
func WithArchiver(a reports.Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// New creates an Orchestrator.
func New(s *store.Store, d driver.Driver, flags cancel.Flags, pdr *audit.PDRWriter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    s,
		driver:   d,
		flags:    flags,
		pdr:      pdr,
		events:   events.Noop{},
		identity: identity.New(nil),
		archiver: reports.Noop{},
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.flags == nil {
		o.flags = cancel.NewMemory()
	}
	o.pool = newPool(o.config.MaxConcurrentTasks)
	return o
}

// SubmitRequest describes a new task.
type SubmitRequest struct {
	BaseName       string      `json:"base_name"`
	Count          int         `json:"count"`
	ProfileURL     string      `json:"profile_url,omitempty"`
	InviteRole     models.Role `json:"invite_role,omitempty"`
	CreatorProfile string      `json:"creator_profile,omitempty"`
}

// Submit validates req and records a pending task. Nothing is automated
// until Start.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*models.Task, error) {
	base := strings.TrimSpace(req.BaseName)
	if base == "" {
		return nil, apperr.Validation("base_name is required")
	}
	if utf8.RuneCountInString(base) > o.config.MaxBaseNameLength {
		return nil, apperr.Validation(fmt.Sprintf("base_name must be at most %d characters", o.config.MaxBaseNameLength))
	}
	if req.Count < 1 || req.Count > o.config.MaxPages {
		return nil, apperr.Validation(fmt.Sprintf("count must be between 1 and %d", o.config.MaxPages))
	}

	profile := strings.TrimSpace(req.ProfileURL)
	role := models.Role(strings.ToLower(string(req.InviteRole)))
	if profile != "" && role == "" {
		role = models.RoleAdmin
	}
	if role != "" && !role.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("invalid invite_role %q", req.InviteRole))
	}

	task, err := o.store.CreateTask(ctx, store.NewTask{
		BaseName:       base,
		Count:          req.Count,
		ProfileURL:     profile,
		InviteRole:     role,
		CreatorProfile: strings.TrimSpace(req.CreatorProfile),
	})
	if err != nil {
		return nil, err
	}

	o.pdr.Record(ctx, "task.submit", req, audit.OutcomeSuccess, task.ID, fmt.Sprintf("%d pages of %q", task.Count, task.BaseName))
	o.publish(ctx, events.Event{Type: events.TaskSubmitted, TaskID: task.ID, Status: string(task.Status)})
	slog.Info("task submitted",
		slog.String("task_id", task.ID),
		slog.String("base_name", task.BaseName),
		slog.Int("count", task.Count),
	)
	return task, nil
}

// Start moves a pending task to running and hands its page loop to the
// worker pool. It returns without waiting for any page.
func (o *Orchestrator) Start(ctx context.Context, id string) (*models.Task, error) {
	task, err := o.getTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusPending {
		return nil, apperr.InvalidState(fmt.Sprintf("task %s is %s, only pending tasks can start", id, task.Status))
	}

	ok, err := o.store.TransitionTask(ctx, id, models.TaskStatusPending, models.TaskStatusRunning, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := o.getTask(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.InvalidState(fmt.Sprintf("task %s is %s, only pending tasks can start", id, current.Status))
	}

	// A Cancel may set the flag as soon as the task is running; the loop
	// owns it from here and finish clears it.
	if !o.pool.submit(id, func(loopCtx context.Context) { o.run(loopCtx, id) }) {
		msg := fmt.Sprintf("task %s already has an active loop", id)
		o.finish(context.WithoutCancel(ctx), task, models.TaskStatusFailed, msg)
		return nil, apperr.InvalidState(msg)
	}

	o.pdr.Record(ctx, "task.start", map[string]string{"task_id": id}, audit.OutcomeSuccess, id, "")
	o.publish(ctx, events.Event{Type: events.TaskStarted, TaskID: id, Status: string(models.TaskStatusRunning)})
	slog.Info("task started", slog.String("task_id", id))

	return o.Get(ctx, id)
}

// Cancel stops a task. A pending task is cancelled immediately; a running
// task gets a cooperative flag that its loop observes before the next page.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*models.Task, error) {
	task, err := o.getTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if task.Status == models.TaskStatusPending {
		ok, err := o.store.TransitionTask(ctx, id, models.TaskStatusPending, models.TaskStatusCancelled, "")
		if err != nil {
			return nil, err
		}
		if ok {
			o.pdr.Record(ctx, "task.cancel", map[string]string{"task_id": id}, audit.OutcomeSuccess, id, "cancelled before start")
			o.publish(ctx, events.Event{Type: events.TaskCancelled, TaskID: id, Status: string(models.TaskStatusCancelled)})
			slog.Info("task cancelled", slog.String("task_id", id), slog.String("from", string(models.TaskStatusPending)))
			return o.Get(ctx, id)
		}
		// Lost a race with Start; fall through using the fresh status.
		if task, err = o.getTask(ctx, id); err != nil {
			return nil, err
		}
	}

	if task.Status != models.TaskStatusRunning {
		return nil, apperr.InvalidState(fmt.Sprintf("task %s is %s and cannot be cancelled", id, task.Status))
	}

	if err := o.flags.Request(ctx, id); err != nil {
		return nil, fmt.Errorf("request cancel: %w", err)
	}
	o.pdr.Record(ctx, "task.cancel", map[string]string{"task_id": id}, audit.OutcomeSuccess, id, "cancel requested")
	slog.Info("task cancel requested", slog.String("task_id", id))

	return o.Get(ctx, id)
}

// Delete removes a terminal task with its pages and their invites.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	task, err := o.getTask(ctx, id)
	if err != nil {
		return err
	}
	if !task.Status.Terminal() {
		return apperr.InvalidState(fmt.Sprintf("task %s is %s; cancel it before deleting", id, task.Status))
	}

	ok, err := o.store.DeleteTask(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidState(fmt.Sprintf("task %s changed state during delete", id))
	}
	if err := o.flags.Clear(ctx, id); err != nil {
		slog.Warn("clear cancel flag failed", slog.String("task_id", id), slog.Any("error", err))
	}

	o.pdr.Record(ctx, "task.delete", map[string]string{"task_id": id}, audit.OutcomeSuccess, id, "")
	o.publish(ctx, events.Event{Type: events.TaskDeleted, TaskID: id})
	slog.Info("task deleted", slog.String("task_id", id))
	return nil
}

// Get returns a task with its progress and pending cancel request.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.Task, error) {
	task, err := o.getTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status == models.TaskStatusRunning {
		requested, err := o.flags.Requested(ctx, id)
		if err != nil {
			slog.Warn("read cancel flag failed", slog.String("task_id", id), slog.Any("error", err))
		}
		task.CancelRequested = requested
	}
	return task, nil
}

// List returns tasks, newest first, optionally filtered by status.
func (o *Orchestrator) List(ctx context.Context, status models.TaskStatus) ([]models.Task, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown status %q", status))
	}
	return o.store.ListTasks(ctx, status)
}

// Pages returns a task's pages in sequence order. An empty id lists the
// pages of every task.
func (o *Orchestrator) Pages(ctx context.Context, id string) ([]models.GeneratedPage, error) {
	if id != "" {
		if _, err := o.getTask(ctx, id); err != nil {
			return nil, err
		}
	}
	return o.store.ListPages(ctx, id)
}

// Progress returns the task's rounded completion percentage.
func (o *Orchestrator) Progress(ctx context.Context, id string) (int, error) {
	task, err := o.getTask(ctx, id)
	if err != nil {
		return 0, err
	}
	return task.Progress, nil
}

// Log returns the decision and failure log of a task.
// Entries outlive the task, so a deleted task's log is still readable.
func (o *Orchestrator) Log(ctx context.Context, id string) ([]models.PDREntry, error) {
	return o.pdr.Log(ctx, id)
}

// Recover fails tasks left running by a previous process. Call it before
// serving requests.
func (o *Orchestrator) Recover(ctx context.Context) (int64, error) {
	n, err := o.store.FailRunningTasks(ctx, msgRestarted)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Warn("failed interrupted tasks", slog.Int64("count", n))
		o.pdr.Record(ctx, "task.recover", map[string]int64{"count": n}, audit.OutcomeSuccess, "", msgRestarted)
	}
	return n, nil
}

// Stats reports worker pool occupancy.
func (o *Orchestrator) Stats() Stats {
	return o.pool.stats()
}

// Stop cancels every running loop and waits for each to record a terminal
// state, or for ctx to expire.
func (o *Orchestrator) Stop(ctx context.Context) error {
	err := o.pool.stop(ctx)
	slog.Info("orchestrator stopped")
	return err
}

// Wait blocks until every started loop has finished. Intended for tests
// and one-shot CLI runs.
func (o *Orchestrator) Wait() {
	o.pool.wait()
}

// Health checks the store and the default driver.
func (o *Orchestrator) Health(ctx context.Context) (*driver.HealthStatus, error) {
	if err := o.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return o.driver.Health(ctx)
}

func (o *Orchestrator) getTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := o.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperr.NotFound(fmt.Sprintf("task %s not found", id))
	}
	return task, nil
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	if err := o.events.Publish(ctx, ev); err != nil {
		slog.Warn("publish event failed", slog.String("type", string(ev.Type)), slog.Any("error", err))
	}
}
