package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fentz26/pageforge/internal/audit"
	"github.com/fentz26/pageforge/internal/driver"
	"github.com/fentz26/pageforge/internal/events"
	"github.com/fentz26/pageforge/internal/identity"
	"github.com/fentz26/pageforge/internal/invites"
	"github.com/fentz26/pageforge/internal/models"
	"github.com/fentz26/pageforge/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/fentz26/pageforge/internal/orchestrator")

// run is the page loop of one task. ctx is cancelled on shutdown; store
// writes use a detached context so the terminal state is always recorded.
func (o *Orchestrator) run(ctx context.Context, taskID string) {
	storeCtx := context.WithoutCancel(ctx)

	task, err := o.store.GetTask(storeCtx, taskID)
	if err != nil || task == nil {
		slog.Error("load task for loop failed", slog.String("task_id", taskID), slog.Any("error", err))
		return
	}
	if task.Status != models.TaskStatusRunning {
		return
	}

	ctx, span := tracer.Start(ctx, "orchestrator.run")
	span.SetAttributes(attribute.String("task.id", taskID), attribute.Int("task.count", task.Count))
	defer span.End()

	log := slog.With(slog.String("task_id", taskID))
	log.Info("page loop started", slog.Int("count", task.Count))

	for i := 0; i < task.Count; i++ {
		if ctx.Err() != nil {
			o.finish(storeCtx, task, models.TaskStatusFailed, msgShutdown)
			return
		}
		requested, err := o.flags.Requested(storeCtx, taskID)
		if err != nil {
			log.Warn("read cancel flag failed", slog.Any("error", err))
		}
		if requested {
			o.finish(storeCtx, task, models.TaskStatusCancelled, "")
			return
		}

		ident := o.identity.Generate(task.BaseName, i)
		page, err := o.store.CreatePage(storeCtx, taskID, i, ident.DisplayName, ident.Gender)
		if err != nil {
			o.finish(storeCtx, task, models.TaskStatusFailed, err.Error())
			return
		}

		res := o.attempt(ctx, o.driver, ident)

		if res.Succeeded() {
			page, err = o.store.FinishPage(storeCtx, page.ID, store.PageOutcome{
				Status:     models.PageStatusCreated,
				ExternalID: res.ExternalID,
				URL:        res.URL,
				Duration:   res.Duration,
			})
			if err != nil {
				o.finish(storeCtx, task, models.TaskStatusFailed, err.Error())
				return
			}
			o.publish(storeCtx, events.Event{Type: events.PageCreated, TaskID: taskID, PageID: page.ID, Status: string(page.Status), Progress: o.progress(storeCtx, taskID)})
			log.Info("page created",
				slog.Int("sequence", i),
				slog.String("page_id", page.ID),
				slog.String("external_id", res.ExternalID),
				slog.Duration("duration", res.Duration),
			)

			if task.ProfileURL != "" && o.invites != nil {
				o.dispatchInvite(ctx, task, page)
			}
			continue
		}

		page, err = o.store.FinishPage(storeCtx, page.ID, store.PageOutcome{
			Status:       models.PageStatusFailed,
			ErrorMessage: res.Error,
			Duration:     res.Duration,
		})
		if err != nil {
			o.finish(storeCtx, task, models.TaskStatusFailed, err.Error())
			return
		}
		o.pdr.Record(storeCtx, "page.failed",
			map[string]any{"sequence": i, "name": ident.DisplayName},
			audit.OutcomeFailure, taskID, fmt.Sprintf("page %d (%s): %s", i, ident.DisplayName, res.Error))
		o.publish(storeCtx, events.Event{Type: events.PageFailed, TaskID: taskID, PageID: page.ID, Status: string(page.Status), Message: res.Error, Progress: o.progress(storeCtx, taskID)})
		log.Warn("page failed",
			slog.Int("sequence", i),
			slog.String("outcome", string(res.Outcome)),
			slog.String("error", res.Error),
		)

		if res.Outcome == driver.OutcomeSessionFailed {
			o.finish(storeCtx, task, models.TaskStatusFailed, res.Error)
			return
		}
	}

	o.finish(storeCtx, task, models.TaskStatusCompleted, "")
}

// attempt calls the driver once and normalizes its answer. Returned errors
// are classified by their text like any other diagnostic.
func (o *Orchestrator) attempt(ctx context.Context, d driver.Driver, ident identity.Identity) *driver.PageResult {
	ctx, span := tracer.Start(ctx, "driver.CreatePage")
	defer span.End()
	span.SetAttributes(attribute.String("page.name", ident.DisplayName), attribute.String("driver", d.Name()))

	start := time.Now()
	res, err := d.CreatePage(ctx, driver.CreatePageRequest{DisplayName: ident.DisplayName, Gender: ident.Gender})
	elapsed := time.Since(start)

	switch {
	case err != nil:
		res = &driver.PageResult{Outcome: driver.Classify(err.Error()), Error: err.Error()}
	case res == nil:
		res = &driver.PageResult{Outcome: driver.OutcomeFailed, Error: "driver returned no result"}
	case res.Outcome == "":
		res.Outcome = driver.Classify(res.Error)
	}
	if res.Duration <= 0 {
		res.Duration = elapsed
	}
	if !res.Succeeded() && res.Error == "" {
		res.Error = "page creation failed"
	}

	span.SetAttributes(attribute.String("page.outcome", string(res.Outcome)))
	if !res.Succeeded() {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

// dispatchInvite sends the task's invite for a created page. Failures are
// counted and logged; the page stays created.
func (o *Orchestrator) dispatchInvite(ctx context.Context, task *models.Task, page *models.GeneratedPage) {
	storeCtx := context.WithoutCancel(ctx)

	res, err := o.invites.Send(ctx, invites.SendRequest{
		PageID:    page.ID,
		Invitee:   task.ProfileURL,
		Role:      task.InviteRole,
		InvitedBy: task.CreatorProfile,
	})
	sent := err == nil && res != nil && res.Success
	if err := o.store.RecordInviteOutcome(storeCtx, task.ID, sent); err != nil {
		slog.Error("record invite outcome failed", slog.String("task_id", task.ID), slog.Any("error", err))
	}
	if sent {
		return
	}

	msg := "invite failed"
	switch {
	case err != nil:
		msg = err.Error()
	case res != nil && res.Error != "":
		msg = res.Error
	}
	slog.Warn("inline invite failed",
		slog.String("task_id", task.ID),
		slog.String("page_id", page.ID),
		slog.String("error", msg),
	)
}

// finish records the terminal state exactly once.
func (o *Orchestrator) finish(ctx context.Context, task *models.Task, status models.TaskStatus, errMsg string) {
	ok, err := o.store.TransitionTask(ctx, task.ID, models.TaskStatusRunning, status, errMsg)
	if err != nil {
		slog.Error("record task outcome failed", slog.String("task_id", task.ID), slog.Any("error", err))
		return
	}
	if !ok {
		slog.Warn("task left running state elsewhere", slog.String("task_id", task.ID), slog.String("wanted", string(status)))
		return
	}
	if err := o.flags.Clear(ctx, task.ID); err != nil {
		slog.Warn("clear cancel flag failed", slog.String("task_id", task.ID), slog.Any("error", err))
	}

	outcome := audit.OutcomeSuccess
	evType := events.TaskCompleted
	switch status {
	case models.TaskStatusFailed:
		outcome = audit.OutcomeFailure
		evType = events.TaskFailed
	case models.TaskStatusCancelled:
		evType = events.TaskCancelled
	}

	final, _ := o.store.GetTask(ctx, task.ID)
	progress := 0
	attrs := []any{slog.String("task_id", task.ID), slog.String("status", string(status))}
	if final != nil {
		progress = final.Progress
		attrs = append(attrs, slog.Int("pages_created", final.PagesCreated), slog.Int("pages_failed", final.PagesFailed))
	}
	if errMsg != "" {
		attrs = append(attrs, slog.String("error", errMsg))
	}

	o.pdr.Record(ctx, "task."+string(status), map[string]string{"task_id": task.ID}, outcome, task.ID, errMsg)
	o.publish(ctx, events.Event{Type: evType, TaskID: task.ID, Status: string(status), Progress: progress, Message: errMsg})
	slog.Info("task finished", attrs...)
}

func (o *Orchestrator) progress(ctx context.Context, taskID string) int {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil || task == nil {
		return 0
	}
	return task.Progress
}
