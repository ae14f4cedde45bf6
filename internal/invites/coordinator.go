// Package invites manages the lifecycle of page invitations: sending them
// through the Automation Driver and resolving them afterwards.
package invites

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fentz26/pageforge/internal/apperr"
	"github.com/fentz26/pageforge/internal/audit"
	"github.com/fentz26/pageforge/internal/driver"
	"github.com/fentz26/pageforge/internal/events"
	"github.com/fentz26/pageforge/internal/models"
	"github.com/fentz26/pageforge/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/fentz26/pageforge/internal/invites")

// Coordinator sends and resolves invites.
type Coordinator struct {
	store       *store.Store
	driver      driver.Driver
	pdr         *audit.PDRWriter
	events      events.Publisher
	defaultRole models.Role
}

// New creates a Coordinator. defaultRole applies when Send is called
// without a role; an empty value means editor.
func New(s *store.Store, d driver.Driver, pdr *audit.PDRWriter, pub events.Publisher, defaultRole models.Role) *Coordinator {
	if defaultRole == "" {
		defaultRole = models.RoleEditor
	}
	if pub == nil {
		pub = events.Noop{}
	}
	return &Coordinator{
		store:       s,
		driver:      d,
		pdr:         pdr,
		events:      pub,
		defaultRole: defaultRole,
	}
}

// SendRequest identifies the page and the profile to invite.
type SendRequest struct {
	PageID    string      `json:"page_id"`
	Invitee   string      `json:"invitee"`
	Role      models.Role `json:"role"`
	InvitedBy string      `json:"invited_by,omitempty"`
}

// SendResult reports an invite attempt. A failed attempt persists nothing.
type SendResult struct {
	Success bool           `json:"success"`
	Invite  *models.Invite `json:"invite,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Send invites a profile to a created page.
func (c *Coordinator) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	req.Invitee = strings.TrimSpace(req.Invitee)
	if req.Invitee == "" {
		return nil, apperr.Validation("invitee is required")
	}
	if req.Role == "" {
		req.Role = c.defaultRole
	}
	req.Role = models.Role(strings.ToLower(string(req.Role)))
	if !req.Role.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("invalid role %q", req.Role))
	}

	page, err := c.store.GetPage(ctx, req.PageID)
	if err != nil {
		return nil, err
	}
	if page == nil || page.Status != models.PageStatusCreated {
		return nil, apperr.NotFound(fmt.Sprintf("page %s not found or not created", req.PageID))
	}

	ctx, span := tracer.Start(ctx, "invites.Send")
	span.SetAttributes(attribute.String("page.id", page.ID), attribute.String("invite.role", string(req.Role)))
	res, err := c.driver.SendInvite(ctx, driver.InviteRequest{
		PageExternalID: page.ExternalID,
		PageName:       page.Name,
		Invitee:        req.Invitee,
		Role:           req.Role,
		InvitedBy:      req.InvitedBy,
	})
	span.End()

	inputs := map[string]any{"page_id": page.ID, "invitee": req.Invitee, "role": req.Role}
	if err != nil || res == nil || !res.Success {
		msg := "driver returned no result"
		switch {
		case err != nil:
			msg = err.Error()
		case res != nil && res.Error != "":
			msg = res.Error
		case res != nil:
			msg = "invite failed"
		}
		c.pdr.Record(ctx, "invite.send", inputs, audit.OutcomeFailure, page.TaskID, msg)
		c.publish(ctx, events.Event{Type: events.InviteFailed, TaskID: page.TaskID, PageID: page.ID, Message: msg})
		slog.Warn("invite failed",
			slog.String("page_id", page.ID),
			slog.String("invitee", req.Invitee),
			slog.String("error", msg),
		)
		return &SendResult{Success: false, Error: msg}, nil
	}

	inv, err := c.store.CreateInvite(ctx, store.NewInvite{
		PageID:     page.ID,
		PageName:   page.Name,
		Invitee:    req.Invitee,
		Role:       req.Role,
		InviteLink: res.InviteLink,
		InvitedBy:  req.InvitedBy,
	})
	if err != nil {
		return nil, err
	}

	c.pdr.Record(ctx, "invite.send", inputs, audit.OutcomeSuccess, page.TaskID, inv.ID)
	c.publish(ctx, events.Event{Type: events.InviteSent, TaskID: page.TaskID, PageID: page.ID, InviteID: inv.ID, Status: string(inv.Status)})
	slog.Info("invite sent",
		slog.String("invite_id", inv.ID),
		slog.String("page_id", page.ID),
		slog.String("role", string(inv.Role)),
	)
	return &SendResult{Success: true, Invite: inv}, nil
}

// Accept marks a pending invite accepted.
func (c *Coordinator) Accept(ctx context.Context, id string) (*models.Invite, error) {
	return c.resolve(ctx, id, models.InviteStatusAccepted)
}

// Decline marks a pending invite declined.
func (c *Coordinator) Decline(ctx context.Context, id string) (*models.Invite, error) {
	return c.resolve(ctx, id, models.InviteStatusDeclined)
}

// Expire marks a pending invite expired.
func (c *Coordinator) Expire(ctx context.Context, id string) (*models.Invite, error) {
	return c.resolve(ctx, id, models.InviteStatusExpired)
}

func (c *Coordinator) resolve(ctx context.Context, id string, to models.InviteStatus) (*models.Invite, error) {
	inv, err := c.store.GetInvite(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperr.NotFound(fmt.Sprintf("invite %s not found", id))
	}
	if inv.Status != models.InviteStatusPending {
		return nil, apperr.InvalidState(fmt.Sprintf("invite %s is %s", id, inv.Status))
	}

	ok, err := c.store.ResolveInvite(ctx, id, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidState(fmt.Sprintf("invite %s was resolved concurrently", id))
	}

	c.pdr.Record(ctx, "invite."+string(to), map[string]string{"invite_id": id}, audit.OutcomeSuccess, "", "")
	return c.store.GetInvite(ctx, id)
}

// ListForPage returns a page's invites in creation order.
func (c *Coordinator) ListForPage(ctx context.Context, pageID string) ([]models.Invite, error) {
	return c.store.ListInvites(ctx, pageID)
}

// ListAll returns every invite in creation order.
func (c *Coordinator) ListAll(ctx context.Context) ([]models.Invite, error) {
	return c.store.ListInvites(ctx, "")
}

// ExpireStale expires pending invites older than maxAge.
func (c *Coordinator) ExpireStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	return c.store.ExpireInvitesBefore(ctx, time.Now().Add(-maxAge))
}

// RunSweeper expires stale invites every interval until ctx is done.
func (c *Coordinator) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.ExpireStale(ctx, maxAge)
			if err != nil {
				slog.Error("invite sweep failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				slog.Info("expired stale invites", slog.Int64("count", n))
			}
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, ev events.Event) {
	if err := c.events.Publish(ctx, ev); err != nil {
		slog.Warn("publish event failed", slog.String("type", string(ev.Type)), slog.Any("error", err))
	}
}
