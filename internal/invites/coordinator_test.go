package invites

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/pageforge/internal/apperr"
	"github.com/fentz26/pageforge/internal/audit"
	"github.com/fentz26/pageforge/internal/driver"
	"github.com/fentz26/pageforge/internal/events"
	"github.com/fentz26/pageforge/internal/models"
	"github.com/fentz26/pageforge/internal/store"
)

// mockDriver answers invites with a fixed result.
type mockDriver struct {
	mu      sync.Mutex
	result  *driver.InviteResult
	err     error
	invites []driver.InviteRequest
}

func (m *mockDriver) Name() string { return "mock" }

func (m *mockDriver) CreatePage(ctx context.Context, req driver.CreatePageRequest) (*driver.PageResult, error) {
	return &driver.PageResult{Outcome: driver.OutcomeSucceeded, ExternalID: "ext"}, nil
}

func (m *mockDriver) SendInvite(ctx context.Context, req driver.InviteRequest) (*driver.InviteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites = append(m.invites, req)
	return m.result, m.err
}

func (m *mockDriver) Health(ctx context.Context) (*driver.HealthStatus, error) {
	return &driver.HealthStatus{Healthy: true, Driver: "mock"}, nil
}

func setup(t *testing.T, d *mockDriver) (*Coordinator, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "invites.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, d, audit.NewPDRWriter(s), events.Noop{}, ""), s
}

func createPage(t *testing.T, s *store.Store, status models.PageStatus) *models.GeneratedPage {
	t.Helper()
	ctx := context.Background()
	task, err := s.CreateTask(ctx, store.NewTask{BaseName: "Acme", Count: 1})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	page, err := s.CreatePage(ctx, task.ID, 0, "Acme - Emma Smith", models.GenderFemale)
	if err != nil {
		t.Fatalf("CreatePage: %v", err)
	}
	if status == models.PageStatusCreating {
		return page
	}
	page, err = s.FinishPage(ctx, page.ID, store.PageOutcome{Status: status, ExternalID: "ext-1"})
	if err != nil {
		t.Fatalf("FinishPage: %v", err)
	}
	return page
}

func TestSendPersistsOnSuccess(t *testing.T) {
	d := &mockDriver{result: &driver.InviteResult{Success: true, InviteLink: "https://x/inv"}}
	c, s := setup(t, d)
	page := createPage(t, s, models.PageStatusCreated)

	res, err := c.Send(context.Background(), SendRequest{PageID: page.ID, Invitee: " https://example.com/u/1 "})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success || res.Invite == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Invite.Status != models.InviteStatusPending || res.Invite.Role != models.RoleEditor {
		t.Errorf("unexpected invite %+v", res.Invite)
	}
	if res.Invite.Invitee != "https://example.com/u/1" || res.Invite.InviteLink != "https://x/inv" {
		t.Errorf("unexpected invite %+v", res.Invite)
	}
	if d.invites[0].PageExternalID != "ext-1" {
		t.Errorf("driver got external id %q", d.invites[0].PageExternalID)
	}

	list, _ := c.ListForPage(context.Background(), page.ID)
	if len(list) != 1 {
		t.Errorf("expected 1 invite, got %d", len(list))
	}
}

func TestSendFailurePersistsNothing(t *testing.T) {
	tests := []struct {
		name string
		d    *mockDriver
	}{
		{"driver reports failure", &mockDriver{result: &driver.InviteResult{Success: false, Error: "profile not found"}}},
		{"driver error", &mockDriver{err: errors.New("connection refused")}},
		{"failure without detail", &mockDriver{result: &driver.InviteResult{Success: false}}},
		{"no result", &mockDriver{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, s := setup(t, tt.d)
			page := createPage(t, s, models.PageStatusCreated)

			res, err := c.Send(context.Background(), SendRequest{PageID: page.ID, Invitee: "bob", Role: models.RoleAdmin})
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if res.Success || res.Error == "" {
				t.Errorf("expected failure result, got %+v", res)
			}
			all, _ := c.ListAll(context.Background())
			if len(all) != 0 {
				t.Errorf("expected no invites, got %d", len(all))
			}
		})
	}
}

func TestSendRequiresCreatedPage(t *testing.T) {
	d := &mockDriver{result: &driver.InviteResult{Success: true}}
	c, s := setup(t, d)
	ctx := context.Background()

	for _, status := range []models.PageStatus{models.PageStatusCreating, models.PageStatusFailed} {
		page := createPage(t, s, status)
		_, err := c.Send(ctx, SendRequest{PageID: page.ID, Invitee: "bob"})
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("%s page: expected not found, got %v", status, err)
		}
	}
	if _, err := c.Send(ctx, SendRequest{PageID: "missing", Invitee: "bob"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing page: expected not found, got %v", err)
	}
	if len(d.invites) != 0 {
		t.Error("driver should not be called")
	}
}

func TestSendValidation(t *testing.T) {
	c, s := setup(t, &mockDriver{result: &driver.InviteResult{Success: true}})
	page := createPage(t, s, models.PageStatusCreated)
	ctx := context.Background()

	if _, err := c.Send(ctx, SendRequest{PageID: page.ID, Invitee: "  "}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty invitee: got %v", err)
	}
	if _, err := c.Send(ctx, SendRequest{PageID: page.ID, Invitee: "bob", Role: "owner"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad role: got %v", err)
	}
	res, err := c.Send(ctx, SendRequest{PageID: page.ID, Invitee: "bob", Role: "Moderator"})
	if err != nil || res.Invite.Role != models.RoleModerator {
		t.Errorf("mixed-case role: %+v %v", res, err)
	}
}

func TestResolveTransitions(t *testing.T) {
	c, s := setup(t, &mockDriver{result: &driver.InviteResult{Success: true}})
	page := createPage(t, s, models.PageStatusCreated)
	ctx := context.Background()

	send := func() *models.Invite {
		res, err := c.Send(ctx, SendRequest{PageID: page.ID, Invitee: "bob"})
		if err != nil || !res.Success {
			t.Fatalf("Send: %+v %v", res, err)
		}
		return res.Invite
	}

	inv := send()
	accepted, err := c.Accept(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.Status != models.InviteStatusAccepted || accepted.AcceptedAt == nil {
		t.Errorf("unexpected accepted invite %+v", accepted)
	}
	if _, err := c.Decline(ctx, inv.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("decline after accept: got %v", err)
	}

	inv = send()
	declined, err := c.Decline(ctx, inv.ID)
	if err != nil || declined.Status != models.InviteStatusDeclined || declined.AcceptedAt != nil {
		t.Errorf("Decline: %+v %v", declined, err)
	}

	inv = send()
	expired, err := c.Expire(ctx, inv.ID)
	if err != nil || expired.Status != models.InviteStatusExpired {
		t.Errorf("Expire: %+v %v", expired, err)
	}

	if _, err := c.Accept(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("accept missing: got %v", err)
	}

	list, _ := c.ListForPage(ctx, page.ID)
	if len(list) != 3 || list[0].Status != models.InviteStatusAccepted || list[2].Status != models.InviteStatusExpired {
		t.Errorf("unexpected list order: %+v", list)
	}
}

func TestConcurrentAcceptDecline(t *testing.T) {
	c, s := setup(t, &mockDriver{result: &driver.InviteResult{Success: true}})
	page := createPage(t, s, models.PageStatusCreated)
	ctx := context.Background()
	res, _ := c.Send(ctx, SendRequest{PageID: page.ID, Invitee: "bob"})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, fn := range []func(context.Context, string) (*models.Invite, error){c.Accept, c.Decline} {
		wg.Add(1)
		go func(fn func(context.Context, string) (*models.Invite, error)) {
			defer wg.Done()
			_, err := fn(ctx, res.Invite.ID)
			errs <- err
		}(fn)
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInvalidState):
			rejected++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("expected one winner, got ok=%d rejected=%d", ok, rejected)
	}
}

func TestExpireStale(t *testing.T) {
	c, s := setup(t, &mockDriver{result: &driver.InviteResult{Success: true}})
	page := createPage(t, s, models.PageStatusCreated)
	ctx := context.Background()
	c.Send(ctx, SendRequest{PageID: page.ID, Invitee: "bob"})

	n, err := c.ExpireStale(ctx, time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("fresh invite expired: n=%d err=%v", n, err)
	}
	n, err = c.ExpireStale(ctx, -time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("ExpireStale: n=%d err=%v", n, err)
	}
}
