package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/pageforge/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTask(t *testing.T, s *Store, count int) *models.Task {
	t.Helper()
	task, err := s.CreateTask(context.Background(), NewTask{BaseName: "Acme", Count: count})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	return task
}

func TestNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestTaskCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.CreateTask(ctx, NewTask{
		BaseName:   "Acme",
		Count:      3,
		ProfileURL: "https://example.com/p/42",
		InviteRole: models.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID == "" {
		t.Error("Task ID should not be empty")
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("Expected status pending, got %s", task.Status)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.BaseName != "Acme" || got.Count != 3 || got.ProfileURL != "https://example.com/p/42" {
		t.Errorf("Unexpected task: %+v", got)
	}
	if got.InviteRole != models.RoleAdmin {
		t.Errorf("Expected role admin, got %s", got.InviteRole)
	}

	missing, err := s.GetTask(ctx, "nope")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for unknown task")
	}

	tasks, err := s.ListTasks(ctx, "")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task, got %d", len(tasks))
	}

	tasks, err = s.ListTasks(ctx, models.TaskStatusCompleted)
	if err != nil {
		t.Fatalf("ListTasks with filter failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Expected 0 completed tasks, got %d", len(tasks))
	}
}

func TestTransitionTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	task := createTask(t, s, 2)

	ok, err := s.TransitionTask(ctx, task.ID, models.TaskStatusPending, models.TaskStatusRunning, "")
	if err != nil || !ok {
		t.Fatalf("pending -> running: ok=%v err=%v", ok, err)
	}

	// A second start loses the conditional update.
	ok, err = s.TransitionTask(ctx, task.ID, models.TaskStatusPending, models.TaskStatusRunning, "")
	if err != nil {
		t.Fatalf("TransitionTask failed: %v", err)
	}
	if ok {
		t.Error("Expected second pending -> running to be rejected")
	}

	got, _ := s.GetTask(ctx, task.ID)
	if got.StartedAt == nil {
		t.Error("started_at should be set")
	}

	ok, err = s.TransitionTask(ctx, task.ID, models.TaskStatusRunning, models.TaskStatusFailed, "session lost")
	if err != nil || !ok {
		t.Fatalf("running -> failed: ok=%v err=%v", ok, err)
	}
	got, _ = s.GetTask(ctx, task.ID)
	if got.CompletedAt == nil || got.ErrorMessage != "session lost" {
		t.Errorf("Unexpected terminal task: %+v", got)
	}

	if _, err := s.TransitionTask(ctx, task.ID, models.TaskStatusFailed, models.TaskStatusRunning, ""); err == nil {
		t.Error("Expected error for illegal transition")
	}
}

func TestConcurrentStartLaunchesOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	task := createTask(t, s, 1)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TransitionTask(ctx, task.ID, models.TaskStatusPending, models.TaskStatusRunning, "")
			if err != nil {
				t.Errorf("TransitionTask failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly 1 winning transition, got %d", wins)
	}
}

func TestFinishPageUpdatesCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	task := createTask(t, s, 2)

	p0, err := s.CreatePage(ctx, task.ID, 0, "Acme - Emma", models.GenderFemale)
	if err != nil {
		t.Fatalf("CreatePage failed: %v", err)
	}
	p1, err := s.CreatePage(ctx, task.ID, 1, "Acme - Liam", models.GenderMale)
	if err != nil {
		t.Fatalf("CreatePage failed: %v", err)
	}

	if _, err := s.CreatePage(ctx, task.ID, 1, "dup", models.GenderMale); err == nil {
		t.Error("Expected unique (task_id, sequence) violation")
	}

	done, err := s.FinishPage(ctx, p0.ID, PageOutcome{
		Status:     models.PageStatusCreated,
		ExternalID: "ext-1",
		URL:        "https://example.com/ext-1",
		Duration:   1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("FinishPage failed: %v", err)
	}
	if done.DurationMS != 1500 || done.FinishedAt == nil {
		t.Errorf("Unexpected finished page: %+v", done)
	}

	if _, err := s.FinishPage(ctx, p1.ID, PageOutcome{Status: models.PageStatusFailed, ErrorMessage: "button missing"}); err != nil {
		t.Fatalf("FinishPage failed: %v", err)
	}

	// A page leaves creating exactly once.
	if _, err := s.FinishPage(ctx, p1.ID, PageOutcome{Status: models.PageStatusCreated}); err == nil {
		t.Error("Expected error finishing a page twice")
	}

	got, _ := s.GetTask(ctx, task.ID)
	if got.PagesCreated != 1 || got.PagesFailed != 1 {
		t.Errorf("Expected 1 created and 1 failed, got %d/%d", got.PagesCreated, got.PagesFailed)
	}
	if got.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", got.Progress)
	}

	pages, err := s.ListPages(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListPages failed: %v", err)
	}
	if len(pages) != 2 || pages[0].Sequence != 0 || pages[1].Sequence != 1 {
		t.Errorf("Unexpected pages: %+v", pages)
	}
	if pages[1].ErrorMessage != "button missing" {
		t.Errorf("Expected error message recorded, got %q", pages[1].ErrorMessage)
	}

	counts, err := s.CountPages(ctx)
	if err != nil {
		t.Fatalf("CountPages failed: %v", err)
	}
	if counts[models.PageStatusCreated] != 1 || counts[models.PageStatusFailed] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	task := createTask(t, s, 1)

	page, _ := s.CreatePage(ctx, task.ID, 0, "Acme - Ava", models.GenderFemale)
	if _, err := s.FinishPage(ctx, page.ID, PageOutcome{Status: models.PageStatusCreated, ExternalID: "x"}); err != nil {
		t.Fatalf("FinishPage failed: %v", err)
	}
	inv, err := s.CreateInvite(ctx, NewInvite{PageID: page.ID, PageName: page.Name, Invitee: "bob", Role: models.RoleEditor})
	if err != nil {
		t.Fatalf("CreateInvite failed: %v", err)
	}

	// Non-terminal tasks are not deleted.
	ok, err := s.DeleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if ok {
		t.Fatal("Expected pending task to survive delete")
	}

	s.TransitionTask(ctx, task.ID, models.TaskStatusPending, models.TaskStatusCancelled, "")
	ok, err = s.DeleteTask(ctx, task.ID)
	if err != nil || !ok {
		t.Fatalf("DeleteTask: ok=%v err=%v", ok, err)
	}

	if got, _ := s.GetPage(ctx, page.ID); got != nil {
		t.Error("Page should be deleted")
	}
	if got, _ := s.GetInvite(ctx, inv.ID); got != nil {
		t.Error("Invite should be deleted")
	}
}

func TestResolveInvite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	inv, err := s.CreateInvite(ctx, NewInvite{PageID: "p1", PageName: "Acme - Mia", Invitee: "alice", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("CreateInvite failed: %v", err)
	}

	ok, err := s.ResolveInvite(ctx, inv.ID, models.InviteStatusAccepted)
	if err != nil || !ok {
		t.Fatalf("ResolveInvite: ok=%v err=%v", ok, err)
	}
	got, _ := s.GetInvite(ctx, inv.ID)
	if got.Status != models.InviteStatusAccepted || got.AcceptedAt == nil || got.ResolvedAt == nil {
		t.Errorf("Unexpected invite: %+v", got)
	}

	ok, err = s.ResolveInvite(ctx, inv.ID, models.InviteStatusDeclined)
	if err != nil {
		t.Fatalf("ResolveInvite failed: %v", err)
	}
	if ok {
		t.Error("Resolved invite should not change again")
	}
}

func TestListInvitesOrderAndExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, who := range []string{"a", "b", "c"} {
		if _, err := s.CreateInvite(ctx, NewInvite{PageID: "p1", PageName: "n", Invitee: who, Role: models.RoleEditor}); err != nil {
			t.Fatalf("CreateInvite failed: %v", err)
		}
	}
	if _, err := s.CreateInvite(ctx, NewInvite{PageID: "p2", PageName: "n", Invitee: "d", Role: models.RoleEditor}); err != nil {
		t.Fatalf("CreateInvite failed: %v", err)
	}

	invites, err := s.ListInvites(ctx, "p1")
	if err != nil {
		t.Fatalf("ListInvites failed: %v", err)
	}
	if len(invites) != 3 {
		t.Fatalf("Expected 3 invites, got %d", len(invites))
	}
	for i, who := range []string{"a", "b", "c"} {
		if invites[i].Invitee != who {
			t.Errorf("invite %d: expected %s, got %s", i, who, invites[i].Invitee)
		}
	}

	n, err := s.ExpireInvitesBefore(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ExpireInvitesBefore failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 expired, got %d", n)
	}
	all, _ := s.ListInvites(ctx, "")
	for _, inv := range all {
		if inv.Status != models.InviteStatusExpired {
			t.Errorf("Expected expired, got %s", inv.Status)
		}
	}
}

func TestFailRunningTasks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	running := createTask(t, s, 1)
	pending := createTask(t, s, 1)
	s.TransitionTask(ctx, running.ID, models.TaskStatusPending, models.TaskStatusRunning, "")

	n, err := s.FailRunningTasks(ctx, "interrupted")
	if err != nil {
		t.Fatalf("FailRunningTasks failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 task failed, got %d", n)
	}
	got, _ := s.GetTask(ctx, running.ID)
	if got.Status != models.TaskStatusFailed || got.ErrorMessage != "interrupted" {
		t.Errorf("Unexpected task: %+v", got)
	}
	got, _ = s.GetTask(ctx, pending.ID)
	if got.Status != models.TaskStatusPending {
		t.Errorf("Pending task should be untouched, got %s", got.Status)
	}
}

func TestPDRForTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, action := range []string{"task.start", "page.failed", "task.complete"} {
		if _, err := s.WritePDR(ctx, action, "hash", "success", "t1", ""); err != nil {
			t.Fatalf("WritePDR failed: %v", err)
		}
	}
	s.WritePDR(ctx, "task.start", "hash", "success", "t2", "")

	entries, err := s.ListPDRForTask(ctx, "t1")
	if err != nil {
		t.Fatalf("ListPDRForTask failed: %v", err)
	}
	if len(entries) != 3 || entries[1].Action != "page.failed" {
		t.Errorf("Unexpected entries: %+v", entries)
	}
}
