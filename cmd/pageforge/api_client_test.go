package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fentz26/pageforge/internal/models"
)

func withAPI(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	prev := apiAddr
	apiAddr = srv.URL
	t.Cleanup(func() {
		apiAddr = prev
		srv.Close()
	})
}

func TestAPIGetDecodes(t *testing.T) {
	withAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"t1","base_name":"Shop","status":"running","progress":40}]`))
	})

	var tasks []models.Task
	if err := apiGet("/tasks", &tasks); err != nil {
		t.Fatalf("apiGet: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Progress != 40 || tasks[0].Status != models.TaskStatusRunning {
		t.Errorf("unexpected tasks %+v", tasks)
	}
}

func TestAPIErrorUsesMessage(t *testing.T) {
	withAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"invalid_state","message":"task t1 is running; cancel it before deleting"}`))
	})

	err := apiDelete("/tasks/t1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "409 invalid_state") || !strings.Contains(err.Error(), "cancel it before deleting") {
		t.Errorf("unexpected error %q", err)
	}
}

func TestCheckHealthReturnsPayloadOnFailure(t *testing.T) {
	withAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"ok":false,"db":"error","error":"store: database is closed"}`))
	})

	health, err := CheckHealth()
	if err == nil {
		t.Fatal("expected error")
	}
	if health == nil || health.DB != "error" {
		t.Errorf("expected payload alongside error, got %+v", health)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("got %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateID("0123456789"); got != "01234567" {
		t.Errorf("got %q", got)
	}
}
