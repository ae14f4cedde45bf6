package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fentz26/pageforge/internal/driver"
	"github.com/fentz26/pageforge/internal/models"
)

func newSidecar(t *testing.T, handler http.HandlerFunc) *Remote {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	r, err := New(srv.URL, driver.Options{Headless: true, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNewRequiresEndpoint(t *testing.T) {
	if _, err := New("  ", driver.Options{}); err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestCreatePageSuccess(t *testing.T) {
	r := newSidecar(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/pages" || req.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		var body createPageBody
		json.NewDecoder(req.Body).Decode(&body)
		if body.Name != "Acme - Emma Smith" || !body.Headless || body.Gender != "female" {
			t.Errorf("unexpected body %+v", body)
		}
		json.NewEncoder(w).Encode(createPageResponse{Success: true, PageID: "123", PageURL: "https://x/123"})
	})

	res, err := r.CreatePage(context.Background(), driver.CreatePageRequest{DisplayName: "Acme - Emma Smith", Gender: models.GenderFemale})
	if err != nil {
		t.Fatalf("CreatePage: %v", err)
	}
	if !res.Succeeded() || res.ExternalID != "123" || res.URL != "https://x/123" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestCreatePageFailureClassification(t *testing.T) {
	tests := []struct {
		resp createPageResponse
		want driver.Outcome
	}{
		{createPageResponse{Error: "too many requests"}, driver.OutcomeFailed},
		{createPageResponse{Error: "Account blocked"}, driver.OutcomeSessionFailed},
		{createPageResponse{Error: "weird", Category: "session"}, driver.OutcomeSessionFailed},
	}
	for _, tt := range tests {
		resp := tt.resp
		r := newSidecar(t, func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(resp)
		})
		res, err := r.CreatePage(context.Background(), driver.CreatePageRequest{DisplayName: "x"})
		if err != nil {
			t.Fatalf("CreatePage: %v", err)
		}
		if res.Outcome != tt.want || res.Error != resp.Error {
			t.Errorf("%+v: got %+v, want %s", resp, res, tt.want)
		}
	}
}

func TestCreatePageHTTPError(t *testing.T) {
	r := newSidecar(t, func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	if _, err := r.CreatePage(context.Background(), driver.CreatePageRequest{DisplayName: "x"}); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestSendInvite(t *testing.T) {
	r := newSidecar(t, func(w http.ResponseWriter, req *http.Request) {
		var body sendInviteBody
		json.NewDecoder(req.Body).Decode(&body)
		if body.Role != "admin" || body.Invitee != "https://example.com/u/9" {
			t.Errorf("unexpected body %+v", body)
		}
		json.NewEncoder(w).Encode(driver.InviteResult{Success: true, InviteLink: "https://x/invite"})
	})
	res, err := r.SendInvite(context.Background(), driver.InviteRequest{PageExternalID: "1", Invitee: "https://example.com/u/9", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("SendInvite: %v", err)
	}
	if !res.Success || res.InviteLink != "https://x/invite" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHealth(t *testing.T) {
	r := newSidecar(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"healthy":true,"message":"browser ready"}`))
	})
	h, err := r.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !h.Healthy || h.Message != "browser ready" {
		t.Errorf("unexpected health %+v", h)
	}
}
