package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fentz26/pageforge/internal/apperr"
	"github.com/fentz26/pageforge/internal/invites"
	"github.com/fentz26/pageforge/internal/models"
	"github.com/fentz26/pageforge/internal/orchestrator"
)

// Server provides the HTTP API for pageforge.
type Server struct {
	service *Service
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string) *Server {
	return &Server{
		service: service,
		addr:    addr,
	}
}

// Handler returns the routed handler wrapped in logging and recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Task endpoints
	mux.HandleFunc("/tasks", s.handleTasks)
	mux.HandleFunc("/tasks/", s.handleTaskByID)

	// Page and invite endpoints
	mux.HandleFunc("/pages", s.handlePages)
	mux.HandleFunc("/pages/", s.handlePageByID)
	mux.HandleFunc("/invites", s.handleInvites)
	mux.HandleFunc("/invites/", s.handleInviteByID)

	mux.HandleFunc("/report", s.handleReport)
	mux.HandleFunc("/benchmark", s.handleBenchmark)
	mux.HandleFunc("/health", s.handleHealth)

	return withRecover(logMiddleware(mux))
}

// Start starts the HTTP server. It blocks until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}

	slog.Info("starting pageforge daemon", slog.String("addr", s.addr))
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleTasks handles POST /tasks and GET /tasks
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.submitTask(w, r)
	case http.MethodGet:
		s.listTasks(w, r)
	default:
		methodNotAllowed(w)
	}
}

// handleTaskByID handles /tasks/{id}/*
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	taskID, action, ok := splitID(r.URL.Path, "/tasks/")
	if !ok {
		writeError(w, apperr.Validation("task id required"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		detail, err := s.service.GetTask(r.Context(), taskID)
		respond(w, http.StatusOK, detail, err)
	case action == "" && r.Method == http.MethodDelete:
		if err := s.service.DeleteTask(r.Context(), taskID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case action == "start" && r.Method == http.MethodPost:
		task, err := s.service.StartTask(r.Context(), taskID)
		respond(w, http.StatusAccepted, task, err)
	case action == "cancel" && r.Method == http.MethodPost:
		task, err := s.service.CancelTask(r.Context(), taskID)
		respond(w, http.StatusOK, task, err)
	case action == "log" && r.Method == http.MethodGet:
		entries, err := s.service.TaskLog(r.Context(), taskID)
		respond(w, http.StatusOK, entries, err)
	default:
		notFound(w)
	}
}

// handlePages handles GET /pages?task_id=
func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	pages, err := s.service.ListPages(r.Context(), r.URL.Query().Get("task_id"))
	respond(w, http.StatusOK, pages, err)
}

// handlePageByID handles /pages/{id}/invites
func (s *Server) handlePageByID(w http.ResponseWriter, r *http.Request) {
	pageID, action, ok := splitID(r.URL.Path, "/pages/")
	if !ok || action != "invites" {
		notFound(w)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req invites.SendRequest
		if !decode(w, r, &req) {
			return
		}
		req.PageID = pageID
		res, err := s.service.SendInvite(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusCreated
		if !res.Success {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, res)
	case http.MethodGet:
		list, err := s.service.PageInvites(r.Context(), pageID)
		respond(w, http.StatusOK, list, err)
	default:
		methodNotAllowed(w)
	}
}

// handleInvites handles GET /invites
func (s *Server) handleInvites(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	list, err := s.service.ListInvites(r.Context())
	respond(w, http.StatusOK, list, err)
}

// handleInviteByID handles POST /invites/{id}/accept and /decline
func (s *Server) handleInviteByID(w http.ResponseWriter, r *http.Request) {
	inviteID, action, ok := splitID(r.URL.Path, "/invites/")
	if !ok {
		notFound(w)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var (
		inv *models.Invite
		err error
	)
	switch action {
	case "accept":
		inv, err = s.service.AcceptInvite(r.Context(), inviteID)
	case "decline":
		inv, err = s.service.DeclineInvite(r.Context(), inviteID)
	default:
		notFound(w)
		return
	}
	respond(w, http.StatusOK, inv, err)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	report, err := s.service.Report(r.Context())
	respond(w, http.StatusOK, report, err)
}

type benchmarkRequest struct {
	BaseName   string `json:"base_name"`
	Count      int    `json:"count"`
	Headless   bool   `json:"headless"`
	TimeoutSec int    `json:"timeout_sec"`
}

func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req benchmarkRequest
	if !decode(w, r, &req) {
		return
	}
	if req.TimeoutSec < 0 {
		writeError(w, apperr.Validation("timeout_sec must not be negative"))
		return
	}
	res, err := s.service.Benchmark(r.Context(), orchestrator.BenchmarkRequest{
		BaseName: req.BaseName,
		Count:    req.Count,
		Headless: req.Headless,
		Timeout:  time.Duration(req.TimeoutSec) * time.Second,
	})
	respond(w, http.StatusOK, res, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	health := s.service.Health(r.Context())
	status := http.StatusOK
	if !health.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// submitTask handles POST /tasks.
func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.SubmitRequest
	if !decode(w, r, &req) {
		return
	}
	task, err := s.service.SubmitTask(r.Context(), req)
	respond(w, http.StatusCreated, task, err)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	status := models.TaskStatus(r.URL.Query().Get("status"))
	tasks, err := s.service.ListTasks(r.Context(), status)
	respond(w, http.StatusOK, tasks, err)
}

// --- helpers ---

type errorBody struct {
	Error   apperr.Code `json:"error"`
	Message string      `json:"message"`
}

// splitID splits "/prefix/{id}/{action}".
func splitID(path, prefix string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, prefix), "/"), "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		return "", "", false
	}
	if len(parts) == 2 {
		action = parts[1]
	}
	return parts[0], action, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperr.Validation("invalid json"))
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeValidation:
		status = http.StatusBadRequest
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeInvalidState:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", slog.Any("error", err))
	}
	writeJSON(w, status, errorBody{Error: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", slog.Any("error", err))
	}
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: apperr.CodeNotFound, Message: "not found"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed", Message: "method not allowed"})
}
