// Package store provides SQLite-backed persistence for pageforge.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/pageforge/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the pageforge SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection also
	// serializes every transaction, which the counter updates rely on.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		base_name TEXT NOT NULL,
		count INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		pages_created INTEGER NOT NULL DEFAULT 0,
		pages_failed INTEGER NOT NULL DEFAULT 0,
		invites_sent INTEGER NOT NULL DEFAULT 0,
		invites_failed INTEGER NOT NULL DEFAULT 0,
		profile_url TEXT NOT NULL DEFAULT '',
		invite_role TEXT NOT NULL DEFAULT '',
		creator_profile TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS pages (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		name TEXT NOT NULL,
		gender TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'creating',
		external_id TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		finished_at DATETIME,
		UNIQUE (task_id, sequence),
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS invites (
		id TEXT PRIMARY KEY,
		page_id TEXT NOT NULL,
		page_name TEXT NOT NULL,
		invitee TEXT NOT NULL,
		role TEXT NOT NULL,
		invite_link TEXT NOT NULL DEFAULT '',
		invited_by TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		accepted_at DATETIME,
		resolved_at DATETIME,
		FOREIGN KEY (page_id) REFERENCES pages(id)
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_pages_task_id ON pages(task_id);
	CREATE INDEX IF NOT EXISTS idx_invites_page_id ON invites(page_id);
	CREATE INDEX IF NOT EXISTS idx_invites_status ON invites(status);
	CREATE INDEX IF NOT EXISTS idx_pdr_task_id ON pdr(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// --- Task Operations ---

// NewTask holds the caller-supplied fields of a task.
type NewTask struct {
	BaseName       string
	Count          int
	ProfileURL     string
	InviteRole     models.Role
	CreatorProfile string
}

const taskColumns = `id, base_name, count, status, pages_created, pages_failed, invites_sent, invites_failed,
	profile_url, invite_role, creator_profile, error_message, created_at, started_at, completed_at`

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&t.ID, &t.BaseName, &t.Count, &t.Status, &t.PagesCreated, &t.PagesFailed,
		&t.InvitesSent, &t.InvitesFailed, &t.ProfileURL, &t.InviteRole, &t.CreatorProfile,
		&t.ErrorMessage, &t.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completedAt)
	t.Progress = t.ComputeProgress()
	return &t, nil
}

// CreateTask inserts a new pending task.
func (s *Store) CreateTask(ctx context.Context, in NewTask) (*models.Task, error) {
	task := &models.Task{
		ID:             uuid.New().String(),
		BaseName:       in.BaseName,
		Count:          in.Count,
		Status:         models.TaskStatusPending,
		ProfileURL:     in.ProfileURL,
		InviteRole:     in.InviteRole,
		CreatorProfile: in.CreatorProfile,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, base_name, count, status, profile_url, invite_role, creator_profile, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.BaseName, task.Count, task.Status, task.ProfileURL, task.InviteRole, task.CreatorProfile, task.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

// GetTask retrieves a task by ID. It returns nil, nil when the task does not exist.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// ListTasks returns all tasks, newest first, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, status models.TaskStatus) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any

	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// TransitionTask moves a task from one status to another only if it is
// currently in from. It reports whether the transition happened.
// Entering running stamps started_at; entering a terminal status stamps
// completed_at and records errMsg.
func (s *Store) TransitionTask(ctx context.Context, id string, from, to models.TaskStatus, errMsg string) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}

	now := time.Now().UTC()
	var (
		result sql.Result
		err    error
	)
	if to == models.TaskStatusRunning {
		result, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
			to, now, id, from,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, completed_at = ?, error_message = ? WHERE id = ? AND status = ?`,
			to, now, errMsg, id, from,
		)
	}
	if err != nil {
		return false, fmt.Errorf("update task status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}

// FailRunningTasks marks every running task failed. It is used at startup
// to close out loops that died with a previous process.
func (s *Store) FailRunningTasks(ctx context.Context, errMsg string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, completed_at = ?, error_message = ? WHERE status = ?`,
		models.TaskStatusFailed, time.Now().UTC(), errMsg, models.TaskStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("fail running tasks: %w", err)
	}
	return result.RowsAffected()
}

// RecordInviteOutcome bumps the task's invites_sent or invites_failed counter.
func (s *Store) RecordInviteOutcome(ctx context.Context, taskID string, sent bool) error {
	column := "invites_failed"
	if sent {
		column = "invites_sent"
	}
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET `+column+` = `+column+` + 1 WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("update invite counter: %w", err)
	}
	return nil
}

// DeleteTask removes a terminal task together with its pages and their
// invites in one transaction. It reports whether a task was deleted.
func (s *Store) DeleteTask(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND status IN (?, ?, ?)`,
		id, models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusCancelled,
	)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM invites WHERE page_id IN (SELECT id FROM pages WHERE task_id = ?)`, id,
	); err != nil {
		return false, fmt.Errorf("delete invites: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE task_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete pages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

// --- Page Operations ---

const pageColumns = `id, task_id, sequence, name, gender, status, external_id, url, error_message,
	duration_ms, created_at, finished_at`

func scanPage(row rowScanner) (*models.GeneratedPage, error) {
	var p models.GeneratedPage
	var finishedAt sql.NullTime
	err := row.Scan(&p.ID, &p.TaskID, &p.Sequence, &p.Name, &p.Gender, &p.Status, &p.ExternalID,
		&p.URL, &p.ErrorMessage, &p.DurationMS, &p.CreatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	p.FinishedAt = timePtr(finishedAt)
	return &p, nil
}

// CreatePage inserts a page record in the creating state.
func (s *Store) CreatePage(ctx context.Context, taskID string, sequence int, name string, gender models.Gender) (*models.GeneratedPage, error) {
	page := &models.GeneratedPage{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Sequence:  sequence,
		Name:      name,
		Gender:    gender,
		Status:    models.PageStatusCreating,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (id, task_id, sequence, name, gender, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		page.ID, page.TaskID, page.Sequence, page.Name, page.Gender, page.Status, page.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert page: %w", err)
	}
	return page, nil
}

// PageOutcome is the terminal result recorded for a page.
type PageOutcome struct {
	Status       models.PageStatus
	ExternalID   string
	URL          string
	ErrorMessage string
	Duration     time.Duration
}

// FinishPage moves a creating page to its terminal status and increments the
// owning task's matching counter in the same transaction, so no reader sees
// the counter ahead of the page row.
func (s *Store) FinishPage(ctx context.Context, pageID string, out PageOutcome) (*models.GeneratedPage, error) {
	var column string
	switch out.Status {
	case models.PageStatusCreated:
		column = "pages_created"
	case models.PageStatusFailed:
		column = "pages_failed"
	default:
		return nil, fmt.Errorf("page outcome must be terminal, got %q", out.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	page, err := scanPage(tx.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, pageID))
	if err != nil {
		return nil, fmt.Errorf("query page: %w", err)
	}
	if page.Status != models.PageStatusCreating {
		return nil, fmt.Errorf("page %s already %s", pageID, page.Status)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE pages SET status = ?, external_id = ?, url = ?, error_message = ?, duration_ms = ?, finished_at = ?
		 WHERE id = ? AND status = ?`,
		out.Status, out.ExternalID, out.URL, out.ErrorMessage, out.Duration.Milliseconds(), now,
		pageID, models.PageStatusCreating,
	)
	if err != nil {
		return nil, fmt.Errorf("update page: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET `+column+` = `+column+` + 1 WHERE id = ? AND pages_created + pages_failed < count`,
		page.TaskID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	page.Status = out.Status
	page.ExternalID = out.ExternalID
	page.URL = out.URL
	page.ErrorMessage = out.ErrorMessage
	page.DurationMS = out.Duration.Milliseconds()
	page.FinishedAt = &now
	return page, nil
}

// GetPage retrieves a page by ID. It returns nil, nil when the page does not exist.
func (s *Store) GetPage(ctx context.Context, id string) (*models.GeneratedPage, error) {
	page, err := scanPage(s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query page: %w", err)
	}
	return page, nil
}

// ListPages returns pages ordered by sequence. An empty taskID lists all pages.
func (s *Store) ListPages(ctx context.Context, taskID string) ([]models.GeneratedPage, error) {
	query := `SELECT ` + pageColumns + ` FROM pages`
	var args []any
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY task_id, sequence`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var pages []models.GeneratedPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, *p)
	}
	return pages, rows.Err()
}

// CountPages returns the number of page records per status.
func (s *Store) CountPages(ctx context.Context) (map[models.PageStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM pages GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.PageStatus]int)
	for rows.Next() {
		var status models.PageStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan page count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- Invite Operations ---

const inviteColumns = `id, page_id, page_name, invitee, role, invite_link, invited_by, status,
	created_at, accepted_at, resolved_at`

func scanInvite(row rowScanner) (*models.Invite, error) {
	var inv models.Invite
	var acceptedAt, resolvedAt sql.NullTime
	err := row.Scan(&inv.ID, &inv.PageID, &inv.PageName, &inv.Invitee, &inv.Role, &inv.InviteLink,
		&inv.InvitedBy, &inv.Status, &inv.CreatedAt, &acceptedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	inv.AcceptedAt = timePtr(acceptedAt)
	inv.ResolvedAt = timePtr(resolvedAt)
	return &inv, nil
}

// NewInvite holds the fields of an invite accepted by the platform.
type NewInvite struct {
	PageID     string
	PageName   string
	Invitee    string
	Role       models.Role
	InviteLink string
	InvitedBy  string
}

// CreateInvite inserts a pending invite.
func (s *Store) CreateInvite(ctx context.Context, in NewInvite) (*models.Invite, error) {
	inv := &models.Invite{
		ID:         uuid.New().String(),
		PageID:     in.PageID,
		PageName:   in.PageName,
		Invitee:    in.Invitee,
		Role:       in.Role,
		InviteLink: in.InviteLink,
		InvitedBy:  in.InvitedBy,
		Status:     models.InviteStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invites (id, page_id, page_name, invitee, role, invite_link, invited_by, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.PageID, inv.PageName, inv.Invitee, inv.Role, inv.InviteLink, inv.InvitedBy, inv.Status, inv.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert invite: %w", err)
	}
	return inv, nil
}

// GetInvite retrieves an invite by ID. It returns nil, nil when the invite does not exist.
func (s *Store) GetInvite(ctx context.Context, id string) (*models.Invite, error) {
	inv, err := scanInvite(s.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query invite: %w", err)
	}
	return inv, nil
}

// ListInvites returns invites in creation order. An empty pageID lists all invites.
func (s *Store) ListInvites(ctx context.Context, pageID string) ([]models.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM invites`
	var args []any
	if pageID != "" {
		query += ` WHERE page_id = ?`
		args = append(args, pageID)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invites: %w", err)
	}
	defer rows.Close()

	var invites []models.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		invites = append(invites, *inv)
	}
	return invites, rows.Err()
}

// ResolveInvite moves a pending invite to a resolved status. It reports
// whether the invite was still pending. Accepting also stamps accepted_at.
func (s *Store) ResolveInvite(ctx context.Context, id string, to models.InviteStatus) (bool, error) {
	if to == models.InviteStatusPending {
		return false, fmt.Errorf("invite cannot be resolved to pending")
	}

	now := time.Now().UTC()
	var acceptedAt any
	if to == models.InviteStatusAccepted {
		acceptedAt = now
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE invites SET status = ?, resolved_at = ?, accepted_at = ? WHERE id = ? AND status = ?`,
		to, now, acceptedAt, id, models.InviteStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("update invite: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}

// ExpireInvitesBefore expires every pending invite created before cutoff.
func (s *Store) ExpireInvitesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invites SET status = ?, resolved_at = ? WHERE status = ? AND created_at < ?`,
		models.InviteStatusExpired, time.Now().UTC(), models.InviteStatusPending, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("expire invites: %w", err)
	}
	return result.RowsAffected()
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(ctx context.Context, action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error) {
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		TaskID:     taskID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pdr (id, action, inputs_hash, outcome, task_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.TaskID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDRForTask returns the decision records of a task in write order.
func (s *Store) ListPDRForTask(ctx context.Context, taskID string) ([]models.PDREntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, inputs_hash, outcome, task_id, details, timestamp FROM pdr
		 WHERE task_id = ? ORDER BY timestamp ASC, rowid ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var tid, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &tid, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.TaskID = tid.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
