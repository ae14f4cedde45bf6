package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fentz26/pageforge/internal/efficiency"
	"github.com/fentz26/pageforge/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the pageforge API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// TaskDetail is a task with its pages, as returned by GET /tasks/{id}.
type TaskDetail struct {
	models.Task
	Pages []models.GeneratedPage `json:"pages"`
}

// ListTasks fetches tasks, optionally filtered by status.
func (c *Client) ListTasks(status string) ([]models.Task, error) {
	path := "/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var tasks []models.Task
	if err := c.get(path, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches a single task with its pages.
func (c *Client) GetTask(id string) (*TaskDetail, error) {
	var detail TaskDetail
	if err := c.get("/tasks/"+id, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetTaskLog fetches the audit log of a task.
func (c *Client) GetTaskLog(id string) ([]models.PDREntry, error) {
	var entries []models.PDREntry
	if err := c.get("/tasks/"+id+"/log", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SubmitTask creates a pending task and returns its ID.
func (c *Client) SubmitTask(baseName string, count int, profileURL string) (string, error) {
	body := map[string]any{
		"base_name":   baseName,
		"count":       count,
		"profile_url": profileURL,
	}
	var task models.Task
	if err := c.send(http.MethodPost, "/tasks", body, &task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// StartTask starts a pending task.
func (c *Client) StartTask(id string) error {
	return c.send(http.MethodPost, "/tasks/"+id+"/start", nil, nil)
}

// CancelTask cancels a pending or running task.
func (c *Client) CancelTask(id string) error {
	return c.send(http.MethodPost, "/tasks/"+id+"/cancel", nil, nil)
}

// DeleteTask deletes a finished task.
func (c *Client) DeleteTask(id string) error {
	return c.send(http.MethodDelete, "/tasks/"+id, nil, nil)
}

// Report fetches the efficiency report.
func (c *Client) Report() (*efficiency.Report, error) {
	var r efficiency.Report
	if err := c.get("/report", &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CheckHealth checks if the daemon is healthy
func (c *Client) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var health struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusOK && health.OK, nil
}

func (c *Client) get(path string, out any) error {
	return c.send(http.MethodGet, path, nil, out)
}

func (c *Client) send(method, path string, data, out any) error {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return err
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("API error: %s", apiErr.Message)
		}
		return fmt.Errorf("API error: %s", string(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
