// Package efficiency folds stored tasks and pages into summary statistics.
package efficiency

import (
	"context"
	"time"

	"github.com/fentz26/pageforge/internal/models"
	"golang.org/x/sync/errgroup"
)

// Source is the read side the aggregator needs.
type Source interface {
	ListTasks(ctx context.Context, status models.TaskStatus) ([]models.Task, error)
	CountPages(ctx context.Context) (map[models.PageStatus]int, error)
}

// Report summarizes every task in the store.
type Report struct {
	TotalTasks      int                       `json:"total_tasks"`
	TotalPages      int                       `json:"total_pages"`
	PagesCreated    int                       `json:"pages_created"`
	PagesFailed     int                       `json:"pages_failed"`
	SuccessRate     float64                   `json:"success_rate"`
	AvgPagesPerTask float64                   `json:"avg_pages_per_task"`
	TasksByStatus   map[models.TaskStatus]int `json:"tasks_by_status"`
	InvitesSent     int                       `json:"invites_sent"`
	InvitesFailed   int                       `json:"invites_failed"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}

// Aggregator computes reports.
type Aggregator struct {
	src Source
	now func() time.Time
}

// New creates an Aggregator over src.
func New(src Source) *Aggregator {
	return &Aggregator{src: src, now: time.Now}
}

// Report scans tasks and page counts concurrently. The two reads are not
// taken in one transaction, so a report built while tasks run may mix
// slightly different snapshots.
func (a *Aggregator) Report(ctx context.Context) (*Report, error) {
	var (
		tasks  []models.Task
		counts map[models.PageStatus]int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = a.src.ListTasks(gctx, "")
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = a.src.CountPages(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := Fold(tasks, counts)
	r.GeneratedAt = a.now().UTC()
	return r, nil
}

// Fold builds a report from a task scan and per-status page counts.
func Fold(tasks []models.Task, counts map[models.PageStatus]int) *Report {
	r := &Report{
		TotalTasks:    len(tasks),
		TasksByStatus: make(map[models.TaskStatus]int),
	}
	for _, t := range tasks {
		r.PagesCreated += t.PagesCreated
		r.PagesFailed += t.PagesFailed
		r.InvitesSent += t.InvitesSent
		r.InvitesFailed += t.InvitesFailed
		r.TasksByStatus[t.Status]++
	}
	for _, n := range counts {
		r.TotalPages += n
	}

	if attempted := r.PagesCreated + r.PagesFailed; attempted > 0 {
		r.SuccessRate = float64(r.PagesCreated) / float64(attempted) * 100
	}
	if r.TotalTasks > 0 {
		r.AvgPagesPerTask = float64(r.TotalPages) / float64(r.TotalTasks)
	}
	return r
}
