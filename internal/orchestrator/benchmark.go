package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fentz26/pageforge/internal/apperr"
	"github.com/fentz26/pageforge/internal/driver"
)

// Benchmark defaults applied to zero request fields.
const (
	DefaultBenchmarkBaseName = "BenchmarkPage"
	DefaultBenchmarkCount    = 5
	DefaultBenchmarkTimeout  = 30 * time.Second
)

// BenchmarkRequest configures a dry run of the page loop.
type BenchmarkRequest struct {
	BaseName string        `json:"base_name"`
	Count    int           `json:"count"`
	Headless bool          `json:"headless"`
	Timeout  time.Duration `json:"timeout"`
}

// BenchmarkPage is the outcome of one benchmark attempt.
type BenchmarkPage struct {
	Sequence int     `json:"sequence"`
	Name     string  `json:"name"`
	PageID   string  `json:"page_id,omitempty"`
	Success  bool    `json:"success"`
	Duration float64 `json:"duration"`
	Error    string  `json:"error,omitempty"`
}

// BenchmarkMetrics aggregates a benchmark run. Times are in seconds.
type BenchmarkMetrics struct {
	PagesCreated   int     `json:"pages_created"`
	Errors         int     `json:"errors"`
	TotalTime      float64 `json:"total_time"`
	AvgTimePerPage float64 `json:"avg_time_per_page"`
	SuccessRate    float64 `json:"success_rate"`
}

// BenchmarkResult is returned by RunBenchmark.
type BenchmarkResult struct {
	BaseName  string           `json:"base_name"`
	Count     int              `json:"count"`
	Driver    string           `json:"driver"`
	Headless  bool             `json:"headless"`
	Pages     []BenchmarkPage  `json:"pages"`
	Metrics   BenchmarkMetrics `json:"metrics"`
	TotalTime float64          `json:"total_time"`
	Aborted   string           `json:"aborted,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	ReportKey string           `json:"report_key,omitempty"`
}

// RunBenchmark runs the page sequence synchronously without persisting any
// task or page. A session failure stops the run early.
func (o *Orchestrator) RunBenchmark(ctx context.Context, req BenchmarkRequest) (*BenchmarkResult, error) {
	req.BaseName = strings.TrimSpace(req.BaseName)
	if req.BaseName == "" {
		req.BaseName = DefaultBenchmarkBaseName
	}
	if req.Count == 0 {
		req.Count = DefaultBenchmarkCount
	}
	if req.Count < 1 || req.Count > o.config.MaxBenchmarkPages {
		return nil, apperr.Validation(fmt.Sprintf("count must be between 1 and %d", o.config.MaxBenchmarkPages))
	}
	if req.Timeout <= 0 {
		req.Timeout = DefaultBenchmarkTimeout
	}

	d := o.driver
	if o.factory != nil {
		built, err := o.factory(driver.Options{Headless: req.Headless, Timeout: req.Timeout})
		if err != nil {
			return nil, fmt.Errorf("build benchmark driver: %w", err)
		}
		d = built
	}

	result := &BenchmarkResult{
		BaseName:  req.BaseName,
		Count:     req.Count,
		Driver:    d.Name(),
		Headless:  req.Headless,
		Pages:     make([]BenchmarkPage, 0, req.Count),
		StartedAt: time.Now().UTC(),
	}

	slog.Info("benchmark started",
		slog.String("base_name", req.BaseName),
		slog.Int("count", req.Count),
		slog.String("driver", d.Name()),
	)

	start := time.Now()
	for i := 0; i < req.Count; i++ {
		if err := ctx.Err(); err != nil {
			result.Aborted = err.Error()
			break
		}
		ident := o.identity.Generate(req.BaseName, i)
		res := o.attempt(ctx, d, ident)

		result.Pages = append(result.Pages, BenchmarkPage{
			Sequence: i,
			Name:     ident.DisplayName,
			PageID:   res.ExternalID,
			Success:  res.Succeeded(),
			Duration: res.Duration.Seconds(),
			Error:    res.Error,
		})
		if res.Succeeded() {
			result.Metrics.PagesCreated++
		} else {
			result.Metrics.Errors++
		}
		if res.Outcome == driver.OutcomeSessionFailed {
			result.Aborted = res.Error
			break
		}
	}

	total := time.Since(start).Seconds()
	result.TotalTime = total
	result.Metrics = computeMetrics(result.Metrics.PagesCreated, result.Metrics.Errors, total)

	key, err := o.archiver.Archive(ctx, "benchmark", result)
	if err != nil {
		slog.Warn("archive benchmark failed", slog.Any("error", err))
	}
	result.ReportKey = key

	slog.Info("benchmark completed",
		slog.Int("pages_created", result.Metrics.PagesCreated),
		slog.Int("errors", result.Metrics.Errors),
		slog.Float64("total_time", total),
	)
	return result, nil
}

// computeMetrics derives averages; each ratio is 0 when its denominator is.
func computeMetrics(created, errors int, total float64) BenchmarkMetrics {
	m := BenchmarkMetrics{PagesCreated: created, Errors: errors, TotalTime: total}
	if created > 0 {
		m.AvgTimePerPage = total / float64(created)
	}
	if attempted := created + errors; attempted > 0 {
		m.SuccessRate = float64(created) / float64(attempted) * 100
	}
	return m
}
