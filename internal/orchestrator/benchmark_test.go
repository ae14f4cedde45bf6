package orchestrator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/fentz26/pageforge/internal/apperr"
	"github.com/fentz26/pageforge/internal/driver"
)

type memArchiver struct {
	kinds []string
}

func (a *memArchiver) Archive(_ context.Context, kind string, v any) (string, error) {
	a.kinds = append(a.kinds, kind)
	return "benchmark/test.json", nil
}

func TestRunBenchmark(t *testing.T) {
	d := &scriptedDriver{script: func(_ context.Context, call int) (*driver.PageResult, error) {
		if call == 2 {
			return &driver.PageResult{Outcome: driver.OutcomeFailed, Error: "too many requests"}, nil
		}
		r := succeed(call)
		r.Duration = 100 * time.Millisecond
		return r, nil
	}}
	arch := &memArchiver{}
	f := newFixture(t, d, WithArchiver(arch))

	res, err := f.o.RunBenchmark(context.Background(), BenchmarkRequest{BaseName: "Bench", Count: 4})
	if err != nil {
		t.Fatalf("RunBenchmark: %v", err)
	}
	if len(res.Pages) != 4 {
		t.Fatalf("expected 4 pages, got %d", len(res.Pages))
	}
	if res.Metrics.PagesCreated != 3 || res.Metrics.Errors != 1 {
		t.Errorf("unexpected metrics %+v", res.Metrics)
	}
	if res.Metrics.SuccessRate != 75 {
		t.Errorf("success rate %.2f", res.Metrics.SuccessRate)
	}
	if res.Pages[0].Duration != 0.1 || res.Pages[2].Success || res.Pages[2].Error == "" {
		t.Errorf("unexpected pages %+v", res.Pages)
	}
	if res.ReportKey != "benchmark/test.json" || len(arch.kinds) != 1 {
		t.Errorf("report not archived: %q %v", res.ReportKey, arch.kinds)
	}

	tasks, _ := f.o.List(context.Background(), "")
	if len(tasks) != 0 {
		t.Errorf("benchmark must not persist tasks, got %d", len(tasks))
	}
	pages, _ := f.store.ListPages(context.Background(), "")
	if len(pages) != 0 {
		t.Errorf("benchmark must not persist pages, got %d", len(pages))
	}
}

func TestRunBenchmarkDefaultsAndBounds(t *testing.T) {
	f := newFixture(t, &scriptedDriver{})
	ctx := context.Background()

	res, err := f.o.RunBenchmark(ctx, BenchmarkRequest{})
	if err != nil {
		t.Fatalf("RunBenchmark: %v", err)
	}
	if res.BaseName != DefaultBenchmarkBaseName || res.Count != DefaultBenchmarkCount {
		t.Errorf("defaults not applied: %+v", res)
	}

	for _, n := range []int{-1, 51} {
		if _, err := f.o.RunBenchmark(ctx, BenchmarkRequest{Count: n}); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("count %d: got %v", n, err)
		}
	}
}

func TestRunBenchmarkSessionAbort(t *testing.T) {
	d := &scriptedDriver{script: func(_ context.Context, call int) (*driver.PageResult, error) {
		return &driver.PageResult{Outcome: driver.OutcomeSessionFailed, Error: "checkpoint required"}, nil
	}}
	f := newFixture(t, d)

	res, err := f.o.RunBenchmark(context.Background(), BenchmarkRequest{Count: 10})
	if err != nil {
		t.Fatalf("RunBenchmark: %v", err)
	}
	if len(res.Pages) != 1 || res.Aborted != "checkpoint required" {
		t.Errorf("expected abort after first page, got %d pages, aborted=%q", len(res.Pages), res.Aborted)
	}
	if res.Metrics.SuccessRate != 0 || res.Metrics.AvgTimePerPage != 0 {
		t.Errorf("unexpected metrics %+v", res.Metrics)
	}
}

func TestRunBenchmarkUsesFactory(t *testing.T) {
	built := &scriptedDriver{}
	var gotOpts driver.Options
	factory := func(opts driver.Options) (driver.Driver, error) {
		gotOpts = opts
		return built, nil
	}
	f := newFixture(t, &scriptedDriver{}, WithDriverFactory(factory))

	res, err := f.o.RunBenchmark(context.Background(), BenchmarkRequest{Count: 2, Headless: true, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("RunBenchmark: %v", err)
	}
	if !gotOpts.Headless || gotOpts.Timeout != 10*time.Second {
		t.Errorf("factory got %+v", gotOpts)
	}
	if built.pageCalls() != 2 || f.driver.pageCalls() != 0 {
		t.Errorf("benchmark used the wrong driver")
	}
	if res.Driver != "scripted" {
		t.Errorf("driver name %q", res.Driver)
	}
}

func TestComputeMetrics(t *testing.T) {
	m := computeMetrics(4, 1, 10)
	if m.AvgTimePerPage != 2.5 || math.Abs(m.SuccessRate-80) > 1e-9 {
		t.Errorf("unexpected metrics %+v", m)
	}
	if z := computeMetrics(0, 0, 0); z.SuccessRate != 0 || z.AvgTimePerPage != 0 {
		t.Errorf("zero denominators: %+v", z)
	}
}
