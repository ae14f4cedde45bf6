package orchestrator

import (
	"context"
	"sync"
)

// pool runs page loops on goroutines, at most max at a time and at most
// one per task.
type pool struct {
	max int
	sem chan struct{}

	mu      sync.Mutex
	active  map[string]struct{}
	running int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newPool(max int) *pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &pool{
		max:    max,
		sem:    make(chan struct{}, max),
		active: make(map[string]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// submit schedules fn for taskID. It returns false if a loop for taskID is
// already queued or running. fn always runs, even after stop, so it can
// observe the cancelled context and record a terminal state.
func (p *pool) submit(taskID string, fn func(ctx context.Context)) bool {
	p.mu.Lock()
	if _, ok := p.active[taskID]; ok {
		p.mu.Unlock()
		return false
	}
	p.active[taskID] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.active, taskID)
			p.mu.Unlock()
		}()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-p.ctx.Done():
		}

		p.mu.Lock()
		p.running++
		p.mu.Unlock()
		defer func() {
			p.mu.Lock()
			p.running--
			p.mu.Unlock()
		}()

		fn(p.ctx)
	}()
	return true
}

// stop cancels every loop and waits for them to record their outcome, or
// for ctx to expire.
func (p *pool) stop(ctx context.Context) error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wait blocks until every submitted loop has returned.
func (p *pool) wait() {
	p.wg.Wait()
}

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Running   int `json:"running"`
	Queued    int `json:"queued"`
	MaxActive int `json:"max_active"`
}

func (p *pool) stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Running:   p.running,
		Queued:    len(p.active) - p.running,
		MaxActive: p.max,
	}
}
