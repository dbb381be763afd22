// Package scheduler drives the simulation tick loop and the named side
// tasks around it (autosave, debounced reloads).
package scheduler

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks. ctx is cancelled
// when the task is removed, replaced or the scheduler stops.
type TaskFn func(ctx context.Context)

// Scheduler runs named periodic and one-shot tasks. Each task runs on its
// own goroutine; a panicking task is logged and keeps its schedule.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]context.CancelFunc
	timers  map[string]*time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tickers: make(map[string]context.CancelFunc),
		timers:  make(map[string]*time.Timer),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// AddTicker registers fn to run every interval. A task with the same name
// is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if stop, ok := s.tickers[name]; ok {
		stop()
	}
	ctx, stop := context.WithCancel(s.ctx)
	s.tickers[name] = stop

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(ctx, name, fn)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after delay. Re-adding a pending name restarts the
// delay, which makes AddDelay a debouncer.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if old, ok := s.timers[name]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		current := s.timers[name] == t
		if current {
			delete(s.timers, name)
		}
		s.mu.Unlock()
		if current {
			s.run(s.ctx, name, fn)
		}
	})
	s.timers[name] = t
}

func (s *Scheduler) run(ctx context.Context, name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked", zap.String("task", name), zap.Any("recover", r))
		}
	}()
	fn(ctx)
}

// Remove stops and removes a ticker or delay task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.tickers[name]; ok {
		stop()
		delete(s.tickers, name)
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// Stop cancels every task and waits for running ticker goroutines to exit.
// Pending delays are dropped. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
	clear(s.tickers)
	s.mu.Unlock()
	s.wg.Wait()
}

// Pending reports whether a delay task is waiting to fire.
func (s *Scheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[name]
	return ok
}

// ListTickers returns the sorted names of all registered ticker tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
