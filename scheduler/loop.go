package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StepFn advances the simulation by dt at wall time now.
type StepFn func(now time.Time, dt time.Duration)

// Loop calls a step function at a fixed rate. dt is the measured time since
// the previous tick, capped at maxDelta so a stalled process catches up
// with one clamped tick instead of a burst.
type Loop struct {
	interval time.Duration
	maxDelta time.Duration
	step     StepFn
	clock    func() time.Time
	logger   *zap.Logger

	last     time.Time
	ticks    atomic.Uint64
	overruns atomic.Uint64
	panics   atomic.Uint64
}

type LoopOption func(*Loop)

// WithClock replaces time.Now for measuring step duration.
func WithClock(now func() time.Time) LoopOption {
	return func(l *Loop) { l.clock = now }
}

func NewLoop(tickRate int, maxDelta time.Duration, step StepFn, logger *zap.Logger, opts ...LoopOption) *Loop {
	if tickRate <= 0 {
		tickRate = 30
	}
	interval := time.Second / time.Duration(tickRate)
	if maxDelta < interval {
		maxDelta = interval
	}
	l := &Loop{
		interval: interval,
		maxDelta: maxDelta,
		step:     step,
		clock:    time.Now,
		logger:   logger,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Loop) Interval() time.Duration { return l.interval }

func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Overruns counts ticks whose step took longer than the interval.
func (l *Loop) Overruns() uint64 { return l.overruns.Load() }

// Panics counts steps that panicked.
func (l *Loop) Panics() uint64 { return l.panics.Load() }

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	l.logger.Info("tick loop started", zap.Duration("interval", l.interval))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("tick loop stopped", zap.Uint64("ticks", l.Ticks()), zap.Uint64("overruns", l.Overruns()))
			return nil
		case now := <-ticker.C:
			l.Advance(now)
		}
	}
}

// Advance runs one tick at now. Run calls it from the ticker; tests call it
// directly with synthetic times.
func (l *Loop) Advance(now time.Time) {
	dt := l.interval
	if !l.last.IsZero() {
		dt = now.Sub(l.last)
	}
	l.last = now
	switch {
	case dt < 0:
		dt = 0
	case dt > l.maxDelta:
		l.logger.Debug("tick delta clamped", zap.Duration("measured", dt), zap.Duration("max", l.maxDelta))
		dt = l.maxDelta
	}

	started := l.clock()
	l.safeStep(now, dt)
	took := l.clock().Sub(started)
	l.ticks.Add(1)

	if took > l.interval {
		l.overruns.Add(1)
		l.logger.Warn("tick overran its budget", zap.Duration("took", took), zap.Duration("budget", l.interval))
	}
}

func (l *Loop) safeStep(now time.Time, dt time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.logger.Error("tick panicked", zap.Any("recover", r), zap.Stack("stack"))
		}
	}()
	l.step(now, dt)
}
