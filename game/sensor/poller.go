package sensor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Poller runs a slow or blocking Windowing off the tick goroutine and
// publishes what it reads.
type Poller struct {
	src      Windowing
	dst      *Published
	interval time.Duration
	logger   *zap.Logger
}

func NewPoller(src Windowing, dst *Published, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{src: src, dst: dst, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce()
		}
	}
}

// PollOnce performs a single read-and-publish.
func (p *Poller) PollOnce() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("windowing poll panicked", zap.Any("recover", r))
		}
	}()

	var r Reading
	var err error
	if r.Screen, err = p.src.ScreenBounds(); err == nil {
		r.ScreenOK = true
	}
	if r.Cursor, err = p.src.Cursor(); err == nil {
		r.CursorOK = true
	}
	if r.Window, r.HasWindow, err = p.src.ActiveWindow(); err == nil {
		r.WindowOK = true
	}
	p.dst.Publish(r)
}
