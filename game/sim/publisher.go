package sim

import (
	"context"

	"github.com/kasuganosora/desktoppet/game/sensor"
	"go.uber.org/zap"
)

// Publisher is a Renderer that hands frames to a slow sink, such as a
// network broadcast, without blocking the tick. Only the newest frame is
// kept; the sink skips frames it could not keep up with.
type Publisher struct {
	latest sensor.Slot[Frame]
	wake   chan struct{}
	sink   func(context.Context, Frame) error
	logger *zap.Logger
}

func NewPublisher(sink func(context.Context, Frame) error, logger *zap.Logger) *Publisher {
	return &Publisher{
		wake:   make(chan struct{}, 1),
		sink:   sink,
		logger: logger,
	}
}

func (p *Publisher) Render(f Frame) {
	p.latest.Store(f)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Latest returns the most recent frame, if any. Safe for concurrent use.
func (p *Publisher) Latest() (Frame, bool) { return p.latest.Load() }

// Run delivers frames to the sink until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	var last uint64
	sent := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}
		f, ok := p.latest.Load()
		if !ok || (sent && f.Tick == last) || p.sink == nil {
			continue
		}
		last, sent = f.Tick, true
		if err := p.sink(ctx, f); err != nil && ctx.Err() == nil {
			p.logger.Warn("frame publish failed", zap.Uint64("tick", f.Tick), zap.Error(err))
		}
	}
}
