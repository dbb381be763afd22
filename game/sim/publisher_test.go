package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestPublisher_DeliversLatestFrame(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	var got []uint64
	p := NewPublisher(func(_ context.Context, f Frame) error {
		mu.Lock()
		got = append(got, f.Tick)
		mu.Unlock()
		return nil
	}, zap.NewNop())

	_, ok := p.Latest()
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	for i := uint64(1); i <= 5; i++ {
		p.Render(Frame{Tick: i})
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1] == 5
	}, time.Second, 5*time.Millisecond)

	f, ok := p.Latest()
	assert.True(t, ok)
	assert.Equal(t, uint64(5), f.Tick)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1], "frames must arrive in order")
	}
}

func TestPublisher_SinkErrorsDoNotStopDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	calls := make(chan uint64, 8)
	p := NewPublisher(func(_ context.Context, f Frame) error {
		calls <- f.Tick
		return errors.New("broadcast down")
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Render(Frame{Tick: 1})
	assert.Equal(t, uint64(1), <-calls)
	p.Render(Frame{Tick: 2})
	assert.Equal(t, uint64(2), <-calls)

	cancel()
	<-done
}
