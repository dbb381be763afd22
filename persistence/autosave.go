package persistence

import (
	"context"
	"sync"

	"github.com/kasuganosora/desktoppet/game/sim"
	"go.uber.org/zap"
)

// Autosaver writes the latest simulation state when it changed since the
// last successful save. It is driven by a scheduler ticker and once more
// on shutdown.
type Autosaver struct {
	store  Store
	key    string
	source func() sim.State
	logger *zap.Logger

	mu    sync.Mutex
	last  sim.State
	saved bool
}

func NewAutosaver(store Store, key string, source func() sim.State, logger *zap.Logger) *Autosaver {
	return &Autosaver{store: store, key: key, source: source, logger: logger}
}

// Save persists the current state. It reports whether a write happened.
func (a *Autosaver) Save(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.source()
	if a.saved && st.Needs == a.last.Needs && st.Position == a.last.Position {
		return false, nil
	}
	if err := a.store.Save(ctx, a.key, st); err != nil {
		a.logger.Warn("autosave failed", zap.String("key", a.key), zap.Error(err))
		return false, err
	}
	a.last, a.saved = st, true
	a.logger.Debug("state saved", zap.String("key", a.key))
	return true, nil
}

// Tick adapts Save to a scheduler task.
func (a *Autosaver) Tick(ctx context.Context) { _, _ = a.Save(ctx) }
