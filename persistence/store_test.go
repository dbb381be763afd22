package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/kasuganosora/desktoppet/game/geom"
	"github.com/kasuganosora/desktoppet/game/needs"
	"github.com/kasuganosora/desktoppet/game/sim"
	"github.com/kasuganosora/desktoppet/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var sample = sim.State{
	Needs:    needs.State{Hunger: 0.42, Energy: 0.1, Boredom: 0.999, Affection: 1.0 / 3},
	Position: geom.Point{X: 123.456, Y: 789.5},
	SavedAt:  time.Date(2024, 5, 6, 7, 8, 9, 123000000, time.UTC),
}

func stores(t *testing.T) map[string]Store {
	c, _ := testutil.SetupTestCache(t)
	return map[string]Store{
		"db":    NewDBStore(testutil.SetupTestDB(t)),
		"cache": NewCacheStore(c),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Load(ctx, "default")
			require.ErrorIs(t, err, ErrNoState)

			require.NoError(t, s.Save(ctx, "default", sample))
			got, err := s.Load(ctx, "default")
			require.NoError(t, err)
			if diff := cmp.Diff(sample, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
				t.Fatalf("round trip (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "default", sample))
			next := sample
			next.Position = geom.Point{X: 1, Y: 2}
			next.Needs.Hunger = 0.9
			require.NoError(t, s.Save(ctx, "default", next))

			got, err := s.Load(ctx, "default")
			require.NoError(t, err)
			assert.Equal(t, next.Position, got.Position)
			assert.Equal(t, 0.9, got.Needs.Hunger)

			// other keys are untouched
			_, err = s.Load(ctx, "other")
			assert.ErrorIs(t, err, ErrNoState)
		})
	}
}

func TestDiscard(t *testing.T) {
	require.NoError(t, Discard{}.Save(context.Background(), "k", sample))
	_, err := Discard{}.Load(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNoState)
}

type countingStore struct {
	saves int
	fail  error
}

func (c *countingStore) Save(context.Context, string, sim.State) error {
	if c.fail != nil {
		return c.fail
	}
	c.saves++
	return nil
}

func (c *countingStore) Load(context.Context, string) (sim.State, error) {
	return sim.State{}, ErrNoState
}

func TestAutosaver_SkipsUnchangedState(t *testing.T) {
	store := &countingStore{}
	cur := sample
	a := NewAutosaver(store, "default", func() sim.State { return cur }, zap.NewNop())
	ctx := context.Background()

	wrote, err := a.Save(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)

	// only the timestamp moved
	cur.SavedAt = cur.SavedAt.Add(time.Minute)
	wrote, _ = a.Save(ctx)
	assert.False(t, wrote)

	cur.Position.X++
	a.Tick(ctx)
	assert.Equal(t, 2, store.saves)
}

func TestAutosaver_RetriesAfterFailure(t *testing.T) {
	store := &countingStore{fail: errors.New("disk full")}
	a := NewAutosaver(store, "default", func() sim.State { return sample }, zap.NewNop())

	_, err := a.Save(context.Background())
	require.Error(t, err)

	store.fail = nil
	wrote, err := a.Save(context.Background())
	require.NoError(t, err)
	assert.True(t, wrote)
}
