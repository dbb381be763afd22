package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/desktoppet/game/decision"
	"github.com/kasuganosora/desktoppet/game/needs"
	"github.com/kasuganosora/desktoppet/game/sim"
	"github.com/kasuganosora/desktoppet/model"
	"github.com/kasuganosora/desktoppet/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func transition(tick uint64, from, to string) sim.Transition {
	return sim.Transition{
		Tick:       tick,
		At:         time.Date(2024, 1, 1, 0, 0, int(tick), 0, time.UTC),
		Seq:        tick,
		From:       from,
		To:         to,
		Reason:     "preempted",
		Utility:    0.72,
		Needs:      needs.State{Hunger: 0.3, Boredom: 0.9},
		Candidates: []decision.Score{{ID: "idle", Utility: 0.05}, {ID: to, Utility: 0.72}},
	}
}

func TestNew_RunID(t *testing.T) {
	j := New(nil, nil, "default", nop())
	defer j.Stop(context.Background())
	_, err := uuid.Parse(j.RunID())
	assert.NoError(t, err)
}

func TestRecord_FlushedToDatabaseOnStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	j := New(db, nil, "default", nop())

	j.Record(transition(1, "", "idle"))
	j.Record(transition(2, "idle", "follow_cursor"))
	j.Stop(context.Background())

	var rows []model.BehaviorTransition
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, j.RunID(), rows[1].RunID)
	assert.Equal(t, "default", rows[1].PetKey)
	assert.Equal(t, "idle", rows[1].FromBehavior)
	assert.Equal(t, "follow_cursor", rows[1].ToBehavior)
	assert.Equal(t, "preempted", rows[1].Reason)
	assert.JSONEq(t, `{"hunger":0.3,"energy":0,"boredom":0.9,"affection":0}`, string(rows[1].Needs))
	assert.JSONEq(t, `[{"id":"idle","utility":0.05},{"id":"follow_cursor","utility":0.72}]`, string(rows[1].Candidates))
}

func TestRecord_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	j := New(db, nil, "default", nop())
	for i := 0; i < batchSize; i++ {
		j.Record(transition(uint64(i), "idle", "wander"))
	}
	j.Stop(context.Background())

	var count int64
	db.Model(&model.BehaviorTransition{}).Count(&count)
	assert.Equal(t, int64(batchSize), count)
}

func TestRecent_FromDatabase(t *testing.T) {
	db := testutil.SetupTestDB(t)
	j := New(db, nil, "default", nop())
	for i := 1; i <= 5; i++ {
		j.Record(transition(uint64(i), "idle", "wander"))
	}
	j.Stop(context.Background())

	rows, err := j.Recent(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, uint64(5), rows[0].Tick, "newest first")
}

func TestRecent_FromCacheIsBounded(t *testing.T) {
	store, _ := testutil.SetupTestCache(t)
	j := New(nil, store, "default", nop())
	for i := 1; i <= recentLimit+20; i++ {
		j.Record(transition(uint64(i), "idle", "wander"))
	}
	j.Stop(context.Background())

	rows, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, rows, recentLimit)
	assert.Equal(t, uint64(recentLimit+20), rows[0].Tick)

	raw, _ := store.LRange(context.Background(), "pet:journal:default", 0, -1)
	assert.Len(t, raw, recentLimit)
}

func TestRecord_DropsWhenFull(t *testing.T) {
	j := &Journal{ch: make(chan *model.BehaviorTransition, 1), logger: nop()}
	j.Record(transition(1, "", "idle"))
	j.Record(transition(2, "idle", "wander"))
	assert.Equal(t, uint64(1), j.Dropped())
}

func TestStop_Idempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	j := New(nil, nil, "default", nop())
	j.Stop(context.Background())
	j.Stop(context.Background())
}
