// Package audit journals behavior transitions. Recording never blocks the
// tick: entries are queued and written in batches by a background worker.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/desktoppet/cache"
	"github.com/kasuganosora/desktoppet/game/sim"
	"github.com/kasuganosora/desktoppet/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
	// recentLimit bounds the cache list of recent transitions.
	recentLimit = 100
)

// Journal writes transitions to the database, the cache list, or both.
type Journal struct {
	runID  string
	petKey string
	db     *gorm.DB    // optional
	cache  cache.Store // optional
	ch     chan *model.BehaviorTransition
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger

	mu      sync.Mutex
	dropped uint64
}

// New starts a journal for one run of one pet. Either sink may be nil.
func New(db *gorm.DB, store cache.Store, petKey string, logger *zap.Logger) *Journal {
	j := &Journal{
		runID:  uuid.NewString(),
		petKey: petKey,
		db:     db,
		cache:  store,
		ch:     make(chan *model.BehaviorTransition, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	j.wg.Add(1)
	go j.worker()
	return j
}

// RunID identifies this process's entries.
func (j *Journal) RunID() string { return j.runID }

func (j *Journal) recentKey() string { return "pet:journal:" + j.petKey }

// Record implements sim.Journal.
func (j *Journal) Record(t sim.Transition) {
	needsJSON, _ := json.Marshal(t.Needs)
	candJSON, _ := json.Marshal(t.Candidates)
	row := &model.BehaviorTransition{
		RunID:         j.runID,
		PetKey:        j.petKey,
		Tick:          t.Tick,
		Seq:           t.Seq,
		FromBehavior:  t.From,
		ToBehavior:    t.To,
		Reason:        t.Reason,
		Utility:       t.Utility,
		ActiveUtility: t.ActiveUtility,
		Needs:         datatypes.JSON(needsJSON),
		Candidates:    datatypes.JSON(candJSON),
		OccurredAt:    t.At,
	}
	select {
	case j.ch <- row:
	default:
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
		j.logger.Warn("journal queue full, dropping transition", zap.String("to", t.To))
	}
}

// Dropped counts transitions lost to a full queue.
func (j *Journal) Dropped() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Recent returns up to n transitions, newest first. The cache list is
// preferred; the database is queried when no cache is attached.
func (j *Journal) Recent(ctx context.Context, n int) ([]model.BehaviorTransition, error) {
	if n <= 0 {
		n = recentLimit
	}
	if j.cache != nil {
		raw, err := j.cache.LRange(ctx, j.recentKey(), 0, int64(n-1))
		if err != nil {
			return nil, fmt.Errorf("audit: recent: %w", err)
		}
		out := make([]model.BehaviorTransition, 0, len(raw))
		for _, r := range raw {
			var row model.BehaviorTransition
			if err := json.Unmarshal([]byte(r), &row); err != nil {
				continue
			}
			out = append(out, row)
		}
		return out, nil
	}
	if j.db == nil {
		return nil, nil
	}
	var rows []model.BehaviorTransition
	err := j.db.WithContext(ctx).
		Where("pet_key = ?", j.petKey).
		Order("id DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	return rows, nil
}

// Stop flushes queued entries and shuts down the worker. It blocks until
// the worker has finished and is safe to call more than once.
func (j *Journal) Stop(_ context.Context) {
	j.once.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

func (j *Journal) worker() {
	defer j.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.BehaviorTransition, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		j.write(batch)
		batch = batch[:0]
	}

	for {
		select {
		case row := <-j.ch:
			batch = append(batch, row)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-j.stopCh:
			for {
				select {
				case row := <-j.ch:
					batch = append(batch, row)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (j *Journal) write(batch []*model.BehaviorTransition) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if j.db != nil {
		if err := j.db.WithContext(ctx).Create(&batch).Error; err != nil {
			j.logger.Error("journal batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
	}
	if j.cache != nil {
		values := make([]string, 0, len(batch))
		for _, row := range batch {
			b, err := json.Marshal(row)
			if err != nil {
				continue
			}
			values = append(values, string(b))
		}
		if err := j.cache.LPush(ctx, j.recentKey(), values...); err != nil {
			j.logger.Warn("journal cache push failed", zap.Error(err))
			return
		}
		if err := j.cache.LTrim(ctx, j.recentKey(), 0, recentLimit-1); err != nil {
			j.logger.Warn("journal cache trim failed", zap.Error(err))
		}
	}
}
