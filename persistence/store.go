// Package persistence saves and restores the exported simulation state.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kasuganosora/desktoppet/cache"
	"github.com/kasuganosora/desktoppet/game/geom"
	"github.com/kasuganosora/desktoppet/game/needs"
	"github.com/kasuganosora/desktoppet/game/sim"
	"github.com/kasuganosora/desktoppet/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoState is returned by Load when nothing was saved under the key yet.
var ErrNoState = errors.New("persistence: no saved state")

// Store persists sim.State values under a pet key.
type Store interface {
	Save(ctx context.Context, key string, st sim.State) error
	Load(ctx context.Context, key string) (sim.State, error)
}

// ---- database ----

type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore { return &DBStore{db: db} }

func (s *DBStore) Save(ctx context.Context, key string, st sim.State) error {
	raw, err := json.Marshal(st.Needs)
	if err != nil {
		return fmt.Errorf("persistence: encode needs: %w", err)
	}
	row := model.PetState{
		PetKey:  key,
		Needs:   datatypes.JSON(raw),
		X:       st.Position.X,
		Y:       st.Position.Y,
		SavedAt: st.SavedAt,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pet_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"needs", "x", "y", "saved_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("persistence: save %s: %w", key, err)
	}
	return nil
}

func (s *DBStore) Load(ctx context.Context, key string) (sim.State, error) {
	var row model.PetState
	err := s.db.WithContext(ctx).Where("pet_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sim.State{}, ErrNoState
	}
	if err != nil {
		return sim.State{}, fmt.Errorf("persistence: load %s: %w", key, err)
	}
	var n needs.State
	if err := json.Unmarshal(row.Needs, &n); err != nil {
		return sim.State{}, fmt.Errorf("persistence: decode needs of %s: %w", key, err)
	}
	return sim.State{Needs: n, Position: geom.Point{X: row.X, Y: row.Y}, SavedAt: row.SavedAt}, nil
}

// ---- cache ----

// CacheStore keeps the state in a hash, which makes it visible to other
// tools sharing the Redis instance.
type CacheStore struct {
	c      cache.Store
	prefix string
}

func NewCacheStore(c cache.Store) *CacheStore { return &CacheStore{c: c, prefix: "pet:state:"} }

func (s *CacheStore) Save(ctx context.Context, key string, st sim.State) error {
	raw, err := json.Marshal(st.Needs)
	if err != nil {
		return fmt.Errorf("persistence: encode needs: %w", err)
	}
	fields := map[string]string{
		"needs":    string(raw),
		"x":        strconv.FormatFloat(st.Position.X, 'g', -1, 64),
		"y":        strconv.FormatFloat(st.Position.Y, 'g', -1, 64),
		"saved_at": st.SavedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := s.c.HSet(ctx, s.prefix+key, fields); err != nil {
		return fmt.Errorf("persistence: save %s: %w", key, err)
	}
	return nil
}

func (s *CacheStore) Load(ctx context.Context, key string) (sim.State, error) {
	h, err := s.c.HGetAll(ctx, s.prefix+key)
	if err != nil {
		return sim.State{}, fmt.Errorf("persistence: load %s: %w", key, err)
	}
	if len(h) == 0 {
		return sim.State{}, ErrNoState
	}
	var st sim.State
	if err := json.Unmarshal([]byte(h["needs"]), &st.Needs); err != nil {
		return sim.State{}, fmt.Errorf("persistence: decode needs of %s: %w", key, err)
	}
	if st.Position.X, err = strconv.ParseFloat(h["x"], 64); err != nil {
		return sim.State{}, fmt.Errorf("persistence: decode x of %s: %w", key, err)
	}
	if st.Position.Y, err = strconv.ParseFloat(h["y"], 64); err != nil {
		return sim.State{}, fmt.Errorf("persistence: decode y of %s: %w", key, err)
	}
	if st.SavedAt, err = time.Parse(time.RFC3339Nano, h["saved_at"]); err != nil {
		return sim.State{}, fmt.Errorf("persistence: decode saved_at of %s: %w", key, err)
	}
	return st, nil
}

// ---- none ----

// Discard drops saves and never has state. Used with backend "none".
type Discard struct{}

func (Discard) Save(context.Context, string, sim.State) error { return nil }

func (Discard) Load(context.Context, string) (sim.State, error) { return sim.State{}, ErrNoState }
