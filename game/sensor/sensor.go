// Package sensor turns windowing-system queries into immutable environment
// snapshots for the tick loop. Queries that are unavailable fall back to the
// last value seen and mark the snapshot degraded; Sense never fails.
package sensor

import (
	"errors"
	"strings"
	"time"

	"github.com/kasuganosora/desktoppet/game/geom"
	"go.uber.org/zap"
)

// ErrUnavailable is returned by Windowing implementations that cannot answer.
var ErrUnavailable = errors.New("sensor: query unavailable")

// Windowing is the boundary to the windowing system. Every method must
// return promptly; blocking sources are wrapped by a Poller.
type Windowing interface {
	ScreenBounds() (geom.Rect, error)
	Cursor() (geom.Point, error)
	// ActiveWindow reports the foreground window. ok=false with a nil error
	// means there is no foreground window, which is a valid answer.
	ActiveWindow() (rect geom.Rect, ok bool, err error)
}

// Field flags the parts of a snapshot that were served from last-known values.
type Field uint8

const (
	FieldScreen Field = 1 << iota
	FieldCursor
	FieldWindow
)

func (f Field) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&FieldScreen != 0 {
		parts = append(parts, "screen")
	}
	if f&FieldCursor != 0 {
		parts = append(parts, "cursor")
	}
	if f&FieldWindow != 0 {
		parts = append(parts, "active_window")
	}
	return strings.Join(parts, ",")
}

// Snapshot is one tick's view of the environment. It is a value and is
// never mutated after Sense returns it.
type Snapshot struct {
	Screen       geom.Rect  `json:"screen"`
	Cursor       geom.Point `json:"cursor"`
	ActiveWindow geom.Rect  `json:"active_window"`
	HasWindow    bool       `json:"has_window"`
	At           time.Time  `json:"at"`
	Degraded     bool       `json:"degraded"`
	Stale        Field      `json:"stale"`
}

// Sensor polls a Windowing once per tick.
type Sensor struct {
	src    Windowing
	last   Snapshot
	logger *zap.Logger

	degradedSince time.Time
}

// New creates a sensor. fallbackScreen stands in for the screen until the
// first successful query; the cursor starts at its centre.
func New(src Windowing, fallbackScreen geom.Rect, logger *zap.Logger) *Sensor {
	return &Sensor{
		src: src,
		last: Snapshot{
			Screen: fallbackScreen,
			Cursor: fallbackScreen.Center(),
		},
		logger: logger,
	}
}

// Sense builds a snapshot for now.
func (s *Sensor) Sense(now time.Time) Snapshot {
	snap := s.last
	snap.At = now
	snap.Stale = 0

	if r, err := s.src.ScreenBounds(); err == nil && !r.Empty() {
		snap.Screen = r
	} else {
		snap.Stale |= FieldScreen
	}
	if p, err := s.src.Cursor(); err == nil {
		snap.Cursor = p
	} else {
		snap.Stale |= FieldCursor
	}
	if r, ok, err := s.src.ActiveWindow(); err == nil {
		snap.ActiveWindow, snap.HasWindow = r, ok
		if !ok {
			snap.ActiveWindow = geom.Rect{}
		}
	} else {
		snap.Stale |= FieldWindow
	}
	snap.Degraded = snap.Stale != 0

	s.track(snap)
	s.last = snap
	return snap
}

// Last returns the most recent snapshot.
func (s *Sensor) Last() Snapshot { return s.last }

// track logs once when degradation starts and once when it clears.
func (s *Sensor) track(snap Snapshot) {
	switch {
	case snap.Degraded && s.degradedSince.IsZero():
		s.degradedSince = snap.At
		s.logger.Warn("environment sensor degraded, using last-known values",
			zap.Stringer("fields", snap.Stale))
	case !snap.Degraded && !s.degradedSince.IsZero():
		s.logger.Info("environment sensor recovered",
			zap.Duration("degraded_for", snap.At.Sub(s.degradedSince)))
		s.degradedSince = time.Time{}
	}
}
