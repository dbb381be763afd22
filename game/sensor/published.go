package sensor

import (
	"fmt"
	"time"

	"github.com/kasuganosora/desktoppet/game/geom"
)

// Reading is what an out-of-process producer (the overlay) reports. Each
// part carries its own OK flag so partial reports are possible.
type Reading struct {
	Screen    geom.Rect  `json:"screen"`
	ScreenOK  bool       `json:"screen_ok"`
	Cursor    geom.Point `json:"cursor"`
	CursorOK  bool       `json:"cursor_ok"`
	Window    geom.Rect  `json:"window"`
	HasWindow bool       `json:"has_window"`
	WindowOK  bool       `json:"window_ok"`
	At        time.Time  `json:"at"`
}

// Published is a Windowing served from the latest Reading in a Slot.
// Readings older than maxAge count as unavailable.
type Published struct {
	slot   Slot[Reading]
	maxAge time.Duration
	now    func() time.Time
}

func NewPublished(maxAge time.Duration) *Published {
	return &Published{maxAge: maxAge, now: time.Now}
}

// Publish replaces the current reading. A zero At is stamped with the
// current time.
func (p *Published) Publish(r Reading) {
	if r.At.IsZero() {
		r.At = p.now()
	}
	p.slot.Store(r)
}

func (p *Published) Latest() (Reading, bool) { return p.slot.Load() }

func (p *Published) current() (Reading, error) {
	r, ok := p.slot.Load()
	if !ok {
		return Reading{}, ErrUnavailable
	}
	if p.maxAge > 0 {
		if age := p.now().Sub(r.At); age > p.maxAge {
			return Reading{}, fmt.Errorf("%w: reading is %s old", ErrUnavailable, age)
		}
	}
	return r, nil
}

func (p *Published) ScreenBounds() (geom.Rect, error) {
	r, err := p.current()
	if err != nil {
		return geom.Rect{}, err
	}
	if !r.ScreenOK {
		return geom.Rect{}, ErrUnavailable
	}
	return r.Screen, nil
}

func (p *Published) Cursor() (geom.Point, error) {
	r, err := p.current()
	if err != nil {
		return geom.Point{}, err
	}
	if !r.CursorOK {
		return geom.Point{}, ErrUnavailable
	}
	return r.Cursor, nil
}

func (p *Published) ActiveWindow() (geom.Rect, bool, error) {
	r, err := p.current()
	if err != nil {
		return geom.Rect{}, false, err
	}
	if !r.WindowOK {
		return geom.Rect{}, false, ErrUnavailable
	}
	return r.Window, r.HasWindow, nil
}

// Static is a fixed Windowing for headless runs and tests.
type Static struct {
	Screen    geom.Rect
	CursorPos geom.Point
	Window    geom.Rect
	HasWindow bool
}

func (s Static) ScreenBounds() (geom.Rect, error) { return s.Screen, nil }
func (s Static) Cursor() (geom.Point, error)      { return s.CursorPos, nil }
func (s Static) ActiveWindow() (geom.Rect, bool, error) {
	return s.Window, s.HasWindow, nil
}
