// Package behavior defines what the pet can do. A behavior is a capability
// set: a precondition, a utility score, a profile describing how it runs
// and, optionally, a per-tick step. Definitions are immutable once
// registered in a Catalog.
package behavior

import (
	"time"

	"github.com/kasuganosora/desktoppet/game/ai"
	"github.com/kasuganosora/desktoppet/game/blackboard"
	"github.com/kasuganosora/desktoppet/game/geom"
	"github.com/kasuganosora/desktoppet/game/needs"
	"github.com/kasuganosora/desktoppet/game/sensor"
)

// Movement selects how the state machine picks a movement target.
type Movement uint8

const (
	MoveNone        Movement = iota
	MoveToCursor             // walk to a point short of the cursor, chosen at start
	MoveFollowCursor         // like MoveToCursor, re-aimed every tick
	MoveWander               // walk to the mirror position across the screen
	MoveToWindow             // walk to the top edge of the active window
)

var movementNames = map[Movement]string{
	MoveNone:         "none",
	MoveToCursor:     "to_cursor",
	MoveFollowCursor: "follow_cursor",
	MoveWander:       "wander",
	MoveToWindow:     "to_window",
}

func (m Movement) String() string {
	if s, ok := movementNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMovement is the inverse of Movement.String. Empty means MoveNone.
func ParseMovement(s string) (Movement, bool) {
	if s == "" {
		return MoveNone, true
	}
	for m, name := range movementNames {
		if name == s {
			return m, true
		}
	}
	return MoveNone, false
}

// Hint tells the renderer and the state machine how to present a behavior.
type Hint struct {
	Animation string
	Movement  Movement
	// Speed in pixels per second; zero uses the configured walk speed.
	Speed float64
}

type Profile struct {
	Duration      time.Duration
	Interruptible bool
	Hint          Hint
	// Effects are applied to the needs every second the behavior runs.
	Effects needs.Rates
}

// Context is the read-only view a behavior sees on each tick.
type Context struct {
	Needs    needs.State
	Env      sensor.Snapshot
	Position geom.Point
	DT       float64
	Board    *blackboard.Board
}

// Definition is the capability every behavior provides.
type Definition interface {
	ID() string
	Precondition(ctx Context) bool
	Utility(ctx Context) float64
	Profile() Profile
}

// Stepper is implemented by behaviors with their own per-tick logic. The
// instance completes when Step returns anything other than StatusRunning.
type Stepper interface {
	Step(ctx Context, emit func(ai.Cue)) ai.Status
}

// Conditional reports whether a definition has a precondition at all.
// Only unconditional behaviors may serve as the fallback.
type Conditional interface {
	HasPrecondition() bool
}

// Func is a Definition assembled from Go functions.
type Func struct {
	Name  string
	When  func(Context) bool // nil means always eligible
	Score func(Context) float64
	Spec  Profile
}

func (f *Func) ID() string { return f.Name }

func (f *Func) Precondition(ctx Context) bool {
	return f.When == nil || f.When(ctx)
}

func (f *Func) Utility(ctx Context) float64 {
	if f.Score == nil {
		return 0
	}
	return f.Score(ctx)
}

func (f *Func) Profile() Profile { return f.Spec }

func (f *Func) HasPrecondition() bool { return f.When != nil }

// Constant returns a scorer with a fixed utility.
func Constant(u float64) func(Context) float64 {
	return func(Context) float64 { return u }
}

// Routine is a behavior whose body is a behavior tree. Scratch state of the
// tree lives on the blackboard under "<id>/" keys.
type Routine struct {
	Func
	Tree *ai.BehaviorTree
}

func (r *Routine) Step(ctx Context, emit func(ai.Cue)) ai.Status {
	return r.Tree.Tick(&ai.Context{Board: ctx.Board, DT: ctx.DT, Emit: emit})
}

// ScratchPrefix is the blackboard namespace owned by a behavior.
func ScratchPrefix(id string) string { return id + "/" }
