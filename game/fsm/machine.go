// Package fsm runs the active behavior instance through its lifecycle:
// Starting, Running, Completing and Finished, or Interrupted. It also owns
// the pet's on-screen position.
package fsm

import (
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/desktoppet/game/ai"
	"github.com/kasuganosora/desktoppet/game/behavior"
	"github.com/kasuganosora/desktoppet/game/blackboard"
	"github.com/kasuganosora/desktoppet/game/geom"
)

// ErrActiveNotFinalized is returned by Start while another instance is live.
var ErrActiveNotFinalized = errors.New("fsm: active instance not finalized")

// arriveEpsilon is how close a start position may be to its target before
// the movement is considered already done.
const arriveEpsilon = 1.0

type Phase uint8

const (
	PhaseStarting Phase = iota
	PhaseRunning
	PhaseCompleting
	PhaseFinished
	PhaseInterrupted
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseCompleting:
		return "completing"
	case PhaseFinished:
		return "finished"
	case PhaseInterrupted:
		return "interrupted"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool { return p == PhaseFinished || p == PhaseInterrupted }

// Instance is one execution of a behavior.
type Instance struct {
	Seq       uint64
	Def       behavior.Definition
	StartedAt time.Time
	Elapsed   float64 // seconds of tick time
	Phase     Phase
	Utility   float64 // score when selected

	Target    geom.Point
	HasTarget bool
	// Interrupted is set when the instance was preempted.
	Interrupted bool
	// InterruptDeferred records an interrupt request on a non-interruptible
	// instance. It is reported on the complete intent and the finished hook.
	InterruptDeferred bool

	moving   bool
	progress float64
}

func (i *Instance) ID() string { return i.Def.ID() }

// Progress is the completed fraction in [0,1].
func (i *Instance) Progress() float64 { return i.progress }

// Done reports whether the instance reached a terminal phase.
func (i *Instance) Done() bool { return i.Phase.Terminal() }

// Interruptible reports whether Interrupt would take effect immediately.
func (i *Instance) Interruptible() bool {
	return i.Def.Profile().Interruptible && (i.Phase == PhaseStarting || i.Phase == PhaseRunning)
}

type IntentKind uint8

const (
	IntentStart IntentKind = iota + 1
	IntentComplete
	IntentInterrupt
	IntentCue
)

func (k IntentKind) String() string {
	switch k {
	case IntentStart:
		return "start"
	case IntentComplete:
		return "complete"
	case IntentInterrupt:
		return "interrupt"
	case IntentCue:
		return "cue"
	}
	return "unknown"
}

// Intent is a presentation request for the renderer.
type Intent struct {
	Kind      IntentKind `json:"kind"`
	Behavior  string     `json:"behavior"`
	Animation string     `json:"animation,omitempty"`
	Cue       *ai.Cue    `json:"cue,omitempty"`
	// Deferred marks a completion that swallowed an earlier interrupt.
	Deferred  bool       `json:"deferred,omitempty"`
}

type Config struct {
	WalkSpeed        float64 // pixels per second when a hint gives none
	ApproachDistance float64 // how far short of the cursor to stop
}

// Machine is owned by the tick goroutine.
type Machine struct {
	cfg      Config
	board    *blackboard.Board
	active   *Instance
	pos      geom.Point
	dragging bool
	seq      uint64
	out      []Intent
}

func NewMachine(cfg Config, board *blackboard.Board, start geom.Point) *Machine {
	return &Machine{cfg: cfg, board: board, pos: start}
}

func (m *Machine) SetConfig(cfg Config) { m.cfg = cfg }

func (m *Machine) Active() *Instance { return m.active }

func (m *Machine) Position() geom.Point { return m.pos }

// SetPosition places the pet, e.g. after importing saved state. The next
// Advance clamps it to the screen.
func (m *Machine) SetPosition(p geom.Point) { m.pos = p }

// Start instantiates def. The previous instance must be terminal.
func (m *Machine) Start(def behavior.Definition, utility float64, now time.Time) (*Instance, error) {
	if m.active != nil && !m.active.Done() {
		return nil, fmt.Errorf("%w: %s is %s", ErrActiveNotFinalized, m.active.ID(), m.active.Phase)
	}
	m.Clear()
	m.seq++
	m.active = &Instance{
		Seq:       m.seq,
		Def:       def,
		StartedAt: now,
		Phase:     PhaseStarting,
		Utility:   utility,
	}
	return m.active, nil
}

// Interrupt asks the active instance to stop. It returns true when the
// instance is now Interrupted; a non-interruptible instance records the
// request and keeps running.
func (m *Machine) Interrupt() bool {
	inst := m.active
	if inst == nil || inst.Done() || inst.Phase == PhaseCompleting {
		return false
	}
	if !inst.Def.Profile().Interruptible {
		inst.InterruptDeferred = true
		return false
	}
	inst.Phase = PhaseInterrupted
	inst.Interrupted = true
	m.emit(Intent{Kind: IntentInterrupt, Behavior: inst.ID()})
	return true
}

// Clear discards a terminal instance and its blackboard scratch. It returns
// the discarded instance, or nil when there was nothing to discard.
func (m *Machine) Clear() *Instance {
	inst := m.active
	if inst == nil || !inst.Done() {
		return nil
	}
	m.board.DeletePrefix(behavior.ScratchPrefix(inst.ID()))
	m.active = nil
	return inst
}

func (m *Machine) BeginDrag(p geom.Point) {
	m.dragging = true
	m.pos = p
}

// DragTo moves the pet while held. Ignored when no drag is in progress.
func (m *Machine) DragTo(p geom.Point) {
	if m.dragging {
		m.pos = p
	}
}

func (m *Machine) EndDrag() { m.dragging = false }

func (m *Machine) Dragging() bool { return m.dragging }

// Advance runs one tick. ctx.Position is replaced with the machine's own.
// It returns the intents raised since the previous Advance.
func (m *Machine) Advance(ctx behavior.Context) []Intent {
	screen := ctx.Env.Screen
	m.pos = screen.Clamp(m.pos)
	ctx.Position = m.pos

	if inst := m.active; inst != nil && !inst.Done() {
		switch inst.Phase {
		case PhaseStarting:
			m.begin(inst, ctx)
			m.run(inst, ctx)
		case PhaseRunning:
			m.run(inst, ctx)
		case PhaseCompleting:
			inst.Phase = PhaseFinished
			inst.progress = 1
			m.emit(Intent{
				Kind:      IntentComplete,
				Behavior:  inst.ID(),
				Animation: inst.Def.Profile().Hint.Animation,
				Deferred:  inst.InterruptDeferred,
			})
		}
	}

	out := m.out
	m.out = nil
	return out
}

func (m *Machine) begin(inst *Instance, ctx behavior.Context) {
	hint := inst.Def.Profile().Hint
	if target, ok := m.target(hint.Movement, ctx); ok {
		inst.Target = ctx.Env.Screen.Clamp(target)
		inst.HasTarget = true
		inst.moving = geom.Distance(m.pos, inst.Target) > arriveEpsilon
	}
	inst.Phase = PhaseRunning
	m.emit(Intent{Kind: IntentStart, Behavior: inst.ID(), Animation: hint.Animation})
}

func (m *Machine) run(inst *Instance, ctx behavior.Context) {
	profile := inst.Def.Profile()
	inst.Elapsed += ctx.DT
	done := false

	if inst.HasTarget && !m.dragging {
		if profile.Hint.Movement == behavior.MoveFollowCursor {
			ctx.Position = m.pos
			if t, ok := m.target(behavior.MoveFollowCursor, ctx); ok {
				inst.Target = ctx.Env.Screen.Clamp(t)
			}
		}
		speed := profile.Hint.Speed
		if speed == 0 {
			speed = m.cfg.WalkSpeed
		}
		var arrived bool
		m.pos, arrived = geom.MoveToward(m.pos, inst.Target, speed*ctx.DT)
		m.pos = ctx.Env.Screen.Clamp(m.pos)
		if arrived && inst.moving && profile.Hint.Movement != behavior.MoveFollowCursor {
			done = true
		}
	}

	if stepper, ok := inst.Def.(behavior.Stepper); ok {
		ctx.Position = m.pos
		id := inst.ID()
		status := stepper.Step(ctx, func(c ai.Cue) {
			cue := c
			m.emit(Intent{Kind: IntentCue, Behavior: id, Cue: &cue})
		})
		if status != ai.StatusRunning {
			done = true
		}
	}

	dur := profile.Duration.Seconds()
	if inst.Elapsed >= dur {
		done = true
	}
	inst.progress = min(inst.Elapsed/dur, 1)
	if done {
		inst.Phase = PhaseCompleting
		inst.progress = 1
	}
}

// target picks the movement destination for a hint.
func (m *Machine) target(move behavior.Movement, ctx behavior.Context) (geom.Point, bool) {
	screen := ctx.Env.Screen
	switch move {
	case behavior.MoveToCursor, behavior.MoveFollowCursor:
		return geom.StopShort(ctx.Position, ctx.Env.Cursor, m.cfg.ApproachDistance), true
	case behavior.MoveWander:
		return geom.Point{X: screen.X + screen.W - (ctx.Position.X - screen.X), Y: ctx.Position.Y}, true
	case behavior.MoveToWindow:
		if ctx.Env.HasWindow {
			return ctx.Env.ActiveWindow.TopCenter(), true
		}
	}
	return geom.Point{}, false
}

func (m *Machine) emit(in Intent) { m.out = append(m.out, in) }
