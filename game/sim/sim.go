// Package sim is the explicit simulation context of one pet. A Simulation
// owns every piece of mutable pet state and is advanced by a single tick
// goroutine; other goroutines talk to it only through the input inbox, the
// sensor slots and the frame publisher.
package sim

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/kasuganosora/desktoppet/game/behavior"
	"github.com/kasuganosora/desktoppet/game/blackboard"
	"github.com/kasuganosora/desktoppet/game/decision"
	"github.com/kasuganosora/desktoppet/game/fsm"
	"github.com/kasuganosora/desktoppet/game/geom"
	"github.com/kasuganosora/desktoppet/game/input"
	"github.com/kasuganosora/desktoppet/game/needs"
	"github.com/kasuganosora/desktoppet/game/sensor"
	"github.com/kasuganosora/desktoppet/plugin/hook"
	"go.uber.org/zap"
)

// ErrCatalogNotSealed is returned by New for a catalog that was never validated.
var ErrCatalogNotSealed = errors.New("sim: catalog is not sealed")

// Renderer receives one frame per tick. Implementations must not block.
type Renderer interface {
	Render(f Frame)
}

// Journal records behavior transitions. Implementations must not block.
type Journal interface {
	Record(t Transition)
}

// Transition describes one behavior switch.
type Transition struct {
	Tick          uint64
	At            time.Time
	Seq           uint64 // instance sequence of the new behavior
	From          string
	To            string
	Reason        string
	Utility       float64
	ActiveUtility float64
	Needs         needs.State
	Candidates    []decision.Score
}

// Frame is the per-tick output for the renderer boundary.
type Frame struct {
	Tick       uint64       `json:"tick"`
	At         time.Time    `json:"at"`
	BehaviorID string       `json:"behavior"`
	Phase      string       `json:"phase"`
	Position   geom.Point   `json:"position"`
	Progress   float64      `json:"progress"`
	Animation  string       `json:"animation"`
	Mood       needs.Mood   `json:"mood"`
	Dragging   bool         `json:"dragging"`
	Degraded   bool         `json:"degraded"`
	Needs      needs.State  `json:"needs"`
	Intents    []fsm.Intent `json:"intents,omitempty"`
}

// State is the portable part of a simulation: what survives a restart.
type State struct {
	Needs    needs.State `json:"needs"`
	Position geom.Point  `json:"position"`
	SavedAt  time.Time   `json:"saved_at"`
}

// Tuning carries hot-reloadable parameters. It is delivered through the
// inbox so it is applied on the tick goroutine.
type Tuning struct {
	Margin  float64
	Rates   needs.Rates
	Machine fsm.Config
}

type Options struct {
	Catalog *behavior.Catalog // must be sealed
	Sensor  *sensor.Sensor
	Needs   *needs.Model
	Inbox   *input.Inbox
	Margin  float64
	Machine fsm.Config

	// Start is the initial position; nil starts at the screen centre.
	Start *geom.Point

	Renderer Renderer     // optional
	Journal  Journal      // optional
	Hooks    *hook.Center // optional
	Logger   *zap.Logger
}

type Simulation struct {
	catalog *behavior.Catalog
	sensor  *sensor.Sensor
	needs   *needs.Model
	inbox   *input.Inbox
	engine  *decision.Engine
	machine *fsm.Machine
	board   *blackboard.Board

	renderer Renderer
	journal  Journal
	hooks    *hook.Center
	logger   *zap.Logger

	tick  uint64
	state sensor.Slot[State]
}

func New(opts Options) (*Simulation, error) {
	if opts.Catalog == nil || !opts.Catalog.Sealed() {
		return nil, ErrCatalogNotSealed
	}
	if opts.Sensor == nil || opts.Needs == nil || opts.Inbox == nil {
		return nil, errors.New("sim: sensor, needs and inbox are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	start := opts.Sensor.Last().Screen.Center()
	if opts.Start != nil {
		start = *opts.Start
	}
	board := blackboard.New()
	s := &Simulation{
		catalog:  opts.Catalog,
		sensor:   opts.Sensor,
		needs:    opts.Needs,
		inbox:    opts.Inbox,
		engine:   decision.New(opts.Catalog, opts.Margin, logger.Named("decision")),
		machine:  fsm.NewMachine(opts.Machine, board, start),
		board:    board,
		renderer: opts.Renderer,
		journal:  opts.Journal,
		hooks:    opts.Hooks,
		logger:   logger,
	}
	s.state.Store(s.ExportState())
	return s, nil
}

func (s *Simulation) Inbox() *input.Inbox { return s.inbox }

func (s *Simulation) Board() *blackboard.Board { return s.board }

func (s *Simulation) Active() *fsm.Instance { return s.machine.Active() }

func (s *Simulation) Position() geom.Point { return s.machine.Position() }

func (s *Simulation) Needs() needs.State { return s.needs.Snapshot() }

func (s *Simulation) Ticks() uint64 { return s.tick }

// Step adapts Tick to the scheduler loop.
func (s *Simulation) Step(now time.Time, dt time.Duration) {
	s.Tick(now, dt.Seconds())
}

// Tick advances the pet by dt seconds. It never fails; everything that can
// go wrong inside a tick is logged and absorbed.
func (s *Simulation) Tick(now time.Time, dt float64) Frame {
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}
	s.tick++
	env := s.sensor.Sense(now)

	for _, ev := range s.inbox.Drain() {
		s.apply(ev)
	}

	s.needs.Update(dt)
	if inst := s.machine.Active(); inst != nil && !inst.Done() {
		if fx := inst.Def.Profile().Effects; !fx.Zero() {
			s.needs.ApplyRates(fx, dt)
		}
	}

	ctx := behavior.Context{
		Needs:    s.needs.Snapshot(),
		Env:      env,
		Position: s.machine.Position(),
		DT:       dt,
		Board:    s.board,
	}
	d := s.engine.Decide(ctx, s.machine.Active())
	if d.Action == decision.Switch {
		s.switchTo(d, ctx, now)
	}

	intents := s.machine.Advance(ctx)
	frame := s.frame(now, env, intents)
	if s.renderer != nil {
		s.renderer.Render(frame)
	}
	s.state.Store(State{Needs: frame.Needs, Position: frame.Position, SavedAt: now})
	return frame
}

func (s *Simulation) switchTo(d decision.Decision, ctx behavior.Context, now time.Time) {
	prev := s.machine.Active()
	from := ""
	if prev != nil {
		from = prev.ID()
	}
	preemptive := prev != nil && !prev.Done()
	ev := &hook.SwitchEvent{
		From:       from,
		To:         d.Next.ID(),
		Reason:     string(d.Reason),
		Utility:    d.Utility,
		Needs:      ctx.Needs,
		Preemptive: preemptive,
	}

	if preemptive {
		if _, err := s.trigger(hook.BeforeBehaviorSwitch, ev); errors.Is(err, hook.ErrInterrupt) {
			s.logger.Debug("behavior switch vetoed", zap.String("from", from), zap.String("to", ev.To))
			return
		}
		if !s.machine.Interrupt() {
			// Decide only preempts interruptible instances.
			s.logger.Warn("active behavior refused interrupt", zap.String("behavior", from))
			return
		}
	}
	s.finalize(s.machine.Clear())

	inst, err := s.machine.Start(d.Next, d.Utility, now)
	if err != nil {
		s.logger.Error("start behavior", zap.String("behavior", d.Next.ID()), zap.Error(err))
		return
	}
	s.logger.Debug("behavior switched",
		zap.String("from", from),
		zap.String("to", inst.ID()),
		zap.String("reason", string(d.Reason)),
		zap.Float64("utility", d.Utility))

	if s.journal != nil {
		s.journal.Record(Transition{
			Tick:          s.tick,
			At:            now,
			Seq:           inst.Seq,
			From:          from,
			To:            inst.ID(),
			Reason:        string(d.Reason),
			Utility:       d.Utility,
			ActiveUtility: d.ActiveUtility,
			Needs:         ctx.Needs,
			Candidates:    append([]decision.Score(nil), d.Candidates...),
		})
	}
	s.trigger(hook.AfterBehaviorSwitch, ev)
}

func (s *Simulation) finalize(inst *fsm.Instance) {
	if inst == nil {
		return
	}
	s.trigger(hook.OnBehaviorFinished, &hook.FinishedEvent{
		Behavior:          inst.ID(),
		Seq:               inst.Seq,
		Interrupted:       inst.Interrupted,
		InterruptDeferred: inst.InterruptDeferred,
		Elapsed:           time.Duration(inst.Elapsed * float64(time.Second)),
	})
}

func (s *Simulation) apply(ev input.Event) {
	switch ev.Kind {
	case input.KindFeed:
		s.needs.ApplyEvent(needs.EventFed, ev.Magnitude)
	case input.KindPet:
		s.needs.ApplyEvent(needs.EventPetted, ev.Magnitude)
	case input.KindDragStart:
		s.machine.BeginDrag(ev.Point)
	case input.KindDragMove:
		s.machine.DragTo(ev.Point)
	case input.KindDragEnd:
		s.machine.EndDrag()
	case input.KindRetune:
		t, ok := ev.Payload.(Tuning)
		if !ok {
			s.logger.Warn("retune event without tuning payload")
			return
		}
		s.engine.SetMargin(t.Margin)
		s.needs.SetRates(t.Rates)
		s.machine.SetConfig(t.Machine)
		s.logger.Info("simulation retuned", zap.Float64("margin", t.Margin))
	default:
		s.logger.Warn("unknown input event", zap.Stringer("kind", ev.Kind))
		return
	}
	s.trigger(hook.OnUserEvent, &hook.UserEvent{Kind: ev.Kind.String(), Magnitude: ev.Magnitude})
}

func (s *Simulation) trigger(event string, data any) (any, error) {
	if s.hooks == nil || !s.hooks.Has(event) {
		return data, nil
	}
	out, err := s.hooks.Trigger(context.Background(), event, data)
	if err != nil && !errors.Is(err, hook.ErrInterrupt) {
		s.logger.Warn("hook failed", zap.String("event", event), zap.Error(err))
	}
	return out, err
}

func (s *Simulation) frame(now time.Time, env sensor.Snapshot, intents []fsm.Intent) Frame {
	n := s.needs.Snapshot()
	f := Frame{
		Tick:     s.tick,
		At:       now,
		Position: s.machine.Position(),
		Mood:     n.Mood(),
		Dragging: s.machine.Dragging(),
		Degraded: env.Degraded,
		Needs:    n,
		Intents:  intents,
	}
	if inst := s.machine.Active(); inst != nil {
		f.BehaviorID = inst.ID()
		f.Phase = inst.Phase.String()
		f.Progress = inst.Progress()
		f.Animation = inst.Def.Profile().Hint.Animation
	}
	return f
}

// ExportState captures needs and position. Call it from the tick goroutine;
// other goroutines use LatestState.
func (s *Simulation) ExportState() State {
	return State{Needs: s.needs.Snapshot(), Position: s.machine.Position(), SavedAt: time.Now()}
}

// ImportState restores needs and position. Values are clamped: needs to
// [0,1] now, the position to the screen on the next tick. Call it before
// the loop starts.
func (s *Simulation) ImportState(st State) {
	s.needs.Restore(st.Needs)
	s.machine.SetPosition(st.Position)
	s.state.Store(s.ExportState())
}

// LatestState returns the state as of the last tick. Safe for concurrent use.
func (s *Simulation) LatestState() State {
	st, _ := s.state.Load()
	return st
}
