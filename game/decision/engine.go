// Package decision picks which behavior the pet should be running. It is a
// utility selector with hysteresis: an interruptible behavior is only
// preempted by a candidate that beats it by the configured margin.
package decision

import (
	"github.com/kasuganosora/desktoppet/game/behavior"
	"github.com/kasuganosora/desktoppet/game/fsm"
	"github.com/kasuganosora/desktoppet/game/needs"
	"go.uber.org/zap"
)

// epsilon absorbs float rounding when comparing a utility gap to the margin.
const epsilon = 1e-9

type Action uint8

const (
	Keep Action = iota
	Switch
)

func (a Action) String() string {
	if a == Switch {
		return "switch"
	}
	return "keep"
}

// Reason explains a decision; it is journaled with every transition.
type Reason string

const (
	ReasonNoActive        Reason = "no_active"
	ReasonCompleted       Reason = "completed"
	ReasonInterrupted     Reason = "interrupted"
	ReasonPreempted       Reason = "preempted"
	ReasonSame            Reason = "same_behavior"
	ReasonCompleting      Reason = "completing"
	ReasonUninterruptible Reason = "uninterruptible"
	ReasonBelowMargin     Reason = "below_margin"
)

type Score struct {
	ID      string  `json:"id"`
	Utility float64 `json:"utility"`
}

type Decision struct {
	Action Action
	// Next and Utility describe the best candidate; set for both actions.
	Next    behavior.Definition
	Utility float64
	// ActiveUtility is the re-scored utility of the active behavior, when
	// one was compared.
	ActiveUtility float64
	Reason        Reason
	// Candidates holds every eligible behavior in registration order. It is
	// reused by the next Decide call.
	Candidates []Score
}

type Engine struct {
	catalog *behavior.Catalog
	margin  float64
	logger  *zap.Logger
	buf     []Score
}

// New creates an Engine over a sealed catalog.
func New(catalog *behavior.Catalog, margin float64, logger *zap.Logger) *Engine {
	return &Engine{catalog: catalog, margin: margin, logger: logger}
}

func (e *Engine) Margin() float64 { return e.margin }

func (e *Engine) SetMargin(m float64) { e.margin = m }

// Decide scores the catalog against ctx and compares the winner with the
// active instance. It never mutates the instance; the caller finalizes the
// old instance before starting Next when Action is Switch.
func (e *Engine) Decide(ctx behavior.Context, active *fsm.Instance) Decision {
	e.buf = e.buf[:0]
	var best behavior.Definition
	bestU := 0.0
	for _, def := range e.catalog.All() {
		if !def.Precondition(ctx) {
			continue
		}
		u := needs.Clamp(def.Utility(ctx))
		e.buf = append(e.buf, Score{ID: def.ID(), Utility: u})
		// strict comparison keeps the earliest registered on ties
		if best == nil || u > bestU {
			best, bestU = def, u
		}
	}
	if best == nil {
		best = e.catalog.Fallback()
		bestU = needs.Clamp(best.Utility(ctx))
		e.logger.Debug("no eligible behavior, using fallback", zap.String("fallback", best.ID()))
	}

	d := Decision{Next: best, Utility: bestU, Candidates: e.buf}
	switch {
	case active == nil:
		d.Action, d.Reason = Switch, ReasonNoActive
	case active.Phase == fsm.PhaseInterrupted:
		d.Action, d.Reason = Switch, ReasonInterrupted
	case active.Phase == fsm.PhaseFinished:
		d.Action, d.Reason = Switch, ReasonCompleted
	case active.Phase == fsm.PhaseCompleting:
		d.Reason = ReasonCompleting
	case best.ID() == active.ID():
		d.Reason = ReasonSame
	case !active.Interruptible():
		d.Reason = ReasonUninterruptible
	default:
		d.ActiveUtility = needs.Clamp(active.Def.Utility(ctx))
		if bestU-d.ActiveUtility >= e.margin-epsilon && bestU > d.ActiveUtility {
			d.Action, d.Reason = Switch, ReasonPreempted
		} else {
			d.Reason = ReasonBelowMargin
		}
	}
	return d
}
