package ai

import "time"

// Status is the result of a behavior tree node tick.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusRunning:
		return "running"
	}
	return "unknown"
}

// Node is a single node in a behavior tree.
type Node interface {
	Tick(ctx *Context) Status
}

// ---- Composite nodes ----

// Selector succeeds as soon as one child succeeds (logical OR).
type Selector struct {
	Children []Node
}

func (s *Selector) Tick(ctx *Context) Status {
	for _, c := range s.Children {
		switch c.Tick(ctx) {
		case StatusSuccess:
			return StatusSuccess
		case StatusRunning:
			return StatusRunning
		}
	}
	return StatusFailure
}

// Sequence succeeds only when all children succeed (logical AND).
// It re-evaluates from the first child every tick.
type Sequence struct {
	Children []Node
}

func (s *Sequence) Tick(ctx *Context) Status {
	for _, c := range s.Children {
		switch c.Tick(ctx) {
		case StatusFailure:
			return StatusFailure
		case StatusRunning:
			return StatusRunning
		}
	}
	return StatusSuccess
}

// MemSequence is a Sequence that resumes at the child that was running on
// the previous tick. The cursor lives on the blackboard under Key, so
// finished children are not ticked again.
type MemSequence struct {
	Key      string
	Children []Node
}

func (s *MemSequence) Tick(ctx *Context) Status {
	for i := ctx.Board.Int(s.Key, 0); i < len(s.Children); i++ {
		switch s.Children[i].Tick(ctx) {
		case StatusFailure:
			ctx.Board.Delete(s.Key)
			return StatusFailure
		case StatusRunning:
			ctx.Board.Set(s.Key, i)
			return StatusRunning
		}
	}
	ctx.Board.Delete(s.Key)
	return StatusSuccess
}

// ---- Leaf nodes ----

// ConditionNode evaluates a boolean predicate.
type ConditionNode struct {
	Fn func(*Context) bool
}

func (cn *ConditionNode) Tick(ctx *Context) Status {
	if cn.Fn(ctx) {
		return StatusSuccess
	}
	return StatusFailure
}

// ActionNode executes an action and returns its status.
type ActionNode struct {
	Fn func(*Context) Status
}

func (an *ActionNode) Tick(ctx *Context) Status {
	return an.Fn(ctx)
}

// Say emits a speech cue and succeeds.
type Say struct {
	Text string
}

func (s *Say) Tick(ctx *Context) Status {
	ctx.emit(Cue{Kind: "say", Text: s.Text})
	return StatusSuccess
}

// Animate emits a one-shot animation cue and succeeds.
type Animate struct {
	Name string
}

func (a *Animate) Tick(ctx *Context) Status {
	ctx.emit(Cue{Kind: "animate", Text: a.Name})
	return StatusSuccess
}

// Wait stays Running until Duration of tick time has passed. The remaining
// time is kept on the blackboard under Key.
type Wait struct {
	Key      string
	Duration time.Duration
}

func (w *Wait) Tick(ctx *Context) Status {
	remaining := ctx.Board.Float(w.Key, w.Duration.Seconds())
	remaining -= ctx.DT
	if remaining <= 0 {
		ctx.Board.Delete(w.Key)
		return StatusSuccess
	}
	ctx.Board.Set(w.Key, remaining)
	return StatusRunning
}

// ---- Decorator nodes ----

// Inverter negates the result of its child.
type Inverter struct {
	Child Node
}

func (i *Inverter) Tick(ctx *Context) Status {
	switch i.Child.Tick(ctx) {
	case StatusSuccess:
		return StatusFailure
	case StatusFailure:
		return StatusSuccess
	default:
		return StatusRunning
	}
}

// Repeat re-runs its child after each success. Times <= 0 repeats forever;
// otherwise Repeat succeeds after Times successes. A child failure ends the
// loop with failure. The completed count lives on the blackboard under Key.
type Repeat struct {
	Key   string
	Times int
	Child Node
}

func (r *Repeat) Tick(ctx *Context) Status {
	switch r.Child.Tick(ctx) {
	case StatusRunning:
		return StatusRunning
	case StatusFailure:
		ctx.Board.Delete(r.Key)
		return StatusFailure
	}
	if r.Times <= 0 {
		return StatusRunning
	}
	done := ctx.Board.Int(r.Key, 0) + 1
	if done >= r.Times {
		ctx.Board.Delete(r.Key)
		return StatusSuccess
	}
	ctx.Board.Set(r.Key, done)
	return StatusRunning
}

// ---- BehaviorTree root ----

// BehaviorTree wraps the root node.
type BehaviorTree struct {
	Root Node
}

// Tick runs one frame of the behavior tree.
func (bt *BehaviorTree) Tick(ctx *Context) Status {
	if bt.Root == nil {
		return StatusFailure
	}
	return bt.Root.Tick(ctx)
}
