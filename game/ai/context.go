package ai

import "github.com/kasuganosora/desktoppet/game/blackboard"

// Context is passed to every behavior tree node during a tick.
type Context struct {
	Board *blackboard.Board
	DT    float64 // seconds since last tick
	// Emit forwards renderer cues raised by leaf nodes. May be nil.
	Emit func(Cue)
}

// Cue is a presentation request raised by a routine, such as a speech
// bubble or a one-shot animation.
type Cue struct {
	Kind string `json:"kind"` // "say" | "animate"
	Text string `json:"text"`
}

func (c *Context) emit(cue Cue) {
	if c.Emit != nil {
		c.Emit(cue)
	}
}
