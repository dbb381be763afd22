package behavior

import (
	"math"
	"time"

	"github.com/kasuganosora/desktoppet/game/ai"
	"github.com/kasuganosora/desktoppet/game/geom"
	"github.com/kasuganosora/desktoppet/game/needs"
)

// Built-in behavior ids.
const (
	IDIdle         = "idle"
	IDBeg          = "beg"
	IDSleep        = "sleep"
	IDFollowCursor = "follow_cursor"
	IDWander       = "wander"
	IDPerch        = "perch"
	IDBark         = "bark"
)

// Idle is the unconditional fallback.
func Idle() Definition {
	return &Func{
		Name:  IDIdle,
		Score: Constant(0.05),
		Spec: Profile{
			Duration:      3 * time.Second,
			Interruptible: true,
			Hint:          Hint{Animation: "idle"},
		},
	}
}

// Beg: a hungry pet sits up and begs. It will not be talked out of it
// halfway.
func Beg() Definition {
	return &Func{
		Name:  IDBeg,
		When:  func(c Context) bool { return c.Needs.Hunger > 0.8 },
		Score: func(c Context) float64 { return c.Needs.Hunger },
		Spec: Profile{
			Duration:      4 * time.Second,
			Interruptible: false,
			Hint:          Hint{Animation: "beg"},
		},
	}
}

func Sleep() Definition {
	return &Func{
		Name:  IDSleep,
		When:  func(c Context) bool { return c.Needs.Energy < 0.3 },
		Score: func(c Context) float64 { return 1 - c.Needs.Energy },
		Spec: Profile{
			Duration:      20 * time.Second,
			Interruptible: true,
			Hint:          Hint{Animation: "sleep"},
			Effects:       needs.Rates{Energy: 0.03, Hunger: 0.001},
		},
	}
}

func FollowCursor() Definition {
	return &Func{
		Name: IDFollowCursor,
		When: func(c Context) bool { return c.Needs.Boredom > 0.5 || c.Needs.Affection < 0.4 },
		Score: func(c Context) float64 {
			return 0.8 * math.Max(c.Needs.Boredom, 1-c.Needs.Affection)
		},
		Spec: Profile{
			Duration:      8 * time.Second,
			Interruptible: true,
			Hint:          Hint{Animation: "walk", Movement: MoveFollowCursor},
			Effects:       needs.Rates{Boredom: -0.02, Affection: 0.01, Energy: -0.005},
		},
	}
}

func Wander() Definition {
	return &Func{
		Name:  IDWander,
		When:  func(c Context) bool { return c.Needs.Boredom > 0.3 },
		Score: func(c Context) float64 { return 0.6 * c.Needs.Boredom },
		Spec: Profile{
			Duration:      10 * time.Second,
			Interruptible: true,
			Hint:          Hint{Animation: "walk", Movement: MoveWander},
			Effects:       needs.Rates{Boredom: -0.015, Energy: -0.004},
		},
	}
}

// Perch climbs onto the title bar of the focused window.
func Perch() Definition {
	return &Func{
		Name:  IDPerch,
		When:  func(c Context) bool { return c.Env.HasWindow && c.Needs.Boredom > 0.4 },
		Score: func(c Context) float64 { return 0.5*c.Needs.Boredom + 0.1 },
		Spec: Profile{
			Duration:      12 * time.Second,
			Interruptible: true,
			Hint:          Hint{Animation: "climb", Movement: MoveToWindow},
			Effects:       needs.Rates{Boredom: -0.01},
		},
	}
}

// Bark is a routine: bark once, then nap for five seconds.
func Bark() Definition {
	return &Routine{
		Func: Func{
			Name:  IDBark,
			When:  func(c Context) bool { return c.Needs.Affection < 0.3 },
			Score: func(c Context) float64 { return 0.9 * (1 - c.Needs.Affection) },
			Spec: Profile{
				Duration:      8 * time.Second,
				Interruptible: false,
				Hint:          Hint{Animation: "bark"},
				Effects:       needs.Rates{Energy: 0.01},
			},
		},
		Tree: &ai.BehaviorTree{Root: &ai.MemSequence{
			Key: ScratchPrefix(IDBark) + "seq",
			Children: []ai.Node{
				&ai.Say{Text: "Bork bork!"},
				&ai.Animate{Name: "nap"},
				&ai.Wait{Key: ScratchPrefix(IDBark) + "nap", Duration: 5 * time.Second},
			},
		}},
	}
}

// Builtins returns the standard behaviors with the fallback first.
func Builtins() []Definition {
	return []Definition{Idle(), Beg(), Sleep(), FollowCursor(), Wander(), Perch(), Bark()}
}

// CursorDistance is a convenience for scorers.
func CursorDistance(c Context) float64 { return geom.Distance(c.Position, c.Env.Cursor) }
