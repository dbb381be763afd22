// Package needs keeps the pet's internal drives. Every value lives in [0,1]:
// Hunger and Boredom grow over time, Energy and Affection decay.
package needs

import "math"

// State is a value copy of the four needs.
type State struct {
	Hunger    float64 `json:"hunger"`
	Energy    float64 `json:"energy"`
	Boredom   float64 `json:"boredom"`
	Affection float64 `json:"affection"`
}

// Rates are per-second deltas. The same type describes the passive drift
// of the model and the effects a running behavior has on the needs.
type Rates struct {
	Hunger    float64 `json:"hunger" mapstructure:"hunger"`
	Energy    float64 `json:"energy" mapstructure:"energy"`
	Boredom   float64 `json:"boredom" mapstructure:"boredom"`
	Affection float64 `json:"affection" mapstructure:"affection"`
}

// Zero reports whether r changes nothing.
func (r Rates) Zero() bool {
	return r.Hunger == 0 && r.Energy == 0 && r.Boredom == 0 && r.Affection == 0
}

// EventKind is a discrete user interaction that adjusts needs.
type EventKind uint8

const (
	EventFed EventKind = iota + 1
	EventPetted
	EventPlayed
)

func (k EventKind) String() string {
	switch k {
	case EventFed:
		return "fed"
	case EventPetted:
		return "petted"
	case EventPlayed:
		return "played"
	}
	return "unknown"
}

// Model owns the NeedState. It is not safe for concurrent use; only the
// tick goroutine touches it.
type Model struct {
	state State
	rates Rates
}

// NewModel creates a model from initial values (clamped) and drift rates.
func NewModel(initial State, rates Rates) *Model {
	return &Model{state: clampState(initial), rates: rates}
}

// Update advances the needs by dt seconds of passive drift.
func (m *Model) Update(dt float64) {
	m.ApplyRates(m.rates, dt)
}

// ApplyRates adds r*dt to every need. Negative dt is ignored.
func (m *Model) ApplyRates(r Rates, dt float64) {
	if dt <= 0 || math.IsNaN(dt) {
		return
	}
	m.state.Hunger = Clamp(m.state.Hunger + r.Hunger*dt)
	m.state.Energy = Clamp(m.state.Energy + r.Energy*dt)
	m.state.Boredom = Clamp(m.state.Boredom + r.Boredom*dt)
	m.state.Affection = Clamp(m.state.Affection + r.Affection*dt)
}

// ApplyEvent applies a user interaction. magnitude is clamped to [0,1];
// unknown kinds are ignored.
func (m *Model) ApplyEvent(kind EventKind, magnitude float64) {
	mag := Clamp(magnitude)
	s := &m.state
	switch kind {
	case EventFed:
		s.Hunger = Clamp(s.Hunger - mag)
		s.Affection = Clamp(s.Affection + 0.1*mag)
	case EventPetted:
		s.Affection = Clamp(s.Affection + mag)
		s.Boredom = Clamp(s.Boredom - 0.5*mag)
	case EventPlayed:
		s.Boredom = Clamp(s.Boredom - mag)
		s.Energy = Clamp(s.Energy - 0.1*mag)
	}
}

func (m *Model) Snapshot() State { return m.state }

// Restore replaces the state with imported values, clamped.
func (m *Model) Restore(s State) { m.state = clampState(s) }

func (m *Model) Rates() Rates { return m.rates }

// SetRates swaps the passive drift rates.
func (m *Model) SetRates(r Rates) { m.rates = r }

// Clamp limits v to [0,1]. NaN maps to 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func clampState(s State) State {
	return State{
		Hunger:    Clamp(s.Hunger),
		Energy:    Clamp(s.Energy),
		Boredom:   Clamp(s.Boredom),
		Affection: Clamp(s.Affection),
	}
}
