package needs

// Mood is a coarse label derived from the needs, shown by the renderer.
type Mood string

const (
	MoodContent Mood = "content"
	MoodHappy   Mood = "happy"
	MoodHungry  Mood = "hungry"
	MoodSleepy  Mood = "sleepy"
	MoodBored   Mood = "bored"
	MoodLonely  Mood = "lonely"
)

// Mood derives the dominant mood. Urgent needs win in a fixed order so the
// result is stable for equal inputs.
func (s State) Mood() Mood {
	switch {
	case s.Hunger > 0.7:
		return MoodHungry
	case s.Energy < 0.25:
		return MoodSleepy
	case s.Affection < 0.3:
		return MoodLonely
	case s.Boredom > 0.6:
		return MoodBored
	case s.Affection > 0.75 && s.Hunger < 0.4:
		return MoodHappy
	}
	return MoodContent
}
