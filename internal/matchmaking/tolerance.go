package matchmaking

import "time"

// Tolerance is the skill window policy: Base + GrowthPerSecond * wait,
// clamped to Max when Max is positive. The window never shrinks as wait grows.
type Tolerance struct {
	Base            int
	GrowthPerSecond float64
	Max             int
}

// At returns the window for an entry that has waited for wait.
func (t Tolerance) At(wait time.Duration) int {
	if wait < 0 {
		wait = 0
	}
	window := t.Base + int(t.GrowthPerSecond*wait.Seconds())
	if t.Max > 0 && window > t.Max {
		window = t.Max
	}
	return window
}
