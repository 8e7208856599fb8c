// Package capacity computes the derived fill-level values shown on event
// list items. Pure functions, no state.
package capacity

import "github.com/hallhub/hallhub/internal/model"

// Status classifies how close an event is to capacity.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusFull    Status = "full"
)

// Warning kicks in at this raw fill percentage; full is reaching the
// configured maximum.
const warningThreshold = 75.0

// Percentage returns the fill level for rendering, clamped to [0, 100].
// Unlimited events report 0.
func Percentage(e model.Event) float64 {
	pct := rawPercentage(e)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Of classifies the event's fill level: full at or beyond the maximum,
// warning from 75%, ok below. Unlimited events are always ok.
func Of(e model.Event) Status {
	switch {
	case e.IsFull():
		return StatusFull
	case rawPercentage(e) >= warningThreshold:
		return StatusWarning
	default:
		return StatusOK
	}
}

func rawPercentage(e model.Event) float64 {
	if e.MaxParticipants == nil || *e.MaxParticipants <= 0 {
		return 0
	}
	return 100 * float64(e.CurrentCount) / float64(*e.MaxParticipants)
}
