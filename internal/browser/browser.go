// Package browser implements the swipeable one-event-at-a-time card
// viewer as a pure state machine. It owns the position over a filtered,
// date-sorted event subset and the animation rest/transition state; the
// rendering layer subscribes to the transition descriptors it emits and
// reports completion back via Complete.
package browser

import (
	"math"
	"strings"
	"time"

	"github.com/hallhub/hallhub/internal/model"
)

// Gesture and animation tuning. CommitThreshold is the horizontal
// displacement (logical pixels) a release must exceed to commit a card
// change; the displacement must also dominate the vertical axis.
const (
	CommitThreshold = 50.0
	ExitDuration    = 90 * time.Millisecond

	// Visual response to drag distance: degrees of rotation per pixel,
	// and the distance over which opacity fades toward its floor.
	rotationPerPixel = 0.05
	opacityFadeOver  = 300.0
	opacityFloor     = 0.4
)

// Direction of a card transition.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Visual is the rendered state of the current card. Rest is
// {OffsetX: 0, Rotation: 0, Scale: 1, Opacity: 1}.
type Visual struct {
	OffsetX  float64
	Rotation float64
	Scale    float64
	Opacity  float64
}

var restVisual = Visual{OffsetX: 0, Rotation: 0, Scale: 1, Opacity: 1}

// Transition describes an in-flight card change for the animation layer:
// the outgoing card slides and fades over ExitDuration while the
// incoming card ramps scale and opacity up to rest.
type Transition struct {
	From, To     int
	Dir          Direction
	ExitDuration time.Duration
}

// Release is the outcome of a drag ending. Either the gesture committed
// to a transition, or the card springs back to rest.
type Release struct {
	Committed  bool
	Transition Transition
	SpringBack bool
}

// Machine is the card browser state machine. Not safe for concurrent
// use; it models a single-threaded UI event loop.
type Machine struct {
	events   []model.Event
	position int
	inFlight bool
	pending  Transition
	dragging bool
	visual   Visual
}

// New returns an empty machine in the Empty state.
func New() *Machine {
	return &Machine{visual: restVisual}
}

// SetEvents recomputes the browsable subset: events that are upcoming
// relative to now and, when query is non-empty, whose title or location
// contains it case-insensitively. The subset is stable-sorted ascending
// by date. The position is reset to 0 whenever it would fall out of
// bounds of the new subset; animation state always returns to rest.
func (m *Machine) SetEvents(events []model.Event, query string, now time.Time) {
	query = strings.ToLower(strings.TrimSpace(query))

	var filtered []model.Event
	for _, e := range events {
		if !e.IsUpcoming(now) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(e.Title), query) &&
			!strings.Contains(strings.ToLower(e.Location), query) {
			continue
		}
		filtered = append(filtered, e)
	}
	model.SortEventsByDate(filtered)

	m.events = filtered
	if m.position >= len(filtered) {
		m.position = 0
	}
	m.rest()
}

// Reset returns the machine to position 0 with rest animation state.
// Called on logout/login transitions.
func (m *Machine) Reset() {
	m.position = 0
	m.rest()
}

// Empty reports whether no events are browsable. In the Empty state the
// view renders a fixed "no events" indicator and no transitions are
// accepted.
func (m *Machine) Empty() bool { return len(m.events) == 0 }

// Len returns the size of the filtered subset.
func (m *Machine) Len() int { return len(m.events) }

// Position returns the current index into the filtered subset.
func (m *Machine) Position() int { return m.position }

// Events returns a copy of the filtered, sorted subset for list-style
// rendering alongside the card view.
func (m *Machine) Events() []model.Event {
	out := make([]model.Event, len(m.events))
	copy(out, m.events)
	return out
}

// Visual returns the current card's rendered state.
func (m *Machine) Visual() Visual { return m.visual }

// InFlight reports whether a transition is awaiting Complete.
func (m *Machine) InFlight() bool { return m.inFlight }

// Current returns the displayed event, or false in the Empty state.
func (m *Machine) Current() (model.Event, bool) {
	if m.Empty() {
		return model.Event{}, false
	}
	return m.events[m.position], true
}

// Next begins a forward transition. It is a no-op (false) at the last
// card, in the Empty state, or while another transition is in flight.
func (m *Machine) Next() (Transition, bool) {
	return m.beginTransition(Forward)
}

// Previous begins a backward transition, symmetric to Next.
func (m *Machine) Previous() (Transition, bool) {
	return m.beginTransition(Backward)
}

func (m *Machine) beginTransition(dir Direction) (Transition, bool) {
	if m.Empty() || m.inFlight || m.dragging {
		return Transition{}, false
	}
	to := m.position + 1
	if dir == Backward {
		to = m.position - 1
	}
	if to < 0 || to >= len(m.events) {
		return Transition{}, false
	}
	m.pending = Transition{From: m.position, To: to, Dir: dir, ExitDuration: ExitDuration}
	m.inFlight = true
	return m.pending, true
}

// Complete commits the in-flight transition: animation state is reset to
// rest first, then the position advances. No-op when nothing is in
// flight.
func (m *Machine) Complete() {
	if !m.inFlight {
		return
	}
	// Rest before the new position renders, so no animation state leaks
	// from the outgoing card onto the incoming one.
	m.rest()
	m.position = m.pending.To
	m.pending = Transition{}
}

// DragStart begins a press-drag-release sequence. Ignored while a
// transition is in flight or in the Empty state.
func (m *Machine) DragStart() {
	if m.Empty() || m.inFlight {
		return
	}
	m.dragging = true
}

// DragMove updates the card's visual as a direct, non-animated function
// of the horizontal drag distance: offset follows the finger, rotation
// and opacity derive from it.
func (m *Machine) DragMove(dx, dy float64) {
	if !m.dragging {
		return
	}
	m.visual = Visual{
		OffsetX:  dx,
		Rotation: dx * rotationPerPixel,
		Scale:    1,
		Opacity:  math.Max(opacityFloor, 1-math.Abs(dx)/opacityFadeOver),
	}
}

// DragEnd resolves the gesture. The release commits when the horizontal
// displacement exceeds CommitThreshold, dominates the vertical axis, and
// a valid transition exists in that direction (drag left advances, drag
// right goes back); otherwise the card springs back to rest.
func (m *Machine) DragEnd(dx, dy float64) Release {
	if !m.dragging {
		return Release{}
	}
	m.dragging = false

	if math.Abs(dx) > CommitThreshold && math.Abs(dx) > math.Abs(dy) {
		dir := Forward
		if dx > 0 {
			dir = Backward
		}
		if tr, ok := m.beginTransition(dir); ok {
			return Release{Committed: true, Transition: tr}
		}
	}
	m.visual = restVisual
	return Release{SpringBack: true}
}

func (m *Machine) rest() {
	m.inFlight = false
	m.dragging = false
	m.visual = restVisual
}
