// Package registration implements the join/cancel workflow for a single
// event: query-first idempotent joins, capacity-full detection via the
// gateway's error code contract, and a cancel flow that only leaves the
// registered state once the server confirms the delete.
package registration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hallhub/hallhub/internal/gateway"
	"github.com/hallhub/hallhub/internal/model"
)

// Sentinel outcomes of the join/cancel workflow. EventFull and
// AlreadyRegisteredError are expected results the view maps to dedicated
// states; the rest are failures.
var (
	// ErrNotAuthenticated means no user is signed in; registration
	// actions must be disabled, never attempted.
	ErrNotAuthenticated = errors.New("not signed in")

	// ErrEventFull means the event is at capacity.
	ErrEventFull = errors.New("event is at capacity")

	// ErrBusy means a join or cancel is already in flight. The view
	// prevents this by disabling the triggering control; the guard here
	// is the backstop against re-entrant calls.
	ErrBusy = errors.New("registration action already in flight")
)

// AlreadyRegisteredError reports an idempotent join: the user already
// holds a registration, carried in Existing. No insert was attempted.
type AlreadyRegisteredError struct {
	Existing model.Registration
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("already registered for event %d", e.Existing.EventID)
}

// Phase is the workflow state exposed to the view. Registering and
// Cancelling are transient; the view disables the triggering control
// while in either.
type Phase int

const (
	PhaseUnregistered Phase = iota
	PhaseRegistering
	PhaseRegistered
	PhaseCancelling
)

func (p Phase) String() string {
	switch p {
	case PhaseUnregistered:
		return "unregistered"
	case PhaseRegistering:
		return "registering"
	case PhaseRegistered:
		return "registered"
	case PhaseCancelling:
		return "cancelling"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ConfirmFunc asks the user to confirm an irreversible cancellation.
// Returning false aborts the cancel as a no-op. A nil ConfirmFunc
// confirms unconditionally.
type ConfirmFunc func(ctx context.Context, reg model.Registration) bool

// Controller owns the registration workflow for the event currently in
// front of the user. It never mutates the event's participant counter;
// after a successful join or cancel the caller re-fetches the event for
// the authoritative count.
type Controller struct {
	gw      gateway.Gateway
	log     *slog.Logger
	confirm ConfirmFunc

	mu    sync.Mutex
	phase Phase
}

// NewController wires a controller to a gateway. log may be nil.
func NewController(gw gateway.Gateway, log *slog.Logger, confirm ConfirmFunc) *Controller {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{gw: gw, log: log, confirm: confirm, phase: PhaseUnregistered}
}

// Phase returns the current workflow state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SetRegistered initializes the phase from a fetched registration state,
// e.g. when the view loads and finds an existing attendance row. It does
// nothing while an action is in flight.
func (c *Controller) SetRegistered(registered bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseRegistering || c.phase == PhaseCancelling {
		return
	}
	if registered {
		c.phase = PhaseRegistered
	} else {
		c.phase = PhaseUnregistered
	}
}

// Join registers the signed-in user for event.
//
// The workflow is query-first: an existing (user, event) attendance row
// short-circuits to AlreadyRegisteredError without a second insert, which
// makes double-taps and stale views idempotent. Only then is an insert
// attempted; the store's constraint check is the authority on capacity,
// and its coded rejection maps to ErrEventFull or, if another device won
// the race, AlreadyRegisteredError.
func (c *Controller) Join(ctx context.Context, event model.Event) (*model.Registration, error) {
	identity, err := c.gw.CurrentIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if identity == nil {
		return nil, ErrNotAuthenticated
	}
	if event.IsFull() {
		return nil, ErrEventFull
	}

	if err := c.begin(PhaseRegistering); err != nil {
		return nil, err
	}

	existing, err := c.findRegistration(ctx, identity.ID, event.ID)
	if err != nil {
		c.settle(PhaseUnregistered)
		return nil, fmt.Errorf("check existing registration: %w", err)
	}
	if existing != nil {
		c.settle(PhaseRegistered)
		return nil, &AlreadyRegisteredError{Existing: *existing}
	}

	rec, err := c.gw.Insert(ctx, gateway.CollectionAttendance, gateway.Record{
		"user":  identity.ID,
		"event": event.ID,
		// created_at is server-assigned
	})
	if err != nil {
		switch gateway.CodeOf(err) {
		case gateway.CodeCapacityFull:
			c.settle(PhaseUnregistered)
			return nil, ErrEventFull
		case gateway.CodeDuplicateRegistration:
			// Lost a race against another device. Recover the winning row
			// so the view can still show the registration.
			if existing, qerr := c.findRegistration(ctx, identity.ID, event.ID); qerr == nil && existing != nil {
				c.settle(PhaseRegistered)
				return nil, &AlreadyRegisteredError{Existing: *existing}
			}
			c.settle(PhaseRegistered)
			return nil, &AlreadyRegisteredError{Existing: model.Registration{EventID: event.ID, UserID: identity.ID}}
		default:
			c.settle(PhaseUnregistered)
			c.log.Error("registration insert failed", "event", event.ID, "error", err)
			return nil, fmt.Errorf("register for event %d: %w", event.ID, err)
		}
	}

	c.settle(PhaseRegistered)
	reg := recordToRegistration(rec)
	return &reg, nil
}

// Cancel deletes reg after user confirmation. A declined confirmation is
// a no-op and leaves the phase at Registered. The phase only moves to
// Unregistered once the delete resolves without error; any failure rolls
// back to Registered so the view never shows a cancellation the server
// did not apply.
func (c *Controller) Cancel(ctx context.Context, reg model.Registration) error {
	if c.confirm != nil && !c.confirm(ctx, reg) {
		return nil
	}

	if err := c.begin(PhaseCancelling); err != nil {
		return err
	}

	// Delete by the registration's own id, never by the (user, event)
	// pair, so a stray duplicate row can never take an unrelated
	// registration down with it.
	if err := c.gw.Delete(ctx, gateway.CollectionAttendance, reg.ID); err != nil {
		c.settle(PhaseRegistered)
		c.log.Error("cancel registration failed", "registration", reg.ID, "error", err)
		return fmt.Errorf("cancel registration %s: %w", reg.ID, err)
	}

	c.settle(PhaseUnregistered)
	return nil
}

// IsFull reports whether the event is at capacity as last known to the
// caller. The store's constraint check remains the authority.
func (c *Controller) IsFull(event model.Event) bool {
	return event.IsFull()
}

// DeadlinePassed reports whether the event's registration cutoff is
// strictly before now's calendar day.
func (c *Controller) DeadlinePassed(event model.Event, now time.Time) bool {
	return event.DeadlinePassed(now)
}

// begin moves into a transient phase, rejecting re-entrant calls.
func (c *Controller) begin(to Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseRegistering || c.phase == PhaseCancelling {
		return ErrBusy
	}
	c.phase = to
	return nil
}

func (c *Controller) settle(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = p
}

func (c *Controller) findRegistration(ctx context.Context, userID string, eventID int64) (*model.Registration, error) {
	rows, err := c.gw.Query(ctx, gateway.CollectionAttendance, []gateway.Filter{
		gateway.Eq("user", userID),
		gateway.Eq("event", eventID),
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	reg := recordToRegistration(rows[0])
	return &reg, nil
}

func recordToRegistration(rec gateway.Record) model.Registration {
	reg := model.Registration{
		ID:      rec.String("id"),
		EventID: rec.Int64("event"),
		UserID:  rec.String("user"),
	}
	if ts := rec.String("created_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			reg.CreatedAt = t
		}
	}
	return reg
}
