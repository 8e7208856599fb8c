// Package memory provides an in-process Gateway backed by maps. It
// enforces the same attendance constraints as the real backend (capacity
// bound, one registration per user per event), which makes it suitable as
// both a unit-test double and the dev server's store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hallhub/hallhub/internal/gateway"
)

// Store is an in-memory Gateway implementation. Safe for concurrent use;
// attendance inserts are serialized so the capacity check-then-insert
// cannot race.
type Store struct {
	mu       sync.Mutex
	tables   map[string][]gateway.Record
	nextID   map[string]int64
	identity *gateway.Identity
	now      func() time.Time
}

// New returns an empty store with no signed-in identity.
func New() *Store {
	return &Store{
		tables: make(map[string][]gateway.Record),
		nextID: make(map[string]int64),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetIdentity signs a user in (or out, with nil).
func (s *Store) SetIdentity(id *gateway.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
}

// SetClock overrides the timestamp source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// CurrentIdentity returns the signed-in user, or nil when signed out.
func (s *Store) CurrentIdentity(ctx context.Context) (*gateway.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil, nil
	}
	id := *s.identity
	return &id, nil
}

// Query returns copies of all rows matching every filter, sorted by the
// given ordering. Unordered queries keep insertion order.
func (s *Store) Query(ctx context.Context, collection string, filters []gateway.Filter, order []gateway.Order) ([]gateway.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []gateway.Record
	for _, rec := range s.tables[collection] {
		if matchesAll(rec, filters) {
			out = append(out, clone(rec))
		}
	}
	for i := len(order) - 1; i >= 0; i-- {
		o := order[i]
		sort.SliceStable(out, func(a, b int) bool {
			c := compare(out[a][o.Field], out[b][o.Field])
			if o.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	return out, nil
}

// Insert adds a row, assigning an id and created_at when absent.
// Attendance inserts enforce the capacity and uniqueness constraints and
// bump the event's participant counter, mirroring the hosted backend.
func (s *Store) Insert(ctx context.Context, collection string, rec gateway.Record) (gateway.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := clone(rec)
	if collection == gateway.CollectionAttendance {
		if err := s.checkAttendance(row); err != nil {
			return nil, err
		}
	}
	s.assignID(collection, row)
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = s.now().Format(time.RFC3339)
	}
	s.tables[collection] = append(s.tables[collection], row)

	if collection == gateway.CollectionAttendance {
		s.bumpCount(row.Int64("event"), +1)
	}
	return clone(row), nil
}

// Update merges partial into the row with the given id.
func (s *Store) Update(ctx context.Context, collection string, id any, partial gateway.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.tables[collection] {
		if sameID(rec["id"], id) {
			for k, v := range partial {
				rec[k] = v
			}
			return nil
		}
	}
	return gateway.NewError(gateway.CodeNotFound, fmt.Sprintf("%s: no row with id %v", collection, id))
}

// Delete removes the row with the given id. Deleting a missing row
// reports not-found rather than succeeding silently, so a cancel against
// an already-removed registration surfaces to the caller. Attendance
// deletes release the event's participant slot.
func (s *Store) Delete(ctx context.Context, collection string, id any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tables[collection]
	for i, rec := range rows {
		if sameID(rec["id"], id) {
			s.tables[collection] = append(rows[:i], rows[i+1:]...)
			if collection == gateway.CollectionAttendance {
				s.bumpCount(rec.Int64("event"), -1)
			}
			return nil
		}
	}
	return gateway.NewError(gateway.CodeNotFound, fmt.Sprintf("%s: no row with id %v", collection, id))
}

// checkAttendance holds the store's side of the registration invariants.
// Caller holds s.mu.
func (s *Store) checkAttendance(row gateway.Record) error {
	user := row.String("user")
	eventID := row.Int64("event")

	for _, existing := range s.tables[gateway.CollectionAttendance] {
		if existing.String("user") == user && existing.Int64("event") == eventID {
			return gateway.NewError(gateway.CodeDuplicateRegistration,
				fmt.Sprintf("user %s already registered for event %d", user, eventID))
		}
	}

	event := s.findByID(gateway.CollectionEvents, eventID)
	if event == nil {
		return gateway.NewError(gateway.CodeNotFound, fmt.Sprintf("event %d does not exist", eventID))
	}
	if max := event.IntPtr("MaximumParticipants"); max != nil {
		if int(event.Int64("CurrentParticipants")) >= *max {
			return gateway.NewError(gateway.CodeCapacityFull,
				fmt.Sprintf("event %d is at capacity (%d)", eventID, *max))
		}
	}
	return nil
}

func (s *Store) bumpCount(eventID int64, delta int64) {
	if event := s.findByID(gateway.CollectionEvents, eventID); event != nil {
		n := event.Int64("CurrentParticipants") + delta
		if n < 0 {
			n = 0
		}
		event["CurrentParticipants"] = n
	}
}

func (s *Store) findByID(collection string, id any) gateway.Record {
	for _, rec := range s.tables[collection] {
		if sameID(rec["id"], id) {
			return rec
		}
	}
	return nil
}

func (s *Store) assignID(collection string, row gateway.Record) {
	if _, ok := row["id"]; ok {
		return
	}
	// Attendance rows carry opaque ids; the catalog collections use
	// monotonically increasing integers like the backend's serial columns.
	if collection == gateway.CollectionAttendance || collection == gateway.CollectionProfiles {
		row["id"] = uuid.New().String()
		return
	}
	s.nextID[collection]++
	row["id"] = s.nextID[collection]
}

func matchesAll(rec gateway.Record, filters []gateway.Filter) bool {
	for _, f := range filters {
		c := compare(rec[f.Field], f.Value)
		switch f.Op {
		case gateway.OpEq:
			if c != 0 {
				return false
			}
		case gateway.OpNeq:
			if c == 0 {
				return false
			}
		case gateway.OpGte:
			if c < 0 {
				return false
			}
		case gateway.OpLte:
			if c > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compare orders two loosely-typed values: numerically when both parse as
// numbers, otherwise lexically on their string forms.
func compare(a, b any) int {
	an, aok := asFloat(a)
	bn, bok := asFloat(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func sameID(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func clone(rec gateway.Record) gateway.Record {
	out := make(gateway.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
