package registration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallhub/hallhub/internal/catalog"
	"github.com/hallhub/hallhub/internal/gateway"
	"github.com/hallhub/hallhub/internal/gateway/memory"
	"github.com/hallhub/hallhub/internal/model"
)

var alice = &gateway.Identity{ID: "user-alice", Email: "alice@hall.edu"}

// seedEvent inserts an event row and returns its domain form.
func seedEvent(t *testing.T, store *memory.Store, max any, current int64) model.Event {
	t.Helper()
	rec := gateway.Record{
		"Title":               "Quiz Night",
		"Description":         "weekly quiz",
		"Date":                "2030-05-01",
		"Location":            "Common Room",
		"Deadline":            "2030-05-01",
		"Tags":                "social",
		"CurrentParticipants": current,
	}
	if max != nil {
		rec["MaximumParticipants"] = max
	}
	created, err := store.Insert(context.Background(), gateway.CollectionEvents, rec)
	require.NoError(t, err)
	event, err := catalog.EventFromRecord(created)
	require.NoError(t, err)
	return event
}

func attendanceCount(t *testing.T, store *memory.Store) int {
	t.Helper()
	rows, err := store.Query(context.Background(), gateway.CollectionAttendance, nil, nil)
	require.NoError(t, err)
	return len(rows)
}

func TestJoin_Succeeds(t *testing.T) {
	store := memory.New()
	store.SetIdentity(alice)
	event := seedEvent(t, store, 10, 0)

	ctrl := NewController(store, nil, nil)
	reg, err := ctrl.Join(context.Background(), event)

	require.NoError(t, err)
	assert.NotEmpty(t, reg.ID)
	assert.Equal(t, event.ID, reg.EventID)
	assert.Equal(t, alice.ID, reg.UserID)
	assert.Equal(t, PhaseRegistered, ctrl.Phase())
	assert.Equal(t, 1, attendanceCount(t, store))
}

func TestJoin_RequiresIdentity(t *testing.T) {
	store := memory.New()
	event := seedEvent(t, store, 10, 0)

	ctrl := NewController(store, nil, nil)
	_, err := ctrl.Join(context.Background(), event)

	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, 0, attendanceCount(t, store), "no insert is attempted while signed out")
}

func TestJoin_TwiceIsIdempotent(t *testing.T) {
	store := memory.New()
	store.SetIdentity(alice)
	event := seedEvent(t, store, 10, 0)

	ctrl := NewController(store, nil, nil)
	first, err := ctrl.Join(context.Background(), event)
	require.NoError(t, err)

	_, err = ctrl.Join(context.Background(), event)
	var already *AlreadyRegisteredError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, first.ID, already.Existing.ID, "second call carries the existing record")
	assert.Equal(t, 1, attendanceCount(t, store), "second call performs no insert")
	assert.Equal(t, PhaseRegistered, ctrl.Phase())
}

func TestJoin_FullEventShortCircuits(t *testing.T) {
	store := memory.New()
	store.SetIdentity(alice)
	event := seedEvent(t, store, 2, 2)

	ctrl := NewController(store, nil, nil)
	_, err := ctrl.Join(context.Background(), event)

	assert.ErrorIs(t, err, ErrEventFull)
	assert.Equal(t, 0, attendanceCount(t, store), "insert path never reached")
	assert.Equal(t, PhaseUnregistered, ctrl.Phase())
}

func TestJoin_StoreCapacityRejectionMapsToEventFull(t *testing.T) {
	store := memory.New()
	store.SetIdentity(alice)
	// Stale view: caller's copy says one spot left, but the store is full.
	event := seedEvent(t, store, 1, 0)
	require.NoError(t, store.Update(context.Background(), gateway.CollectionEvents, event.ID,
		gateway.Record{"CurrentParticipants": int64(1)}))

	ctrl := NewController(store, nil, nil)
	_, err := ctrl.Join(context.Background(), event)

	assert.ErrorIs(t, err, ErrEventFull)
	assert.Equal(t, PhaseUnregistered, ctrl.Phase())
}

func TestJoin_NeverWritesParticipantCount(t *testing.T) {
	store := memory.New()
	store.SetIdentity(alice)
	event := seedEvent(t, store, 5, 0)

	ctrl := NewController(store, nil, nil)
	_, err := ctrl.Join(context.Background(), event)
	require.NoError(t, err)

	// The counter moved server-side; the caller's stale copy did not.
	rows, err := store.Query(context.Background(), gateway.CollectionEvents,
		[]gateway.Filter{gateway.Eq("id", event.ID)}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Int64("CurrentParticipants"))
	assert.Equal(t, 0, event.CurrentCount, "client copy untouched until re-fetch")
}

func TestCancel_Succeeds(t *testing.T) {
	store := memory.New()
	store.SetIdentity(alice)
	event := seedEvent(t, store, 5, 0)

	ctrl := NewController(store, nil, nil)
	reg, err := ctrl.Join(context.Background(), event)
	require.NoError(t, err)

	require.NoError(t, ctrl.Cancel(context.Background(), *reg))
	assert.Equal(t, PhaseUnregistered, ctrl.Phase())
	assert.Equal(t, 0, attendanceCount(t, store))
}

func TestCancel_DeclinedConfirmationIsNoOp(t *testing.T) {
	store := memory.New()
	store.SetIdentity(alice)
	event := seedEvent(t, store, 5, 0)

	decline := func(context.Context, model.Registration) bool { return false }
	ctrl := NewController(store, nil, decline)
	reg, err := ctrl.Join(context.Background(), event)
	require.NoError(t, err)

	require.NoError(t, ctrl.Cancel(context.Background(), *reg))
	assert.Equal(t, PhaseRegistered, ctrl.Phase())
	assert.Equal(t, 1, attendanceCount(t, store), "declined confirmation deletes nothing")
}

func TestCancel_AlreadyDeletedSurfacesError(t *testing.T) {
	store := memory.New()
	store.SetIdentity(alice)
	event := seedEvent(t, store, 5, 0)

	ctrl := NewController(store, nil, nil)
	reg, err := ctrl.Join(context.Background(), event)
	require.NoError(t, err)

	// Another device already cancelled.
	require.NoError(t, store.Delete(context.Background(), gateway.CollectionAttendance, reg.ID))

	err = ctrl.Cancel(context.Background(), *reg)
	require.Error(t, err)
	assert.Equal(t, gateway.CodeNotFound, gateway.CodeOf(err))
	assert.Equal(t, PhaseRegistered, ctrl.Phase(),
		"phase rolls back to Registered when the delete does not succeed")
}

func TestCancel_FailureRollsBackPhase(t *testing.T) {
	store := memory.New()
	store.SetIdentity(alice)
	event := seedEvent(t, store, 5, 0)

	ctrl := NewController(store, nil, nil)
	reg, err := ctrl.Join(context.Background(), event)
	require.NoError(t, err)

	failing := &failingGateway{Gateway: store, deleteErr: gateway.NewError(gateway.CodeUnavailable, "store down")}
	ctrl2 := NewController(failing, nil, nil)
	ctrl2.SetRegistered(true)

	err = ctrl2.Cancel(context.Background(), *reg)
	require.Error(t, err)
	assert.Equal(t, PhaseRegistered, ctrl2.Phase())
	assert.Equal(t, 1, attendanceCount(t, store), "registration survives the failed cancel")
}

func TestBusyGuard_RejectsReentrantCalls(t *testing.T) {
	store := memory.New()
	store.SetIdentity(alice)
	event := seedEvent(t, store, 5, 0)

	blocked := make(chan struct{})
	release := make(chan struct{})
	slow := &blockingGateway{Gateway: store, blocked: blocked, release: release}

	ctrl := NewController(slow, nil, nil)
	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Join(context.Background(), event)
		done <- err
	}()

	<-blocked
	_, err := ctrl.Join(context.Background(), event)
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
}

// failingGateway wraps a Gateway and fails deletes.
type failingGateway struct {
	gateway.Gateway
	deleteErr error
}

func (f *failingGateway) Delete(ctx context.Context, collection string, id any) error {
	return f.deleteErr
}

// blockingGateway parks the first Query until released, to hold a join
// in its transient phase.
type blockingGateway struct {
	gateway.Gateway
	blocked chan struct{}
	release chan struct{}
	once    bool
}

func (b *blockingGateway) Query(ctx context.Context, collection string, filters []gateway.Filter, order []gateway.Order) ([]gateway.Record, error) {
	if !b.once {
		b.once = true
		close(b.blocked)
		<-b.release
	}
	return b.Gateway.Query(ctx, collection, filters, order)
}
