package rest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallhub/hallhub/internal/gateway"
	"github.com/hallhub/hallhub/internal/gateway/devserver"
	"github.com/hallhub/hallhub/internal/gateway/memory"
)

// newTestClient spins up the devserver emulator and points a client at
// it.
func newTestClient(t *testing.T) (*Client, *memory.Store) {
	t.Helper()
	store := memory.New()
	srv := httptest.NewServer(devserver.New(store, nil).Router())
	t.Cleanup(srv.Close)

	client := New(Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Token:   "test-token",
		Timeout: 5 * time.Second,
	})
	return client, store
}

func seedEvent(t *testing.T, store *memory.Store, max int) int64 {
	t.Helper()
	created, err := store.Insert(context.Background(), gateway.CollectionEvents, gateway.Record{
		"Title":               "Pub Quiz",
		"Date":                "2030-02-01",
		"Deadline":            "2030-02-01",
		"MaximumParticipants": max,
		"CurrentParticipants": int64(0),
	})
	require.NoError(t, err)
	return created.Int64("id")
}

func TestQuery_RoundTripsFiltersAndOrder(t *testing.T) {
	client, store := newTestClient(t)
	ctx := context.Background()

	seedEvent(t, store, 10)
	_, err := store.Insert(ctx, gateway.CollectionEvents, gateway.Record{
		"Title": "Earlier", "Date": "2030-01-01",
	})
	require.NoError(t, err)

	rows, err := client.Query(ctx, gateway.CollectionEvents, nil,
		[]gateway.Order{{Field: "Date"}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Earlier", rows[0].String("Title"))

	rows, err = client.Query(ctx, gateway.CollectionEvents,
		[]gateway.Filter{{Field: "Date", Op: gateway.OpGte, Value: "2030-01-15"}}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Pub Quiz", rows[0].String("Title"))
}

func TestQuery_EmptyCollection(t *testing.T) {
	client, _ := newTestClient(t)
	rows, err := client.Query(context.Background(), gateway.CollectionAnnouncements, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestInsert_ReturnsServerAssignedFields(t *testing.T) {
	client, store := newTestClient(t)
	eventID := seedEvent(t, store, 10)

	created, err := client.Insert(context.Background(), gateway.CollectionAttendance, gateway.Record{
		"user": "u1", "event": eventID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.String("id"))
	assert.NotEmpty(t, created.String("created_at"), "timestamp is server-assigned")
}

func TestInsert_ConstraintCodesSurviveTheWire(t *testing.T) {
	client, store := newTestClient(t)
	ctx := context.Background()
	eventID := seedEvent(t, store, 1)

	_, err := client.Insert(ctx, gateway.CollectionAttendance, gateway.Record{
		"user": "u1", "event": eventID,
	})
	require.NoError(t, err)

	_, err = client.Insert(ctx, gateway.CollectionAttendance, gateway.Record{
		"user": "u1", "event": eventID,
	})
	assert.Equal(t, gateway.CodeDuplicateRegistration, gateway.CodeOf(err))

	_, err = client.Insert(ctx, gateway.CollectionAttendance, gateway.Record{
		"user": "u2", "event": eventID,
	})
	assert.Equal(t, gateway.CodeCapacityFull, gateway.CodeOf(err))
}

func TestUpdateAndDelete(t *testing.T) {
	client, store := newTestClient(t)
	ctx := context.Background()
	eventID := seedEvent(t, store, 10)

	require.NoError(t, client.Update(ctx, gateway.CollectionEvents, eventID,
		gateway.Record{"Title": "Renamed"}))
	rows, err := client.Query(ctx, gateway.CollectionEvents,
		[]gateway.Filter{gateway.Eq("id", eventID)}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Renamed", rows[0].String("Title"))

	created, err := client.Insert(ctx, gateway.CollectionAttendance, gateway.Record{
		"user": "u1", "event": eventID,
	})
	require.NoError(t, err)

	require.NoError(t, client.Delete(ctx, gateway.CollectionAttendance, created.String("id")))

	err = client.Delete(ctx, gateway.CollectionAttendance, created.String("id"))
	assert.Equal(t, gateway.CodeNotFound, gateway.CodeOf(err),
		"second delete reports the missing row")
}

func TestCurrentIdentity(t *testing.T) {
	client, store := newTestClient(t)
	ctx := context.Background()

	id, err := client.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, id, "signed-out session is nil, not an error")

	store.SetIdentity(&gateway.Identity{ID: "u1", Email: "u1@hall.edu"})
	id, err = client.CurrentIdentity(ctx)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "u1", id.ID)
	assert.Equal(t, "u1@hall.edu", id.Email)
}

func TestUnreachableBackendIsUnavailable(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := client.Query(context.Background(), gateway.CollectionEvents, nil, nil)
	assert.Equal(t, gateway.CodeUnavailable, gateway.CodeOf(err))
}
