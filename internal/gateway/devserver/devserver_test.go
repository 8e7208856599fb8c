package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallhub/hallhub/internal/gateway"
	"github.com/hallhub/hallhub/internal/gateway/memory"
)

func TestRouter_ErrorStatuses(t *testing.T) {
	store := memory.New()
	srv := httptest.NewServer(New(store, nil).Router())
	defer srv.Close()

	// Unauthenticated session.
	resp, err := http.Get(srv.URL + "/auth/v1/user")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var envelope map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, string(gateway.CodeUnauthenticated), envelope["code"])

	// Deleting a missing row.
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/rest/v1/attendance?id=eq.missing", nil)
	require.NoError(t, err)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	// Capacity violation maps to conflict.
	_, err = store.Insert(context.Background(), gateway.CollectionEvents, gateway.Record{
		"Title": "Tiny", "Date": "2030-01-01", "MaximumParticipants": 0, "CurrentParticipants": int64(0),
	})
	require.NoError(t, err)

	resp3, err := http.Post(srv.URL+"/rest/v1/attendance", "application/json",
		strings.NewReader(`{"user":"u1","event":1}`))
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusConflict, resp3.StatusCode)
}

func TestSeed_LoadAndApply(t *testing.T) {
	fixture := `
identity:
  id: user-1
  email: warden@hall.edu
events:
  - Title: Welcome Week
    Date: "2030-09-01"
    Deadline: "2030-08-30"
    MaximumParticipants: 100
    CurrentParticipants: 0
announcements:
  - title: Hello
    message: Welcome to the hall
profiles:
  - id: user-1
    role: admin
    username: warden
attendance:
  - user: user-1
    event: 1
`
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	seed, err := LoadSeed(path)
	require.NoError(t, err)

	store := memory.New()
	ctx := context.Background()
	require.NoError(t, seed.Apply(ctx, store))

	id, err := store.CurrentIdentity(ctx)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "user-1", id.ID)

	events, err := store.Query(ctx, gateway.CollectionEvents, nil, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].Int64("CurrentParticipants"),
		"seeded attendance bumps the counter")

	regs, err := store.Query(ctx, gateway.CollectionAttendance, nil, nil)
	require.NoError(t, err)
	assert.Len(t, regs, 1)
}

func TestSeed_MissingFile(t *testing.T) {
	_, err := LoadSeed("/nonexistent/seed.yaml")
	assert.Error(t, err)
}
