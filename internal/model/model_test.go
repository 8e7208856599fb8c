package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(n int) *int { return &n }

func TestParseTags(t *testing.T) {
	assert.Nil(t, ParseTags(""))
	assert.Nil(t, ParseTags("   "))
	assert.Equal(t, []string{"sports", "social"}, ParseTags("sports,social"))
	assert.Equal(t, []string{"sports", "social"}, ParseTags(" sports , social "))
	assert.Equal(t, []string{"sports"}, ParseTags("sports,,sports"))
}

func TestFormatTags_RoundTrip(t *testing.T) {
	tags := []string{"music", "free-food"}
	assert.Equal(t, tags, ParseTags(FormatTags(tags)))
}

func TestEvent_IsFull(t *testing.T) {
	unlimited := Event{CurrentCount: 9000}
	assert.False(t, unlimited.IsFull())

	e := Event{MaxParticipants: intPtr(2), CurrentCount: 1}
	assert.False(t, e.IsFull())

	e.CurrentCount = 2
	assert.True(t, e.IsFull())

	e.CurrentCount = 3 // over-full still reads as full
	assert.True(t, e.IsFull())

	zero := Event{MaxParticipants: intPtr(0)}
	assert.True(t, zero.IsFull())
}

func TestEvent_IsUpcoming(t *testing.T) {
	now := time.Date(2026, time.March, 10, 14, 30, 0, 0, time.UTC)

	yesterday := Event{Date: date(2026, time.March, 9)}
	today := Event{Date: date(2026, time.March, 10)}
	tomorrow := Event{Date: date(2026, time.March, 11)}

	assert.False(t, yesterday.IsUpcoming(now))
	assert.True(t, today.IsUpcoming(now))
	assert.True(t, tomorrow.IsUpcoming(now))
}

func TestEvent_DeadlinePassed(t *testing.T) {
	now := time.Date(2026, time.March, 10, 23, 59, 0, 0, time.UTC)

	e := Event{Deadline: date(2026, time.March, 10)}
	assert.False(t, e.DeadlinePassed(now), "deadline day itself is still open")

	e.Deadline = date(2026, time.March, 9)
	assert.True(t, e.DeadlinePassed(now))
}

func TestSortEventsByDate_StableOnTies(t *testing.T) {
	a := Event{ID: 1, Date: date(2026, time.May, 1)}
	b := Event{ID: 2, Date: date(2026, time.April, 1)}
	c := Event{ID: 3, Date: date(2026, time.May, 1)}

	events := []Event{a, b, c}
	SortEventsByDate(events)

	require.Len(t, events, 3)
	assert.Equal(t, int64(2), events[0].ID)
	assert.Equal(t, int64(1), events[1].ID, "ties keep query order")
	assert.Equal(t, int64(3), events[2].ID)
}
