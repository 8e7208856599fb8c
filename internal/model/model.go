// Package model defines the core domain types for the hall event client:
// events, attendance registrations, session identities, profiles, and
// announcements.
package model

import (
	"sort"
	"strings"
	"time"
)

// TagSeparator delimits tags inside the stored Tags column.
const TagSeparator = ","

// Event represents a hall event students can browse and RSVP to.
type Event struct {
	ID              int64
	Title           string
	Description     string
	Date            time.Time // calendar date, midnight UTC
	Time            string    // optional clock time, "" when unset
	Location        string
	ImageURL        string // optional
	Tags            []string
	Deadline        time.Time // registration cutoff, calendar date
	MaxParticipants *int      // nil = unlimited
	CurrentCount    int
}

// Remaining returns the number of open spots, or -1 for unlimited events.
func (e *Event) Remaining() int {
	if e.MaxParticipants == nil {
		return -1
	}
	return *e.MaxParticipants - e.CurrentCount
}

// IsFull reports whether the event has reached its configured maximum.
// Unlimited events are never full.
func (e *Event) IsFull() bool {
	return e.MaxParticipants != nil && e.CurrentCount >= *e.MaxParticipants
}

// IsUpcoming reports whether the event's date is on or after now's
// calendar day.
func (e *Event) IsUpcoming(now time.Time) bool {
	return !DayOf(e.Date).Before(DayOf(now))
}

// DeadlinePassed reports whether the registration deadline is strictly
// before now's calendar day.
func (e *Event) DeadlinePassed(now time.Time) bool {
	return DayOf(e.Deadline).Before(DayOf(now))
}

// Registration is the attendance row linking a user to an event.
type Registration struct {
	ID        string
	EventID   int64
	UserID    string
	CreatedAt time.Time
}

// Identity is the authenticated session user as reported by the gateway.
type Identity struct {
	ID    string
	Email string
}

// Profile carries the per-user profile row. Role "admin" unlocks the
// event and announcement management operations.
type Profile struct {
	ID       string
	Role     string
	Username string
	School   string
	Course   string
}

// IsAdmin reports whether the profile has hall-administrator rights.
func (p *Profile) IsAdmin() bool {
	return p.Role == "admin"
}

// Announcement is a hall notice shown in the feed.
type Announcement struct {
	ID        int64
	CreatedAt time.Time
	Title     string
	Message   string
}

// DayOf truncates a timestamp to its calendar day in UTC.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseTags splits the stored delimited tag string into a trimmed,
// de-duplicated slice. Ordering follows first appearance.
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	seen := make(map[string]bool)
	var tags []string
	for _, part := range strings.Split(s, TagSeparator) {
		tag := strings.TrimSpace(part)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// FormatTags renders a tag slice back into the stored delimited form.
func FormatTags(tags []string) string {
	return strings.Join(tags, TagSeparator)
}

// SortEventsByDate stable-sorts events ascending by calendar date.
// Ties keep their existing relative order.
func SortEventsByDate(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
}
