// Package catalog loads and normalizes event and announcement rows from
// the gateway, and carries the administrator write operations.
package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hallhub/hallhub/internal/gateway"
	"github.com/hallhub/hallhub/internal/model"
)

// Wire formats for the Date/Deadline and Time columns.
const (
	DateFormat = "2006-01-02"
	TimeFormat = "15:04"
)

// Loader fetches read-only views from the gateway. Fetch failures are
// logged and surfaced as empty results; the user retries by re-invoking
// the action, never the loader itself.
type Loader struct {
	gw  gateway.Gateway
	log *slog.Logger
}

// NewLoader wires a loader to a gateway. log may be nil.
func NewLoader(gw gateway.Gateway, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{gw: gw, log: log}
}

// FetchUpcoming returns all events dated on or after now's calendar day,
// stable-sorted ascending by date. Rows that fail to normalize are
// skipped with a log entry rather than poisoning the whole list.
func (l *Loader) FetchUpcoming(ctx context.Context, now time.Time) []model.Event {
	rows, err := l.gw.Query(ctx, gateway.CollectionEvents, nil, nil)
	if err != nil {
		l.log.Error("fetch events failed", "error", err)
		return nil
	}

	var events []model.Event
	for _, row := range rows {
		event, err := EventFromRecord(row)
		if err != nil {
			l.log.Warn("skipping malformed event row", "id", row.String("id"), "error", err)
			continue
		}
		if event.IsUpcoming(now) {
			events = append(events, event)
		}
	}
	model.SortEventsByDate(events)
	return events
}

// FetchEvent re-reads a single event, typically after a join or cancel
// to pick up the authoritative participant count.
func (l *Loader) FetchEvent(ctx context.Context, id int64) (*model.Event, error) {
	rows, err := l.gw.Query(ctx, gateway.CollectionEvents, []gateway.Filter{gateway.Eq("id", id)}, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch event %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, gateway.NewError(gateway.CodeNotFound, fmt.Sprintf("event %d not found", id))
	}
	event, err := EventFromRecord(rows[0])
	if err != nil {
		return nil, fmt.Errorf("normalize event %d: %w", id, err)
	}
	return &event, nil
}

// Announcements returns the feed newest-first. Errors yield an empty
// feed plus a log entry.
func (l *Loader) Announcements(ctx context.Context) []model.Announcement {
	rows, err := l.gw.Query(ctx, gateway.CollectionAnnouncements, nil,
		[]gateway.Order{{Field: "created_at", Desc: true}})
	if err != nil {
		l.log.Error("fetch announcements failed", "error", err)
		return nil
	}

	anns := make([]model.Announcement, 0, len(rows))
	for _, row := range rows {
		anns = append(anns, model.Announcement{
			ID:        row.Int64("id"),
			CreatedAt: parseTimestamp(row.String("created_at")),
			Title:     row.String("title"),
			Message:   row.String("message"),
		})
	}
	return anns
}

// Registrations returns the user's attendance rows, used to mark joined
// events and to resolve the record a cancel needs.
func (l *Loader) Registrations(ctx context.Context, userID string) ([]model.Registration, error) {
	rows, err := l.gw.Query(ctx, gateway.CollectionAttendance,
		[]gateway.Filter{gateway.Eq("user", userID)}, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch registrations: %w", err)
	}
	regs := make([]model.Registration, 0, len(rows))
	for _, row := range rows {
		regs = append(regs, model.Registration{
			ID:        row.String("id"),
			EventID:   row.Int64("event"),
			UserID:    row.String("user"),
			CreatedAt: parseTimestamp(row.String("created_at")),
		})
	}
	return regs, nil
}

// Profile loads the user's profile row, or nil when none exists.
func (l *Loader) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	rows, err := l.gw.Query(ctx, gateway.CollectionProfiles,
		[]gateway.Filter{gateway.Eq("id", userID)}, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	return &model.Profile{
		ID:       row.String("id"),
		Role:     row.String("role"),
		Username: row.String("username"),
		School:   row.String("school"),
		Course:   row.String("course"),
	}, nil
}

// EventFromRecord normalizes a raw Events row into the domain shape.
// Date is required; Time, image_url, Tags, and MaximumParticipants are
// optional. The participant counter is read verbatim; the client never
// derives or adjusts it.
func EventFromRecord(row gateway.Record) (model.Event, error) {
	date, err := time.Parse(DateFormat, row.String("Date"))
	if err != nil {
		return model.Event{}, fmt.Errorf("parse Date %q: %w", row.String("Date"), err)
	}

	event := model.Event{
		ID:              row.Int64("id"),
		Title:           row.String("Title"),
		Description:     row.String("Description"),
		Date:            date,
		Time:            row.String("Time"),
		Location:        row.String("Location"),
		ImageURL:        row.String("image_url"),
		Tags:            model.ParseTags(row.String("Tags")),
		MaxParticipants: row.IntPtr("MaximumParticipants"),
		CurrentCount:    int(row.Int64("CurrentParticipants")),
	}

	if raw := row.String("Deadline"); raw != "" {
		deadline, err := time.Parse(DateFormat, raw)
		if err != nil {
			return model.Event{}, fmt.Errorf("parse Deadline %q: %w", raw, err)
		}
		event.Deadline = deadline
	} else {
		// No explicit cutoff: registration stays open through the event day.
		event.Deadline = date
	}
	return event, nil
}

// EventToRecord renders a domain event into the wire row shape used by
// the admin write path. The id and participant counter are excluded;
// the store owns both.
func EventToRecord(e model.Event) gateway.Record {
	rec := gateway.Record{
		"Title":       e.Title,
		"Description": e.Description,
		"Date":        e.Date.Format(DateFormat),
		"Time":        e.Time,
		"Location":    e.Location,
		"image_url":   e.ImageURL,
		"Tags":        model.FormatTags(e.Tags),
		"Deadline":    e.Deadline.Format(DateFormat),
	}
	if e.MaxParticipants != nil {
		rec["MaximumParticipants"] = *e.MaxParticipants
	}
	return rec
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
