package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/hallhub/hallhub/internal/gateway"
	"github.com/hallhub/hallhub/internal/model"
)

// Admin carries the hall-administrator write operations: creating and
// editing events and posting announcements. Callers gate access on the
// profile role; the backend's row policies are the real enforcement.
type Admin struct {
	gw gateway.Gateway
}

// NewAdmin wires the admin operations to a gateway.
func NewAdmin(gw gateway.Gateway) *Admin {
	return &Admin{gw: gw}
}

// CreateEvent validates and inserts a new event. The participant counter
// starts at zero server-side.
func (a *Admin) CreateEvent(ctx context.Context, e model.Event) (*model.Event, error) {
	if err := validateEvent(e); err != nil {
		return nil, err
	}
	rec := EventToRecord(e)
	rec["CurrentParticipants"] = 0

	created, err := a.gw.Insert(ctx, gateway.CollectionEvents, rec)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	event, err := EventFromRecord(created)
	if err != nil {
		return nil, fmt.Errorf("normalize created event: %w", err)
	}
	return &event, nil
}

// UpdateEvent applies an edited event over the stored row. The
// participant counter is never part of the update.
func (a *Admin) UpdateEvent(ctx context.Context, id int64, e model.Event) error {
	if err := validateEvent(e); err != nil {
		return err
	}
	if err := a.gw.Update(ctx, gateway.CollectionEvents, id, EventToRecord(e)); err != nil {
		return fmt.Errorf("update event %d: %w", id, err)
	}
	return nil
}

// PostAnnouncement publishes a notice to the hall feed.
func (a *Admin) PostAnnouncement(ctx context.Context, title, message string) (*model.Announcement, error) {
	title = strings.TrimSpace(title)
	message = strings.TrimSpace(message)
	if title == "" {
		return nil, fmt.Errorf("announcement title is required")
	}
	if message == "" {
		return nil, fmt.Errorf("announcement message is required")
	}

	created, err := a.gw.Insert(ctx, gateway.CollectionAnnouncements, gateway.Record{
		"title":   title,
		"message": message,
	})
	if err != nil {
		return nil, fmt.Errorf("post announcement: %w", err)
	}
	return &model.Announcement{
		ID:        created.Int64("id"),
		CreatedAt: parseTimestamp(created.String("created_at")),
		Title:     created.String("title"),
		Message:   created.String("message"),
	}, nil
}

func validateEvent(e model.Event) error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("event title is required")
	}
	if e.Date.IsZero() {
		return fmt.Errorf("event date is required")
	}
	if e.MaxParticipants != nil && *e.MaxParticipants < 0 {
		return fmt.Errorf("maximum participants cannot be negative")
	}
	if !e.Deadline.IsZero() && model.DayOf(e.Deadline).After(model.DayOf(e.Date)) {
		return fmt.Errorf("registration deadline cannot fall after the event date")
	}
	return nil
}
