package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hallhub/hallhub/internal/catalog"
	"github.com/hallhub/hallhub/internal/model"
)

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Hall administrator operations",
	}
	cmd.AddCommand(createEventCmd(), editEventCmd(), announceCmd())
	return cmd
}

type eventFlags struct {
	title       string
	description string
	date        string
	clock       string
	location    string
	imageURL    string
	tags        []string
	deadline    string
	max         int
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "event title")
	cmd.Flags().StringVar(&f.description, "description", "", "event description")
	cmd.Flags().StringVar(&f.date, "date", "", "event date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.clock, "time", "", "event time (HH:MM, optional)")
	cmd.Flags().StringVar(&f.location, "location", "", "event location")
	cmd.Flags().StringVar(&f.imageURL, "image-url", "", "cover image URL (optional)")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "event tag (repeatable)")
	cmd.Flags().StringVar(&f.deadline, "deadline", "", "registration deadline (YYYY-MM-DD, defaults to the event date)")
	cmd.Flags().IntVar(&f.max, "max", 0, "maximum participants (0 = unlimited)")
}

func (f *eventFlags) toEvent() (model.Event, error) {
	if f.date == "" {
		return model.Event{}, errors.New("--date is required")
	}
	date, err := time.Parse(catalog.DateFormat, f.date)
	if err != nil {
		return model.Event{}, fmt.Errorf("parse --date: %w", err)
	}
	deadline := date
	if f.deadline != "" {
		deadline, err = time.Parse(catalog.DateFormat, f.deadline)
		if err != nil {
			return model.Event{}, fmt.Errorf("parse --deadline: %w", err)
		}
	}
	event := model.Event{
		Title:       f.title,
		Description: f.description,
		Date:        date,
		Time:        f.clock,
		Location:    f.location,
		ImageURL:    f.imageURL,
		Tags:        f.tags,
		Deadline:    deadline,
	}
	if f.max > 0 {
		max := f.max
		event.MaxParticipants = &max
	}
	return event, nil
}

func createEventCmd() *cobra.Command {
	var flags eventFlags
	cmd := &cobra.Command{
		Use:   "create-event",
		Short: "Create a new hall event",
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := flags.toEvent()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			log := newLogger()
			gw, closeGw, err := openGateway(ctx, log)
			if err != nil {
				return err
			}
			defer closeGw()

			created, err := catalog.NewAdmin(gw).CreateEvent(ctx, event)
			if err != nil {
				return err
			}
			fmt.Printf("Created event %d: %s on %s\n",
				created.ID, created.Title, created.Date.Format(catalog.DateFormat))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func editEventCmd() *cobra.Command {
	var flags eventFlags
	var id int64
	cmd := &cobra.Command{
		Use:   "edit-event",
		Short: "Edit an existing hall event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return errors.New("--id is required")
			}
			event, err := flags.toEvent()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			log := newLogger()
			gw, closeGw, err := openGateway(ctx, log)
			if err != nil {
				return err
			}
			defer closeGw()

			if err := catalog.NewAdmin(gw).UpdateEvent(ctx, id, event); err != nil {
				return err
			}
			fmt.Printf("Updated event %d.\n", id)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "event id")
	flags.register(cmd)
	return cmd
}

func announceCmd() *cobra.Command {
	var title, message string
	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Post an announcement to the hall feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger()
			gw, closeGw, err := openGateway(ctx, log)
			if err != nil {
				return err
			}
			defer closeGw()

			posted, err := catalog.NewAdmin(gw).PostAnnouncement(ctx, title, message)
			if err != nil {
				return err
			}
			fmt.Printf("Posted announcement %d: %s\n", posted.ID, posted.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "announcement title")
	cmd.Flags().StringVar(&message, "message", "", "announcement message")
	return cmd
}
