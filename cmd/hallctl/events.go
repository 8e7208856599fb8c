package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hallhub/hallhub/internal/browser"
	"github.com/hallhub/hallhub/internal/capacity"
	"github.com/hallhub/hallhub/internal/catalog"
	"github.com/hallhub/hallhub/internal/gateway"
	"github.com/hallhub/hallhub/internal/model"
	"github.com/hallhub/hallhub/internal/registration"
)

func eventsCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List upcoming events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger()
			gw, closeGw, err := openGateway(ctx, log)
			if err != nil {
				return err
			}
			defer closeGw()

			loader := catalog.NewLoader(gw, log)
			now := time.Now()
			events := loader.FetchUpcoming(ctx, now)

			m := browser.New()
			m.SetEvents(events, search, now)
			if m.Empty() {
				fmt.Println("No upcoming events.")
				return nil
			}
			for _, e := range m.Events() {
				printEventLine(e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by title or location")
	return cmd
}

func browseCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse events one card at a time",
		Long:  "Interactive card browser: n = next, p = previous, j = join, c = cancel registration, q = quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger()
			gw, closeGw, err := openGateway(ctx, log)
			if err != nil {
				return err
			}
			defer closeGw()

			loader := catalog.NewLoader(gw, log)
			now := time.Now()
			m := browser.New()
			m.SetEvents(loader.FetchUpcoming(ctx, now), search, now)
			if m.Empty() {
				fmt.Println("No upcoming events.")
				return nil
			}

			ctrl := registration.NewController(gw, log, confirmOnTerminal)
			scanner := bufio.NewScanner(os.Stdin)
			for {
				ev, _ := m.Current()
				printCard(ev, m.Position(), m.Len())
				fmt.Print("[n]ext [p]rev [j]oin [c]ancel [q]uit > ")
				if !scanner.Scan() {
					return nil
				}
				switch strings.TrimSpace(scanner.Text()) {
				case "n":
					if _, ok := m.Next(); ok {
						m.Complete()
					}
				case "p":
					if _, ok := m.Previous(); ok {
						m.Complete()
					}
				case "j":
					joinCurrent(ctx, ctrl, loader, m)
				case "c":
					cancelCurrent(ctx, ctrl, loader, gw, m)
				case "q":
					return nil
				}
			}
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by title or location")
	return cmd
}

func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <event-id>",
		Short: "Register for an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("event id must be an integer: %w", err)
			}
			ctx := cmd.Context()
			log := newLogger()
			gw, closeGw, err := openGateway(ctx, log)
			if err != nil {
				return err
			}
			defer closeGw()

			loader := catalog.NewLoader(gw, log)
			event, err := loader.FetchEvent(ctx, id)
			if err != nil {
				return err
			}

			ctrl := registration.NewController(gw, log, nil)
			reg, err := ctrl.Join(ctx, *event)
			if err != nil {
				return describeJoinError(err)
			}
			// Re-fetch for the authoritative participant count.
			if fresh, ferr := loader.FetchEvent(ctx, id); ferr == nil {
				event = fresh
			}
			fmt.Printf("Registered for %q (registration %s). %s\n",
				event.Title, reg.ID, capacityLine(*event))
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "cancel <event-id>",
		Short: "Cancel a registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("event id must be an integer: %w", err)
			}
			ctx := cmd.Context()
			log := newLogger()
			gw, closeGw, err := openGateway(ctx, log)
			if err != nil {
				return err
			}
			defer closeGw()

			identity, err := gw.CurrentIdentity(ctx)
			if err != nil {
				return err
			}
			if identity == nil {
				return errors.New("not signed in")
			}

			loader := catalog.NewLoader(gw, log)
			regs, err := loader.Registrations(ctx, identity.ID)
			if err != nil {
				return err
			}
			var reg *model.Registration
			for i := range regs {
				if regs[i].EventID == id {
					reg = &regs[i]
					break
				}
			}
			if reg == nil {
				return fmt.Errorf("no registration for event %d", id)
			}

			confirm := confirmOnTerminal
			if yes {
				confirm = nil
			}
			ctrl := registration.NewController(gw, log, confirm)
			ctrl.SetRegistered(true)
			if err := ctrl.Cancel(ctx, *reg); err != nil {
				return err
			}
			if ctrl.Phase() == registration.PhaseRegistered {
				fmt.Println("Cancellation aborted.")
				return nil
			}
			fmt.Printf("Cancelled registration for event %d.\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func announcementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "announcements",
		Short: "Show the hall announcement feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger()
			gw, closeGw, err := openGateway(ctx, log)
			if err != nil {
				return err
			}
			defer closeGw()

			loader := catalog.NewLoader(gw, log)
			groups := model.GroupAnnouncements(loader.Announcements(ctx), time.Now())
			if len(groups) == 0 {
				fmt.Println("No announcements.")
				return nil
			}
			for _, g := range groups {
				fmt.Printf("== %s ==\n", g.Label)
				for _, a := range g.Announcements {
					fmt.Printf("  %s - %s\n", a.Title, a.Message)
				}
			}
			return nil
		},
	}
}

func joinCurrent(ctx context.Context, ctrl *registration.Controller, loader *catalog.Loader, m *browser.Machine) {
	ev, ok := m.Current()
	if !ok {
		return
	}
	reg, err := ctrl.Join(ctx, ev)
	if err != nil {
		fmt.Println(describeJoinError(err))
		return
	}
	fmt.Printf("Registered (registration %s).\n", reg.ID)
	refreshCurrent(ctx, loader, m, ev.ID)
}

func cancelCurrent(ctx context.Context, ctrl *registration.Controller, loader *catalog.Loader, gw gateway.Gateway, m *browser.Machine) {
	ev, ok := m.Current()
	if !ok {
		return
	}
	identity, err := gw.CurrentIdentity(ctx)
	if err != nil || identity == nil {
		fmt.Println("sign in to manage registrations")
		return
	}
	regs, err := loader.Registrations(ctx, identity.ID)
	if err != nil {
		fmt.Println(err)
		return
	}
	var reg *model.Registration
	for i := range regs {
		if regs[i].EventID == ev.ID {
			reg = &regs[i]
			break
		}
	}
	if reg == nil {
		fmt.Println("not registered for this event")
		return
	}
	ctrl.SetRegistered(true)
	if err := ctrl.Cancel(ctx, *reg); err != nil {
		fmt.Println(err)
		return
	}
	if ctrl.Phase() == registration.PhaseRegistered {
		fmt.Println("cancellation aborted")
		return
	}
	fmt.Println("Registration cancelled.")
	refreshCurrent(ctx, loader, m, ev.ID)
}

func refreshCurrent(ctx context.Context, loader *catalog.Loader, m *browser.Machine, eventID int64) {
	if fresh, err := loader.FetchEvent(ctx, eventID); err == nil {
		fmt.Println(capacityLine(*fresh))
	}
}

func describeJoinError(err error) error {
	var already *registration.AlreadyRegisteredError
	switch {
	case errors.Is(err, registration.ErrNotAuthenticated):
		return errors.New("sign in to register for events")
	case errors.Is(err, registration.ErrEventFull):
		return errors.New("this event is full")
	case errors.As(err, &already):
		return fmt.Errorf("already registered (registration %s)", already.Existing.ID)
	default:
		return err
	}
}

func confirmOnTerminal(ctx context.Context, reg model.Registration) bool {
	fmt.Printf("Cancel registration for event %d? [y/N] ", reg.EventID)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func printEventLine(e model.Event) {
	fmt.Printf("%4d  %s  %-30s  %s  %s\n",
		e.ID, e.Date.Format("2006-01-02"), e.Title, e.Location, capacityLine(e))
}

func printCard(e model.Event, position, total int) {
	fmt.Printf("\n[%d/%d] %s\n", position+1, total, e.Title)
	fmt.Printf("      %s", e.Date.Format("Mon, 2 Jan 2006"))
	if e.Time != "" {
		fmt.Printf(" at %s", e.Time)
	}
	fmt.Printf(" - %s\n", e.Location)
	if len(e.Tags) > 0 {
		fmt.Printf("      tags: %s\n", strings.Join(e.Tags, ", "))
	}
	fmt.Printf("      %s\n", capacityLine(e))
}

func capacityLine(e model.Event) string {
	if e.MaxParticipants == nil {
		return fmt.Sprintf("%d attending", e.CurrentCount)
	}
	return fmt.Sprintf("%d/%d attending (%.0f%%, %s)",
		e.CurrentCount, *e.MaxParticipants, capacity.Percentage(e), capacity.Of(e))
}
