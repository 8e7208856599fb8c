// Command hallctl exercises the hall event client core from the
// terminal: browse upcoming events, join and cancel registrations, read
// announcements, and run the hall-administrator operations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/hallhub/hallhub/internal/gateway"
	"github.com/hallhub/hallhub/internal/gateway/postgres"
	"github.com/hallhub/hallhub/internal/gateway/rest"
)

const appName = "hallctl"

// cliConfig selects the gateway and, for direct-database use, the
// session identity.
type cliConfig struct {
	Gateway   string `env:"HALLHUB_GATEWAY" envDefault:"rest"`
	UserID    string `env:"HALLHUB_USER_ID"`
	UserEmail string `env:"HALLHUB_USER_EMAIL"`
	Verbose   bool   `env:"HALLHUB_VERBOSE"`
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Hall event client",
		Long:          "hallctl browses hall events, manages RSVPs, and posts announcements through the configured gateway.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		eventsCmd(),
		browseCmd(),
		joinCmd(),
		cancelCmd(),
		announcementsCmd(),
		adminCmd(),
	)
	return root
}

// openGateway builds the configured gateway implementation.
func openGateway(ctx context.Context, log *slog.Logger) (gateway.Gateway, func(), error) {
	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, nil, fmt.Errorf("parse cli config: %w", err)
	}

	switch cfg.Gateway {
	case "rest":
		restCfg, err := rest.ConfigFromEnv()
		if err != nil {
			return nil, nil, err
		}
		return rest.New(restCfg), func() {}, nil
	case "postgres":
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			return nil, nil, err
		}
		pool, err := postgres.NewPool(ctx, dbCfg, log)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.New(pool)
		if cfg.UserID != "" {
			store.SetIdentity(&gateway.Identity{ID: cfg.UserID, Email: cfg.UserEmail})
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown gateway %q (want rest or postgres)", cfg.Gateway)
	}
}

func newLogger() *slog.Logger {
	var cfg cliConfig
	_ = env.Parse(&cfg)
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
