// Command devserver runs the local backend emulator: the hosted
// backend's REST dialect over an in-memory store, optionally seeded
// from a YAML fixture file.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hallhub/hallhub/internal/gateway/devserver"
	"github.com/hallhub/hallhub/internal/gateway/memory"
)

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	seedPath := flag.String("seed", "", "YAML seed fixture to load at startup")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	store := memory.New()
	if *seedPath != "" {
		seed, err := devserver.LoadSeed(*seedPath)
		if err != nil {
			log.Error("load seed", "error", err)
			os.Exit(1)
		}
		if err := seed.Apply(ctx, store); err != nil {
			log.Error("apply seed", "error", err)
			os.Exit(1)
		}
		log.Info("seed applied", "path", *seedPath)
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      devserver.New(store, log).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("devserver listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
