package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/goliatone/go-formbind/internal/mockbackend"
)

func runServeMock(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve-mock", flag.ContinueOnError)
	configPath := fs.String("config", "", "configuration file")
	addr := fs.String("addr", "", "listen address (overrides mock.addr)")
	seed := fs.String("seed", "", "extra seed objects (overrides mock.seed)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Mock.Addr = *addr
	}
	if *seed != "" {
		cfg.Mock.Seed = *seed
	}

	store, err := mockbackend.New(ctx)
	if err != nil {
		return err
	}
	if cfg.Mock.Seed != "" {
		raw, err := os.ReadFile(cfg.Mock.Seed)
		if err != nil {
			return fmt.Errorf("read seed: %w", err)
		}
		if err := store.Seed(raw); err != nil {
			return err
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Logger, middleware.Recoverer)
	mockbackend.NewServer(store, log.Default()).RegisterRoutes(r)

	srv := &http.Server{Addr: cfg.Mock.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Printf("mock directory listening on %s (%d objects)", cfg.Mock.Addr, len(store.DNs()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}
