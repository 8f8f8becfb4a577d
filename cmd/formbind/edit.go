package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	formbind "github.com/goliatone/go-formbind"
	"github.com/goliatone/go-formbind/internal/mockbackend"
	"github.com/goliatone/go-formbind/internal/prompt"
	"github.com/goliatone/go-formbind/pkg/data"
	"github.com/goliatone/go-formbind/pkg/proxy"
	"github.com/goliatone/go-formbind/pkg/proxy/jsonrpc"
)

func runEdit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	configPath := fs.String("config", "", "configuration file")
	dn := fs.String("dn", "", "object to edit")
	mock := fs.Bool("mock", false, "use the in-process mock directory")
	pageSize := fs.Int("page-size", 12, "menu page size")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dn == "" {
		return errors.New("-dn is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	session, err := newSession(cfg)
	if err != nil {
		return err
	}
	b, err := backend(ctx, cfg, *mock)
	if err != nil {
		return err
	}

	bus := proxy.NewBus(0)
	bus.Start(ctx)
	defer bus.Stop()

	switch src := b.(type) {
	case *mockbackend.Store:
		src.OnEvent(func(evt proxy.Event) { bus.Publish(ctx, evt) })
	case *jsonrpc.Client:
		if cfg.Events != "" {
			go func() {
				if err := src.Subscribe(ctx, cfg.Events, bus); err != nil {
					log.Printf("events: %v", err)
				}
			}()
		}
	}

	// Bus events and write-back errors arrive on other goroutines; the
	// widget tree is only touched from the prompt loop.
	queue := prompt.NewQueue()
	factory := newFactory(cfg, b, proxy.WithBus(bus))
	editor, err := formbind.OpenEditor(ctx, factory, session, proxy.OpenRequest{DN: *dn},
		data.WithDispatcher(queue.Dispatch))
	if err != nil {
		return err
	}
	defer editor.Close(context.Background())

	ui := prompt.NewEditor(editor.Controller,
		prompt.WithDriver(prompt.NewSurveyDriver(os.Stdout)),
		prompt.WithPageSize(*pageSize),
		prompt.WithQueue(queue),
	)
	if err := ui.Run(ctx); err != nil && !errors.Is(err, prompt.ErrAborted) {
		return err
	}
	return nil
}
