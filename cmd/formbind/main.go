package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	formbind "github.com/goliatone/go-formbind"
	"github.com/goliatone/go-formbind/internal/config"
	"github.com/goliatone/go-formbind/internal/mockbackend"
	"github.com/goliatone/go-formbind/pkg/engine"
	"github.com/goliatone/go-formbind/pkg/proxy"
	"github.com/goliatone/go-formbind/pkg/proxy/jsonrpc"
)

const usage = `Usage: %s <command> [flags]

Commands:
  preview     render a template, optionally hydrated from an object
  edit        edit an object interactively
  lint        compile templates and report problems
  serve-mock  serve the in-memory directory over JSON-RPC
`

func main() {
	log.SetFlags(0)
	log.SetPrefix("formbind: ")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "preview":
		err = runPreview(ctx, args, os.Stdout)
	case "edit":
		err = runEdit(ctx, args)
	case "lint":
		err = runLint(args, os.Stderr)
	case "serve-mock":
		err = runServeMock(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprintf(os.Stdout, usage, filepath.Base(os.Args[0]))
		return
	default:
		fmt.Fprintf(os.Stderr, usage, filepath.Base(os.Args[0]))
		os.Exit(2)
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		stop()
		log.Fatalf("%s: %v", cmd, err)
	}
}

// loadConfig reads path, falling back to FORMBIND_CONFIG when it is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		path = os.Getenv("FORMBIND_CONFIG")
	}
	return config.Load(path)
}

// newSession builds a session over the configured template directory, or the
// embedded templates when none is set.
func newSession(cfg config.Config, extra ...engine.Option) (*engine.Session, error) {
	opts := []engine.Option{engine.WithLocale(cfg.Locale)}
	if cfg.Strict {
		opts = append(opts, engine.WithStrictProperties())
	}
	selector, err := cfg.Theme.Selector()
	if err != nil {
		return nil, err
	}
	if selector != nil {
		opts = append(opts, engine.WithTheme(selector, selector.DefaultTheme, cfg.Theme.Variant))
	}
	opts = append(opts, extra...)

	if cfg.Templates == "" {
		return formbind.NewSession(nil, opts...)
	}
	return formbind.NewSession(os.DirFS(cfg.Templates), opts...)
}

// backend returns the in-process mock store when mock is set, otherwise a
// JSON-RPC client for the configured endpoint.
func backend(ctx context.Context, cfg config.Config, mock bool) (proxy.Backend, error) {
	if mock {
		store, err := mockbackend.New(ctx)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("no endpoint configured")
	}
	return jsonrpc.NewClient(cfg.Endpoint), nil
}

func newFactory(cfg config.Config, b proxy.Backend, opts ...proxy.Option) *proxy.Factory {
	base := []proxy.Option{
		proxy.WithLocale(cfg.Locale),
		proxy.WithDebounce(cfg.Debounce),
		proxy.WithWriteTimeout(cfg.WriteTimeout),
	}
	return proxy.NewFactory(b, append(base, opts...)...)
}
