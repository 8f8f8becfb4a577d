package data

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// ActionFunc runs a named action.
type ActionFunc func(ctx context.Context) error

// ActionController collects the named actions of an edit session and the
// errors raised by asynchronous work such as write-backs.
type ActionController struct {
	logger *log.Logger

	mu      sync.Mutex
	actions map[string]ActionFunc
	order   []string
	errs    chan error
	closed  bool
}

// NewActionController returns a controller whose error channel buffers up to
// buffer errors. Errors that do not fit are logged and dropped.
func NewActionController(buffer int, logger *log.Logger) *ActionController {
	if buffer < 1 {
		buffer = 16
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ActionController{
		logger:  logger,
		actions: make(map[string]ActionFunc),
		errs:    make(chan error, buffer),
	}
}

// Register adds action name. Names are unique.
func (a *ActionController) Register(name string, fn ActionFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("data: action requires a name and a function")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.actions[name]; exists {
		return fmt.Errorf("data: duplicate action %q", name)
	}
	a.actions[name] = fn
	a.order = append(a.order, name)
	return nil
}

// Names returns the registered actions in registration order.
func (a *ActionController) Names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order...)
}

// Invoke runs action name. A failure is returned and reported.
func (a *ActionController) Invoke(ctx context.Context, name string) error {
	a.mu.Lock()
	fn, ok := a.actions[name]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("data: unknown action %q", name)
	}
	if err := fn(ctx); err != nil {
		err = fmt.Errorf("data: action %s: %w", name, err)
		a.Report(err)
		return err
	}
	return nil
}

// Report publishes err on the error channel without blocking.
func (a *ActionController) Report(err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.logger.Printf("data: error after close: %v", err)
		return
	}
	select {
	case a.errs <- err:
	default:
		a.logger.Printf("data: error channel full, dropping: %v", err)
	}
}

// Errors returns the error channel. It is closed by Close.
func (a *ActionController) Errors() <-chan error { return a.errs }

// Close closes the error channel.
func (a *ActionController) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.errs)
	}
}
