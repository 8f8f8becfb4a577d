package proxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// EventType names a server-side object change.
type EventType string

const (
	EventCreated  EventType = "create"
	EventModified EventType = "update"
	EventRemoved  EventType = "remove"
	EventClosing  EventType = "closing"
)

// Event is a push notification about a remote object.
type Event struct {
	Type EventType `json:"changeType"`
	UUID string    `json:"uuid,omitempty"`
	DN   string    `json:"dn,omitempty"`
	// Reloading marks an update the receiving client triggered itself and is
	// already refreshing for.
	Reloading bool `json:"reloading,omitempty"`
}

// Validate checks the event type and identity keys.
func (e Event) Validate() error {
	switch e.Type {
	case EventCreated, EventModified, EventRemoved, EventClosing:
	default:
		return fmt.Errorf("proxy: unknown event type %q", e.Type)
	}
	if e.UUID == "" && e.DN == "" {
		return errors.New("proxy: event carries neither uuid nor dn")
	}
	if e.UUID != "" {
		if _, err := uuid.Parse(e.UUID); err != nil {
			return fmt.Errorf("proxy: event uuid %q: %w", e.UUID, err)
		}
	}
	return nil
}

// Handler processes a push event. Implementations must be safe for calls from
// the bus goroutine.
type Handler interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Bus delivers push events to subscribers. Events are queued on a buffered
// channel and dispatched in order by a single consumer goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]namedHandler
	nextID      int
	events      chan Event
	done        chan struct{}
	logger      *log.Logger
	closed      bool
	startOnce   sync.Once
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewBus creates a Bus with the given buffer size.
func NewBus(bufSize int) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	return &Bus{
		subscribers: make(map[int]namedHandler),
		events:      make(chan Event, bufSize),
		done:        make(chan struct{}),
		logger:      log.Default(),
	}
}

// SetLogger replaces the logger used for dropped events and handler errors.
func (b *Bus) SetLogger(logger *log.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Subscribe registers a named handler and returns a function removing it.
func (b *Bus) Subscribe(name string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = namedHandler{name: name, handler: h}
	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Publish queues an event. It never blocks: invalid events and events that do
// not fit the buffer are dropped with a log line, and false is returned.
func (b *Bus) Publish(_ context.Context, evt Event) bool {
	if err := evt.Validate(); err != nil {
		b.logger.Printf("proxy: bus: dropping invalid event: %v", err)
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.events <- evt:
		return true
	default:
		b.logger.Printf("proxy: bus: buffer full, dropping %s event for %s%s", evt.Type, evt.UUID, evt.DN)
		return false
	}
}

// Start runs the consumer goroutine until ctx is cancelled or Stop is called.
// Remaining queued events are dispatched before it exits.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.run(ctx)
	})
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case evt, ok := <-b.events:
			if !ok {
				return
			}
			b.dispatch(ctx, evt)
		case <-ctx.Done():
			for {
				select {
				case evt, ok := <-b.events:
					if !ok {
						return
					}
					b.dispatch(ctx, evt)
				default:
					return
				}
			}
		}
	}
}

// Stop closes the queue and waits for the consumer goroutine to finish. The
// bus must have been started.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) dispatch(ctx context.Context, evt Event) {
	b.mu.RLock()
	subs := make([]namedHandler, 0, len(b.subscribers))
	ids := make([]int, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, b.subscribers[id])
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			b.logger.Printf("proxy: bus: %s handler error for %s: %v", s.name, evt.Type, err)
		}
	}
}
