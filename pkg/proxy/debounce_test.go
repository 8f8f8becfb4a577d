package proxy

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	var last atomic.Value
	for i := 0; i < 5; i++ {
		v := i
		d.Trigger("mail", func() {
			calls.Add(1)
			last.Store(v)
		})
	}
	if got := d.Pending(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(40 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	if got := last.Load(); got != 4 {
		t.Fatalf("last = %v, want 4", got)
	}
}

func TestDebouncerFlushAndStop(t *testing.T) {
	d := NewDebouncer(time.Hour)
	ran := map[string]bool{}
	d.Trigger("a", func() { ran["a"] = true })
	d.Trigger("b", func() { ran["b"] = true })
	d.Flush()
	if !ran["a"] || !ran["b"] || d.Pending() != 0 {
		t.Fatalf("flush did not run every pending call: %v", ran)
	}

	d.Trigger("c", func() { ran["c"] = true })
	d.Stop()
	d.Flush()
	if ran["c"] {
		t.Fatalf("stopped call ran")
	}
}

func TestDebouncerFlushWaitsForRunningCall(t *testing.T) {
	d := NewDebouncer(time.Millisecond)
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	d.Trigger("mail", func() {
		close(started)
		<-release
		finished.Store(true)
	})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer never fired")
	}

	flushed := make(chan struct{})
	go func() {
		d.Flush()
		close(flushed)
	}()
	select {
	case <-flushed:
		t.Fatalf("flush returned while the call was still running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatalf("flush never returned")
	}
	if !finished.Load() {
		t.Fatalf("flush returned before the call finished")
	}
	if got := d.Pending(); got != 0 {
		t.Fatalf("pending = %d, want 0", got)
	}
}

func TestDebouncerFlushKeepsFiredCall(t *testing.T) {
	d := NewDebouncer(time.Millisecond)
	var ran atomic.Bool
	d.Trigger("mail", func() { ran.Store(true) })

	// Hold the lock so the fired timer is parked before it claims the entry.
	d.mu.Lock()
	time.Sleep(20 * time.Millisecond)
	flushed := make(chan struct{})
	go func() {
		d.Flush()
		close(flushed)
	}()
	time.Sleep(10 * time.Millisecond)
	d.mu.Unlock()

	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatalf("flush never returned")
	}
	if !ran.Load() {
		t.Fatalf("fired call was dropped by flush")
	}
}

func TestDebouncerZeroWindowRunsImmediately(t *testing.T) {
	d := NewDebouncer(0)
	ran := false
	d.Trigger("x", func() { ran = true })
	if !ran {
		t.Fatalf("expected immediate call")
	}
}

func TestBusDispatchesInOrder(t *testing.T) {
	bus := NewBus(4)
	var mu sync.Mutex
	var seen []EventType
	bus.Subscribe("recorder", HandlerFunc(func(_ context.Context, evt Event) error {
		mu.Lock()
		seen = append(seen, evt.Type)
		mu.Unlock()
		return nil
	}))

	ctx := context.Background()
	dn := "cn=x,dc=example"
	for _, typ := range []EventType{EventCreated, EventModified, EventRemoved} {
		if !bus.Publish(ctx, Event{Type: typ, DN: dn}) {
			t.Fatalf("publish %s failed", typ)
		}
	}
	bus.Start(ctx)
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []EventType{EventCreated, EventModified, EventRemoved}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
	if bus.Publish(ctx, Event{Type: EventCreated, DN: dn}) {
		t.Fatalf("publish after stop should fail")
	}
}

func TestBusPublishDropsInvalidAndOverflow(t *testing.T) {
	bus := NewBus(1)
	ctx := context.Background()
	if bus.Publish(ctx, Event{Type: "explode", DN: "cn=x"}) {
		t.Fatalf("unknown type accepted")
	}
	if bus.Publish(ctx, Event{Type: EventCreated}) {
		t.Fatalf("event without identity accepted")
	}
	if bus.Publish(ctx, Event{Type: EventCreated, UUID: "not-a-uuid"}) {
		t.Fatalf("malformed uuid accepted")
	}
	if !bus.Publish(ctx, Event{Type: EventCreated, DN: "cn=x"}) {
		t.Fatalf("first event rejected")
	}
	if bus.Publish(ctx, Event{Type: EventCreated, DN: "cn=y"}) {
		t.Fatalf("overflowing event accepted")
	}
}

func TestValuesHelpers(t *testing.T) {
	if !IsEmptyValue(Values{"", nil, "  "}) {
		t.Fatalf("blank container should be empty")
	}
	if IsEmptyValue(Values{"x"}) {
		t.Fatalf("non-blank container reported empty")
	}
	if !(Values{"a", 1}).Equal(Values{"a", 1}) || (Values{"a"}).Equal(Values{"b"}) {
		t.Fatalf("Equal mismatch")
	}
	if got := Single(nil); len(got) != 0 {
		t.Fatalf("Single(nil) = %v", got)
	}
	orig := Values{[]any{"nested"}}
	clone := orig.Clone()
	clone[0].([]any)[0] = "changed"
	if orig[0].([]any)[0] != "nested" {
		t.Fatalf("Clone is shallow")
	}
}
