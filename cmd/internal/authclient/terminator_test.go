package authclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"workfolio/cmd/internal/events"
)

func TestTerminator_ConcurrentCallsActOnce(t *testing.T) {
	t.Parallel()

	nav := &countingNavigator{}
	store := &countingClearer{}
	bus := events.NewBus(8)
	terminated, cancel := bus.Subscribe(events.SessionTerminated)
	defer cancel()

	term := NewTerminator(nav, "/login", WithStore(store), WithSignals(bus))

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if term.Terminate(context.Background(), ErrRenewalRejected, nil) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners=%d want 1", winners)
	}
	if nav.calls.Load() != 1 || store.calls.Load() != 1 {
		t.Fatalf("navigations=%d clears=%d, want 1 each", nav.calls.Load(), store.calls.Load())
	}
	select {
	case <-terminated:
	case <-time.After(time.Second):
		t.Fatalf("expected %s", events.SessionTerminated)
	}
	select {
	case ev := <-terminated:
		t.Fatalf("duplicate signal %+v", ev)
	default:
	}
}

func TestTerminator_Reset(t *testing.T) {
	t.Parallel()

	nav := &countingNavigator{}
	term := NewTerminator(nav, "/login")

	term.Terminate(context.Background(), ErrNoRefreshCredential, nil)
	if !term.Terminated() {
		t.Fatalf("expected terminated")
	}
	term.Reset()
	if term.Terminated() || term.Err() != nil {
		t.Fatalf("expected reset state")
	}
	term.Terminate(context.Background(), ErrRetryStillUnauthorized, nil)
	if nav.calls.Load() != 2 {
		t.Fatalf("navigations=%d want 2", nav.calls.Load())
	}
	if !errors.Is(term.Err(), ErrRetryStillUnauthorized) {
		t.Fatalf("err=%v", term.Err())
	}
}

func TestTerminationError(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: refused")
	err := error(&TerminationError{Reason: ErrRenewalTransport, Err: cause})
	if !errors.Is(err, ErrRenewalTransport) || !errors.Is(err, cause) {
		t.Fatalf("errors.Is failed for %v", err)
	}
	var te *TerminationError
	if !errors.As(err, &te) || te.Reason != ErrRenewalTransport {
		t.Fatalf("errors.As failed for %v", err)
	}
}

func TestNilTerminatorIsNoop(t *testing.T) {
	t.Parallel()

	var term *Terminator
	if term.Terminate(context.Background(), ErrRenewalRejected, nil) {
		t.Fatalf("nil terminator reported termination")
	}
}
