package realtime

import (
	"testing"
	"time"

	"workfolio/cmd/internal/credential"
)

type countingObserver struct {
	pushed map[string]int
}

func (o *countingObserver) EventPushed(namespace, typ string) {
	if o.pushed == nil {
		o.pushed = make(map[string]int)
	}
	o.pushed[namespace+"/"+typ]++
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case m := <-c.Send:
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message on %s", c.SessionID)
		return Message{}
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case m := <-c.Send:
		t.Fatalf("unexpected message on %s: %+v", c.SessionID, m)
	default:
	}
}

func TestHub_RenewedRefilesAndPushes(t *testing.T) {
	t.Parallel()

	obs := &countingObserver{}
	h := NewHub(nil, WithHubObserver(obs))

	a := NewClient(credential.NamespaceUser, "a", 4)
	b := NewClient(credential.NamespaceUser, "b", 4)
	other := NewClient(credential.NamespaceUser, "c", 4)
	h.Subscribe(credential.NamespaceUser, "old", a)
	h.Subscribe(credential.NamespaceUser, "old", b)
	h.Subscribe(credential.NamespaceUser, "unrelated", other)

	h.Renewed(credential.NamespaceUser, "old", "new")

	for _, c := range []*Client{a, b} {
		m := recv(t, c)
		if m.Type != TypeRenewed || m.V != Version {
			t.Fatalf("unexpected message: %+v", m)
		}
	}
	assertEmpty(t, other)

	if got := h.Subscribers(credential.NamespaceUser, "old"); got != 0 {
		t.Fatalf("expected old topic empty, got %d", got)
	}
	if got := h.Subscribers(credential.NamespaceUser, "new"); got != 2 {
		t.Fatalf("expected 2 subscribers on new topic, got %d", got)
	}
	if got := obs.pushed["user/"+TypeRenewed]; got != 2 {
		t.Fatalf("expected 2 observed pushes, got %d", got)
	}
}

func TestHub_NamespacesAreIsolated(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	user := NewClient(credential.NamespaceUser, "u", 4)
	admin := NewClient(credential.NamespaceAdmin, "a", 4)
	h.Subscribe(credential.NamespaceUser, "same", user)
	h.Subscribe(credential.NamespaceAdmin, "same", admin)

	h.Terminated(credential.NamespaceAdmin, "same")

	if m := recv(t, admin); m.Type != TypeTerminated {
		t.Fatalf("unexpected admin message: %+v", m)
	}
	assertEmpty(t, user)
	if got := h.Subscribers(credential.NamespaceUser, "same"); got != 1 {
		t.Fatalf("user subscription should survive, got %d", got)
	}
}

func TestHub_TerminatedDropsSubscribers(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	c := NewClient(credential.NamespaceUser, "a", 4)
	h.Subscribe(credential.NamespaceUser, "h1", c)

	h.Terminated(credential.NamespaceUser, "h1")
	if m := recv(t, c); m.Type != TypeTerminated {
		t.Fatalf("unexpected message: %+v", m)
	}
	if got := h.Subscribers(credential.NamespaceUser, "h1"); got != 0 {
		t.Fatalf("expected no subscribers, got %d", got)
	}

	// A later rotation of the same hash reaches nobody.
	h.Renewed(credential.NamespaceUser, "h1", "h2")
	assertEmpty(t, c)
}

func TestHub_UnsubscribeClosesClient(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	c := NewClient(credential.NamespaceUser, "a", 4)
	h.Subscribe(credential.NamespaceUser, "h1", c)
	h.Unsubscribe("a")

	select {
	case <-c.Done():
	default:
		t.Fatalf("expected client to be closed")
	}
	if got := h.Subscribers(credential.NamespaceUser, "h1"); got != 0 {
		t.Fatalf("expected no subscribers, got %d", got)
	}
	if c.offer(newMessage(TypeRenewed, nil, time.Now())) {
		t.Fatalf("closed client must refuse messages")
	}
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	c := NewClient(credential.NamespaceUser, "a", 1)
	h.Subscribe(credential.NamespaceUser, "h1", c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			h.Renewed(credential.NamespaceUser, "h1", "h1")
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("push blocked on a full client queue")
	}
	if got := len(c.Send); got != 1 {
		t.Fatalf("expected exactly one queued message, got %d", got)
	}
}

func TestRateLimiter_Window(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Second)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if !rl.Allow(t0) || !rl.Allow(t0.Add(100*time.Millisecond)) {
		t.Fatalf("first two events must pass")
	}
	if rl.Allow(t0.Add(200 * time.Millisecond)) {
		t.Fatalf("third event in window must be rejected")
	}
	if !rl.Allow(t0.Add(time.Second)) {
		t.Fatalf("new window must reset the counter")
	}
}
