package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"workfolio/cmd/internal/credential"
	"workfolio/cmd/security/token"

	"github.com/coder/websocket"
)

type gatewayFixture struct {
	srv     *httptest.Server
	gw      *Gateway
	hasher  token.Hasher
	cookies *credential.Cookies
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	hasher := token.NewHasher([]byte("0123456789abcdef0123456789abcdef"))
	cfg := GatewayConfig{
		OriginRequired:    true,
		AllowedOrigins:    []string{"http://127.0.0.1"},
		HeartbeatInterval: time.Hour,
		RateEvents:        5,
		RateWindow:        time.Minute,
	}
	gw := NewGateway(nil, NewHub(nil), cfg, hasher)
	cookies := credential.NewCookies(credential.DefaultConfig(credential.NamespaceUser))

	mux := http.NewServeMux()
	gw.Register(mux, cookies)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &gatewayFixture{srv: srv, gw: gw, hasher: hasher, cookies: cookies}
}

func (f *gatewayFixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + EventsPath(credential.NamespaceUser)
}

func (f *gatewayFixture) dial(t *testing.T, ctx context.Context, refresh string) *websocket.Conn {
	t.Helper()

	h := http.Header{}
	h.Set("Origin", f.srv.URL)
	h.Set("Cookie", "portal_at=access; portal_rt="+refresh)

	conn, resp, err := websocket.Dial(ctx, f.wsURL(), &websocket.DialOptions{
		HTTPHeader:   h,
		Subprotocols: []string{wsSubprotocolV1},
	})
	if err != nil {
		t.Fatalf("dial: %v (resp=%v)", err, resp)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMsg(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func writeMsg(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) {
	t.Helper()

	b, _ := json.Marshal(Message{V: Version, Type: typ, TS: time.Now().UTC()})
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// hello waits for the hello.ack so the server side subscription is known to exist.
func hello(t *testing.T, ctx context.Context, conn *websocket.Conn) HelloAckPayload {
	t.Helper()

	writeMsg(t, ctx, conn, TypeHello)
	m := readMsg(t, ctx, conn)
	if m.Type != TypeHelloAck {
		t.Fatalf("expected %s, got %+v", TypeHelloAck, m)
	}
	var ack HelloAckPayload
	if err := json.Unmarshal(m.Payload, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return ack
}

func TestGateway_RejectsWithoutRefreshCookie(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := http.Header{}
	h.Set("Origin", f.srv.URL)
	_, resp, err := websocket.Dial(ctx, f.wsURL(), &websocket.DialOptions{
		HTTPHeader:   h,
		Subprotocols: []string{wsSubprotocolV1},
	})
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestGateway_RejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := http.Header{}
	h.Set("Origin", "https://evil.example")
	h.Set("Cookie", "portal_rt=r1")
	_, resp, err := websocket.Dial(ctx, f.wsURL(), &websocket.DialOptions{
		HTTPHeader:   h,
		Subprotocols: []string{wsSubprotocolV1},
	})
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestGateway_HelloAck(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := f.dial(t, ctx, "r1")
	ack := hello(t, ctx, conn)
	if ack.SessionID == "" {
		t.Fatalf("expected session id")
	}
	if ack.Namespace != string(credential.NamespaceUser) {
		t.Fatalf("unexpected namespace %q", ack.Namespace)
	}

	writeMsg(t, ctx, conn, "bogus")
	if m := readMsg(t, ctx, conn); m.Type != TypeError {
		t.Fatalf("expected error frame, got %+v", m)
	}
}

func TestGateway_RenewedThenTerminated(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := f.dial(t, ctx, "r1")
	hello(t, ctx, conn)

	oldHash, newHash := f.hasher.Hex("r1"), f.hasher.Hex("r2")
	if got := f.gw.Hub().Subscribers(credential.NamespaceUser, oldHash); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	f.gw.Hub().Renewed(credential.NamespaceUser, oldHash, newHash)
	if m := readMsg(t, ctx, conn); m.Type != TypeRenewed {
		t.Fatalf("expected %s, got %+v", TypeRenewed, m)
	}

	// The subscription follows the rotated credential.
	f.gw.Hub().Terminated(credential.NamespaceUser, newHash)
	if m := readMsg(t, ctx, conn); m.Type != TypeTerminated {
		t.Fatalf("expected %s, got %+v", TypeTerminated, m)
	}

	_, _, err := conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure, got %v", err)
	}
}

func TestGateway_RateLimitClosesConnection(t *testing.T) {
	t.Parallel()

	f := newGatewayFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := f.dial(t, ctx, "r1")
	for i := 0; i < 6; i++ {
		writeMsg(t, ctx, conn, TypeHello)
	}

	for {
		_, _, err := conn.Read(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("connection was not closed")
		}
		if s := websocket.CloseStatus(err); s != websocket.StatusPolicyViolation && s != -1 {
			t.Fatalf("unexpected close status %v", s)
		}
		return
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatterns([]string{"http://localhost:3000", "https://LOCALHOST", "*", "", "app.example.com"})
	want := []string{"app.example.com", "localhost"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
}
