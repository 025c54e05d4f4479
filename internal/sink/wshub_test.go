package sink

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub(WithHubLogger(testLogger()))
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var conns []*websocket.Conn
	for range 2 {
		conn, _, err := websocket.Dial(ctx, srv.URL, nil)
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		conns = append(conns, conn)
	}
	waitFor(t, "clients to register", func() bool { return h.ClientCount() == 2 })

	if err := h.Write(types.Caption{Text: "[Alice] Hello."}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for i, conn := range conns {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("client %d read: %v", i, err)
		}
		if typ != websocket.MessageText {
			t.Errorf("client %d message type = %v, want text", i, typ)
		}
		if got := string(data); got != "[Alice] Hello." {
			t.Errorf("client %d received %q, want %q", i, got, "[Alice] Hello.")
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	h := NewHub(WithHubLogger(testLogger()), WithClientQueue(1))

	cl := &hubClient{send: make(chan []byte, 1), gone: make(chan struct{})}
	h.clients[cl] = struct{}{}

	if err := h.Write(types.Caption{Text: "one"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case <-cl.gone:
		t.Fatal("client dropped while its queue still had room")
	default:
	}

	// Queue is full now; the next write must drop the client.
	if err := h.Write(types.Caption{Text: "two"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case <-cl.gone:
	default:
		t.Fatal("slow client was not dropped")
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	h := NewHub(WithHubLogger(testLogger()))
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()
	waitFor(t, "client to register", func() bool { return h.ClientCount() == 1 })

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("read after hub close succeeded, want connection closed")
	}
	waitFor(t, "client to unregister", func() bool { return h.ClientCount() == 0 })

	// Writes after close are silent no-ops.
	if err := h.Write(types.Caption{Text: "late"}); err != nil {
		t.Errorf("Write after Close: %v", err)
	}
}

func TestHubListen(t *testing.T) {
	h := NewHub(WithHubLogger(testLogger()))
	if err := h.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer h.Close()

	addr := h.Addr()
	if addr == "" {
		t.Fatal("Addr() is empty after Listen")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "http://"+addr, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, "client to register", func() bool { return h.ClientCount() == 1 })

	if err := h.Write(types.Caption{Text: "live"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(data); got != "live" {
		t.Errorf("received %q, want %q", got, "live")
	}
}
