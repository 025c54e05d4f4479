package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

const (
	defaultClientQueue = 16
	clientWriteTimeout = 5 * time.Second
	hubShutdownTimeout = 2 * time.Second
)

// Hub broadcasts caption lines to connected WebSocket clients as text
// messages. Each client gets a bounded send queue; a client that cannot keep
// up is disconnected rather than allowed to stall the broadcast. The Hub is
// an http.Handler and can also serve itself via [Hub.Listen].
type Hub struct {
	log       *slog.Logger
	queueSize int

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
	srv     *http.Server
	ln      net.Listener
}

var _ Sink = (*Hub)(nil)

type hubClient struct {
	send chan []byte
	once sync.Once
	gone chan struct{}
}

func (c *hubClient) drop() {
	c.once.Do(func() { close(c.gone) })
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithHubLogger sets the logger. Defaults to [slog.Default].
func WithHubLogger(log *slog.Logger) HubOption {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithClientQueue sets the per-client send queue depth. Default: 16.
func WithClientQueue(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		log:       slog.Default(),
		queueSize: defaultClientQueue,
		clients:   make(map[*hubClient]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Listen binds addr and serves the hub on it in the background. Bind errors
// surface immediately; serve errors after that are logged.
func (h *Hub) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("websocket sink: listen %q: %w", addr, err)
	}

	h.mu.Lock()
	h.ln = ln
	h.srv = &http.Server{Handler: h}
	srv := h.srv
	h.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("websocket sink server failed", "error", err)
		}
	}()
	h.log.Info("websocket caption sink listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address after [Hub.Listen], or "".
func (h *Hub) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln == nil {
		return ""
	}
	return h.ln.Addr().String()
}

// ServeHTTP upgrades the request and streams caption lines until the client
// disconnects, falls behind, or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Captions are one-way broadcast output; any page may watch them
		// (OBS browser overlays connect from arbitrary origins).
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	cl := &hubClient{
		send: make(chan []byte, h.queueSize),
		gone: make(chan struct{}),
	}
	if !h.add(cl) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.remove(cl)

	// CloseRead discards inbound frames and cancels the context when the
	// client goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case <-cl.gone:
			if h.isClosed() {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
			} else {
				conn.Close(websocket.StatusPolicyViolation, "send queue overflow")
			}
			return
		case msg := <-cl.send:
			wctx, cancel := context.WithTimeout(ctx, clientWriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Write implements [Sink]. The caption line is queued to every client; a
// client with a full queue is dropped.
func (h *Hub) Write(c types.Caption) error {
	line := []byte(c.Text)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	for cl := range h.clients {
		select {
		case cl.send <- line:
		default:
			h.log.Warn("dropping slow websocket client")
			cl.drop()
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close implements [Sink]. Connected clients are told the server is going
// away; the owned listener, if any, is shut down.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	srv := h.srv
	h.mu.Unlock()

	for _, cl := range clients {
		cl.drop()
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), hubShutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}
	return nil
}

func (h *Hub) add(cl *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	return true
}

func (h *Hub) remove(cl *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, cl)
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
