// Package ipc carries bridge messages between the page and the host over a
// loopback WebSocket.
package ipc

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wizardry/host/internal/bridge"
	"github.com/wizardry/host/internal/clog"
	"github.com/wizardry/host/internal/token"
)

// ErrClosed is returned by Deliver after the page connection has closed.
var ErrClosed = errors.New("page connection closed")

// TokenParam is the query parameter carrying the launch secret.
const TokenParam = "token"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: sameOrigin,
}

// Invoker accepts raw page messages. *bridge.Bridge implements it.
type Invoker interface {
	Invoke(raw []byte, d bridge.Deliverer)
}

// Handler upgrades page connections and feeds their messages to an Invoker.
type Handler struct {
	// Invoker receives every message read from the page.
	Invoker Invoker
	// Token is the launch secret a page must present. Empty disables the check.
	Token string
	// RateLimit bounds exec messages per second per connection. Zero means
	// unlimited.
	RateLimit float64
}

// NewHandler creates a Handler.
func NewHandler(inv Invoker, secret string, rateLimit float64) *Handler {
	return &Handler{Invoker: inv, Token: secret, RateLimit: rateLimit}
}

// ServeHTTP authenticates the page and runs the connection until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		clog.Warn("ipc: rejected connection from %s: bad token", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		clog.Warn("ipc: upgrade failed: %v", err)
		return
	}

	c := &conn{ws: ws}
	clog.Info("ipc: page connected from %s", r.RemoteAddr)
	h.serve(c)
	clog.Info("ipc: page disconnected from %s", r.RemoteAddr)
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.Token == "" {
		return true
	}
	return token.Equal(h.Token, r.URL.Query().Get(TokenParam))
}

// sameOrigin accepts requests without an Origin header and those whose
// Origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Host, r.Host) {
		clog.Warn("ipc: rejected cross-origin connection from %q", origin)
		return false
	}
	return true
}

// serve runs the read loop for one connection.
func (h *Handler) serve(c *conn) {
	defer c.close()

	var limiter *rate.Limiter
	if h.RateLimit > 0 {
		burst := int(h.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(h.RateLimit), burst)
	}

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go c.keepalive(done)

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				clog.Warn("ipc: read error: %v", err)
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}

		if limiter != nil && !limiter.Allow() {
			req, derr := bridge.DecodeMessage(data)
			if _, isCancel := req.(bridge.CancelRequest); derr == nil && isCancel {
				h.Invoker.Invoke(data, c)
				continue
			}
			clog.Warn("ipc: rate limit exceeded")
			if err := c.Deliver(bridge.Rejected(messageID(req, derr), "rate limit exceeded")); err != nil {
				clog.Warn("ipc: %v", err)
			}
			continue
		}

		h.Invoker.Invoke(data, c)
	}
}

// messageID recovers the correlation token from a decode result.
func messageID(req bridge.Request, err error) string {
	if err == nil {
		return req.RequestID()
	}
	var msgErr *bridge.MessageError
	if errors.As(err, &msgErr) {
		return msgErr.ID
	}
	return ""
}

// conn is one page connection. It delivers outcomes as JSON text frames.
type conn struct {
	ws *websocket.Conn

	mu     sync.Mutex // serializes writes
	closed bool
}

// Deliver writes an outcome to the page.
func (c *conn) Deliver(o bridge.Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(o)
}

func (c *conn) keepalive(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				clog.Debug("ipc: ping failed: %v", err)
				return
			}
		}
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	_ = c.ws.Close()
}
