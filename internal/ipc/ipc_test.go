package ipc

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wizardry/host/internal/bridge"
	"github.com/wizardry/host/internal/clog"
	"github.com/wizardry/host/internal/executor"
)

const testToken = "s3cret"

// invokerFunc adapts a function to Invoker.
type invokerFunc func(raw []byte, d bridge.Deliverer)

func (f invokerFunc) Invoke(raw []byte, d bridge.Deliverer) { f(raw, d) }

// ackInvoker answers every message at once with a completed outcome
// carrying the message id.
var ackInvoker = invokerFunc(func(raw []byte, d bridge.Deliverer) {
	req, err := bridge.DecodeMessage(raw)
	if err != nil {
		_ = d.Deliver(bridge.Rejected("", err.Error()))
		return
	}
	_ = d.Deliver(bridge.Outcome{ID: req.RequestID(), Stdout: "ack"})
})

func startServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + TokenParam + "=" + token
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, testToken), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readOutcome(t *testing.T, ws *websocket.Conn) bridge.Outcome {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var out bridge.Outcome
	if err := ws.ReadJSON(&out); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return out
}

func TestHandler_RejectsBadToken(t *testing.T) {
	clog.Discard()
	defer clog.Reset()

	srv := startServer(t, NewHandler(ackInvoker, testToken, 0))

	for _, token := range []string{"", "wrong", testToken + "x"} {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
		if err == nil {
			t.Fatalf("Dial(token=%q) should fail", token)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("token %q: response = %v, want 401", token, resp)
		}
	}
}

func TestHandler_RejectsCrossOrigin(t *testing.T) {
	clog.Discard()
	defer clog.Reset()

	srv := startServer(t, NewHandler(ackInvoker, testToken, 0))

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, testToken), header)
	if err == nil {
		t.Fatal("cross-origin Dial should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}

	sameOriginHeader := http.Header{"Origin": []string{srv.URL}}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, testToken), sameOriginHeader)
	if err != nil {
		t.Fatalf("same-origin Dial error = %v", err)
	}
	_ = ws.Close()
}

func TestHandler_EchoThroughBridge(t *testing.T) {
	clog.Discard()
	defer clog.Reset()

	b := bridge.New(executor.NewRealExecutor())
	defer b.Close()
	srv := startServer(t, NewHandler(b, testToken, 0))
	ws := dial(t, srv)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"id":"a1","command":["echo","hi"]}`)); err != nil {
		t.Fatal(err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	want := `{"id":"a1","stdout":"hi\n","stderr":"","exit_code":0,"error":null}`
	if strings.TrimSpace(string(data)) != want {
		t.Errorf("message =\n  got:  %s\n  want: %s", data, want)
	}
}

func TestHandler_RateLimit(t *testing.T) {
	clog.Discard()
	defer clog.Reset()

	srv := startServer(t, NewHandler(ackInvoker, testToken, 1))
	ws := dial(t, srv)

	for _, id := range []string{"r1", "r2"} {
		msg := `{"id":"` + id + `","command":["echo"]}`
		if err := ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}
	}

	first := readOutcome(t, ws)
	if first.ID != "r1" || first.Failed() {
		t.Errorf("first outcome = %+v", first)
	}
	second := readOutcome(t, ws)
	if second.ID != "r2" || second.Error == nil || *second.Error != "rate limit exceeded" {
		t.Errorf("second outcome = %+v", second)
	}
	if second.ExitCode != bridge.ExitRejected {
		t.Errorf("ExitCode = %d, want %d", second.ExitCode, bridge.ExitRejected)
	}
}

func TestHandler_DeliverAfterClose(t *testing.T) {
	clog.Discard()
	defer clog.Reset()

	got := make(chan bridge.Deliverer, 1)
	inv := invokerFunc(func(_ []byte, d bridge.Deliverer) { got <- d })

	srv := startServer(t, NewHandler(inv, testToken, 0))
	ws := dial(t, srv)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"id":"z","command":["true"]}`)); err != nil {
		t.Fatal(err)
	}
	var d bridge.Deliverer
	select {
	case d = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("message never reached the invoker")
	}

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = ws.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		err := d.Deliver(bridge.Outcome{ID: "z"})
		if errors.Is(err, ErrClosed) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Deliver() after close = %v, want ErrClosed", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "127.0.0.1:8080", true},
		{"http://127.0.0.1:8080", "127.0.0.1:8080", true},
		{"http://127.0.0.1:9090", "127.0.0.1:8080", false},
		{"http://evil.example", "127.0.0.1:8080", false},
		{"::bad", "127.0.0.1:8080", false},
	}

	clog.Discard()
	defer clog.Reset()

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://"+tt.host+"/", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := sameOrigin(r); got != tt.want {
			t.Errorf("sameOrigin(origin=%q, host=%q) = %v, want %v", tt.origin, tt.host, got, tt.want)
		}
	}
}
