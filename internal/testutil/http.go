package testutil

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// NoProxyClient returns an HTTP client that doesn't use any proxy.
// Tests talk to a host on loopback and must not be routed through
// HTTP_PROXY when one is set in the environment.
func NoProxyClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Proxy: nil,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}
}

// NoProxyDialer returns a WebSocket dialer that doesn't use any proxy.
func NoProxyDialer() *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            nil,
		HandshakeTimeout: 10 * time.Second,
	}
}
