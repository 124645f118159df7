// Package httpc builds the HTTP clients used to reach model servers.
package httpc

import (
	"net"
	"net/http"
	"time"
)

const (
	DefaultTimeout = 30 * time.Second

	dialTimeout = 10 * time.Second
	keepAlive   = 30 * time.Second
	idleTimeout = 90 * time.Second
)

// NewClient returns a client that gives up on a whole request after
// timeout, or DefaultTimeout when timeout is not positive. The first
// request after boot can be slow while Ollama loads weights, so callers
// pass the model timeout rather than relying on the default.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout, Transport: transport()}
}

// transport keeps a few idle connections per host; the device talks to at
// most a local server and one cloud endpoint.
func transport() *http.Transport {
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          8,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       idleTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ExpectContinueTimeout: time.Second,
	}
}
