// Package httputil provides shared HTTP plumbing for the TrapLine engine:
// a pooled transport, bounded response readers, and a semaphore for
// fire-and-forget background work.
package httputil

import (
	"io"
	"net"
	"net/http"
	"time"
)

// MaxResponseSize is the default cap when reading HTTP response bodies.
// Inference providers and webhooks are external services; a misbehaving one
// must not be able to balloon our memory.
const MaxResponseSize = 2 * 1024 * 1024 // 2MB is generous for any LLM reply

// sharedTransport is reused by every client so TCP connections to the
// inference endpoint are pooled across requests and sessions.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   20,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   5 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// NewClient returns an HTTP client on the shared pooled transport with the
// given overall timeout. Callers still pass per-request contexts; the client
// timeout is the hard backstop.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}

// ReadResponseBody reads an HTTP response body with a size limit.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// DrainAndClose drains and closes a response body so the underlying
// connection returns to the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
