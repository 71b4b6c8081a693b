// Package httpclient builds the HTTP client used for AI service calls.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single AI call. Grading prompts with inline images
// can take a while, but an individual call must never stall a batch
// indefinitely.
const DefaultTimeout = 120 * time.Second

// New creates an HTTP client tuned for repeated calls to one API host.
// A zero timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
