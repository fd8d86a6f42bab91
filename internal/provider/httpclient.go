package provider

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"time"
)

// SharedHTTPClient returns an HTTP client with connection pooling. The
// overall timeout bounds synchronous calls; streams rely on the context
// deadline instead, so streamingClient clears it.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// streamingClient shares the transport of c but has no whole-request timeout.
func streamingClient(c *http.Client) *http.Client {
	clone := *c
	clone.Timeout = 0
	return &clone
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
