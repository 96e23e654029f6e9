package prober

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds a single attempt.
const DefaultRequestTimeout = 30 * time.Second

// MaxBodyBytes caps how much of a response body is kept. Outcomes depend on
// the status alone.
const MaxBodyBytes = 64 << 10

// Request is what a Transport sends.
type Request struct {
	Method string
	URL    string
	Header map[string]string
	Body   []byte
}

// Response is what a Transport observed.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Latency time.Duration
}

// Transport is the only capability the prober needs from the network.
type Transport interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// HTTPTransport sends requests with net/http.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport returns a transport whose client gives up after timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPTransport{Client: &http.Client{Timeout: timeout}}
}

// Send performs one request and reads the whole response body.
func (t *HTTPTransport) Send(ctx context.Context, req Request) (Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Header {
		hr.Header.Set(k, v)
	}
	if req.Body != nil && hr.Header.Get("Content-Type") == "" {
		hr.Header.Set("Content-Type", "application/json")
	}
	hr.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.Client.Do(hr)
	if err != nil {
		return Response{Latency: time.Since(start)}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	latency := time.Since(start)
	if err != nil {
		return Response{Status: resp.StatusCode, Header: resp.Header, Latency: latency}, fmt.Errorf("read body: %w", err)
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: b, Latency: latency}, nil
}
