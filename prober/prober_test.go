package prober_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	j "github.com/goccy/go-json"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/extract"
	"github.com/robinmordasiewicz/specdrift/probe"
	"github.com/robinmordasiewicz/specdrift/prober"
	"github.com/robinmordasiewicz/specdrift/schema"
)

const doc = `{
  "openapi": "3.1.0",
  "info": {"title": "t", "version": "1"},
  "paths": {"/orders": {"post": {
    "operationId": "createOrder",
    "requestBody": {"content": {"application/json": {"schema": {
      "type": "object",
      "properties": {"quantity": {"type": "integer", "maximum": 100}}
    }}}}
  }}}
}`

func plan(t *testing.T) (*probe.Generator, []probe.Set) {
	t.Helper()
	m, err := schema.Load([]byte(doc), schema.Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	g := probe.New(m, probe.Options{})
	var sets []probe.Set
	for _, d := range extract.All(m, extract.Options{}).Probeable() {
		sets = append(sets, g.Generate(d))
	}
	return g, sets
}

func quantityKey() specdrift.Key {
	return specdrift.Key{Path: "/paths/~1orders/post/requestBody/content/application~1json/schema/properties/quantity", Kind: specdrift.KindMaximum}
}

func TestOutcomeOf(t *testing.T) {
	cases := map[int]specdrift.Outcome{
		200: specdrift.Accepted,
		201: specdrift.Accepted,
		302: specdrift.Accepted,
		400: specdrift.Rejected,
		422: specdrift.Rejected,
		401: specdrift.Inconclusive,
		403: specdrift.Inconclusive,
		404: specdrift.Inconclusive,
		409: specdrift.Inconclusive,
		500: specdrift.Inconclusive,
	}
	for status, want := range cases {
		if got := prober.OutcomeOf(status); got != want {
			t.Errorf("OutcomeOf(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestRunDiscoversWiderMaximum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "APIToken secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]any
		b, _ := io.ReadAll(r.Body)
		if err := j.Unmarshal(b, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if q, ok := body["quantity"].(float64); ok && q > 150 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	g, sets := plan(t)
	p := prober.New(prober.NewHTTPTransport(time.Second), prober.StaticHeaders{Token: "secret"}, g, prober.Options{BaseURL: srv.URL})
	ev := p.Run(context.Background(), sets)
	results := ev[quantityKey()]
	if len(results) < 3 {
		t.Fatalf("want edge and search results, got %d", len(results))
	}
	best := 0.0
	for _, r := range results {
		if r.Outcome == specdrift.Inconclusive {
			t.Fatalf("unexpected inconclusive: %+v", r)
		}
		if r.Outcome == specdrift.Accepted && r.Probe.Measure > best {
			best = r.Probe.Measure
		}
	}
	if best != 150 {
		t.Fatalf("largest accepted value = %v, want 150", best)
	}
}

func TestRetriesThenInconclusive(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g, sets := plan(t)
	p := prober.New(prober.NewHTTPTransport(time.Second), nil, g, prober.Options{BaseURL: srv.URL, Retries: 2, Backoff: time.Millisecond})
	var set probe.Set
	for _, s := range sets {
		if s.Descriptor.Key == quantityKey() {
			set = s
		}
	}
	calls.Store(0)
	r := p.Execute(context.Background(), set.Descriptor, set.Probes[0])
	if r.Outcome != specdrift.Inconclusive || r.Attempts != 3 || calls.Load() != 3 {
		t.Fatalf("result = %+v after %d calls", r, calls.Load())
	}
	var tpe *specdrift.TransientProbeError
	if !errors.As(r.Err, &tpe) || tpe.Status != http.StatusServiceUnavailable {
		t.Fatalf("want TransientProbeError, got %v", r.Err)
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	g, sets := plan(t)
	p := prober.New(prober.NewHTTPTransport(time.Second), nil, g, prober.Options{BaseURL: srv.URL, Retries: 2})
	r := p.Execute(context.Background(), sets[0].Descriptor, sets[0].Probes[0])
	if r.Outcome != specdrift.Inconclusive || calls.Load() != 1 || r.Err != nil {
		t.Fatalf("404 should be inconclusive without retries: %+v, calls=%d", r, calls.Load())
	}
}

type stallTransport struct{}

func (stallTransport) Send(ctx context.Context, _ prober.Request) (prober.Response, error) {
	<-ctx.Done()
	return prober.Response{}, ctx.Err()
}

func TestBudgetLeavesKeysWithoutResults(t *testing.T) {
	g, sets := plan(t)
	p := prober.New(stallTransport{}, nil, g, prober.Options{Budget: 20 * time.Millisecond, Workers: 1})
	done := make(chan prober.Evidence, 1)
	go func() { done <- p.Run(context.Background(), sets) }()
	select {
	case ev := <-done:
		for k, rs := range ev {
			for _, r := range rs {
				if r.Outcome != specdrift.Inconclusive {
					t.Fatalf("%s: stalled transport produced %v", k, r.Outcome)
				}
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not honor its budget")
	}
}

func TestStaticHeaders(t *testing.T) {
	h, _ := prober.StaticHeaders{Scheme: "Bearer", Token: "t", Extra: map[string]string{"X-Tenant": "a"}}.Headers(context.Background())
	if h["Authorization"] != "Bearer t" || h["X-Tenant"] != "a" {
		t.Fatalf("headers = %v", h)
	}
	h, _ = prober.StaticHeaders{}.Headers(context.Background())
	if _, ok := h["Authorization"]; ok {
		t.Fatalf("no token means no Authorization header")
	}
}

func TestHTTPTransportCapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, strings.Repeat("x", 4*prober.MaxBodyBytes))
	}))
	defer srv.Close()
	resp, err := prober.NewHTTPTransport(time.Second).Send(context.Background(), prober.Request{Method: http.MethodGet, URL: srv.URL})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Status != http.StatusBadRequest || len(resp.Body) != prober.MaxBodyBytes {
		t.Fatalf("status=%d body=%d", resp.Status, len(resp.Body))
	}
}

func TestZeroBackoffUsesDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	g, sets := plan(t)
	p := prober.New(prober.NewHTTPTransport(time.Second), nil, g, prober.Options{BaseURL: srv.URL, Retries: 1})
	start := time.Now()
	r := p.Execute(context.Background(), sets[0].Descriptor, sets[0].Probes[0])
	if r.Attempts != 2 {
		t.Fatalf("attempts = %d", r.Attempts)
	}
	if elapsed := time.Since(start); elapsed < prober.DefaultBackoff {
		t.Fatalf("retry waited %v, want at least %v", elapsed, prober.DefaultBackoff)
	}
}
