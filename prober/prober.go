// Package prober executes probes against the live API and turns HTTP
// statuses into outcomes.
//
// 2xx and 3xx mean the value was accepted, 400 and 422 mean it was
// rejected. Everything else (401, 403, 404, 5xx after retries, transport
// failures) is inconclusive: the request failed for a reason that says
// nothing about the constraint under test.
package prober

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	j "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/extract"
	"github.com/robinmordasiewicz/specdrift/probe"
)

// Defaults used when Options leaves a field zero. Retries is the exception:
// zero disables retrying, and DefaultRetries is only the configured default.
const (
	DefaultWorkers = 4
	DefaultRetries = 2
	DefaultBackoff = 500 * time.Millisecond
	DefaultBudget  = 10 * time.Minute
)

// ProbeResult is the immutable record of one executed probe.
type ProbeResult struct {
	Probe    probe.Probe
	Context  string
	Outcome  specdrift.Outcome
	Status   int
	Latency  time.Duration
	Attempts int
	Err      error
}

// Evidence maps each key to its results in execution order.
type Evidence map[specdrift.Key][]ProbeResult

// Options configures a Prober.
type Options struct {
	BaseURL        string
	Workers        int
	RatePerSecond  float64 // zero means unlimited
	Burst          int
	Retries        int // transient failures are retried this many times
	Backoff        time.Duration
	RequestTimeout time.Duration
	Budget         time.Duration // wall clock for the whole probing stage
	Logger         *slog.Logger
}

// Prober runs probes with bounded concurrency and a shared rate limit.
type Prober struct {
	transport Transport
	headers   HeaderProvider
	gen       *probe.Generator
	opts      Options
	limiter   *rate.Limiter
	log       *slog.Logger
}

// New builds a prober. headers may be nil.
func New(t Transport, headers HeaderProvider, gen *probe.Generator, opts Options) *Prober {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Prober{
		transport: t,
		headers:   headers,
		gen:       gen,
		opts:      opts,
		limiter:   rate.NewLimiter(limit, opts.Burst),
		log:       log.With(slog.String("component", "prober")),
	}
}

// OutcomeOf maps a final HTTP status to an outcome.
func OutcomeOf(status int) specdrift.Outcome {
	switch {
	case status >= 200 && status < 400:
		return specdrift.Accepted
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return specdrift.Rejected
	default:
		return specdrift.Inconclusive
	}
}

func transient(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}

// Execute sends one probe, retrying transient failures with exponential
// backoff. Exhausted retries yield an inconclusive result carrying a
// *specdrift.TransientProbeError.
func (p *Prober) Execute(ctx context.Context, d extract.Descriptor, pr probe.Probe) ProbeResult {
	res := ProbeResult{Probe: pr, Context: d.Context.String()}
	req, err := p.render(d, pr)
	if err != nil {
		res.Err = err
		return res
	}
	var (
		status  int
		lastErr error
	)
	for attempt := 0; attempt <= p.opts.Retries; attempt++ {
		if attempt > 0 {
			wait := p.opts.Backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				res.Err = ctx.Err()
				return res
			case <-time.After(wait):
			}
		}
		if err := p.limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
		res.Attempts++
		if p.headers != nil {
			h, err := p.headers.Headers(ctx)
			if err != nil {
				res.Err = err
				return res
			}
			for k, v := range h {
				if _, set := req.Header[k]; !set {
					req.Header[k] = v
				}
			}
		}
		actx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
		resp, err := p.transport.Send(actx, req)
		cancel()
		res.Latency = resp.Latency
		status = resp.Status
		if err != nil {
			if ctx.Err() != nil {
				res.Err = ctx.Err()
				return res
			}
			lastErr = err
			continue
		}
		if transient(status) {
			lastErr = nil
			continue
		}
		res.Status = status
		res.Outcome = OutcomeOf(status)
		return res
	}
	res.Status = status
	res.Err = &specdrift.TransientProbeError{Status: status, Attempts: res.Attempts, Err: lastErr}
	return res
}

func (p *Prober) render(d extract.Descriptor, pr probe.Probe) (Request, error) {
	r := p.gen.Request(d, pr)
	u := strings.TrimSuffix(p.opts.BaseURL, "/") + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	req := Request{Method: r.Method, URL: u, Header: map[string]string{}}
	for k, v := range r.Header {
		req.Header[k] = v
	}
	if r.HasBody {
		b, err := j.Marshal(r.Body)
		if err != nil {
			return Request{}, err
		}
		req.Body = b
	}
	return req, nil
}

// Run executes every set within the budget. Keys are probed concurrently
// up to Workers; the probes of one key run in generation order, followed
// by bound discovery when the edges showed the bound moved. Keys still
// pending when the budget runs out end up with no results.
func (p *Prober) Run(ctx context.Context, sets []probe.Set) Evidence {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Budget)
	defer cancel()

	var order []specdrift.Key
	byKey := map[specdrift.Key][]probe.Set{}
	for _, s := range sets {
		if s.Static() {
			continue
		}
		k := s.Descriptor.Key
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], s)
	}

	var mu sync.Mutex
	out := Evidence{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, k := range order {
		group := byKey[k]
		g.Go(func() error {
			results := p.runKey(gctx, group)
			mu.Lock()
			out[k] = results
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		p.log.Warn("probing budget exhausted", slog.Duration("budget", p.opts.Budget))
	}
	return out
}

func (p *Prober) runKey(ctx context.Context, sets []probe.Set) []ProbeResult {
	var all []ProbeResult
	for _, s := range sets {
		if ctx.Err() != nil {
			break
		}
		var edges []ProbeResult
		for _, pr := range s.Probes {
			if ctx.Err() != nil {
				break
			}
			r := p.Execute(ctx, s.Descriptor, pr)
			p.note(s.Descriptor, r)
			edges = append(edges, r)
		}
		all = append(all, edges...)
		all = append(all, p.search(ctx, s.Descriptor, edges)...)
	}
	return all
}

// search follows up edge evidence that shows a bound moved in exactly one
// direction.
func (p *Prober) search(ctx context.Context, d extract.Descriptor, edges []ProbeResult) []ProbeResult {
	var start *ProbeResult
	widen, narrow := false, false
	for i := range edges {
		r := &edges[i]
		switch {
		case r.Probe.Expect == specdrift.ShouldReject && r.Outcome == specdrift.Accepted:
			widen = true
			start = r
		case r.Probe.Expect == specdrift.ShouldAccept && r.Outcome == specdrift.Rejected:
			narrow = true
			start = r
		}
	}
	if start == nil || widen == narrow {
		return nil
	}
	s := p.gen.NewSearch(d, start.Probe, start.Outcome)
	var out []ProbeResult
	for ctx.Err() == nil {
		pr, ok := s.Next()
		if !ok {
			break
		}
		r := p.Execute(ctx, d, pr)
		p.note(d, r)
		out = append(out, r)
		s.Observe(pr.Measure, r.Outcome)
	}
	return out
}

func (p *Prober) note(d extract.Descriptor, r ProbeResult) {
	if r.Outcome != specdrift.Inconclusive {
		p.log.Debug("probe",
			slog.String("path", d.Key.Path),
			slog.String("kind", string(d.Key.Kind)),
			slog.String("probe", r.Probe.Label),
			slog.String("outcome", r.Outcome.String()),
			slog.Int("status", r.Status))
		return
	}
	attrs := []any{
		slog.String("path", d.Key.Path),
		slog.String("kind", string(d.Key.Kind)),
		slog.String("context", r.Context),
		slog.String("probe", r.Probe.Label),
		slog.Int("status", r.Status),
		slog.Int("attempts", r.Attempts),
	}
	if r.Err != nil {
		attrs = append(attrs, slog.String("error", r.Err.Error()))
	}
	p.log.Info("probe inconclusive", attrs...)
}
