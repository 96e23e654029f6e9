// Package pipeline runs load, extraction, probing, classification and
// reconciliation end to end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/classify"
	"github.com/robinmordasiewicz/specdrift/config"
	"github.com/robinmordasiewicz/specdrift/extract"
	"github.com/robinmordasiewicz/specdrift/ledger"
	"github.com/robinmordasiewicz/specdrift/policy"
	"github.com/robinmordasiewicz/specdrift/probe"
	"github.com/robinmordasiewicz/specdrift/prober"
	"github.com/robinmordasiewicz/specdrift/reconcile"
	"github.com/robinmordasiewicz/specdrift/report"
	"github.com/robinmordasiewicz/specdrift/schema"
)

// ErrNoBaseURL is returned by Run when no live API is configured.
var ErrNoBaseURL = errors.New("pipeline: base_url is required to probe the live API")

// Deps are the collaborators of a run. Zero values are built from the
// configuration.
type Deps struct {
	Transport prober.Transport
	Headers   prober.HeaderProvider
	Ledger    *ledger.Store
	Logger    *slog.Logger
	// Source names the input document in logs and the ledger.
	Source string
}

// Prepared is everything that can be computed without network access.
type Prepared struct {
	Model     *schema.Model
	Plan      extract.Plan
	Generator *probe.Generator
	Sets      []probe.Set
}

// Result is the outcome of a full run.
type Result struct {
	RunID         string
	Prepared      *Prepared
	Evidence      prober.Evidence
	Discrepancies []classify.Discrepancy
	Document      *reconcile.Document
	Report        *report.Report
	// ReconcileErr is set when the patched document failed to load and the
	// baseline was kept.
	ReconcileErr error
}

// Prepare loads raw and plans every probe.
func Prepare(raw []byte, cfg config.Config, log *slog.Logger) (*Prepared, error) {
	if log == nil {
		log = slog.Default()
	}
	m, err := schema.Load(raw, schema.Options{UnrollDepth: cfg.UnrollDepth})
	if err != nil {
		return nil, err
	}
	if d := m.Diag(); d.HasWarnings() {
		for _, w := range d.Warnings() {
			log.Warn("schema warning", slog.String("detail", w))
		}
	}
	plan := extract.All(m, extract.Options{Operations: cfg.Operations, MaxContexts: cfg.MaxContexts})
	for _, s := range plan.Skipped {
		log.Warn("operation skipped", slog.String("operation", s.Operation), slog.Any("error", s.Err))
	}
	gen := probe.New(m, probe.Options{Params: cfg.Params, SearchLimit: cfg.SearchLimit})
	p := &Prepared{Model: m, Plan: plan, Generator: gen}
	for _, d := range plan.Probeable() {
		p.Sets = append(p.Sets, gen.Generate(d))
	}
	return p, nil
}

// Run reconciles raw against the live API described by cfg. Only a
// malformed document or invalid settings fail the run; everything else
// degrades to fewer corrections.
func Run(ctx context.Context, raw []byte, cfg config.Config, deps Deps) (*Result, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "pipeline"))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	filter, err := policy.Compile(cfg.ApplyFilter)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	runID := uuid.New().String()
	log = log.With(slog.String("run", runID))

	prep, err := Prepare(raw, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("plan ready",
		slog.Int("operations", len(prep.Model.Operations())),
		slog.Int("descriptors", len(prep.Plan.Descriptors)),
		slog.Int("keys", len(prep.Plan.Keys())),
		slog.Int("skipped", len(prep.Plan.Skipped)))

	store := deps.Ledger
	if store == nil && cfg.Ledger != "" {
		store, err = ledger.Open(cfg.Ledger)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		defer store.Close()
	}
	if store != nil {
		if _, err := store.BeginRun(ctx, runID, deps.Source, cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}

	transport := deps.Transport
	if transport == nil {
		transport = prober.NewHTTPTransport(cfg.RequestTimeout)
	}
	headers := deps.Headers
	if headers == nil {
		headers = prober.StaticHeaders{Scheme: cfg.AuthScheme, Token: cfg.Token, Extra: cfg.Headers}
	}
	pr := prober.New(transport, headers, prep.Generator, prober.Options{
		BaseURL:        cfg.BaseURL,
		Workers:        cfg.Workers,
		RatePerSecond:  cfg.RatePerSecond,
		Burst:          cfg.Burst,
		Retries:        cfg.Retries,
		Backoff:        cfg.Backoff,
		RequestTimeout: cfg.RequestTimeout,
		Budget:         cfg.Budget,
		Logger:         log,
	})
	ev := pr.Run(ctx, prep.Sets)

	ds := classify.All(prep.Sets, ev)
	res := &Result{RunID: runID, Prepared: prep, Evidence: ev, Discrepancies: ds}

	doc, err := reconcile.Apply(prep.Model, ds, reconcile.Options{Threshold: cfg.Threshold, Allow: filter.Allow})
	if err != nil {
		log.Error("reconciliation failed, keeping the original document", slog.Any("error", err))
		res.ReconcileErr = err
		doc = &reconcile.Document{Baseline: prep.Model, Model: prep.Model.Clone()}
		for _, d := range ds {
			if d.Verdict != specdrift.VerdictConfirmed {
				doc.Review = append(doc.Review, d)
			}
		}
	}
	res.Document = doc

	rep := report.New(ds, doc.Applied)
	rep.RunID = runID
	for _, s := range prep.Plan.Skipped {
		rep.Skipped = append(rep.Skipped, report.Skip{Operation: s.Operation, Error: s.Err.Error()})
	}
	res.Report = rep

	summary := rep.Summary()
	log.Info("reconciliation finished",
		slog.Int("confirmed", summary[report.StatusConfirmed]),
		slog.Int("corrected", summary[report.StatusCorrected]),
		slog.Int("review", summary[report.StatusReview]),
		slog.Int("not_evaluated", summary[report.StatusNotEvaluated]))

	if store != nil {
		if err := store.RecordEvidence(ctx, runID, ev); err != nil {
			return res, fmt.Errorf("pipeline: %w", err)
		}
		if err := store.FinishRun(ctx, runID, rep); err != nil {
			return res, fmt.Errorf("pipeline: %w", err)
		}
	}
	return res, nil
}
