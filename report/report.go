// Package report exposes reconciliation results as an ordered sequence of
// records.
package report

import (
	"fmt"
	"io"
	"iter"

	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/classify"
)

// Status is the user-facing outcome for one constraint.
type Status string

const (
	StatusConfirmed    Status = "confirmed"
	StatusCorrected    Status = "corrected"
	StatusReview       Status = "review"
	StatusNotEvaluated Status = "not-evaluated"
)

// Record is one constraint's line in the changelog.
type Record struct {
	Path       string            `json:"path" jsonschema:"description=JSON Pointer of the constrained schema node"`
	Kind       specdrift.Kind    `json:"kind"`
	Declared   any               `json:"declared"`
	Observed   any               `json:"observed"`
	Verdict    specdrift.Verdict `json:"verdict" jsonschema:"enum=confirmed,enum=widen,enum=narrow,enum=remove,enum=conflicting"`
	Confidence float64           `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Evidence   int               `json:"evidence" jsonschema:"description=Number of conclusive probes"`
	Status     Status            `json:"status" jsonschema:"enum=confirmed,enum=corrected,enum=review,enum=not-evaluated"`
	Reason     string            `json:"reason,omitempty"`
}

// Skip records an operation that could not be evaluated.
type Skip struct {
	Operation string `json:"operation"`
	Error     string `json:"error"`
}

// Report is the full result of one run.
type Report struct {
	RunID   string   `json:"runId,omitempty"`
	Records []Record `json:"records"`
	Skipped []Skip   `json:"skipped,omitempty"`
}

// New builds records for ds, in the order given. applied lists the
// discrepancies written back to the document.
func New(ds, applied []classify.Discrepancy) *Report {
	done := make(map[specdrift.Key]bool, len(applied))
	for _, d := range applied {
		done[d.Key] = true
	}
	r := &Report{Records: make([]Record, 0, len(ds))}
	for _, d := range ds {
		r.Records = append(r.Records, Record{
			Path:       d.Key.Path,
			Kind:       d.Key.Kind,
			Declared:   d.Declared,
			Observed:   d.Observed,
			Verdict:    d.Verdict,
			Confidence: d.Confidence,
			Evidence:   d.EvidenceCount(),
			Status:     statusOf(d, done[d.Key]),
			Reason:     d.Reason,
		})
	}
	return r
}

func statusOf(d classify.Discrepancy, applied bool) Status {
	switch {
	case applied:
		return StatusCorrected
	case d.Verdict == specdrift.VerdictConfirmed:
		return StatusConfirmed
	case d.EvidenceCount() == 0:
		return StatusNotEvaluated
	default:
		return StatusReview
	}
}

// All iterates the records in order.
func (r *Report) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, rec := range r.Records {
			if !yield(rec) {
				return
			}
		}
	}
}

// Summary counts records per status.
func (r *Report) Summary() map[Status]int {
	out := map[Status]int{}
	for rec := range r.All() {
		out[rec.Status]++
	}
	return out
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// RecordJSONSchema produces a JSON Schema (draft 2020-12) for the report format.
func RecordJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Report{})
	s.ID = "https://github.com/robinmordasiewicz/specdrift/schemas/report-v1.json"
	s.Title = "specdrift reconciliation report"
	s.Description = "Per-constraint outcome of reconciling an OpenAPI document against a live API"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
