package report_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/classify"
	"github.com/robinmordasiewicz/specdrift/probe"
	"github.com/robinmordasiewicz/specdrift/prober"
	"github.com/robinmordasiewicz/specdrift/report"
)

func key(path string, k specdrift.Kind) specdrift.Key { return specdrift.Key{Path: path, Kind: k} }

func conclusive(n int) []prober.ProbeResult {
	out := make([]prober.ProbeResult, n)
	for i := range out {
		out[i] = prober.ProbeResult{Probe: probe.Probe{}, Outcome: specdrift.Accepted}
	}
	return out
}

func sample() (ds, applied []classify.Discrepancy) {
	ds = []classify.Discrepancy{
		{Key: key("/a", specdrift.KindMaximum), Declared: 100.0, Observed: 150.0, Verdict: specdrift.VerdictWiden, Confidence: 1, Evidence: conclusive(4)},
		{Key: key("/b", specdrift.KindMinLength), Declared: 1.0, Observed: 1.0, Verdict: specdrift.VerdictConfirmed, Confidence: 1, Evidence: conclusive(2)},
		{Key: key("/c", specdrift.KindEnum), Verdict: specdrift.VerdictConflicting, Evidence: []prober.ProbeResult{{Status: 503}}},
		{Key: key("/d", specdrift.KindPattern), Verdict: specdrift.VerdictNarrow, Confidence: 1, Evidence: conclusive(2)},
	}
	return ds, ds[:1]
}

func TestNew_Statuses(t *testing.T) {
	r := report.New(sample())
	want := []report.Status{report.StatusCorrected, report.StatusConfirmed, report.StatusNotEvaluated, report.StatusReview}
	i := 0
	for rec := range r.All() {
		if rec.Status != want[i] {
			t.Fatalf("record %d (%s): status %s, want %s", i, rec.Path, rec.Status, want[i])
		}
		i++
	}
	if i != len(want) {
		t.Fatalf("iterated %d records", i)
	}
	if r.Records[0].Evidence != 4 || r.Records[2].Evidence != 0 {
		t.Fatalf("evidence counts: %d %d", r.Records[0].Evidence, r.Records[2].Evidence)
	}
	if s := r.Summary(); s[report.StatusCorrected] != 1 || s[report.StatusReview] != 1 {
		t.Fatalf("summary: %v", s)
	}
}

func TestAll_StopsEarly(t *testing.T) {
	r := report.New(sample())
	n := 0
	for range r.All() {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("iterated %d", n)
	}
}

func TestWriteJSON(t *testing.T) {
	r := report.New(sample())
	r.RunID = "run-1"
	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got struct {
		RunID   string `json:"runId"`
		Records []struct {
			Path     string  `json:"path"`
			Observed float64 `json:"observed"`
			Status   string  `json:"status"`
		} `json:"records"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, buf.String())
	}
	if got.RunID != "run-1" || len(got.Records) != 4 || got.Records[0].Observed != 150 || got.Records[0].Status != "corrected" {
		t.Fatalf("unexpected report: %+v", got)
	}
}

func TestRecordJSONSchema(t *testing.T) {
	data, err := report.RecordJSONSchema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"not-evaluated"`, `"records"`, `"confidence"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("schema missing %s", want)
		}
	}
}
