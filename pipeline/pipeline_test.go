package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	j "github.com/goccy/go-json"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/config"
	"github.com/robinmordasiewicz/specdrift/ledger"
	"github.com/robinmordasiewicz/specdrift/pipeline"
	"github.com/robinmordasiewicz/specdrift/report"
)

const orders = `openapi: 3.0.3
info:
  title: Orders
  version: "1.0"
paths:
  /orders:
    post:
      operationId: createOrder
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Order'
      responses:
        '201':
          description: created
components:
  schemas:
    Order:
      type: object
      properties:
        name:
          type: string
        quantity:
          type: integer
          maximum: 100
      required:
        - quantity
`

const quantity = "/components/schemas/Order/properties/quantity"

// ordersAPI requires name, and accepts quantities up to 150.
func ordersAPI() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reject := func() { w.WriteHeader(http.StatusUnprocessableEntity) }
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var v any
		if err := j.Unmarshal(raw, &v); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, ok := v.(map[string]any)
		if !ok {
			reject()
			return
		}
		if name, ok := body["name"].(string); !ok || name == "" {
			reject()
			return
		}
		q, ok := body["quantity"].(float64)
		if !ok || q != float64(int64(q)) || q > 150 {
			reject()
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
}

func testConfig(url string) config.Config {
	cfg := config.Default()
	cfg.BaseURL = url
	cfg.RatePerSecond = 0
	cfg.Backoff = time.Millisecond
	cfg.RequestTimeout = 5 * time.Second
	return cfg
}

func record(t *testing.T, rep *report.Report, path string, kind specdrift.Kind) report.Record {
	t.Helper()
	for rec := range rep.All() {
		if rec.Path == path && rec.Kind == kind {
			return rec
		}
	}
	t.Fatalf("no record for %s#%s", path, kind)
	return report.Record{}
}

func TestRun_CorrectsAndIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(ordersAPI())
	defer srv.Close()
	ctx := context.Background()

	res, err := pipeline.Run(ctx, []byte(orders), testConfig(srv.URL), pipeline.Deps{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	maxRec := record(t, res.Report, quantity, specdrift.KindMaximum)
	if maxRec.Verdict != specdrift.VerdictWiden || maxRec.Observed != 150.0 || maxRec.Confidence != 1 || maxRec.Status != report.StatusCorrected {
		t.Fatalf("maximum: %+v", maxRec)
	}
	nameRec := record(t, res.Report, "/components/schemas/Order/properties/name", specdrift.KindRequired)
	if nameRec.Verdict != specdrift.VerdictNarrow || nameRec.Observed != true || nameRec.Status != report.StatusCorrected {
		t.Fatalf("name required: %+v", nameRec)
	}
	sum := res.Report.Summary()
	if sum[report.StatusCorrected] != 2 || sum[report.StatusReview] != 0 || sum[report.StatusNotEvaluated] != 0 {
		t.Fatalf("summary: %v", sum)
	}

	order, _ := res.Document.Model.NodeAt("/components/schemas/Order")
	if len(order.Required) != 2 || order.Required[0] != "name" || order.Required[1] != "quantity" {
		t.Fatalf("required: %v", order.Required)
	}

	next, err := res.Document.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	again, err := pipeline.Run(ctx, next, testConfig(srv.URL), pipeline.Deps{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for rec := range again.Report.All() {
		if rec.Verdict != specdrift.VerdictConfirmed {
			t.Fatalf("second run not confirmed: %+v", rec)
		}
	}
	out, _ := again.Document.Serialize()
	if !bytes.Equal(out, next) {
		t.Fatalf("second run changed the document:\n%s", out)
	}
}

func TestRun_InconclusiveKeepsDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Retries = 1
	res, err := pipeline.Run(context.Background(), []byte(orders), cfg, pipeline.Deps{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for rec := range res.Report.All() {
		if rec.Verdict != specdrift.VerdictConflicting || rec.Confidence != 0 || rec.Status != report.StatusNotEvaluated {
			t.Fatalf("record: %+v", rec)
		}
	}
	before, _ := res.Document.Baseline.Serialize()
	after, _ := res.Document.Serialize()
	if !bytes.Equal(before, after) {
		t.Fatalf("document changed:\n%s", after)
	}
	for _, r := range res.Evidence[specdrift.Key{Path: quantity, Kind: specdrift.KindMaximum}] {
		var tpe *specdrift.TransientProbeError
		if !errors.As(r.Err, &tpe) || tpe.Attempts != 2 {
			t.Fatalf("expected transient error after 2 attempts, got %v", r.Err)
		}
	}
}

func TestRun_StaticContradictionIsNotProbed(t *testing.T) {
	const doc = `{
  "openapi": "3.1.0",
  "info": {"title": "t", "version": "1"},
  "paths": {"/codes": {"post": {
    "operationId": "createCode",
    "requestBody": {"content": {"application/json": {"schema": {
      "type": "object",
      "properties": {"code": {"type": "string", "minLength": 10, "maxLength": 5}}
    }}}}
  }}}
}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	res, err := pipeline.Run(context.Background(), []byte(doc), testConfig(srv.URL), pipeline.Deps{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	code := "/paths/~1codes/post/requestBody/content/application~1json/schema/properties/code"
	for _, k := range []specdrift.Kind{specdrift.KindMinLength, specdrift.KindMaxLength} {
		key := specdrift.Key{Path: code, Kind: k}
		if n := len(res.Evidence[key]); n != 0 {
			t.Fatalf("%s probed %d times", key, n)
		}
		rec := record(t, res.Report, code, k)
		if rec.Verdict != specdrift.VerdictConflicting || rec.Confidence != 0 {
			t.Fatalf("%s: %+v", key, rec)
		}
	}
}

func TestRun_ApplyFilterAndLedger(t *testing.T) {
	srv := httptest.NewServer(ordersAPI())
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ApplyFilter = `kind != "required"`
	cfg.Ledger = filepath.Join(t.TempDir(), "runs.db")
	res, err := pipeline.Run(context.Background(), []byte(orders), cfg, pipeline.Deps{Source: "orders.yaml"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec := record(t, res.Report, "/components/schemas/Order/properties/name", specdrift.KindRequired); rec.Status != report.StatusReview {
		t.Fatalf("filtered correction should be reviewed: %+v", rec)
	}
	if rec := record(t, res.Report, quantity, specdrift.KindMaximum); rec.Status != report.StatusCorrected {
		t.Fatalf("maximum should still be corrected: %+v", rec)
	}

	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer store.Close()
	run, err := store.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Document != "orders.yaml" || run.Summary[report.StatusCorrected] != 1 || run.Summary[report.StatusReview] != 1 {
		t.Fatalf("run: %+v", run)
	}
	n, err := store.ProbeCount(context.Background(), res.RunID, specdrift.Key{Path: quantity, Kind: specdrift.KindMaximum})
	if err != nil || n < 3 {
		t.Fatalf("probe count: %d %v", n, err)
	}
}

func TestRun_RequiresBaseURL(t *testing.T) {
	_, err := pipeline.Run(context.Background(), []byte(orders), config.Default(), pipeline.Deps{})
	if !errors.Is(err, pipeline.ErrNoBaseURL) {
		t.Fatalf("got %v", err)
	}
}

func TestRun_MalformedDocument(t *testing.T) {
	_, err := pipeline.Run(context.Background(), []byte("openapi: 2.0\n"), testConfig("http://127.0.0.1:1"), pipeline.Deps{})
	var mse *specdrift.MalformedSpecError
	if !errors.As(err, &mse) {
		t.Fatalf("got %v", err)
	}
}

func TestPrepare_NoNetwork(t *testing.T) {
	prep, err := pipeline.Prepare([]byte(orders), config.Default(), nil)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(prep.Sets) == 0 || len(prep.Plan.Keys()) != len(prep.Sets) {
		t.Fatalf("sets=%d keys=%d", len(prep.Sets), len(prep.Plan.Keys()))
	}
}
