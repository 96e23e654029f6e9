// Package ledger keeps an audit trail of runs in SQLite: every probe
// result and the resulting report records.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/prober"
	"github.com/robinmordasiewicz/specdrift/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	document      TEXT NOT NULL,
	base_url      TEXT,
	started_at    TEXT NOT NULL,
	finished_at   TEXT,
	summary_json  TEXT
);

CREATE TABLE IF NOT EXISTS probes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	path          TEXT NOT NULL,
	kind          TEXT NOT NULL,
	context       TEXT,
	label         TEXT,
	value_json    TEXT,
	omitted       INTEGER NOT NULL,
	expect        TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	status        INTEGER,
	attempts      INTEGER,
	latency_ms    INTEGER,
	error         TEXT,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS discrepancies (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	path          TEXT NOT NULL,
	kind          TEXT NOT NULL,
	declared_json TEXT,
	observed_json TEXT,
	verdict       TEXT NOT NULL,
	confidence    REAL NOT NULL,
	evidence      INTEGER NOT NULL,
	status        TEXT NOT NULL,
	reason        TEXT,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS probes_key ON probes(run_id, path, kind);
`

// Store is an open ledger database.
type Store struct {
	db *sql.DB
}

// Run describes one recorded run.
type Run struct {
	ID         string
	Document   string
	BaseURL    string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    map[report.Status]int
}

// Open opens (or creates) the ledger at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// BeginRun records the start of a run and returns its identifier. An empty
// id is replaced with a fresh UUID.
func (s *Store) BeginRun(ctx context.Context, id, document, baseURL string) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, document, base_url, started_at) VALUES (?, ?, ?, ?)`,
		id, document, baseURL, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordEvidence stores every probe result of a run, ordered by key.
func (s *Store) RecordEvidence(ctx context.Context, runID string, ev prober.Evidence) error {
	keys := make([]specdrift.Key, 0, len(ev))
	for k := range ev {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b specdrift.Key) int {
		if a.Less(b) {
			return -1
		}
		if b.Less(a) {
			return 1
		}
		return 0
	})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO probes (run_id, path, kind, context, label, value_json, omitted, expect, outcome, status, attempts, latency_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		for _, r := range ev[k] {
			value, err := json.Marshal(r.Probe.Value)
			if err != nil {
				return fmt.Errorf("marshal probe value: %w", err)
			}
			var msg sql.NullString
			if r.Err != nil {
				msg = sql.NullString{String: r.Err.Error(), Valid: true}
			}
			_, err = stmt.ExecContext(ctx, runID, k.Path, string(k.Kind), r.Context, r.Probe.Label, string(value),
				r.Probe.Omit, r.Probe.Expect.String(), r.Outcome.String(), r.Status, r.Attempts,
				r.Latency.Milliseconds(), msg)
			if err != nil {
				return fmt.Errorf("insert probe: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FinishRun stores the report records and the status summary.
func (s *Store) FinishRun(ctx context.Context, runID string, rep *report.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for rec := range rep.All() {
		declared, err := json.Marshal(rec.Declared)
		if err != nil {
			return fmt.Errorf("marshal declared: %w", err)
		}
		observed, err := json.Marshal(rec.Observed)
		if err != nil {
			return fmt.Errorf("marshal observed: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO discrepancies (run_id, path, kind, declared_json, observed_json, verdict, confidence, evidence, status, reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, rec.Path, string(rec.Kind), string(declared), string(observed), string(rec.Verdict),
			rec.Confidence, rec.Evidence, string(rec.Status), rec.Reason)
		if err != nil {
			return fmt.Errorf("insert discrepancy: %w", err)
		}
	}

	summary, err := json.Marshal(rep.Summary())
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, summary_json = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), string(summary), runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("run %s not found", runID)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetRun loads a run's metadata.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var (
		r                 Run
		base              sql.NullString
		started           string
		finished, summary sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, document, base_url, started_at, finished_at, summary_json FROM runs WHERE run_id = ?`,
		runID).Scan(&r.ID, &r.Document, &base, &started, &finished, &summary)
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	r.BaseURL = base.String
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	if summary.Valid {
		if err := json.Unmarshal([]byte(summary.String), &r.Summary); err != nil {
			return Run{}, fmt.Errorf("unmarshal summary: %w", err)
		}
	}
	return r, nil
}

// Records loads the report records stored for a run, in insertion order.
func (s *Store) Records(ctx context.Context, runID string) ([]report.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, kind, declared_json, observed_json, verdict, confidence, evidence, status, reason
		 FROM discrepancies WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query discrepancies: %w", err)
	}
	defer rows.Close()

	var out []report.Record
	for rows.Next() {
		var (
			rec                report.Record
			kind, verdict, st  string
			declared, observed string
			reason             sql.NullString
		)
		if err := rows.Scan(&rec.Path, &kind, &declared, &observed, &verdict, &rec.Confidence, &rec.Evidence, &st, &reason); err != nil {
			return nil, fmt.Errorf("scan discrepancy: %w", err)
		}
		rec.Kind = specdrift.Kind(kind)
		rec.Verdict = specdrift.Verdict(verdict)
		rec.Status = report.Status(st)
		rec.Reason = reason.String
		if err := json.Unmarshal([]byte(declared), &rec.Declared); err != nil {
			return nil, fmt.Errorf("unmarshal declared: %w", err)
		}
		if err := json.Unmarshal([]byte(observed), &rec.Observed); err != nil {
			return nil, fmt.Errorf("unmarshal observed: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ProbeCount returns how many probe results were stored for a key.
func (s *Store) ProbeCount(ctx context.Context, runID string, k specdrift.Key) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM probes WHERE run_id = ? AND path = ? AND kind = ?`,
		runID, k.Path, string(k.Kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count probes: %w", err)
	}
	return n, nil
}
