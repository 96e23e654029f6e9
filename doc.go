// Package specdrift reconciles a published OpenAPI contract with the observed
// behavior of the live API it describes.
//
// The root package holds the vocabulary shared by every stage:
//
//   - Constraint kinds, probe expectations/outcomes and discrepancy verdicts
//   - A stable error model via Issues (JSON Pointer, code, message)
//   - The error taxonomy (MalformedSpecError, CyclicReferenceError, TransientProbeError)
//   - JSON Pointer helpers used as node identity across the pipeline
//
// Design policy:
//   - Keep only shared types in the root package; each stage lives in its own package
//     (document, schema, extract, probe, prober, classify, reconcile, report,
//     policy, ledger, config, pipeline, i18n).
//   - Stages other than the prober are pure functions over immutable inputs.
//   - The CLI lives under cmd/specdrift.
//
// Typical usage:
//
//	m, err := schema.Load(raw, schema.Options{})
//	plan := extract.All(m, extract.Options{})
//	res, err := pipeline.Run(ctx, raw, cfg, pipeline.Deps{Transport: t})
//	out, err := res.Document.Serialize()
package specdrift
