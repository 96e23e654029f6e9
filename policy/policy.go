// Package policy compiles the optional auto-apply filter.
//
// A filter is an expr-lang boolean expression evaluated once per
// discrepancy, for example:
//
//	kind != "required" && confidence >= 0.9
package policy

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/robinmordasiewicz/specdrift/classify"
)

// Env is the set of names visible to a filter expression.
type Env struct {
	Path       string  `expr:"path"`
	Kind       string  `expr:"kind"`
	Verdict    string  `expr:"verdict"`
	Confidence float64 `expr:"confidence"`
	Evidence   int     `expr:"evidence"`
	Location   string  `expr:"location"`
	Operation  string  `expr:"operation"`
	Declared   any     `expr:"declared"`
	Observed   any     `expr:"observed"`
}

// EnvOf builds the expression environment for d.
func EnvOf(d classify.Discrepancy) Env {
	env := Env{
		Path:       d.Key.Path,
		Kind:       string(d.Key.Kind),
		Verdict:    string(d.Verdict),
		Confidence: d.Confidence,
		Evidence:   d.EvidenceCount(),
		Location:   string(d.Descriptor.Context.Location),
		Declared:   d.Declared,
		Observed:   d.Observed,
	}
	if op := d.Descriptor.Context.Operation; op != nil {
		env.Operation = op.Name()
	}
	return env
}

// Filter is a compiled filter expression.
type Filter struct {
	src     string
	program *vm.Program
}

// Compile parses src. An empty expression yields a nil filter, which
// allows everything.
func Compile(src string) (*Filter, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	program, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", src, err)
	}
	return &Filter{src: src, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}

// Allow reports whether d may be applied automatically.
func (f *Filter) Allow(d classify.Discrepancy) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, err := expr.Run(f.program, EnvOf(d))
	if err != nil {
		return false, fmt.Errorf("eval filter %q: %w", f.src, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("filter %q did not return bool (got %T)", f.src, out)
	}
	return ok, nil
}
