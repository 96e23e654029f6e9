package schema

import "fmt"

// DefaultUnrollDepth bounds how many times a recursive schema is expanded
// during traversal.
const DefaultUnrollDepth = 2

// Options controls how an OpenAPI document is loaded.
type Options struct {
	// UnrollDepth is the number of times a self-referencing schema may
	// appear on one descent. Zero selects DefaultUnrollDepth.
	UnrollDepth int
	// SkipEnvelope disables structural validation of the OpenAPI envelope.
	SkipEnvelope bool
}

func (o Options) withDefaults() Options {
	if o.UnrollDepth <= 0 {
		o.UnrollDepth = DefaultUnrollDepth
	}
	return o
}

// Diag carries non-fatal warnings produced during load.
type Diag interface {
	HasWarnings() bool
	Warnings() []string
}

type simpleDiag struct{ ws []string }

func (d *simpleDiag) HasWarnings() bool        { return len(d.ws) > 0 }
func (d *simpleDiag) Warnings() []string       { return append([]string(nil), d.ws...) }
func (d *simpleDiag) warnf(f string, a ...any) { d.ws = append(d.ws, fmt.Sprintf(f, a...)) }
