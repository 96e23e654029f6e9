package specdrift

import (
	"errors"
	"fmt"
	"strings"
)

// Issue codes reported by document loading and structural validation.
const (
	CodeParseError      = "parse_error"
	CodeDuplicateKey    = "duplicate_key"
	CodeInvalidType     = "invalid_type"
	CodeRequired        = "required"
	CodeInvalidVersion  = "invalid_version"
	CodeDanglingRef     = "dangling_ref"
	CodeUnsupportedRef  = "unsupported_ref"
	CodeInvalidPattern  = "invalid_pattern"
	CodeInvalidKeyword  = "invalid_keyword"
	CodeSchemaViolation = "schema_violation"
)

// Issue represents a single structural problem in a document.
type Issue struct {
	Path    string // JSON Pointer (for example: /paths/~1pets/post).
	Code    string // One of the codes listed above.
	Message string
}

// Issues is a collection of structural problems that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		// e.g. invalid_type at /info: expected object
		fmt.Fprintf(b, "%s at %s", it.Code, renderPath(it.Path))
		if it.Message != "" {
			fmt.Fprintf(b, ": %s", it.Message)
		}
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	var mal *MalformedSpecError
	if errors.As(err, &mal) {
		return mal.Issues, true
	}
	return nil, false
}

func renderPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// MalformedSpecError reports that the input is not a usable OpenAPI 3.x
// document. It is unrecoverable for the run.
type MalformedSpecError struct {
	Issues Issues
}

func (e *MalformedSpecError) Error() string {
	if len(e.Issues) == 0 {
		return "malformed spec"
	}
	first := e.Issues[0]
	msg := fmt.Sprintf("malformed spec: %s at %s", first.Code, renderPath(first.Path))
	if first.Message != "" {
		msg += ": " + first.Message
	}
	if len(e.Issues) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(e.Issues)-1)
	}
	return msg
}

// Unwrap exposes the issue list to errors.As.
func (e *MalformedSpecError) Unwrap() error { return e.Issues }

// Malformed builds a MalformedSpecError from one or more issues.
func Malformed(iss ...Issue) *MalformedSpecError {
	return &MalformedSpecError{Issues: AppendIssues(nil, iss...)}
}

// CyclicReferenceError reports a $ref chain that never reaches a concrete
// schema. Only operations that reach the chain are affected.
type CyclicReferenceError struct {
	Chain []string // ref targets in visiting order; the last repeats an earlier entry
}

func (e *CyclicReferenceError) Error() string {
	return "cyclic $ref without concrete schema: " + strings.Join(e.Chain, " -> ")
}

// TransientProbeError records a failure that may succeed on retry: a transport
// error, a timeout, a 5xx or a 429 response. It never aborts a run; exhausted
// retries degrade the probe to inconclusive.
type TransientProbeError struct {
	Status   int // 0 when no response was received
	Attempts int
	Err      error
}

func (e *TransientProbeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient probe failure: status %d after %d attempt(s)", e.Status, e.Attempts)
	}
	return fmt.Sprintf("transient probe failure after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransientProbeError) Unwrap() error { return e.Err }
