package specdrift

import "fmt"

// Kind names a constraint keyword that can be probed against the live API.
type Kind string

const (
	KindType                 Kind = "type"
	KindRequired             Kind = "required"
	KindMinLength            Kind = "minLength"
	KindMaxLength            Kind = "maxLength"
	KindPattern              Kind = "pattern"
	KindMinimum              Kind = "minimum"
	KindMaximum              Kind = "maximum"
	KindExclusiveMinimum     Kind = "exclusiveMinimum"
	KindExclusiveMaximum     Kind = "exclusiveMaximum"
	KindEnum                 Kind = "enum"
	KindMinItems             Kind = "minItems"
	KindMaxItems             Kind = "maxItems"
	KindUniqueItems          Kind = "uniqueItems"
	KindAdditionalProperties Kind = "additionalProperties"
)

// Kinds lists every probed kind in extraction order.
var Kinds = []Kind{
	KindType,
	KindRequired,
	KindMinLength,
	KindMaxLength,
	KindPattern,
	KindMinimum,
	KindMaximum,
	KindExclusiveMinimum,
	KindExclusiveMaximum,
	KindEnum,
	KindMinItems,
	KindMaxItems,
	KindUniqueItems,
	KindAdditionalProperties,
}

// IsBound reports whether the kind is a numeric bound (length, range or item count).
func (k Kind) IsBound() bool {
	switch k {
	case KindMinLength, KindMaxLength, KindMinimum, KindMaximum,
		KindExclusiveMinimum, KindExclusiveMaximum, KindMinItems, KindMaxItems:
		return true
	}
	return false
}

// IsLower reports whether the kind is a lower bound.
func (k Kind) IsLower() bool {
	switch k {
	case KindMinLength, KindMinimum, KindExclusiveMinimum, KindMinItems:
		return true
	}
	return false
}

// Expectation is what the declared contract predicts for a probe.
type Expectation int

const (
	ShouldAccept Expectation = iota
	ShouldReject
)

func (e Expectation) String() string {
	if e == ShouldReject {
		return "shouldReject"
	}
	return "shouldAccept"
}

// Outcome is what the live API did with a probe.
type Outcome int

const (
	Inconclusive Outcome = iota
	Accepted
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "inconclusive"
	}
}

// Verdict classifies a declared constraint against observed behavior.
type Verdict string

const (
	VerdictConfirmed   Verdict = "confirmed"
	VerdictWiden       Verdict = "widen"
	VerdictNarrow      Verdict = "narrow"
	VerdictRemove      Verdict = "remove"
	VerdictConflicting Verdict = "conflicting"
)

// Location identifies where in a request a constraint is exercised.
type Location string

const (
	InBody     Location = "body"
	InQuery    Location = "query"
	InPath     Location = "path"
	InHeader   Location = "header"
	InResponse Location = "response"
)

// Probeable reports whether constraints at this location can be tested by
// sending a request.
func (l Location) Probeable() bool { return l != InResponse }

// Key identifies one constraint in the document: evidence and discrepancies
// are aggregated per Key.
type Key struct {
	Path string // JSON Pointer of the schema node (or property/parameter site for required)
	Kind Kind
}

func (k Key) String() string { return fmt.Sprintf("%s#%s", renderPath(k.Path), k.Kind) }

// Less orders keys by path then kind; used wherever output must be canonical.
func (k Key) Less(o Key) bool {
	if k.Path != o.Path {
		return k.Path < o.Path
	}
	return k.Kind < o.Kind
}
