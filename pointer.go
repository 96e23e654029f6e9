package specdrift

import (
	"strconv"
	"strings"
)

// Pointer is an RFC 6901 JSON Pointer kept as unescaped segments.
type Pointer []string

// ParsePointer splits a JSON Pointer string. Both "" and "/" denote the root.
// A leading "#" (URI fragment form used by $ref) is accepted.
func ParsePointer(s string) Pointer {
	s = strings.TrimPrefix(s, "#")
	if s == "" || s == "/" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(s, "/"), "/")
	out := make(Pointer, len(parts))
	for i, p := range parts {
		out[i] = Unescape(p)
	}
	return out
}

// Field returns a new pointer extended by an object key.
func (p Pointer) Field(name string) Pointer {
	return append(append(Pointer{}, p...), name)
}

// Index returns a new pointer extended by an array index.
func (p Pointer) Index(i int) Pointer {
	return append(append(Pointer{}, p...), strconv.Itoa(i))
}

// Parent returns the pointer without its last segment.
func (p Pointer) Parent() Pointer {
	if len(p) == 0 {
		return nil
	}
	return append(Pointer{}, p[:len(p)-1]...)
}

// Last returns the final segment, or "" for the root.
func (p Pointer) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// String renders the pointer with '~' and '/' escaped.
func (p Pointer) String() string {
	if len(p) == 0 {
		return ""
	}
	b := &strings.Builder{}
	for _, s := range p {
		b.WriteByte('/')
		b.WriteString(Escape(s))
	}
	return b.String()
}

// Escape encodes '~' -> '~0' and '/' -> '~1' per RFC 6901.
func Escape(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}

// Unescape reverses Escape.
func Unescape(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~1", "/"), "~0", "~")
}

// JoinPointer appends escaped segments to a rendered pointer.
func JoinPointer(base string, segs ...string) string {
	b := &strings.Builder{}
	b.WriteString(base)
	for _, s := range segs {
		b.WriteByte('/')
		b.WriteString(Escape(s))
	}
	return b.String()
}
