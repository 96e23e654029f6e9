package probe

import (
	"errors"
	"regexp/syntax"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

var errNoMatch = errors.New("pattern matches no string")

// matcher checks candidate strings with ECMA-262 semantics, which is what
// OpenAPI patterns follow: unanchored search.
type matcher struct {
	src string
	re  *regexp2.Regexp
	ast *syntax.Regexp // nil when the pattern uses constructs Go cannot parse
}

func compilePattern(p string) (*matcher, error) {
	re, err := regexp2.Compile(p, regexp2.ECMAScript)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = time.Second
	m := &matcher{src: p, re: re}
	if ast, err := syntax.Parse(p, syntax.Perl); err == nil {
		m.ast = ast.Simplify()
	}
	return m, nil
}

func (m *matcher) match(s string) bool {
	ok, err := m.re.MatchString(s)
	return err == nil && ok
}

// minLen is the length of the shortest string the pattern fully matches,
// or -1 when it matches nothing.
func (m *matcher) minLen() int {
	if m.ast == nil {
		return 0
	}
	s, ok := minimal(m.ast)
	if !ok {
		return -1
	}
	return utf8.RuneCountInString(s)
}

// synth returns a matching string whose length lies in [lo, hi] (hi < 0
// means unbounded), aiming for exactly lo runes.
func (m *matcher) synth(lo, hi int) (string, error) {
	if m.ast != nil {
		base, ok := minimal(m.ast)
		if !ok {
			return "", errNoMatch
		}
		n := utf8.RuneCountInString(base)
		if n < lo {
			budget := lo - n
			grown := grow(m.ast, &budget)
			if utf8.RuneCountInString(grown) == lo && m.match(grown) {
				return grown, nil
			}
		}
		if n >= lo && (hi < 0 || n <= hi) && m.match(base) {
			return base, nil
		}
		// unanchored patterns accept padding around a match
		if n < lo && m.match(base+strings.Repeat("a", lo-n)) {
			return base + strings.Repeat("a", lo-n), nil
		}
	}
	for _, c := range fallbackCandidates(lo) {
		k := utf8.RuneCountInString(c)
		if k >= lo && (hi < 0 || k <= hi) && m.match(c) {
			return c, nil
		}
	}
	return "", errNoMatch
}

// violate returns a string of roughly the requested length that the
// pattern does not match.
func (m *matcher) violate(like string, lo, hi int) (string, bool) {
	inRange := func(s string) bool {
		k := utf8.RuneCountInString(s)
		return k >= lo && (hi < 0 || k <= hi)
	}
	var fallback string
	try := func(s string) bool {
		if m.match(s) {
			return false
		}
		if inRange(s) {
			fallback = s
			return true
		}
		if fallback == "" {
			fallback = s
		}
		return false
	}
	rs := []rune(like)
	for i := range rs {
		for _, r := range []rune{'!', '~', ' ', '#', 'Z', '9', 'a'} {
			c := append([]rune(nil), rs...)
			c[i] = r
			if try(string(c)) {
				return fallback, true
			}
		}
	}
	n := len(rs)
	if n < lo {
		n = lo
	}
	for _, fill := range []string{"!", "~", " ", "0", "a", "Z"} {
		if try(strings.Repeat(fill, n)) {
			return fallback, true
		}
	}
	if try("") {
		return fallback, true
	}
	return fallback, fallback != ""
}

func fallbackCandidates(n int) []string {
	if n < 1 {
		n = 1
	}
	var out []string
	for _, fill := range []string{"a", "A", "0", "a0", "-", "_", "."} {
		s := strings.Repeat(fill, n)
		out = append(out, string([]rune(s)[:n]))
	}
	return out
}

// minimal builds the shortest string that fully matches re.
func minimal(re *syntax.Regexp) (string, bool) {
	switch re.Op {
	case syntax.OpNoMatch:
		return "", false
	case syntax.OpEmptyMatch, syntax.OpBeginLine, syntax.OpEndLine, syntax.OpBeginText,
		syntax.OpEndText, syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		return "", true
	case syntax.OpLiteral:
		return string(re.Rune), true
	case syntax.OpCharClass:
		r, ok := pickRune(re.Rune)
		if !ok {
			return "", false
		}
		return string(r), true
	case syntax.OpAnyCharNotNL, syntax.OpAnyChar:
		return "a", true
	case syntax.OpCapture:
		return minimal(re.Sub[0])
	case syntax.OpStar, syntax.OpQuest:
		return "", true
	case syntax.OpPlus:
		return minimal(re.Sub[0])
	case syntax.OpRepeat:
		s, ok := minimal(re.Sub[0])
		if !ok {
			return "", re.Min == 0
		}
		return strings.Repeat(s, re.Min), true
	case syntax.OpConcat:
		b := &strings.Builder{}
		for _, sub := range re.Sub {
			s, ok := minimal(sub)
			if !ok {
				return "", false
			}
			b.WriteString(s)
		}
		return b.String(), true
	case syntax.OpAlternate:
		best, found := "", false
		for _, sub := range re.Sub {
			s, ok := minimal(sub)
			if ok && (!found || utf8.RuneCountInString(s) < utf8.RuneCountInString(best)) {
				best, found = s, true
			}
		}
		return best, found
	}
	return "", false
}

// grow builds a matching string, spending up to *budget extra runes on
// repetitions that allow more occurrences.
func grow(re *syntax.Regexp, budget *int) string {
	switch re.Op {
	case syntax.OpCapture:
		return grow(re.Sub[0], budget)
	case syntax.OpConcat:
		b := &strings.Builder{}
		for _, sub := range re.Sub {
			b.WriteString(grow(sub, budget))
		}
		return b.String()
	case syntax.OpAlternate:
		best := re.Sub[0]
		bestLen := -1
		for _, sub := range re.Sub {
			if s, ok := minimal(sub); ok && (bestLen < 0 || utf8.RuneCountInString(s) < bestLen) {
				best, bestLen = sub, utf8.RuneCountInString(s)
			}
		}
		return grow(best, budget)
	case syntax.OpStar, syntax.OpPlus, syntax.OpQuest, syntax.OpRepeat:
		lo, hi := 0, -1
		switch re.Op {
		case syntax.OpPlus:
			lo = 1
		case syntax.OpQuest:
			hi = 1
		case syntax.OpRepeat:
			lo, hi = re.Min, re.Max
		}
		unit, ok := minimal(re.Sub[0])
		if !ok {
			return ""
		}
		reps := lo
		if w := utf8.RuneCountInString(unit); w > 0 {
			for *budget >= w && (hi < 0 || reps < hi) {
				reps++
				*budget -= w
			}
		}
		return strings.Repeat(unit, reps)
	}
	s, _ := minimal(re)
	return s
}

// pickRune prefers readable characters from a class.
func pickRune(ranges []rune) (rune, bool) {
	if len(ranges) == 0 {
		return 0, false
	}
	for _, want := range "aA0_-. " {
		for i := 0; i+1 < len(ranges); i += 2 {
			if want >= ranges[i] && want <= ranges[i+1] {
				return want, true
			}
		}
	}
	for i := 0; i+1 < len(ranges); i += 2 {
		lo := ranges[i]
		if lo < 0x21 && ranges[i+1] >= 0x21 {
			lo = 0x21
		}
		return lo, true
	}
	return 0, false
}
