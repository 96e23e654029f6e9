package schema

import (
	"fmt"
	"strings"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/document"
)

// refTarget follows a chain of local $refs starting at p and returns the
// pointer of the first non-reference object. external is true when the
// chain leaves the document.
func (b *builder) refTarget(p specdrift.Pointer) (target specdrift.Pointer, external bool, err error) {
	visited := map[string]bool{}
	chain := []string{p.String()}
	cur := p
	for {
		raw, ok := b.doc.Lookup(cur)
		if !ok {
			return nil, false, danglingRef(chain)
		}
		ref, isRef := refOf(raw)
		if !isRef {
			return cur, false, nil
		}
		if !strings.HasPrefix(ref, "#") {
			b.diag.warnf("$ref %q at %s not supported (local references only)", ref, cur.String())
			return cur, true, nil
		}
		next := specdrift.ParsePointer(ref)
		key := next.String()
		if visited[key] || key == p.String() {
			return nil, false, &specdrift.CyclicReferenceError{Chain: append(chain, key)}
		}
		visited[key] = true
		chain = append(chain, key)
		cur = next
	}
}

func refOf(n *document.Node) (string, bool) {
	if n == nil || n.Kind != document.KindObject {
		return "", false
	}
	return n.Get("$ref").Str()
}

type danglingRefError struct{ chain []string }

func (e *danglingRefError) Error() string {
	return fmt.Sprintf("reference %s does not resolve", e.chain[len(e.chain)-1])
}

func danglingRef(chain []string) error { return &danglingRefError{chain: chain} }

// resolveObject follows $refs for non-schema objects such as parameters,
// request bodies and responses.
func (b *builder) resolveObject(p specdrift.Pointer) (specdrift.Pointer, *document.Node, bool) {
	target, external, err := b.refTarget(p)
	if err != nil {
		b.refIssue(p, err)
		return nil, nil, false
	}
	if external {
		return nil, nil, false
	}
	raw, _ := b.doc.Lookup(target)
	return target, raw, true
}

func (b *builder) refIssue(site specdrift.Pointer, err error) {
	switch e := err.(type) {
	case *danglingRefError:
		b.issues = specdrift.AppendIssues(b.issues, specdrift.Issue{
			Path:    site.String(),
			Code:    specdrift.CodeDanglingRef,
			Message: e.Error(),
		})
	default:
		b.issues = specdrift.AppendIssues(b.issues, specdrift.Issue{
			Path:    site.String(),
			Code:    specdrift.CodeUnsupportedRef,
			Message: err.Error(),
		})
	}
}

// markCompositionCycles flags nodes whose composition branches lead back to
// themselves through nothing but other compositions: such a schema has no
// concrete member and cannot be expanded.
func (b *builder) markCompositionCycles() {
	for _, key := range b.order {
		n := b.nodes[key]
		if n.Composition == nil || n.Err != nil || n.Concrete() {
			continue
		}
		if chain := compositionLoop(n, n, nil, map[*Node]bool{}); chain != nil {
			n.Err = &specdrift.CyclicReferenceError{Chain: chain}
		}
	}
}

func compositionLoop(start, cur *Node, chain []string, seen map[*Node]bool) []string {
	chain = append(chain, cur.Path)
	if cur.Composition == nil || cur.Concrete() {
		return nil
	}
	seen[cur] = true
	for _, br := range cur.Composition.Branches {
		if br == start {
			return append(chain, start.Path)
		}
		if seen[br] {
			continue
		}
		if c := compositionLoop(start, br, chain, seen); c != nil {
			return c
		}
	}
	return nil
}
