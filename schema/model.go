package schema

import (
	"bytes"
	"fmt"

	"github.com/robinmordasiewicz/specdrift/document"
)

// Model is a loaded OpenAPI document and its resolved schema graph.
type Model struct {
	doc     *document.Node
	format  document.Format
	version string
	opts    Options
	nodes   map[string]*Node
	order   []string
	sites   map[string]string
	ops     []*Operation
	diag    *simpleDiag
	// src is the input of Load; loaded is the tree it decoded to.
	src     []byte
	loaded  *document.Node
}

// NodeAt returns the schema at path. Paths of $ref sites resolve to the
// referenced node.
func (m *Model) NodeAt(path string) (*Node, bool) {
	if n, ok := m.nodes[path]; ok {
		return n, true
	}
	if target, ok := m.sites[path]; ok {
		n, ok := m.nodes[target]
		return n, ok
	}
	return nil, false
}

// AllPaths returns every schema path in pre-order of discovery: operations
// in document order, then components. The order is stable for identical
// documents.
func (m *Model) AllPaths() []string { return append([]string(nil), m.order...) }

// Operations returns the document's operations in declaration order.
func (m *Model) Operations() []*Operation { return m.ops }

// Operation looks an operation up by operationId or "METHOD path".
func (m *Model) Operation(name string) (*Operation, bool) {
	for _, op := range m.ops {
		if op.ID == name || op.Method+" "+op.Path == name {
			return op, true
		}
	}
	return nil, false
}

// Document returns the underlying tree. Callers that mutate it must work
// on a Clone.
func (m *Model) Document() *document.Node { return m.doc }

// Format returns the syntax the document was read from.
func (m *Model) Format() document.Format { return m.format }

// Version returns the declared openapi version string.
func (m *Model) Version() string { return m.version }

// Options returns the options the model was loaded with.
func (m *Model) Options() Options { return m.opts }

// Diag returns load warnings.
func (m *Model) Diag() Diag { return m.diag }

// Clone returns a deep, independent copy of the model.
func (m *Model) Clone() *Model {
	c, err := FromDocument(m.doc.Clone(), m.format, m.opts)
	if err != nil {
		// the same tree loaded once already
		panic(fmt.Sprintf("schema: clone: %v", err))
	}
	c.src, c.loaded = m.src, m.loaded
	return c
}

// Reload rebuilds a model over doc with this model's format and options.
func (m *Model) Reload(doc *document.Node) (*Model, error) {
	return FromDocument(doc, m.format, m.opts)
}

// Serialize renders the document in its input format. While the tree still
// equals what Load decoded, the input bytes are returned unchanged.
func (m *Model) Serialize() ([]byte, error) {
	if m.src != nil && m.doc.Equal(m.loaded) {
		return bytes.Clone(m.src), nil
	}
	return document.Encode(m.doc, m.format)
}

// Trail bounds recursion while descending the graph. A node may be entered
// at most UnrollDepth times on one descent.
type Trail struct {
	depth int
	seen  map[*Node]int
}

// NewTrail starts a descent.
func (m *Model) NewTrail() *Trail {
	return &Trail{depth: m.opts.UnrollDepth, seen: map[*Node]int{}}
}

// Enter records n on the descent and reports whether it may be expanded.
func (t *Trail) Enter(n *Node) bool {
	if t.seen[n] >= t.depth {
		return false
	}
	t.seen[n]++
	return true
}

// Leave undoes the matching Enter.
func (t *Trail) Leave(n *Node) { t.seen[n]-- }

// CheckReachable walks the schemas reachable from op and returns the first
// cyclic-reference error found.
func (m *Model) CheckReachable(op *Operation) error {
	seen := map[*Node]bool{}
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if n == nil || seen[n] {
			return nil
		}
		seen[n] = true
		if n.Err != nil {
			return fmt.Errorf("operation %s: %w", op.Name(), n.Err)
		}
		for _, p := range n.Properties {
			if err := walk(p.Node); err != nil {
				return err
			}
		}
		if err := walk(n.Items); err != nil {
			return err
		}
		if err := walk(n.Additional); err != nil {
			return err
		}
		if n.Composition != nil {
			for _, br := range n.Composition.Branches {
				if err := walk(br); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, p := range op.Parameters {
		if err := walk(p.Schema); err != nil {
			return err
		}
	}
	if op.Body != nil {
		if err := walk(op.Body.Schema); err != nil {
			return err
		}
	}
	for _, r := range op.Responses {
		if err := walk(r.Schema); err != nil {
			return err
		}
	}
	return nil
}
