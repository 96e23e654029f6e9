package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	specdrift "github.com/robinmordasiewicz/specdrift"
)

// DuplicateKeyError reports a duplicate key found in a YAML mapping with both
// the first occurrence position and the duplicate occurrence position.
type DuplicateKeyError struct {
	Key       string
	Path      string
	FirstLine int
	FirstCol  int
	Line      int
	Col       int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate YAML key %q at %d:%d (first at %d:%d)", e.Key, e.Line, e.Col, e.FirstLine, e.FirstCol)
}

// DecodeYAML builds a tree from the first document of a YAML stream.
func DecodeYAML(data []byte) (*Node, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var root yaml.Node
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, specdrift.Malformed(specdrift.Issue{Code: specdrift.CodeParseError, Message: "empty document"})
		}
		return nil, specdrift.Malformed(specdrift.Issue{Code: specdrift.CodeParseError, Message: err.Error()})
	}
	n, err := fromYAML(&root, nil)
	if err != nil {
		var dk *DuplicateKeyError
		if errors.As(err, &dk) {
			return nil, specdrift.Malformed(specdrift.Issue{Path: dk.Path, Code: specdrift.CodeDuplicateKey, Message: dk.Error()})
		}
		return nil, specdrift.Malformed(specdrift.Issue{Code: specdrift.CodeParseError, Message: err.Error()})
	}
	dl := defaultDocLayout
	dl.yamlIndent = yamlIndent(data)
	dl.head, dl.foot = root.HeadComment, root.FootComment
	n.doc = &dl
	return n, nil
}

func fromYAML(n *yaml.Node, at specdrift.Pointer) (*Node, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return &Node{Kind: KindNull}, nil
		}
		return fromYAML(n.Content[0], at)
	case yaml.AliasNode:
		if n.Alias == nil {
			return &Node{Kind: KindNull}, nil
		}
		out, err := fromYAML(n.Alias, at)
		if err == nil {
			// the anchor keeps its comments
			out.layout.head, out.layout.line, out.layout.foot = "", "", ""
		}
		return out, err
	case yaml.MappingNode:
		out := NewObject()
		first := make(map[string][2]int, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			key := k.Value
			if pos, dup := first[key]; dup {
				return nil, &DuplicateKeyError{Key: key, Path: at.Field(key).String(), FirstLine: pos[0], FirstCol: pos[1], Line: k.Line, Col: k.Column}
			}
			first[key] = [2]int{k.Line, k.Column}
			v, err := fromYAML(n.Content[i+1], at.Field(key))
			if err != nil {
				return nil, err
			}
			kl := layoutOf(k)
			if t := k.ShortTag(); t != "!!str" {
				kl.tag = t
			}
			out.Fields = append(out.Fields, Field{Key: key, Value: v, keyLayout: kl})
		}
		out.layout = layoutOf(n)
		return out, nil
	case yaml.SequenceNode:
		out := &Node{Kind: KindArray, Items: make([]*Node, 0, len(n.Content))}
		for i, c := range n.Content {
			v, err := fromYAML(c, at.Index(i))
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, v)
		}
		out.layout = layoutOf(n)
		return out, nil
	case yaml.ScalarNode:
		out := scalarFromYAML(n)
		out.layout = layoutOf(n)
		if n.Value != out.Scalar {
			out.layout.raw, out.layout.rawOf = n.Value, out.Scalar
		}
		return out, nil
	default:
		return &Node{Kind: KindNull}, nil
	}
}

func scalarFromYAML(n *yaml.Node) *Node {
	switch n.ShortTag() {
	case "!!null":
		return &Node{Kind: KindNull}
	case "!!bool":
		switch strings.ToLower(n.Value) {
		case "true":
			return FromValue(true)
		case "false":
			return FromValue(false)
		}
		return NewString(n.Value)
	case "!!int":
		if _, err := strconv.ParseInt(n.Value, 10, 64); err == nil {
			return &Node{Kind: KindNumber, Scalar: n.Value}
		}
		// hex, octal and underscore forms normalize to decimal
		if i, err := strconv.ParseInt(strings.ReplaceAll(n.Value, "_", ""), 0, 64); err == nil {
			return &Node{Kind: KindNumber, Scalar: strconv.FormatInt(i, 10)}
		}
		return NewString(n.Value)
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return NewString(n.Value)
		}
		if isJSONNumber(n.Value) {
			return &Node{Kind: KindNumber, Scalar: n.Value}
		}
		return &Node{Kind: KindNumber, Scalar: FormatNumber(f)}
	default:
		return NewString(n.Value)
	}
}

// isJSONNumber reports whether s is already a valid JSON number literal.
func isJSONNumber(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[i] == '-' {
		i++
	}
	if i >= len(s) || s[i] < '0' || s[i] > '9' {
		return false
	}
	for ; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && c != '.' && c != 'e' && c != 'E' && c != '+' && c != '-' {
			return false
		}
	}
	return true
}

func layoutOf(n *yaml.Node) layout {
	return layout{style: n.Style, head: n.HeadComment, line: n.LineComment, foot: n.FootComment}
}

func (l layout) apply(y *yaml.Node) *yaml.Node {
	y.Style = l.style
	y.HeadComment, y.LineComment, y.FootComment = l.head, l.line, l.foot
	return y
}

// yamlIndent returns the indentation width of the first nested line, or 2.
func yamlIndent(data []byte) int {
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimLeft(line, " ")
		if trimmed == "" || trimmed == line || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "- ") {
			continue
		}
		if w := len(line) - len(trimmed); w >= 2 && w <= 9 {
			return w
		}
		break
	}
	return 2
}

// EncodeYAML renders the tree as a YAML document, keeping key order and the
// comments, scalar styles and indentation recorded when it was decoded.
func EncodeYAML(n *Node) ([]byte, error) {
	dl := n.docLayout()
	doc := &yaml.Node{Kind: yaml.DocumentNode, HeadComment: dl.head, FootComment: dl.foot}
	doc.Content = []*yaml.Node{toYAML(n)}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(dl.yamlIndent)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("document: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("document: encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func toYAML(n *Node) *yaml.Node {
	if n == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	switch n.Kind {
	case KindObject:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, f := range n.Fields {
			tag := "!!str"
			if f.keyLayout.tag != "" {
				tag = f.keyLayout.tag
			}
			out.Content = append(out.Content,
				f.keyLayout.apply(&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: f.Key}),
				toYAML(f.Value))
		}
		return n.layout.apply(out)
	case KindArray:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, it := range n.Items {
			out.Content = append(out.Content, toYAML(it))
		}
		return n.layout.apply(out)
	case KindString:
		return n.layout.apply(&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.Scalar})
	case KindBool:
		v := n.Scalar
		if raw, ok := n.layout.literal(n.Scalar); ok {
			v = raw
		}
		return n.layout.apply(&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: v})
	case KindNumber:
		tag := "!!float"
		if _, err := strconv.ParseInt(n.Scalar, 10, 64); err == nil {
			tag = "!!int"
		}
		v := n.Scalar
		if raw, ok := n.layout.literal(n.Scalar); ok {
			v = raw
		}
		return n.layout.apply(&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v})
	default:
		out := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		if n.layout.raw != "" {
			out.Value = n.layout.raw
		}
		return n.layout.apply(out)
	}
}
