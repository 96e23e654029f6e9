package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	j "github.com/goccy/go-json"

	specdrift "github.com/robinmordasiewicz/specdrift"
)

// tokenReader wraps a go-json Decoder so the tree builder can pull tokens
// one at a time. It keeps the input to recover how values were written.
type tokenReader struct {
	dec  *j.Decoder
	data []byte
	doc  *docLayout
}

func newTokenReader(data []byte) *tokenReader {
	dec := j.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return &tokenReader{dec: dec, data: data, doc: &docLayout{
		jsonIndent: jsonIndent(data),
		newline:    bytes.HasSuffix(data, []byte("\n")),
		yamlIndent: defaultDocLayout.yamlIndent,
	}}
}

// offset is the input position just past the last token read.
func (tr *tokenReader) offset() int { return int(tr.dec.InputOffset()) }

// DecodeJSON builds a tree from JSON bytes. Duplicate object keys are
// rejected with the position of the offending member.
func DecodeJSON(data []byte) (*Node, error) {
	tr := newTokenReader(data)
	tok, err := tr.dec.Token()
	if err != nil {
		return nil, jsonParseError(nil, err)
	}
	root, err := tr.value(nil, tok, 0)
	if err != nil {
		return nil, err
	}
	if _, err := tr.dec.Token(); !errors.Is(err, io.EOF) {
		return nil, specdrift.Malformed(specdrift.Issue{Code: specdrift.CodeParseError, Message: "trailing data after JSON document"})
	}
	if tr.doc.colon == "" {
		tr.doc.colon = defaultDocLayout.colon
	}
	if tr.doc.comma == "" {
		tr.doc.comma = defaultDocLayout.comma
	}
	root.doc = tr.doc
	return root, nil
}

// value builds the node for tok. from is the offset before tok was read.
func (tr *tokenReader) value(at specdrift.Pointer, tok j.Token, from int) (*Node, error) {
	switch v := tok.(type) {
	case j.Delim:
		switch v {
		case '{':
			return tr.object(at)
		case '[':
			return tr.array(at)
		}
		return nil, jsonParseError(at, fmt.Errorf("unexpected delimiter %q", rune(v)))
	case string:
		n := NewString(v)
		n.layout = tr.stringLayout(v, from)
		return n, nil
	case j.Number:
		return &Node{Kind: KindNumber, Scalar: string(v)}, nil
	case float64:
		return &Node{Kind: KindNumber, Scalar: FormatNumber(v)}, nil
	case bool:
		return FromValue(v), nil
	case nil:
		return &Node{Kind: KindNull}, nil
	}
	return nil, jsonParseError(at, fmt.Errorf("unexpected token %v", tok))
}

// stringLayout keeps the source literal of a string whose escapes differ
// from the encoder's.
func (tr *tokenReader) stringLayout(v string, from int) layout {
	to := tr.offset()
	if from < 0 || to > len(tr.data) || from > to {
		return layout{}
	}
	raw := strings.TrimLeft(string(tr.data[from:to]), " \t\r\n,:")
	if raw == quoteJSON(v) || !strings.HasPrefix(raw, `"`) {
		return layout{}
	}
	return layout{raw: raw, rawOf: v}
}

func (tr *tokenReader) object(at specdrift.Pointer) (*Node, error) {
	n := NewObject()
	open := tr.offset()
	seen := make(map[string]struct{})
	for {
		from := tr.offset()
		tok, err := tr.dec.Token()
		if err != nil {
			return nil, jsonParseError(at, err)
		}
		if d, ok := tok.(j.Delim); ok && d == '}' {
			n.layout.inline = tr.inline(open)
			return n, nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, jsonParseError(at, fmt.Errorf("expected object key, got %v", tok))
		}
		if _, dup := seen[key]; dup {
			return nil, specdrift.Malformed(specdrift.Issue{
				Path:    at.Field(key).String(),
				Code:    specdrift.CodeDuplicateKey,
				Message: fmt.Sprintf("duplicate JSON key %q", key),
			})
		}
		seen[key] = struct{}{}
		kl := tr.stringLayout(key, from)
		if tr.doc.colon == "" {
			tr.doc.colon = tr.gap(tr.offset(), ':')
		}
		from = tr.offset()
		vt, err := tr.dec.Token()
		if err != nil {
			return nil, jsonParseError(at.Field(key), err)
		}
		v, err := tr.value(at.Field(key), vt, from)
		if err != nil {
			return nil, err
		}
		n.Fields = append(n.Fields, Field{Key: key, Value: v, keyLayout: kl})
		tr.noteComma(open)
	}
}

func (tr *tokenReader) array(at specdrift.Pointer) (*Node, error) {
	n := &Node{Kind: KindArray, Items: []*Node{}}
	open := tr.offset()
	for {
		from := tr.offset()
		tok, err := tr.dec.Token()
		if err != nil {
			return nil, jsonParseError(at, err)
		}
		if d, ok := tok.(j.Delim); ok && d == ']' {
			n.layout.inline = tr.inline(open)
			return n, nil
		}
		v, err := tr.value(at.Index(len(n.Items)), tok, from)
		if err != nil {
			return nil, err
		}
		n.Items = append(n.Items, v)
		tr.noteComma(open)
	}
}

// inline reports whether the container opened at open closed on the same
// line.
func (tr *tokenReader) inline(open int) bool {
	end := min(tr.offset(), len(tr.data))
	return open <= end && !bytes.ContainsRune(tr.data[open:end], '\n')
}

// noteComma records the member separator of the first single-line
// container holding more than one member.
func (tr *tokenReader) noteComma(open int) {
	if tr.doc.comma != "" || !tr.inline(open) {
		return
	}
	g := tr.gap(tr.offset(), ',')
	if end := tr.offset() + len(g); g != "" && end < len(tr.data) && tr.data[end] != '\n' && tr.data[end] != '\r' {
		tr.doc.comma = g
	}
}

// gap returns the bytes from pos through delim and the blanks after it, or
// "" when delim is not the next significant byte.
func (tr *tokenReader) gap(pos int, delim byte) string {
	i := pos
	for i < len(tr.data) && (tr.data[i] == ' ' || tr.data[i] == '\t') {
		i++
	}
	if i >= len(tr.data) || tr.data[i] != delim {
		return ""
	}
	i++
	for i < len(tr.data) && (tr.data[i] == ' ' || tr.data[i] == '\t') {
		i++
	}
	return string(tr.data[pos:i])
}

// jsonIndent returns the indentation unit of the first nested line, or two
// spaces.
func jsonIndent(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || trimmed == line {
			continue
		}
		return line[:len(line)-len(trimmed)]
	}
	return defaultDocLayout.jsonIndent
}

func jsonParseError(at specdrift.Pointer, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return specdrift.Malformed(specdrift.Issue{Path: at.String(), Code: specdrift.CodeParseError, Message: err.Error()})
}

// EncodeJSON renders the tree with the indentation, separators and final
// newline it was read with, two-space indentation for new documents. Key
// order, number literals and string escapes are emitted exactly as stored.
func EncodeJSON(n *Node) []byte {
	w := &jsonWriter{dl: n.docLayout()}
	w.write(n, 0)
	if w.dl.newline {
		w.b.WriteByte('\n')
	}
	return []byte(w.b.String())
}

type jsonWriter struct {
	b  strings.Builder
	dl docLayout
}

func (w *jsonWriter) write(n *Node, depth int) {
	b := &w.b
	if n == nil {
		b.WriteString("null")
		return
	}
	switch n.Kind {
	case KindNull:
		b.WriteString("null")
	case KindBool, KindNumber:
		b.WriteString(n.Scalar)
	case KindString:
		w.str(n.Scalar, n.layout)
	case KindObject:
		if len(n.Fields) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteByte('{')
		for i, f := range n.Fields {
			w.sep(n.layout.inline, i, depth+1)
			w.str(f.Key, f.keyLayout)
			b.WriteString(w.dl.colon)
			w.write(f.Value, depth+1)
		}
		w.close(n.layout.inline, depth)
		b.WriteByte('}')
	case KindArray:
		if len(n.Items) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteByte('[')
		for i, it := range n.Items {
			w.sep(n.layout.inline, i, depth+1)
			w.write(it, depth+1)
		}
		w.close(n.layout.inline, depth)
		b.WriteByte(']')
	}
}

// sep writes what precedes member i of a container.
func (w *jsonWriter) sep(inline bool, i, depth int) {
	if inline {
		if i > 0 {
			w.b.WriteString(w.dl.comma)
		}
		return
	}
	if i > 0 {
		w.b.WriteByte(',')
	}
	w.b.WriteByte('\n')
	w.indent(depth)
}

func (w *jsonWriter) close(inline bool, depth int) {
	if inline {
		return
	}
	w.b.WriteByte('\n')
	w.indent(depth)
}

func (w *jsonWriter) str(s string, l layout) {
	if raw, ok := l.literal(s); ok {
		w.b.WriteString(raw)
		return
	}
	w.b.WriteString(quoteJSON(s))
}

func (w *jsonWriter) indent(depth int) {
	for i := 0; i < depth; i++ {
		w.b.WriteString(w.dl.jsonIndent)
	}
}

func quoteJSON(s string) string {
	var buf bytes.Buffer
	enc := j.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return `""`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
