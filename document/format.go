package document

import (
	"bytes"
	"fmt"
)

// Format is the serialization syntax of a document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// ParseFormat maps "json"/"yaml"/"yml" to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return FormatJSON, fmt.Errorf("document: unknown format %q", s)
}

// Detect guesses the syntax from the first significant byte: JSON documents
// start with '{' or '['.
func Detect(data []byte) Format {
	t := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(t) > 0 && (t[0] == '{' || t[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// Parse decodes data in its detected format.
func Parse(data []byte) (*Node, Format, error) {
	f := Detect(data)
	var (
		n   *Node
		err error
	)
	if f == FormatJSON {
		n, err = DecodeJSON(data)
	} else {
		n, err = DecodeYAML(data)
	}
	return n, f, err
}

// Encode renders the tree in the given format.
func Encode(n *Node, f Format) ([]byte, error) {
	if f == FormatYAML {
		return EncodeYAML(n)
	}
	return EncodeJSON(n), nil
}
