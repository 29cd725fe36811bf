package jsonxml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

var jsonNumber = regexp.MustCompile(`^-?(0|[1-9]\d*)(\.\d+)?([eE][+-]?\d+)?$`)

// object keeps keys in document order.
type object struct {
	keys   []string
	values map[string]any
}

type list []any

func newObject() *object { return &object{values: map[string]any{}} }

// add appends value under key; a repeated key turns into an array.
func (o *object) add(key string, value any) {
	prev, ok := o.values[key]
	if !ok {
		o.keys = append(o.keys, key)
		o.values[key] = value
		return
	}
	if l, ok := prev.(list); ok {
		o.values[key] = append(l, value)
		return
	}
	o.values[key] = list{prev, value}
}

// XMLToJSON converts an XML document to pretty-printed JSON with two-space
// indentation. The result is an object with one key, the root element.
// Attributes and child elements become keys; an element with neither maps to
// its text (or "" when empty), otherwise its text goes under ContentKey.
// Text that reads as a JSON number, boolean or null is converted.
func XMLToJSON(r io.Reader) ([]byte, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("jsonxml: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("jsonxml: document has no root element")
	}
	top := newObject()
	top.add(root.FullTag(), elementValue(root))

	var compact, out bytes.Buffer
	if err := writeJSON(&compact, top); err != nil {
		return nil, err
	}
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func elementValue(el *etree.Element) any {
	var texts []string
	elements := 0
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			if s := strings.TrimSpace(t.Data); s != "" {
				texts = append(texts, s)
			}
		case *etree.Element:
			elements++
		}
	}
	if len(el.Attr) == 0 && elements == 0 {
		switch len(texts) {
		case 0:
			return ""
		case 1:
			return scalarValue(texts[0])
		}
	}

	obj := newObject()
	for _, a := range el.Attr {
		obj.add(a.FullKey(), scalarValue(a.Value))
	}
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			if s := strings.TrimSpace(t.Data); s != "" {
				obj.add(ContentKey, scalarValue(s))
			}
		case *etree.Element:
			obj.add(t.FullTag(), elementValue(t))
		}
	}
	return obj
}

func scalarValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if jsonNumber.MatchString(s) {
		return json.Number(s)
	}
	return s
}

func writeJSON(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case *object:
		buf.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeJSON(buf, t.values[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case list:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case string:
		return writeString(buf, t)
	case json.Number:
		buf.WriteString(string(t))
	case bool:
		fmt.Fprint(buf, t)
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("jsonxml: unexpected value %T", v)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1) // Encode appends a newline
	return nil
}
