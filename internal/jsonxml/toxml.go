// Package jsonxml maps between XML documents and JSON.
//
// JSON objects become elements named after their keys, arrays become
// repeated elements and ContentKey carries element text. Object key order is
// preserved in both directions.
package jsonxml

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/beevik/etree"
	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// arrayTag names the elements of an array nested directly in an array.
const arrayTag = "array"

var ErrInvalidJSON = errors.New("jsonxml: invalid JSON")

// JSONToXML reads one JSON value and returns it as a document whose root
// element is named root. A top-level array becomes <array> children of the
// root, a top-level scalar its text.
func JSONToXML(r io.Reader, root string) (*etree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	value := gjson.ParseBytes(data)

	doc := etree.NewDocument()
	el := doc.CreateElement(root)
	switch {
	case value.IsObject():
		appendObject(el, value)
	case value.IsArray():
		value.ForEach(func(_, item gjson.Result) bool {
			appendValue(el, arrayTag, item)
			return true
		})
	default:
		if s := scalar(value); s != "" {
			el.SetText(s)
		}
	}
	return doc, nil
}

// JSONToXMLWithContentType is JSONToXML for a body of the given media type:
// the charset parameter, UTF-8 when absent, selects the decoder.
func JSONToXMLWithContentType(contentType string, r io.Reader, root string) (*etree.Document, error) {
	if contentType != "" {
		_, params, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("jsonxml: content type %q: %w", contentType, err)
		}
		if cs := params["charset"]; cs != "" && !strings.EqualFold(cs, "utf-8") {
			enc, err := htmlindex.Get(cs)
			if err != nil {
				return nil, fmt.Errorf("jsonxml: charset %q: %w", cs, err)
			}
			r = transform.NewReader(r, enc.NewDecoder())
		}
	}
	return JSONToXML(r, root)
}

func appendObject(el *etree.Element, obj gjson.Result) {
	obj.ForEach(func(key, value gjson.Result) bool {
		if key.String() == ContentKey {
			el.CreateText(contentText(value))
			return true
		}
		appendValue(el, SafeName(key.String()), value)
		return true
	})
}

func appendValue(parent *etree.Element, name string, value gjson.Result) {
	switch {
	case value.IsObject():
		appendObject(parent.CreateElement(name), value)
	case value.IsArray():
		value.ForEach(func(_, item gjson.Result) bool {
			if item.IsArray() {
				inner := parent.CreateElement(name)
				item.ForEach(func(_, v gjson.Result) bool {
					appendValue(inner, arrayTag, v)
					return true
				})
				return true
			}
			appendValue(parent, name, item)
			return true
		})
	default:
		el := parent.CreateElement(name)
		if s := scalar(value); s != "" {
			el.SetText(s)
		}
	}
}

func contentText(value gjson.Result) string {
	if !value.IsArray() {
		return scalar(value)
	}
	var parts []string
	value.ForEach(func(_, v gjson.Result) bool {
		parts = append(parts, scalar(v))
		return true
	})
	return strings.Join(parts, "\n")
}

func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return "null"
	case gjson.String:
		return v.String()
	}
	// numbers keep their literal spelling
	return v.Raw
}
