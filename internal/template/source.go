package template

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/beevik/etree"

	"docgen/internal/definition"
	"docgen/internal/transform"
)

// Source is a stylesheet that can be compiled. CacheKey identifies its
// content: two sources with the same key compile to the same template.
type Source interface {
	CacheKey() string
	Parse() (*etree.Document, error)
}

// Stylesheet is an in-memory Source. The content is read once, so the key
// and the parsed document always agree.
type Stylesheet struct {
	name string
	data []byte
	key  string
}

// NewFileSource reads the stylesheet at path.
func NewFileSource(path string) (*Stylesheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &definition.ConfigurationError{Subject: path, Msg: "cannot read template", Err: err}
	}
	return NewBytesSource(path, data), nil
}

func NewBytesSource(name string, data []byte) *Stylesheet {
	sum := sha256.Sum256(data)
	return &Stylesheet{name: name, data: data, key: hex.EncodeToString(sum[:])}
}

func (s *Stylesheet) CacheKey() string { return s.key }

func (s *Stylesheet) String() string { return s.name }

// Parse returns the stylesheet with output redirection removed: schema
// imports are dropped and xsl:result-document loses its href, so every
// result is written to the caller's stream.
func (s *Stylesheet) Parse() (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(s.data); err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%s: no root element", s.name)
	}
	normalise(doc)
	return doc, nil
}

func normalise(doc *etree.Document) {
	for _, el := range doc.FindElements("//*") {
		if el.NamespaceURI() != transform.XSLTNamespace {
			continue
		}
		switch el.Tag {
		case "import-schema":
			if p := el.Parent(); p != nil {
				p.RemoveChild(el)
			}
		case "result-document":
			el.RemoveAttr("href")
		}
	}
}
