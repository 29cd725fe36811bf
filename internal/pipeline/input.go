package pipeline

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"docgen/internal/jsonxml"
)

// InputRoot names the root element JSON input is converted under.
const InputRoot = "request"

// ErrInvalidInput marks a request body that is neither well-formed XML nor
// valid JSON.
var ErrInvalidInput = errors.New("invalid input document")

// ParseInput reads a request body. JSON media types are converted to XML,
// anything else is parsed as XML honouring its declared encoding.
func ParseInput(contentType string, r io.Reader) (*etree.Document, error) {
	if isJSON(contentType) {
		doc, err := jsonxml.JSONToXMLWithContentType(contentType, r, InputRoot)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return doc, nil
	}
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: no root element", ErrInvalidInput)
	}
	return doc, nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func charsetReader(label string, in io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(in, enc.NewDecoder()), nil
}
