package excel

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Convert streams the XML in r through a Generator and closes w once the
// input is exhausted. w is left open when the input cannot be converted; a
// failed Close is returned as is.
func Convert(r io.Reader, sep DecimalSeparator, w Writer) error {
	g := NewGenerator(sep, w)
	dec := xml.NewDecoder(r)
	dec.Entity = xml.HTMLEntity
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("excel: input XML is not valid: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			g.StartElement(t)
		case xml.EndElement:
			if err := g.EndElement(t); err != nil {
				return err
			}
		case xml.CharData:
			g.CharData(t)
		}
	}
	return g.Close()
}
