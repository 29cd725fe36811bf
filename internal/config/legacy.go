package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"docgen/internal/definition"
	"docgen/internal/excel"
)

var (
	legacyRoot         = xpath.MustCompile("descendant-or-self::document-output-definition")
	legacyPlaceholders = xpath.MustCompile("placeholder-value")

	// Conversions in precedence order; the first present one wins.
	legacyConversions = []struct {
		expr   *xpath.Expr
		output definition.OutputConversion
	}{
		{xpath.MustCompile("count(convert-output-xml-to-json)"), definition.OutputJSON},
		{xpath.MustCompile("count(convert-output-xml-fo-to-pdf)"), definition.OutputPDF}, // deprecated
		{xpath.MustCompile("count(convert-output-xsl-fo-to-pdf)"), definition.OutputPDF},
		{xpath.MustCompile("count(convert-output-xml-to-excel)"), definition.OutputExcel},
	}

	legacyElements = map[string]bool{
		"xslt-file": true, "xslt-directory": true, "placeholder-value": true,
		"convert-output-xml-to-json": true, "convert-output-xml-fo-to-pdf": true,
		"convert-output-xsl-fo-to-pdf": true, "convert-output-xml-to-excel": true,
		"content-type": true, "download-filename": true,
	}
)

// ParseLegacyDefinition reads the first <document-output-definition> element
// of r. Template paths are relative to templateDir.
func ParseLegacyDefinition(r io.Reader, name, templateDir string) (*definition.Definition, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, &definition.ConfigurationError{Subject: name, Msg: "malformed legacy definition", Err: err}
	}
	el := xmlquery.QuerySelector(doc, legacyRoot)
	if el == nil {
		return nil, definition.Errorf(name, "no <document-output-definition> element")
	}
	def, err := parseLegacy(el, name, templateDir)
	if err != nil {
		return nil, &definition.ConfigurationError{Subject: name, Err: err}
	}
	return def, nil
}

func parseLegacy(el *xmlquery.Node, name, templateDir string) (*definition.Definition, error) {
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && !legacyElements[c.Data] {
			return nil, fmt.Errorf("unexpected element <%s>", c.Data)
		}
	}
	def := definition.New(name)

	fileEl, err := single(el, "xslt-file")
	if err != nil {
		return nil, err
	}
	dirEl, err := single(el, "xslt-directory")
	if err != nil {
		return nil, err
	}
	switch {
	case fileEl != nil:
		n, err := mandatory(fileEl, "name")
		if err != nil {
			return nil, err
		}
		if def.Template, err = templateFile(templateDir, n); err != nil {
			return nil, err
		}
	case dirEl != nil:
		n, err := mandatory(dirEl, "name")
		if err != nil {
			return nil, err
		}
		if def.Template, err = templateFile(templateDir, filepath.Join(n, "report.xslt")); err != nil {
			return nil, err
		}
	}

	if ct, err := single(el, "content-type"); err != nil {
		return nil, err
	} else if ct != nil {
		if def.ContentType, err = mandatory(ct, "type"); err != nil {
			return nil, err
		}
	}

	if fn, err := single(el, "download-filename"); err != nil {
		return nil, err
	} else if fn != nil {
		def.DownloadFilename = strings.TrimSpace(fn.InnerText())
		if err := definition.ValidateFilename(def.DownloadFilename); err != nil {
			return nil, fmt.Errorf("<download-filename>%s</download-filename> is invalid", def.DownloadFilename)
		}
	}

	for _, p := range xmlquery.QuerySelectorAll(el, legacyPlaceholders) {
		key, err := mandatory(p, "placeholder-name")
		if err != nil {
			return nil, err
		}
		value, err := mandatory(p, "value")
		if err != nil {
			return nil, err
		}
		lang, _ := optional(p, "language")
		if err := def.Parameters.Set(lang, key, value); err != nil {
			return nil, err
		}
	}

	nav := xmlquery.CreateXPathNavigator(el)
	for _, c := range legacyConversions {
		if n, _ := c.expr.Evaluate(nav.Copy()).(float64); n > 0 {
			def.Output = c.output
			break
		}
	}

	xl, err := single(el, "convert-output-xml-to-excel")
	if err != nil {
		return nil, err
	}
	if xl != nil {
		if v, ok := optional(xl, "magic-numbers"); ok && strings.EqualFold(v, "true") {
			def.DecimalSeparator = excel.Magic
		}
		if v, ok := optional(xl, "input-decimal-separator"); ok {
			if def.DecimalSeparator, err = excel.ParseDecimalSeparator(v); err != nil {
				return nil, err
			}
		}
	}
	return def, nil
}

// single returns the only child element called name, nil when absent.
func single(el *xmlquery.Node, name string) (*xmlquery.Node, error) {
	var found *xmlquery.Node
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode || c.Data != name {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("more than one <%s> element", name)
		}
		found = c
	}
	return found, nil
}

func optional(n *xmlquery.Node, attr string) (string, bool) {
	for _, a := range n.Attr {
		if a.Name.Local == attr {
			return a.Value, true
		}
	}
	return "", false
}

func mandatory(n *xmlquery.Node, attr string) (string, error) {
	v, ok := optional(n, attr)
	if !ok {
		return "", fmt.Errorf("<%s> requires attribute %q", n.Data, attr)
	}
	return v, nil
}
