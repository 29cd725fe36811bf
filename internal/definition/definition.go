// Package definition describes what a document is generated from and what it
// is converted into: the optional stylesheet, its per-language parameters and
// the post-transform conversion.
package definition

import (
	"fmt"
	"regexp"

	"docgen/internal/excel"
)

type OutputConversion int

const (
	OutputNone OutputConversion = iota
	OutputJSON
	OutputPDF
	OutputExcel
)

var outputNames = map[string]OutputConversion{
	"none":                  OutputNone,
	"xmlToJson":             OutputJSON,
	"xslFoToPdf":            OutputPDF,
	"xmlFoToPdf":            OutputPDF, // deprecated spelling
	"excelXmlToExcelBinary": OutputExcel,
}

func ParseOutputConversion(s string) (OutputConversion, error) {
	if s == "" {
		return OutputNone, nil
	}
	if o, ok := outputNames[s]; ok {
		return o, nil
	}
	return OutputNone, fmt.Errorf("unknown output conversion %q", s)
}

func (o OutputConversion) String() string {
	switch o {
	case OutputJSON:
		return "xmlToJson"
	case OutputPDF:
		return "xslFoToPdf"
	case OutputExcel:
		return "excelXmlToExcelBinary"
	default:
		return "none"
	}
}

// Default content types, used when a definition declares none.
const (
	ContentTypeText  = "text/plain"
	ContentTypeJSON  = "application/json"
	ContentTypePDF   = "application/pdf"
	ContentTypeExcel = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// FOP holds the optional locations handed to the page renderer.
type FOP struct {
	FontBase     string
	Config       string
	ResourceBase string
}

type Definition struct {
	Name string

	// Template is the absolute path of the stylesheet. Empty means the
	// identity transform.
	Template string

	Parameters       *Parameters
	Output           OutputConversion
	ContentType      string
	DownloadFilename string
	DecimalSeparator excel.DecimalSeparator
	FOP              FOP
}

func New(name string) *Definition {
	return &Definition{Name: name, Parameters: NewParameters()}
}

// ContentTypeOr returns the declared content type or fallback.
func (d *Definition) ContentTypeOr(fallback string) string {
	if d.ContentType != "" {
		return d.ContentType
	}
	return fallback
}

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// ValidateFilename accepts only A-Z, a-z, 0-9, '_', '-' and '.', the subset
// that survives every Content-Disposition implementation unescaped.
func ValidateFilename(name string) error {
	if !filenamePattern.MatchString(name) {
		return Errorf("download filename", "%q is invalid: only A-Z, a-z, 0-9, '_', '-', '.' are allowed", name)
	}
	return nil
}
