package excel

import (
	"regexp"
	"strings"
)

type Color int

const (
	NoColor Color = iota
	Green
	Red
	Orange
)

var colorNames = map[string]Color{
	"green":  Green,
	"red":    Red,
	"orange": Orange,
}

// RGB is the font colour written to the workbook.
func (c Color) RGB() string {
	switch c {
	case Green:
		return "00FF00"
	case Red:
		return "FF0000"
	case Orange:
		return "FF9900"
	}
	return ""
}

// CellFormat is the visual style a cell picks up from its style attribute.
type CellFormat struct {
	Centered  bool
	Bold      bool
	TopBorder bool
	Color     Color
}

// FormatKey identifies one format object in the workbook. Equal keys share
// a single writer format.
type FormatKey struct {
	CellFormat
	// NumberFormat is empty for text cells.
	NumberFormat string
}

var (
	styleCentered = regexp.MustCompile(`text-align:\s*center`)
	styleBold     = regexp.MustCompile(`font-weight:\s*bold`)
	styleColor    = regexp.MustCompile(`color:\s*(\w+)`)
)

// parseStyle reads the subset of inline CSS the converter understands.
// Colours outside the known set are ignored.
func parseStyle(style string) CellFormat {
	f := CellFormat{
		Centered:  styleCentered.MatchString(style),
		Bold:      styleBold.MatchString(style),
		TopBorder: strings.Contains(style, "border-top:"),
	}
	if m := styleColor.FindStringSubmatch(style); m != nil {
		f.Color = colorNames[m[1]]
	}
	return f
}

func numberFormat(decimalPlaces int) string {
	if decimalPlaces <= 0 {
		return "#,##0"
	}
	return "#,##0." + strings.Repeat("0", decimalPlaces)
}
