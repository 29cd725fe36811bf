// Package excel turns HTML-table-shaped XML into a spreadsheet.
//
// The input is consumed as a stream of start-tag, end-tag and text events.
// Only outer tables are converted: everything outside a <table> and every
// table nested inside one is ignored. Each outer table is buffered as three
// regions (thead, tbody, tfoot) and written, in that order, when it closes.
package excel

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Format is a writer-side format object handle.
type Format int

// Writer is the spreadsheet binary writer. Rows and columns are zero based.
type Writer interface {
	NewFormat(FormatKey) (Format, error)
	SetCell(row, col int, value any, f Format) error
	Merge(row, colStart, colEnd int) error
	SetColumnWidth(col int, width float64) error
	// Close writes the workbook out and releases it.
	Close() error
}

// widthFactor widens columns because proportional fonts render wider than
// their character count.
const widthFactor = 1.5

type cell struct {
	text      strings.Builder
	colspan   int
	format    CellFormat
	forceText bool
}

type row []*cell

func (r row) empty() bool {
	for _, c := range r {
		if strings.TrimSpace(c.text.String()) != "" {
			return false
		}
	}
	return true
}

// Generator is the event consumer. It is not safe for concurrent use; run one
// per document.
type Generator struct {
	sep DecimalSeparator
	w   Writer

	formats  map[FormatKey]Format
	nextRow  int
	maxChars []int

	depth    int
	inScript bool

	head, body, foot []row
	active           *[]row
	row              row
	open             bool
	cell             *cell
}

func NewGenerator(sep DecimalSeparator, w Writer) *Generator {
	return &Generator{sep: sep, w: w, formats: map[FormatKey]Format{}}
}

func (g *Generator) StartElement(el xml.StartElement) {
	name := el.Name.Local
	if name == "table" {
		g.depth++
		if g.depth == 1 {
			g.head, g.body, g.foot = nil, nil, nil
			g.active = &g.body
		}
	}
	if g.depth != 1 {
		return
	}
	switch name {
	case "script":
		g.inScript = true
	case "thead":
		g.active = &g.head
	case "tfoot":
		g.active = &g.foot
	case "tr":
		if g.open && !g.row.empty() {
			*g.active = append(*g.active, g.row)
		}
		g.row, g.open, g.cell = nil, true, nil
	case "td", "th":
		if !g.open {
			return
		}
		c := &cell{colspan: 1}
		if v, ok := attr(el, "colspan"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 1 {
				c.colspan = n
			}
		}
		if v, ok := attr(el, "style"); ok {
			c.format = parseStyle(v)
		}
		if v, _ := attr(el, "excel-type"); v == "text" {
			c.forceText = true
		}
		g.row = append(g.row, c)
		g.cell = c
	}
}

func (g *Generator) EndElement(el xml.EndElement) error {
	name := el.Name.Local
	if name == "table" && g.depth > 0 {
		g.depth--
		if g.depth == 0 {
			return g.flushTable()
		}
		return nil
	}
	if g.depth != 1 {
		return nil
	}
	switch name {
	case "script":
		g.inScript = false
	case "thead", "tfoot":
		g.active = &g.body
	case "tr":
		if g.open && !g.row.empty() {
			*g.active = append(*g.active, g.row)
		}
		g.row, g.open, g.cell = nil, false, nil
	case "td", "th":
		g.cell = nil
	}
	return nil
}

func (g *Generator) CharData(data []byte) {
	if g.depth != 1 || g.inScript || g.cell == nil {
		return
	}
	g.cell.text.WriteString(strings.ReplaceAll(string(data), "\u00a0", " "))
}

// Close sizes the columns and writes the workbook.
func (g *Generator) Close() error {
	for col, chars := range g.maxChars {
		if chars <= 0 {
			continue
		}
		if err := g.w.SetColumnWidth(col, math.Round(float64(chars)*widthFactor)); err != nil {
			return err
		}
	}
	return g.w.Close()
}

func (g *Generator) flushTable() error {
	for _, region := range [][]row{g.head, g.body, g.foot} {
		if err := g.flush(region); err != nil {
			return err
		}
	}
	g.head, g.body, g.foot, g.active = nil, nil, nil, nil
	g.row, g.open, g.cell, g.inScript = nil, false, nil, false
	return nil
}

func (g *Generator) flush(rows []row) error {
	for _, r := range rows {
		col := 0
		for _, c := range r {
			value, width, pattern := g.value(c)
			f, err := g.format(FormatKey{CellFormat: c.format, NumberFormat: pattern})
			if err != nil {
				return err
			}
			if err := g.w.SetCell(g.nextRow, col, value, f); err != nil {
				return err
			}
			if c.colspan > 1 {
				if err := g.w.Merge(g.nextRow, col, col+c.colspan-1); err != nil {
					return err
				}
			}
			g.widen(col, width)
			col += c.colspan
		}
		g.nextRow++
	}
	return nil
}

// value returns the cell value (float64 or string), its rendered width in
// characters and its number format ("" for text).
func (g *Generator) value(c *cell) (any, int, string) {
	text := c.text.String()
	if c.forceText {
		return text, utf8.RuneCountInString(text), ""
	}
	if v, ok := g.sep.Parse(text); ok {
		places := g.sep.DecimalPlaces(text)
		return v, len(strconv.FormatFloat(v, 'f', places, 64)), numberFormat(places)
	}
	text = strings.TrimSpace(text)
	return text, utf8.RuneCountInString(text), ""
}

// format interns format objects for the whole workbook: writers only hold a
// limited number of them.
func (g *Generator) format(key FormatKey) (Format, error) {
	if f, ok := g.formats[key]; ok {
		return f, nil
	}
	f, err := g.w.NewFormat(key)
	if err != nil {
		return 0, fmt.Errorf("excel: new format: %w", err)
	}
	g.formats[key] = f
	return f, nil
}

func (g *Generator) widen(col, chars int) {
	for len(g.maxChars) <= col {
		g.maxChars = append(g.maxChars, 0)
	}
	if chars > g.maxChars[col] {
		g.maxChars[col] = chars
	}
}

func attr(el xml.StartElement, name string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
