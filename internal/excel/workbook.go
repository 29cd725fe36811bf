package excel

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// MaxFormats caps the distinct format objects a single workbook may hold.
const MaxFormats = 4000

const sheetName = "Report"

var ErrTooManyFormats = errors.New("excel: too many distinct cell formats")

// Workbook is the excelize-backed Writer. The xlsx file is written to out on
// Close.
type Workbook struct {
	f       *excelize.File
	out     io.Writer
	formats int
	closed  bool
}

func NewWorkbook(out io.Writer) (*Workbook, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Workbook{f: f, out: out}, nil
}

func (wb *Workbook) NewFormat(key FormatKey) (Format, error) {
	if wb.formats >= MaxFormats {
		return 0, ErrTooManyFormats
	}
	style := &excelize.Style{
		Font: &excelize.Font{Bold: key.Bold, Color: key.Color.RGB()},
	}
	if key.NumberFormat != "" {
		numFmt := key.NumberFormat
		style.CustomNumFmt = &numFmt
	}
	if key.Centered {
		style.Alignment = &excelize.Alignment{Horizontal: "center"}
	}
	if key.TopBorder {
		style.Border = []excelize.Border{{Type: "top", Color: "000000", Style: 1}}
	}
	id, err := wb.f.NewStyle(style)
	if err != nil {
		return 0, err
	}
	wb.formats++
	return Format(id), nil
}

func (wb *Workbook) SetCell(row, col int, value any, f Format) error {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return err
	}
	if err := wb.f.SetCellValue(sheetName, name, value); err != nil {
		return fmt.Errorf("excel: set %s: %w", name, err)
	}
	return wb.f.SetCellStyle(sheetName, name, name, int(f))
}

func (wb *Workbook) Merge(row, colStart, colEnd int) error {
	from, err := excelize.CoordinatesToCellName(colStart+1, row+1)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(colEnd+1, row+1)
	if err != nil {
		return err
	}
	return wb.f.MergeCell(sheetName, from, to)
}

func (wb *Workbook) SetColumnWidth(col int, width float64) error {
	name, err := excelize.ColumnNumberToName(col + 1)
	if err != nil {
		return err
	}
	if width > excelize.MaxColumnWidth {
		width = excelize.MaxColumnWidth
	}
	return wb.f.SetColWidth(sheetName, name, name, width)
}

func (wb *Workbook) Close() error {
	wb.closed = true
	werr := wb.f.Write(wb.out)
	return errors.Join(werr, wb.f.Close())
}

// Discard releases the workbook without writing it. It does nothing once
// Close has been called, whether or not Close succeeded.
func (wb *Workbook) Discard() error {
	if wb.closed {
		return nil
	}
	wb.closed = true
	return wb.f.Close()
}
