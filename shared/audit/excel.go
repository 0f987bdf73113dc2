package audit

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelizeWriter writes one sheet per table. Timestamps are formatted as text.
type ExcelizeWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
	headerStyle  int
}

func NewExcelizeWriter() ExcelWriter {
	f := excelize.NewFile()
	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	return &ExcelizeWriter{file: f, headerStyle: style}
}

// AddSheet starts a sheet; names are cut to the 31-character Excel limit.
func (w *ExcelizeWriter) AddSheet(name string) error {
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes column headers to current sheet.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, col); err != nil {
			return err
		}
	}

	if w.headerStyle != 0 && len(columns) > 0 {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, w.headerStyle)
	}

	w.currentRow++
	return nil
}

// WriteRow writes a data row to current sheet.
func (w *ExcelizeWriter) WriteRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, cellValue(val)); err != nil {
			return err
		}
	}

	w.currentRow++
	return nil
}

func cellValue(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04:05")
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return v
	}
}

func (w *ExcelizeWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *ExcelizeWriter) SaveToFile(path string) error {
	return w.file.SaveAs(path)
}

func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}
