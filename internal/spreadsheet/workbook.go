package spreadsheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/blagoySimandov/certmapper/internal/models"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

const OutputPrefix = "updated_"

var (
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrEmptySheet        = errors.New("no rows found in sheet")
	ErrUnknownHeader     = errors.New("unknown header")
)

// FormatFromName picks the format from the file extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path.Ext(name))
	}
}

// OutputName is the name the updated workbook is saved under.
func OutputName(name string) string {
	return OutputPrefix + path.Base(name)
}

// Workbook is the active sheet of an uploaded file. Row 1 holds the headers.
type Workbook struct {
	format  Format
	file    *excelize.File
	sheet   string
	records [][]string
}

func Open(r io.Reader, format Format) (*Workbook, error) {
	switch format {
	case FormatXLSX:
		return openXLSX(r)
	case FormatCSV:
		return openCSV(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func openXLSX(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(records) == 0 {
		f.Close()
		return nil, ErrEmptySheet
	}
	return &Workbook{format: FormatXLSX, file: f, sheet: sheet, records: records}, nil
}

func openCSV(r io.Reader) (*Workbook, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptySheet
	}
	return &Workbook{format: FormatCSV, records: records}, nil
}

func (w *Workbook) Format() Format {
	return w.format
}

func (w *Workbook) Headers() []string {
	headers := make([]string, len(w.records[0]))
	copy(headers, w.records[0])
	return headers
}

// RowCount is the number of data rows below the header.
func (w *Workbook) RowCount() int {
	return len(w.records) - 1
}

// Rows returns the data rows numbered as in the sheet, starting at 2. Cells under an empty
// header are dropped and missing trailing cells read as "".
func (w *Workbook) Rows() []models.Row {
	headers := w.records[0]
	rows := make([]models.Row, 0, len(w.records)-1)
	for i, record := range w.records[1:] {
		fields := make([]models.Field, 0, len(headers))
		for j, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if j < len(record) {
				value = record[j]
			}
			fields = append(fields, models.Field{Name: header, Value: value})
		}
		rows = append(rows, models.Row{Number: i + 2, Fields: fields})
	}
	return rows
}

// HasHeader reports whether header names a column of the sheet.
func (w *Workbook) HasHeader(header string) bool {
	return w.column(header) >= 0
}

// column returns the 0-based index of the first column named header, or -1.
func (w *Workbook) column(header string) int {
	for i, h := range w.records[0] {
		if h == header {
			return i
		}
	}
	return -1
}

// SetCell writes value into the column named header on sheet row number.
func (w *Workbook) SetCell(number int, header, value string) error {
	col := w.column(header)
	if col < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownHeader, header)
	}
	if number < 2 {
		return fmt.Errorf("row %d is the header row or out of range", number)
	}

	for len(w.records) < number {
		w.records = append(w.records, nil)
	}
	record := w.records[number-1]
	for len(record) <= col {
		record = append(record, "")
	}
	record[col] = value
	w.records[number-1] = record

	if w.file != nil {
		cell, err := excelize.CoordinatesToCellName(col+1, number)
		if err != nil {
			return fmt.Errorf("failed to resolve cell: %w", err)
		}
		if err := w.file.SetCellValue(w.sheet, cell, value); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}

// WriteOutcomes stores each result's certificate name and remark in the chosen columns.
func (w *Workbook) WriteOutcomes(outcomes []models.RowOutcome, certHeader, remarkHeader string) error {
	for _, header := range []string{certHeader, remarkHeader} {
		if !w.HasHeader(header) {
			return fmt.Errorf("%w: %q", ErrUnknownHeader, header)
		}
	}
	for _, o := range outcomes {
		if err := w.SetCell(o.RowNumber, certHeader, o.Result.CertificateName()); err != nil {
			return err
		}
		if err := w.SetCell(o.RowNumber, remarkHeader, o.Result.Remark()); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workbook) Save(out io.Writer) error {
	if w.file != nil {
		if err := w.file.Write(out); err != nil {
			return fmt.Errorf("failed to write workbook: %w", err)
		}
		return nil
	}

	writer := csv.NewWriter(out)
	if err := writer.WriteAll(w.records); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func (w *Workbook) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
