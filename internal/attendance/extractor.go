package attendance

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Extractor turns an attendance spreadsheet into records and selects the
// students below Threshold.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger.With("component", "extractor")}
}

// ExtractLowAttendance reads path and returns the records whose Total
// Percentage is below Threshold, in sheet order.
func (e *Extractor) ExtractLowAttendance(path string) (all, flagged []Record, err error) {
	all, err = e.Extract(path)
	if err != nil {
		return nil, nil, err
	}
	return all, e.Filter(all), nil
}

// Extract reads the first worksheet of path. The first non-blank row holds the
// column names; every later non-blank row becomes one Record.
func (e *Extractor) Extract(path string) ([]Record, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	records := toRecords(rows)
	e.logger.Debug("spreadsheet parsed", "file", filepath.Base(path), "records", len(records))
	return records, nil
}

// Filter keeps records whose percentage is strictly below Threshold. Records
// without a numeric percentage are left out and logged.
func (e *Extractor) Filter(records []Record) []Record {
	var out []Record
	for _, r := range records {
		pct, ok := r.Percentage()
		if !ok {
			e.logger.Warn("skipping row without numeric percentage",
				"row", r.Row(),
				"value", r.TotalPercentage(),
			)
			continue
		}
		if pct < Threshold {
			out = append(out, r)
		}
	}
	return out
}

func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, len(oleMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	head = head[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	switch {
	case bytes.HasPrefix(head, zipMagic):
		return readWorkbook(f)
	case bytes.HasPrefix(head, oleMagic):
		return readLegacyWorkbook(f)
	case strings.EqualFold(filepath.Ext(path), ".csv"):
		return readCSV(f)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func readWorkbook(r io.Reader) ([][]string, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoWorksheet
	}

	// Raw values so a percentage formatted cell yields its stored number.
	return wb.GetRows(sheets[0], excelize.Options{RawCellValue: true})
}

// readLegacyWorkbook reads the first sheet of a BIFF (.xls) workbook. Cells
// are read positionally so gaps keep their column.
func readLegacyWorkbook(r io.ReadSeeker) (rows [][]string, err error) {
	// The BIFF decoder panics on some malformed records.
	defer func() {
		if p := recover(); p != nil {
			rows, err = nil, fmt.Errorf("malformed .xls workbook: %v", p)
		}
	}()

	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, err
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, ErrNoWorksheet
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrNoWorksheet
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			if c < row.FirstCol() {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func toRecords(rows [][]string) []Record {
	headerIdx := -1
	for i, row := range rows {
		if !blank(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil
	}

	headers := headerNames(rows[headerIdx])

	var records []Record
	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		values := make(map[string]string, len(headers))
		for col, name := range headers {
			if name == "" || col >= len(row) {
				continue
			}
			if v := row[col]; v != "" {
				values[name] = v
			}
		}
		records = append(records, Record{row: i + 1, values: values})
	}
	return records
}

// headerNames trims header cells and suffixes repeated names with _1, _2, ...
func headerNames(row []string) []string {
	names := make([]string, len(row))
	seen := make(map[string]int, len(row))
	for i, cell := range row {
		name := strings.TrimSpace(cell)
		if name == "" {
			continue
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		} else {
			seen[name] = 1
		}
		names[i] = name
	}
	return names
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
