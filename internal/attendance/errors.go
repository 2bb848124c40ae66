package attendance

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	// ErrUnsupportedFormat is returned for files that are not an Office Open
	// XML workbook, a legacy .xls workbook or CSV.
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

	// ErrNoWorksheet is returned when a workbook contains no sheets.
	ErrNoWorksheet = errors.New("workbook has no worksheets")
)

// ParseError reports a spreadsheet that could not be opened or decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot read spreadsheet %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
