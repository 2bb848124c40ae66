// Package attendancetest builds attendance spreadsheets for tests.
package attendancetest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// Header is the column layout of the sheets schools export.
var Header = []any{"Student Name", "Enrollment Number", "Total Percentage", "Parent Email"}

// Student is a convenience row in Header order.
type Student struct {
	Name       string
	Enrollment any
	Percentage any
	Email      string
}

func (s Student) Row() []any {
	return []any{s.Name, s.Enrollment, s.Percentage, s.Email}
}

// WriteWorkbook saves rows to the first sheet of a new workbook under
// t.TempDir and returns its path.
func WriteWorkbook(t *testing.T, rows ...[]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	path := filepath.Join(t.TempDir(), "attendance.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

// WriteStudents writes Header followed by one row per student.
func WriteStudents(t *testing.T, students ...Student) string {
	t.Helper()

	rows := [][]any{Header}
	for _, s := range students {
		rows = append(rows, s.Row())
	}
	return WriteWorkbook(t, rows...)
}
