package attendance_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/attendwatch/internal/attendance"
	"github.com/attendwatch/internal/attendance/attendancetest"
)

func newExtractor() *attendance.Extractor {
	return attendance.NewExtractor(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func names(records []attendance.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.StudentName()
	}
	return out
}

func TestExtractReadsRowsInOrder(t *testing.T) {
	path := attendancetest.WriteStudents(t,
		attendancetest.Student{Name: "A", Enrollment: 1001, Percentage: 55, Email: "a@x.com"},
		attendancetest.Student{Name: "B", Enrollment: "EN-2", Percentage: 80, Email: "b@x.com"},
		attendancetest.Student{Name: "C", Enrollment: 1003, Percentage: 59.5, Email: "c@x.com"},
	)

	records, err := newExtractor().Extract(path)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"A", "B", "C"}, names(records))
	assert.Equal(t, "1001", records[0].EnrollmentNumber())
	assert.Equal(t, "EN-2", records[1].EnrollmentNumber())
	assert.Equal(t, "59.5", records[2].TotalPercentage())
	assert.Equal(t, "a@x.com", records[0].ParentEmail())
	assert.Equal(t, 2, records[0].Row())
}

func TestExtractLowAttendanceScenario(t *testing.T) {
	path := attendancetest.WriteStudents(t,
		attendancetest.Student{Name: "A", Enrollment: 1, Percentage: 55, Email: "a@x.com"},
		attendancetest.Student{Name: "B", Enrollment: 2, Percentage: 80, Email: "b@x.com"},
	)

	all, flagged, err := newExtractor().ExtractLowAttendance(path)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	require.Len(t, flagged, 1)
	assert.Equal(t, "A", flagged[0].StudentName())
	assert.Equal(t, "a@x.com", flagged[0].ParentEmail())
}

func TestExtractOnlyFirstWorksheet(t *testing.T) {
	f := excelize.NewFile()
	_, err := f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &attendancetest.Header))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"First", 1, 10, "first@x.com"}))
	require.NoError(t, f.SetSheetRow("Other", "A1", &attendancetest.Header))
	require.NoError(t, f.SetSheetRow("Other", "A2", &[]any{"Second", 2, 10, "second@x.com"}))
	path := filepath.Join(t.TempDir(), "two.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	records, err := newExtractor().Extract(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"First"}, names(records))
}

func TestExtractSkipsBlankRowsAndIgnoresExtraColumns(t *testing.T) {
	path := attendancetest.WriteWorkbook(t,
		[]any{},
		[]any{"Student Name", "Enrollment Number", "Total Percentage", "Parent Email", "Class"},
		[]any{"A", 1, 40, "a@x.com", "7B"},
		[]any{},
		[]any{"B", 2, 90, "b@x.com", "7C"},
	)

	records, err := newExtractor().Extract(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3, records[0].Row())
	assert.Equal(t, 5, records[1].Row())

	class, ok := records[1].Get("Class")
	assert.True(t, ok)
	assert.Equal(t, "7C", class)
}

func TestExtractRenamesDuplicateHeaders(t *testing.T) {
	path := attendancetest.WriteWorkbook(t,
		[]any{"Student Name", "Note", "Note"},
		[]any{"A", "first", "second"},
	)

	records, err := newExtractor().Extract(path)
	require.NoError(t, err)
	require.Len(t, records, 1)

	v, _ := records[0].Get("Note")
	assert.Equal(t, "first", v)
	v, _ = records[0].Get("Note_1")
	assert.Equal(t, "second", v)
}

func TestExtractPercentFormattedCellUsesStoredValue(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &attendancetest.Header))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"A", 1, 0.45, "a@x.com"}))
	style, err := f.NewStyle(&excelize.Style{NumFmt: 9})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Sheet1", "C2", "C2", style))
	path := filepath.Join(t.TempDir(), "pct.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	records, err := newExtractor().Extract(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "0.45", records[0].TotalPercentage())
}

func TestExtractCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance.csv")
	content := "\ufeffStudent Name,Enrollment Number,Total Percentage,Parent Email\n" +
		"A,1001,55%,a@x.com\n" +
		"\"B, Jr\",1002,75,b@x.com\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	records, err := newExtractor().Extract(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "B, Jr", records[1].StudentName())

	flagged := newExtractor().Filter(records)
	assert.Equal(t, []string{"A"}, names(flagged))
}

func TestExtractErrors(t *testing.T) {
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "corrupt.xlsx")
	require.NoError(t, os.WriteFile(corrupt, []byte("PK\x03\x04 definitely not a zip"), 0o600))

	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0o600))

	truncated := filepath.Join(dir, "old.xls")
	require.NoError(t, os.WriteFile(truncated, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0, 0}, 0o600))

	tests := []struct {
		name   string
		path   string
		target error
	}{
		{"missing file", filepath.Join(dir, "nope.xlsx"), os.ErrNotExist},
		{"corrupt workbook", corrupt, nil},
		{"unknown format", text, attendance.ErrUnsupportedFormat},
		{"truncated xls", truncated, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			records, err := newExtractor().Extract(tc.path)
			require.Error(t, err)
			assert.Nil(t, records)

			var perr *attendance.ParseError
			require.True(t, errors.As(err, &perr), "want *ParseError, got %T", err)
			assert.Equal(t, tc.path, perr.Path)
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			}
		})
	}
}

func TestExtractLegacyWorkbook(t *testing.T) {
	path := attendancetest.WriteLegacyWorkbook(t,
		[]string{"Student Name", "Enrollment Number", "Total Percentage", "Parent Email"},
		[]string{"A", "1001", "55", "a@x.com"},
		[]string{},
		[]string{"B", "1002", "80", "b@x.com"},
		[]string{"Łukasz", "", "12.5", "c@x.com"},
	)

	all, flagged, err := newExtractor().ExtractLowAttendance(path)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, []string{"A", "B", "Łukasz"}, names(all))
	assert.Equal(t, "1001", all[0].EnrollmentNumber())
	assert.Equal(t, 4, all[1].Row())
	assert.Equal(t, "", all[2].EnrollmentNumber())
	assert.Equal(t, "c@x.com", all[2].ParentEmail())

	assert.Equal(t, []string{"A", "Łukasz"}, names(flagged))
}

func TestExtractEmptySheet(t *testing.T) {
	path := attendancetest.WriteWorkbook(t)

	records, err := newExtractor().Extract(path)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFilter(t *testing.T) {
	rec := func(name, pct string) attendance.Record {
		values := map[string]string{attendance.ColStudentName: name}
		if pct != "-" {
			values[attendance.ColTotalPercentage] = pct
		}
		return attendance.NewRecord(0, values)
	}

	records := []attendance.Record{
		rec("low", "10"),
		rec("edge", "60"),
		rec("just-below", "59.99"),
		rec("missing", "-"),
		rec("text", "absent"),
		rec("spaced", " 42 % "),
		rec("nan", "NaN"),
		rec("high", "100"),
		rec("zero", "0"),
	}

	flagged := newExtractor().Filter(records)
	assert.Equal(t, []string{"low", "just-below", "spaced", "zero"}, names(flagged))
}

func TestFilterAllAboveThreshold(t *testing.T) {
	records := []attendance.Record{
		attendance.NewRecord(2, map[string]string{attendance.ColTotalPercentage: "60"}),
		attendance.NewRecord(3, map[string]string{attendance.ColTotalPercentage: "99"}),
	}
	assert.Empty(t, newExtractor().Filter(records))
}

func TestNewRecordCopiesValues(t *testing.T) {
	values := map[string]string{attendance.ColStudentName: "A"}
	r := attendance.NewRecord(2, values)
	values[attendance.ColStudentName] = "changed"

	assert.Equal(t, "A", r.StudentName())
}
