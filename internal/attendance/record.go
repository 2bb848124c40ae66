package attendance

import (
	"math"
	"strconv"
	"strings"
)

// Column names read from the header row. Matching is exact.
const (
	ColStudentName      = "Student Name"
	ColEnrollmentNumber = "Enrollment Number"
	ColTotalPercentage  = "Total Percentage"
	ColParentEmail      = "Parent Email"
)

// Threshold is the attendance percentage below which a student is flagged.
const Threshold = 60.0

// Record is one data row of an attendance sheet keyed by header name. Values
// are kept exactly as they appear in the file.
type Record struct {
	row    int
	values map[string]string
}

// NewRecord builds a record from a header → value mapping. The map is copied.
func NewRecord(row int, values map[string]string) Record {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Record{row: row, values: cp}
}

// Row is the 1-based sheet row the record was read from.
func (r Record) Row() int { return r.row }

// Get returns the raw value of column and whether the column was present.
func (r Record) Get(column string) (string, bool) {
	v, ok := r.values[column]
	return v, ok
}

func (r Record) StudentName() string      { return r.values[ColStudentName] }
func (r Record) EnrollmentNumber() string { return r.values[ColEnrollmentNumber] }
func (r Record) TotalPercentage() string  { return r.values[ColTotalPercentage] }
func (r Record) ParentEmail() string      { return strings.TrimSpace(r.values[ColParentEmail]) }

// Percentage parses Total Percentage. Surrounding spaces and a single trailing
// percent sign are accepted. ok is false when the column is missing, empty or
// not a finite number.
func (r Record) Percentage() (pct float64, ok bool) {
	raw, present := r.values[ColTotalPercentage]
	if !present {
		return 0, false
	}
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
