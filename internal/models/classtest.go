package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TestType enumerates the supported kinds of class tests.
type TestType string

const (
	TestTypeUnit       TestType = "unit"
	TestTypeMidTerm    TestType = "mid-term"
	TestTypeFinal      TestType = "final"
	TestTypeQuiz       TestType = "quiz"
	TestTypeAssignment TestType = "assignment"
)

// TestStatus captures the lifecycle state of a class test.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "draft"
	TestStatusPublished TestStatus = "published"
	TestStatusArchived  TestStatus = "archived"
)

// PassThreshold is the fraction of total marks required to pass a test.
const PassThreshold = 0.33

// StudentMark is a single student's score within a class test. It has no
// lifecycle of its own; the owning test's roster is persisted as one JSONB
// document.
type StudentMark struct {
	StudentID     string  `json:"student_id"`
	StudentName   string  `json:"student_name"`
	RollNo        string  `json:"roll_no,omitempty"`
	ObtainedMarks float64 `json:"obtained_marks"`
}

// StudentMarks is the roster column stored as JSONB.
type StudentMarks []StudentMark

// Value marshals the roster to JSON for persistence.
func (m StudentMarks) Value() (driver.Value, error) {
	if m == nil {
		m = StudentMarks{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal student marks: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the roster.
func (m *StudentMarks) Scan(value interface{}) error {
	if value == nil {
		*m = StudentMarks{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for StudentMarks", value)
	}
	if len(data) == 0 {
		*m = StudentMarks{}
		return nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("unmarshal student marks: %w", err)
	}
	return nil
}

// TestStatistics holds the derived fields recomputed before every persisted
// mutation of a class test.
type TestStatistics struct {
	AverageMarks float64 `db:"average_marks" json:"average_marks"`
	HighestMarks float64 `db:"highest_marks" json:"highest_marks"`
	LowestMarks  float64 `db:"lowest_marks" json:"lowest_marks"`
	PassCount    int     `db:"pass_count" json:"pass_count"`
	FailCount    int     `db:"fail_count" json:"fail_count"`
}

// ClassTest is one administered test: identity, denormalised class/subject
// info, the mark roster and its derived statistics.
type ClassTest struct {
	ID          string       `db:"id" json:"id"`
	OwnerID     string       `db:"owner_id" json:"-"`
	TestName    string       `db:"test_name" json:"test_name"`
	TestType    TestType     `db:"test_type" json:"test_type"`
	TestDate    time.Time    `db:"test_date" json:"test_date"`
	TotalMarks  float64      `db:"total_marks" json:"total_marks"`
	ClassID     string       `db:"class_id" json:"class_id"`
	ClassName   string       `db:"class_name" json:"class_name"`
	Section     string       `db:"section" json:"section,omitempty"`
	SubjectID   *string      `db:"subject_id" json:"subject_id,omitempty"`
	SubjectName string       `db:"subject_name" json:"subject_name"`
	Marks       StudentMarks `db:"student_marks" json:"student_marks"`

	TestStatistics

	Status      TestStatus `db:"status" json:"status"`
	IsPublished bool       `db:"is_published" json:"is_published"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// ClassTestFilter defines filter criteria for listing class tests.
type ClassTestFilter struct {
	ClassID     string
	SubjectName string
	TestType    string
	Status      string
	DateFrom    *time.Time
	DateTo      *time.Time
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// PublishedTestFilter scopes the report queries. All fields except the owner
// are optional; StudentID matches tests whose roster contains the student.
type PublishedTestFilter struct {
	ClassID     string
	SubjectName string
	StudentID   string
	DateFrom    *time.Time
	DateTo      *time.Time
	OrderByDate string // "ASC" or "DESC", defaults to ASC
}
