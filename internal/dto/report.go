package dto

import (
	"time"

	"github.com/edupanel/edupanel-api/internal/models"
)

// ClassSummary is the shared summary block of the class-wise and date-range
// reports. OverallAverage is a mean of per-test averages, not a weighted mean.
// Approximate is set when the grouped tests do not share a uniform roster
// size, since TotalStudents assumes they do.
type ClassSummary struct {
	TotalTests     int     `json:"total_tests"`
	OverallAverage float64 `json:"overall_average"`
	TotalPassCount int     `json:"total_pass_count"`
	TotalStudents  int     `json:"total_students"`
	PassPercentage float64 `json:"pass_percentage"`
	Approximate    bool    `json:"approximate,omitempty"`
}

// SubjectRollup aggregates per-test averages by subject.
type SubjectRollup struct {
	SubjectName    string  `json:"subject_name"`
	TotalTests     int     `json:"total_tests"`
	AverageScore   float64 `json:"average_score"`
	HighestAverage float64 `json:"highest_average"`
	LowestAverage  float64 `json:"lowest_average"`
}

// ClassWiseReport returns a class's published tests with a summary and a
// subject-wise rollup sorted by average score descending.
type ClassWiseReport struct {
	ClassID  string             `json:"class_id"`
	Tests    []models.ClassTest `json:"tests"`
	Summary  ClassSummary       `json:"summary"`
	Subjects []SubjectRollup    `json:"subject_wise"`
}

// ScorePoint is one test occurrence in a student's score history.
type ScorePoint struct {
	TestID        string    `json:"test_id"`
	TestName      string    `json:"test_name"`
	SubjectName   string    `json:"subject_name,omitempty"`
	TestDate      time.Time `json:"test_date"`
	ObtainedMarks float64   `json:"obtained_marks"`
	TotalMarks    float64   `json:"total_marks"`
	Percentage    float64   `json:"percentage"`
}

// StudentStanding is one ranked row of the class & subject report.
type StudentStanding struct {
	StudentID         string       `json:"student_id"`
	StudentName       string       `json:"student_name"`
	RollNo            string       `json:"roll_no,omitempty"`
	TestsTaken        int          `json:"tests_taken"`
	TotalMarks        float64      `json:"total_marks"`
	AverageScore      float64      `json:"average_score"`
	OverallPercentage float64      `json:"overall_percentage"`
	Rank              int          `json:"rank"`
	Grade             string       `json:"grade"`
	ScoreHistory      []ScorePoint `json:"score_history"`
}

// ClassSubjectSummary summarises the matched tests of the class & subject
// report. Approximate is set when total marks vary across the matched tests.
type ClassSubjectSummary struct {
	TotalTests   int     `json:"total_tests"`
	AverageScore float64 `json:"average_score"`
	HighestScore float64 `json:"highest_score"`
	LowestScore  float64 `json:"lowest_score"`
	PassRate     float64 `json:"pass_rate"`
	Approximate  bool    `json:"approximate,omitempty"`
}

// ClassSubjectReport ranks a class's students within one subject.
type ClassSubjectReport struct {
	ClassID     string              `json:"class_id"`
	SubjectName string              `json:"subject_name"`
	Students    []StudentStanding   `json:"students"`
	Summary     ClassSubjectSummary `json:"summary"`
}

// StudentSubjectSummary aggregates one student's marks within a subject.
type StudentSubjectSummary struct {
	SubjectName       string  `json:"subject_name"`
	TestsTaken        int     `json:"tests_taken"`
	AverageScore      float64 `json:"average_score"`
	AveragePercentage float64 `json:"average_percentage"`
	HighestScore      float64 `json:"highest_score"`
	LowestScore       float64 `json:"lowest_score"`
}

// StudentOverall is the overall block of the student report. TestHistory is
// ordered most recent first.
type StudentOverall struct {
	TotalTests     int          `json:"total_tests"`
	OverallAverage float64      `json:"overall_average"`
	SubjectsTaken  int          `json:"subjects_taken"`
	TestHistory    []ScorePoint `json:"test_history"`
}

// StudentSubjectReport groups one student's published marks by subject.
type StudentSubjectReport struct {
	StudentID   string                  `json:"student_id"`
	StudentName string                  `json:"student_name"`
	Subjects    []StudentSubjectSummary `json:"subjects"`
	Overall     StudentOverall          `json:"overall"`
}

// TrendPoint is one weekly bucket of the date-range report.
type TrendPoint struct {
	Week         string  `json:"week"`
	AverageScore float64 `json:"average_score"`
}

// DateRangeReport returns tests within an inclusive date window with a
// class-wise style summary and a weekly averages trend.
type DateRangeReport struct {
	Tests       []models.ClassTest `json:"tests"`
	Summary     ClassSummary       `json:"summary"`
	WeeklyTrend []TrendPoint       `json:"weekly_trend"`
}

// SubjectPerformance is the per-subject block of the performance report.
type SubjectPerformance struct {
	SubjectName  string  `json:"subject_name"`
	Tests        int     `json:"tests"`
	AverageScore float64 `json:"average_score"`
}

// PerformerRow is one ranked student in the performance report. Unlike the
// other reports its average is weighted by total possible marks.
type PerformerRow struct {
	StudentID         string  `json:"student_id"`
	StudentName       string  `json:"student_name"`
	RollNo            string  `json:"roll_no,omitempty"`
	TestsTaken        int     `json:"tests_taken"`
	TotalObtained     float64 `json:"total_obtained"`
	TotalPossible     float64 `json:"total_possible"`
	AveragePercentage float64 `json:"average_percentage"`
	Grade             string  `json:"grade"`
	Status            string  `json:"status"`
	Rank              int     `json:"rank"`
}

// PerformanceOverall is the overall block of the performance report.
// AttendanceRate and CompletionRate have no data source yet; they stay nil
// with Estimated set so consumers can tell placeholder from real data.
type PerformanceOverall struct {
	TotalTests     int      `json:"total_tests"`
	AverageScore   float64  `json:"average_score"`
	PassRate       float64  `json:"pass_rate"`
	AttendanceRate *float64 `json:"attendance_rate"`
	CompletionRate *float64 `json:"completion_rate"`
	Estimated      bool     `json:"estimated"`
}

// PerformanceReport is the full class performance view.
type PerformanceReport struct {
	ClassID           string               `json:"class_id"`
	Subjects          []SubjectPerformance `json:"subject_performance"`
	TopPerformers     []PerformerRow       `json:"top_performers"`
	GradeDistribution map[string]int       `json:"grade_distribution"`
	Overall           PerformanceOverall   `json:"overall"`
}

// DateRangeRequest carries the date-range report query parameters.
type DateRangeRequest struct {
	StartDate   string `form:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `form:"end_date" validate:"required,datetime=2006-01-02"`
	ClassID     string `form:"class_id"`
	SubjectName string `form:"subject_name"`
}
