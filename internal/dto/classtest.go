package dto

// MarkInput is one roster entry in a create/update payload. Either a
// resolvable student id or an explicit student name is required.
type MarkInput struct {
	StudentID     string  `json:"student_id"`
	StudentName   string  `json:"student_name"`
	RollNo        string  `json:"roll_no"`
	ObtainedMarks float64 `json:"obtained_marks" validate:"gte=0"`
}

// CreateClassTestRequest creates a test with its initial roster.
type CreateClassTestRequest struct {
	TestName     string      `json:"test_name" validate:"required"`
	TestType     string      `json:"test_type" validate:"omitempty,oneof=unit mid-term final quiz assignment"`
	TestDate     string      `json:"test_date" validate:"required,datetime=2006-01-02"`
	TotalMarks   float64     `json:"total_marks" validate:"required,gte=1"`
	ClassID      string      `json:"class_id" validate:"required"`
	SubjectID    string      `json:"subject_id"`
	SubjectName  string      `json:"subject_name" validate:"required"`
	StudentMarks []MarkInput `json:"student_marks" validate:"dive"`
}

// UpdateClassTestRequest partially updates a test. Nil fields are untouched.
type UpdateClassTestRequest struct {
	TestName     *string      `json:"test_name"`
	TestType     *string      `json:"test_type" validate:"omitempty,oneof=unit mid-term final quiz assignment"`
	TestDate     *string      `json:"test_date" validate:"omitempty,datetime=2006-01-02"`
	TotalMarks   *float64     `json:"total_marks" validate:"omitempty,gte=1"`
	SubjectName  *string      `json:"subject_name"`
	StudentMarks *[]MarkInput `json:"student_marks" validate:"omitempty,dive"`
	Status       *string      `json:"status" validate:"omitempty,oneof=draft published archived"`
}
