package models

import "time"

// Student represents an enrolled student, used to backfill mark records when
// only a student id is supplied.
type Student struct {
	ID         string    `db:"id" json:"id"`
	OwnerID    string    `db:"owner_id" json:"-"`
	Name       string    `db:"name" json:"name"`
	RollNumber string    `db:"roll_number" json:"roll_number,omitempty"`
	ClassID    *string   `db:"class_id" json:"class_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter defines filter criteria for listing students.
type StudentFilter struct {
	ClassID   string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
