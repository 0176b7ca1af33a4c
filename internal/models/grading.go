package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// PassMarkPercent is the percentage at and above which a score counts as a pass.
const PassMarkPercent = 33.0

// GradeBand maps a contiguous percentage range [MinPercent, MaxPercent) to a
// letter grade. The top band includes its upper bound so 100% is covered.
type GradeBand struct {
	Grade      string  `json:"grade"`
	MinPercent float64 `json:"min_percent"`
	MaxPercent float64 `json:"max_percent"`
}

// GradeBands is an ordered band set persisted as JSONB.
type GradeBands []GradeBand

// DefaultGradeBands is the built-in seven band scale used when an owner has
// not configured a custom one.
var DefaultGradeBands = GradeBands{
	{Grade: "A+", MinPercent: 90, MaxPercent: 100},
	{Grade: "A", MinPercent: 80, MaxPercent: 90},
	{Grade: "B+", MinPercent: 70, MaxPercent: 80},
	{Grade: "B", MinPercent: 60, MaxPercent: 70},
	{Grade: "C", MinPercent: 50, MaxPercent: 60},
	{Grade: "D", MinPercent: 33, MaxPercent: 50},
	{Grade: "F", MinPercent: 0, MaxPercent: 33},
}

// GradeFor maps a percentage in [0,100] to exactly one letter grade.
func (b GradeBands) GradeFor(percentage float64) string {
	if len(b) == 0 {
		return DefaultGradeBands.GradeFor(percentage)
	}
	var best *GradeBand
	for i := range b {
		band := b[i]
		if percentage >= band.MinPercent && (percentage < band.MaxPercent || band.MaxPercent >= 100) {
			if best == nil || band.MinPercent > best.MinPercent {
				best = &b[i]
			}
		}
	}
	if best != nil {
		return best.Grade
	}
	// below every band; the lowest band catches this when bands are valid
	lowest := b[0]
	for _, band := range b[1:] {
		if band.MinPercent < lowest.MinPercent {
			lowest = band
		}
	}
	return lowest.Grade
}

// Grades returns the distinct letter grades in descending band order.
func (b GradeBands) Grades() []string {
	sorted := make(GradeBands, len(b))
	copy(sorted, b)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinPercent > sorted[j].MinPercent })
	grades := make([]string, 0, len(sorted))
	for _, band := range sorted {
		grades = append(grades, band.Grade)
	}
	return grades
}

// Validate asserts the bands are contiguous, non-overlapping and cover [0,100].
func (b GradeBands) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("at least one grade band required")
	}
	sorted := make(GradeBands, len(b))
	copy(sorted, b)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinPercent < sorted[j].MinPercent })

	for _, band := range sorted {
		if band.Grade == "" {
			return fmt.Errorf("grade band missing a grade label")
		}
		if band.MaxPercent <= band.MinPercent {
			return fmt.Errorf("band %s has an empty range (%.2f-%.2f)", band.Grade, band.MinPercent, band.MaxPercent)
		}
	}
	if sorted[0].MinPercent != 0 {
		return fmt.Errorf("bands leave a gap below %.2f%%", sorted[0].MinPercent)
	}
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.MinPercent < prev.MaxPercent {
			return fmt.Errorf("bands %s and %s overlap at %.2f%%", prev.Grade, cur.Grade, cur.MinPercent)
		}
		if cur.MinPercent > prev.MaxPercent {
			return fmt.Errorf("bands %s and %s leave a gap between %.2f%% and %.2f%%", prev.Grade, cur.Grade, prev.MaxPercent, cur.MinPercent)
		}
	}
	if last := sorted[len(sorted)-1]; last.MaxPercent != 100 {
		return fmt.Errorf("bands leave a gap above %.2f%%", last.MaxPercent)
	}
	return nil
}

// Value marshals the band set to JSON for persistence.
func (b GradeBands) Value() (driver.Value, error) {
	if b == nil {
		b = GradeBands{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal grade bands: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the band set.
func (b *GradeBands) Scan(value interface{}) error {
	if value == nil {
		*b = GradeBands{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for GradeBands", value)
	}
	if len(data) == 0 {
		*b = GradeBands{}
		return nil
	}
	if err := json.Unmarshal(data, b); err != nil {
		return fmt.Errorf("unmarshal grade bands: %w", err)
	}
	return nil
}

// GradingScale is an owner-configured grade band set.
type GradingScale struct {
	ID        string     `db:"id" json:"id"`
	OwnerID   string     `db:"owner_id" json:"-"`
	Bands     GradeBands `db:"bands" json:"bands"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
