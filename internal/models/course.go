package models

import (
	"time"

	"github.com/lib/pq"
)

// CourseLevel is the difficulty band of a course.
type CourseLevel string

const (
	LevelBeginner     CourseLevel = "Beginner"
	LevelIntermediate CourseLevel = "Intermediate"
	LevelAdvanced     CourseLevel = "Advanced"
)

// Valid reports whether l is a known level.
func (l CourseLevel) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// DefaultCourseRating is assigned to new courses until ratings exist.
const DefaultCourseRating = 4.7

// Course represents a row in the courses table.
type Course struct {
	ID           string         `db:"id" json:"id"`
	Title        string         `db:"title" json:"title"`
	InstructorID string         `db:"instructor_id" json:"instructorId"`
	Skills       pq.StringArray `db:"skills" json:"skills"`
	Level        CourseLevel    `db:"level" json:"level"`
	Category     string         `db:"category" json:"category"`
	Duration     string         `db:"duration" json:"duration"`
	Price        float64        `db:"price" json:"price"`
	IsPublic     bool           `db:"is_public" json:"isPublic"`
	Rating       float64        `db:"rating" json:"rating"`
	RatingCount  int            `db:"rating_count" json:"ratingCount"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}

// IsFree reports whether the course costs nothing.
func (c *Course) IsFree() bool {
	return c.Price == 0
}

// CourseInput is the create payload. Price is a pointer so that a missing
// value can be told apart from zero.
type CourseInput struct {
	Title    string      `json:"title" validate:"required,min=5,max=120"`
	Skills   []string    `json:"skills"`
	Level    CourseLevel `json:"level" validate:"required,oneof=Beginner Intermediate Advanced"`
	Category string      `json:"category" validate:"required,max=80"`
	Duration string      `json:"duration" validate:"required,max=80"`
	Price    *float64    `json:"price" validate:"required,gte=0"`
	IsPublic bool        `json:"isPublic"`
}

// CoursePatch is the partial-update payload. Nil fields are left untouched.
type CoursePatch struct {
	Title    *string      `json:"title" validate:"omitnil,min=5,max=120"`
	Skills   []string     `json:"skills"`
	Level    *CourseLevel `json:"level" validate:"omitnil,oneof=Beginner Intermediate Advanced"`
	Category *string      `json:"category" validate:"omitnil,min=1,max=80"`
	Duration *string      `json:"duration" validate:"omitnil,min=1,max=80"`
	Price    *float64     `json:"price" validate:"omitnil,gte=0"`
	IsPublic *bool        `json:"isPublic"`
}

// Empty reports whether the patch carries no recognised field.
func (p CoursePatch) Empty() bool {
	return p.Title == nil && p.Skills == nil && p.Level == nil && p.Category == nil &&
		p.Duration == nil && p.Price == nil && p.IsPublic == nil
}

// CourseFilter narrows the public catalog.
type CourseFilter struct {
	Category string
	Level    CourseLevel
	Search   string
	Page     int
	PageSize int
}

// PublicCourse is the catalog view of a published course.
type PublicCourse struct {
	ID          string         `db:"id" json:"id"`
	Title       string         `db:"title" json:"title"`
	Instructor  string         `db:"instructor" json:"instructor"`
	Skills      pq.StringArray `db:"skills" json:"skills"`
	Level       CourseLevel    `db:"level" json:"level"`
	Category    string         `db:"category" json:"category"`
	Duration    string         `db:"duration" json:"duration"`
	Price       float64        `db:"price" json:"price"`
	Rating      float64        `db:"rating" json:"rating"`
	RatingCount int            `db:"rating_count" json:"ratingCount"`
}

// PublicCourseList is a page of the public catalog.
type PublicCourseList struct {
	Courses    []PublicCourse `json:"courses"`
	Pagination Pagination     `json:"pagination"`
}

// CourseStats aggregates course counts for a management dashboard.
type CourseStats struct {
	Total  int `db:"total" json:"total"`
	Public int `db:"public" json:"public"`
	Draft  int `db:"draft" json:"draft"`
	Free   int `db:"free" json:"free"`
	Paid   int `db:"paid" json:"paid"`
}
