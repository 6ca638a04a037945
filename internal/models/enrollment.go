package models

import "time"

// Enrollment links a user to a course. A (user, course) pair is unique.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"userId"`
	CourseID   string    `db:"course_id" json:"courseId"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolledAt"`
	IsComplete bool      `db:"is_complete" json:"isComplete"`
	IsActive   bool      `db:"is_active" json:"isActive"`
}

// EnrollRequest is the enroll payload.
type EnrollRequest struct {
	CourseID string `json:"courseId" validate:"required"`
}

// EnrolledCourse is one row of a learner's enrollment list.
type EnrolledCourse struct {
	EnrollmentID string    `db:"enrollment_id" json:"enrollmentId"`
	CourseID     string    `db:"course_id" json:"courseId"`
	Title        string    `db:"title" json:"title"`
	Instructor   string    `db:"instructor" json:"instructor"`
	EnrolledAt   time.Time `db:"enrolled_at" json:"enrolledAt"`
}

// LearnerStats summarises a learner's enrollments. Active counts incomplete ones.
type LearnerStats struct {
	Total     int `db:"total" json:"total"`
	Active    int `db:"active" json:"active"`
	Completed int `db:"completed" json:"completed"`
}
