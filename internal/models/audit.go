package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionRegister         = "REGISTER"
	AuditActionLogin            = "LOGIN"
	AuditActionInstructorCreate = "INSTRUCTOR_CREATE"
	AuditActionAdminCreate      = "ADMIN_CREATE"
	AuditActionPasswordChange   = "PASSWORD_CHANGE"
	AuditActionCourseCreate     = "COURSE_CREATE"
	AuditActionCourseUpdate     = "COURSE_UPDATE"
	AuditActionLogout           = "LOGOUT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	NewValues  string    `db:"new_values" json:"newValues,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
