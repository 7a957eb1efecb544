package models

import "time"

// EnrollmentStatus is the stored lifecycle status of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusPending    EnrollmentStatus = "PENDING"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
	EnrollmentStatusUsed       EnrollmentStatus = "USED"
	EnrollmentStatusExpired    EnrollmentStatus = "EXPIRED"
	EnrollmentStatusIncomplete EnrollmentStatus = "INCOMPLETE"
)

// Valid reports whether the status belongs to the known set.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusCompleted, EnrollmentStatusUsed,
		EnrollmentStatusExpired, EnrollmentStatusIncomplete:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave the status.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusUsed || s == EnrollmentStatusExpired
}

// Enrollment tracks one person's progress through one course's compliance cycle.
// Date fields hold civil dates at midnight UTC.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	PersonID       string           `db:"person_id" json:"person_id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	CompletionDate *time.Time       `db:"completion_date" json:"completion_date,omitempty"`
	DeadlineDate   time.Time        `db:"deadline_date" json:"deadline_date"`
	ExpirationDate time.Time        `db:"expiration_date" json:"expiration_date"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	InspectorID    *string          `db:"inspector_id" json:"inspector_id,omitempty"`
	JudgeID        *string          `db:"judge_id" json:"judge_id,omitempty"`
	Version        int              `db:"version" json:"version"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with person and course data.
type EnrollmentDetail struct {
	Enrollment
	PersonName        string `db:"person_name" json:"person_name"`
	PersonDNI         string `db:"person_dni" json:"person_dni"`
	CourseName        string `db:"course_name" json:"course_name"`
	CourseDescription string `db:"course_description" json:"course_description"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	PersonID  string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ComplianceFilter selects enrollments whose expiration falls on or before Cutoff.
type ComplianceFilter struct {
	Cutoff           time.Time
	ExcludedStatuses []EnrollmentStatus
}

// SweepCandidate is a row the expiration sweep may need to rewrite.
type SweepCandidate struct {
	ID             string           `db:"id"`
	EnrollmentDate time.Time        `db:"enrollment_date"`
	Status         EnrollmentStatus `db:"status"`
	DeadlineDate   time.Time        `db:"deadline_date"`
	ExpirationDate time.Time        `db:"expiration_date"`
	Version        int              `db:"version"`
}
