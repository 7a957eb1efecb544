package dto

import "time"

// ComplianceReportItem is one row of the expiring-or-expired report.
type ComplianceReportItem struct {
	EnrollmentID        string  `json:"enrollment_id"`
	PersonID            string  `json:"person_id"`
	PersonName          string  `json:"person_name"`
	PersonDNI           string  `json:"person_dni"`
	CourseID            string  `json:"course_id"`
	CourseName          string  `json:"course_name"`
	CourseDescription   string  `json:"course_description"`
	Status              string  `json:"status"`
	EnrollmentDate      Date    `json:"enrollment_date"`
	CompletionDate      *Date   `json:"completion_date,omitempty"`
	DeadlineDate        Date    `json:"deadline_date"`
	ExpirationDate      Date    `json:"expiration_date"`
	InspectorID         *string `json:"inspector_id,omitempty"`
	JudgeID             *string `json:"judge_id,omitempty"`
	DaysUntilExpiration int     `json:"days_until_expiration"`
	IsExpired           bool    `json:"is_expired"`
}

// ComplianceReport wraps the rows with the window they were computed for.
type ComplianceReport struct {
	AsOf        Date                   `json:"as_of"`
	HorizonDays int                    `json:"horizon_days"`
	Cutoff      Date                   `json:"cutoff"`
	Items       []ComplianceReportItem `json:"items"`
}

// ReportExportRequest is the payload of POST /reports/compliance/export.
type ReportExportRequest struct {
	Format      string `json:"format" validate:"required,oneof=csv pdf"`
	HorizonDays *int   `json:"horizon_days,omitempty" validate:"omitempty,min=0,max=3650"`
}

// ReportExportResponse points at the signed download.
type ReportExportResponse struct {
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	Rows      int       `json:"rows"`
	ExpiresAt time.Time `json:"expires_at"`
}
