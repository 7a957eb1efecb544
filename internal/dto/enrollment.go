package dto

import (
	"strings"
	"time"

	"github.com/noah-isme/vial-compliance-api/internal/models"
)

// CreateEnrollmentRequest is the payload for POST /enrollments.
type CreateEnrollmentRequest struct {
	PersonID string `json:"person_id" validate:"required"`
	CourseID string `json:"course_id" validate:"required"`
}

// TransitionRequest asks for an explicit status change.
type TransitionRequest struct {
	Status      models.EnrollmentStatus `json:"status" validate:"required"`
	InspectorID *string                 `json:"inspector_id,omitempty"`
	JudgeID     *string                 `json:"judge_id,omitempty"`
}

// UseRequest is the payload of the /use shortcut.
type UseRequest struct {
	InspectorID *string `json:"inspector_id,omitempty"`
	JudgeID     *string `json:"judge_id,omitempty"`
}

// EnrollmentView is the read model: stored fields, denormalized names and the
// status evaluated against today.
type EnrollmentView struct {
	ID                  string                  `json:"id"`
	PersonID            string                  `json:"person_id"`
	PersonName          string                  `json:"person_name"`
	PersonDNI           string                  `json:"person_dni"`
	CourseID            string                  `json:"course_id"`
	CourseName          string                  `json:"course_name"`
	CourseDescription   string                  `json:"course_description"`
	EnrollmentDate      Date                    `json:"enrollment_date"`
	CompletionDate      *Date                   `json:"completion_date,omitempty"`
	DeadlineDate        Date                    `json:"deadline_date"`
	ExpirationDate      Date                    `json:"expiration_date"`
	Status              models.EnrollmentStatus `json:"status"`
	EffectiveStatus     models.EnrollmentStatus `json:"effective_status"`
	DaysUntilDeadline   int                     `json:"days_until_deadline"`
	DaysUntilExpiration int                     `json:"days_until_expiration"`
	InspectorID         *string                 `json:"inspector_id,omitempty"`
	JudgeID             *string                 `json:"judge_id,omitempty"`
	Version             int                     `json:"version"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

// Date renders a civil date as YYYY-MM-DD.
type Date time.Time

const dateLayout = "2006-01-02"

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(d).Format(dateLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*d = Date(time.Time{})
		return nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return err
	}
	*d = Date(t)
	return nil
}

// String returns the YYYY-MM-DD form.
func (d Date) String() string {
	return time.Time(d).Format(dateLayout)
}

// DatePtr converts an optional time into an optional Date.
func DatePtr(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	d := Date(*t)
	return &d
}
