package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/vial-compliance-api/internal/models"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
)

// LifecycleRules carries the date arithmetic of the enrollment state machine.
type LifecycleRules struct {
	DeadlineDays int
	ValidityDays int
}

// DefaultLifecycleRules returns the 60 day deadline and 180 day validity window.
func DefaultLifecycleRules() LifecycleRules {
	return LifecycleRules{DeadlineDays: 60, ValidityDays: 180}
}

func (r LifecycleRules) normalised() LifecycleRules {
	def := DefaultLifecycleRules()
	if r.DeadlineDays <= 0 {
		r.DeadlineDays = def.DeadlineDays
	}
	if r.ValidityDays <= 0 {
		r.ValidityDays = def.ValidityDays
	}
	return r
}

// CivilDate returns the calendar day of t in loc as midnight UTC.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns to - from in whole days; negative when to is earlier.
func DaysBetween(from, to time.Time) int {
	from = CivilDate(from, time.UTC)
	to = CivilDate(to, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// NewEnrollment builds a PENDING enrollment created on today.
func (r LifecycleRules) NewEnrollment(id, personID, courseID string, today time.Time) models.Enrollment {
	r = r.normalised()
	today = CivilDate(today, time.UTC)
	deadline := today.AddDate(0, 0, r.DeadlineDays)
	return models.Enrollment{
		ID:             id,
		PersonID:       personID,
		CourseID:       courseID,
		EnrollmentDate: today,
		DeadlineDate:   deadline,
		ExpirationDate: deadline,
		Status:         models.EnrollmentStatusPending,
		Version:        1,
	}
}

// Evaluation is the time-derived view of a stored enrollment.
type Evaluation struct {
	EffectiveStatus     models.EnrollmentStatus
	DaysUntilDeadline   int
	DaysUntilExpiration int
}

// Evaluate derives the effective status and signed day counts for today. It
// never mutates e.
//
// A PENDING enrollment stores expiration == deadline, so on its own the
// expiration would hide the INCOMPLETE window. Until it is completed the
// enrollment therefore only expires once both the stored expiration and the
// validity window counted from enrollment have passed.
func (r LifecycleRules) Evaluate(e models.Enrollment, today time.Time) Evaluation {
	r = r.normalised()
	today = CivilDate(today, time.UTC)

	eval := Evaluation{
		EffectiveStatus:     e.Status,
		DaysUntilDeadline:   DaysBetween(today, e.DeadlineDate),
		DaysUntilExpiration: DaysBetween(today, e.ExpirationDate),
	}

	switch e.Status {
	case models.EnrollmentStatusPending:
		expiresAt := e.ExpirationDate
		if abandon := CivilDate(e.EnrollmentDate, time.UTC).AddDate(0, 0, r.ValidityDays); abandon.After(expiresAt) {
			expiresAt = abandon
		}
		switch {
		case today.After(expiresAt):
			eval.EffectiveStatus = models.EnrollmentStatusExpired
		case today.After(e.DeadlineDate):
			eval.EffectiveStatus = models.EnrollmentStatusIncomplete
		}
	case models.EnrollmentStatusCompleted:
		if today.After(e.ExpirationDate) {
			eval.EffectiveStatus = models.EnrollmentStatusExpired
		}
	}

	return eval
}

type transitionRule struct {
	roles map[models.UserRole]bool
	// selfService lets NORMAL callers act on their own enrollment.
	selfService bool
}

func roles(rs ...models.UserRole) map[models.UserRole]bool {
	out := make(map[models.UserRole]bool, len(rs))
	for _, r := range rs {
		out[r] = true
	}
	return out
}

var (
	officials     = roles(models.RoleInspector, models.RoleJudge, models.RoleAdmin)
	adminOnly     = roles(models.RoleAdmin)
	completeByAny = transitionRule{roles: officials, selfService: true}
	officialRule  = transitionRule{roles: officials}
	adminRule     = transitionRule{roles: adminOnly}
)

var transitionTable = map[models.EnrollmentStatus]map[models.EnrollmentStatus]transitionRule{
	models.EnrollmentStatusPending: {
		models.EnrollmentStatusCompleted:  completeByAny,
		models.EnrollmentStatusUsed:       officialRule,
		models.EnrollmentStatusExpired:    adminRule,
		models.EnrollmentStatusIncomplete: adminRule,
	},
	models.EnrollmentStatusIncomplete: {
		models.EnrollmentStatusCompleted: officialRule,
		models.EnrollmentStatusUsed:      officialRule,
		models.EnrollmentStatusExpired:   adminRule,
	},
	models.EnrollmentStatusCompleted: {
		models.EnrollmentStatusUsed:    officialRule,
		models.EnrollmentStatusExpired: adminRule,
	},
	models.EnrollmentStatusUsed:    {},
	models.EnrollmentStatusExpired: {},
}

// AllowedTargets lists the statuses reachable from from, for any role.
func AllowedTargets(from models.EnrollmentStatus) []models.EnrollmentStatus {
	order := []models.EnrollmentStatus{
		models.EnrollmentStatusCompleted,
		models.EnrollmentStatusUsed,
		models.EnrollmentStatusExpired,
		models.EnrollmentStatusIncomplete,
	}
	targets := make([]models.EnrollmentStatus, 0, len(order))
	for _, to := range order {
		if _, ok := transitionTable[from][to]; ok {
			targets = append(targets, to)
		}
	}
	return targets
}

// CheckTransition fails with INVALID_TRANSITION when the graph has no from -> to edge.
func CheckTransition(from, to models.EnrollmentStatus) error {
	if _, ok := transitionTable[from][to]; ok {
		return nil
	}
	return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("transition %s -> %s is not allowed", from, to))
}

// AuthorizeTransition fails with FORBIDDEN unless actor may move from -> to.
// personDNI is the enrolled person's identifier, used for self-service.
func AuthorizeTransition(from, to models.EnrollmentStatus, actor Actor, personDNI string) error {
	rule, ok := transitionTable[from][to]
	if !ok {
		return CheckTransition(from, to)
	}
	if rule.roles[actor.Role] {
		return nil
	}
	if rule.selfService && actor.Role == models.RoleNormal {
		if actor.DNI != "" && strings.EqualFold(strings.TrimSpace(actor.DNI), strings.TrimSpace(personDNI)) {
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "only the enrolled person may complete this enrollment")
	}
	return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %s may not perform %s -> %s", actor.Role, from, to))
}

// Consumer names who used a certification. Exactly one field is set.
type Consumer struct {
	InspectorID *string
	JudgeID     *string
}

// ValidateConsumer enforces the exactly-one rule for USED transitions.
func ValidateConsumer(inspectorID, judgeID *string) (Consumer, error) {
	inspector := nonEmpty(inspectorID)
	judge := nonEmpty(judgeID)
	switch {
	case inspector == nil && judge == nil:
		return Consumer{}, appErrors.Clone(appErrors.ErrValidation, "inspector_id or judge_id is required to mark an enrollment as USED")
	case inspector != nil && judge != nil:
		return Consumer{}, appErrors.Clone(appErrors.ErrValidation, "only one of inspector_id or judge_id may be supplied")
	}
	return Consumer{InspectorID: inspector, JudgeID: judge}, nil
}

// Apply returns a copy of e moved to target with the date effects for today.
// Callers must have checked the transition and the consumer beforehand.
func (r LifecycleRules) Apply(e models.Enrollment, target models.EnrollmentStatus, consumer Consumer, today time.Time) models.Enrollment {
	r = r.normalised()
	today = CivilDate(today, time.UTC)
	next := e

	switch target {
	case models.EnrollmentStatusCompleted:
		if next.CompletionDate == nil {
			d := today
			next.CompletionDate = &d
		}
		next.ExpirationDate = today.AddDate(0, 0, r.ValidityDays)
	case models.EnrollmentStatusUsed:
		if next.CompletionDate == nil {
			d := today
			next.CompletionDate = &d
		}
		next.ExpirationDate = today
	case models.EnrollmentStatusExpired:
		next.ExpirationDate = today
	}

	next.Status = target
	if target == models.EnrollmentStatusUsed {
		next.InspectorID = consumer.InspectorID
		next.JudgeID = consumer.JudgeID
	} else {
		next.InspectorID = nil
		next.JudgeID = nil
	}
	return next
}

func nonEmpty(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
