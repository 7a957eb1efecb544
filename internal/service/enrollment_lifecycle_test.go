package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vial-compliance-api/internal/models"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
)

var day0 = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func days(n int) time.Time { return day0.AddDate(0, 0, n) }

func strPtr(s string) *string { return &s }

func TestNewEnrollmentDates(t *testing.T) {
	rules := DefaultLifecycleRules()
	e := rules.NewEnrollment("e1", "p1", "c1", day0.Add(15*time.Hour))

	assert.Equal(t, day0, e.EnrollmentDate)
	assert.Equal(t, days(60), e.DeadlineDate)
	assert.Equal(t, e.DeadlineDate, e.ExpirationDate)
	assert.Equal(t, models.EnrollmentStatusPending, e.Status)
	assert.Nil(t, e.CompletionDate)
	assert.Nil(t, e.InspectorID)
	assert.Nil(t, e.JudgeID)
	assert.Equal(t, 1, e.Version)
}

func TestEvaluatePendingTimeline(t *testing.T) {
	rules := DefaultLifecycleRules()
	e := rules.NewEnrollment("e1", "p1", "c1", day0)

	cases := []struct {
		offset int
		want   models.EnrollmentStatus
	}{
		{0, models.EnrollmentStatusPending},
		{59, models.EnrollmentStatusPending},
		{60, models.EnrollmentStatusPending},
		{61, models.EnrollmentStatusIncomplete},
		{180, models.EnrollmentStatusIncomplete},
		{181, models.EnrollmentStatusExpired},
	}
	for _, tc := range cases {
		eval := rules.Evaluate(e, days(tc.offset))
		assert.Equal(t, tc.want, eval.EffectiveStatus, "day %d", tc.offset)
		assert.Equal(t, 60-tc.offset, eval.DaysUntilDeadline, "day %d", tc.offset)
		assert.Equal(t, 60-tc.offset, eval.DaysUntilExpiration, "day %d", tc.offset)
	}
	assert.Equal(t, models.EnrollmentStatusPending, e.Status)
}

func TestEvaluateCompletedTimeline(t *testing.T) {
	rules := DefaultLifecycleRules()
	e := rules.NewEnrollment("e1", "p1", "c1", day0)
	e = rules.Apply(e, models.EnrollmentStatusCompleted, Consumer{}, day0)

	assert.Equal(t, models.EnrollmentStatusCompleted, rules.Evaluate(e, days(179)).EffectiveStatus)
	assert.Equal(t, models.EnrollmentStatusCompleted, rules.Evaluate(e, days(180)).EffectiveStatus)
	assert.Equal(t, models.EnrollmentStatusExpired, rules.Evaluate(e, days(181)).EffectiveStatus)
	assert.Equal(t, -1, rules.Evaluate(e, days(181)).DaysUntilExpiration)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	rules := DefaultLifecycleRules()
	e := rules.NewEnrollment("e1", "p1", "c1", day0)
	first := rules.Evaluate(e, days(75))
	second := rules.Evaluate(e, days(75))
	assert.Equal(t, first, second)
	assert.Equal(t, models.EnrollmentStatusPending, e.Status)
}

func TestEvaluateStoredStatusesSurfaceAsIs(t *testing.T) {
	rules := DefaultLifecycleRules()
	for _, status := range []models.EnrollmentStatus{
		models.EnrollmentStatusUsed,
		models.EnrollmentStatusExpired,
		models.EnrollmentStatusIncomplete,
	} {
		e := rules.NewEnrollment("e1", "p1", "c1", day0)
		e.Status = status
		assert.Equal(t, status, rules.Evaluate(e, days(400)).EffectiveStatus)
	}
}

func TestApplyCompletion(t *testing.T) {
	rules := DefaultLifecycleRules()
	e := rules.NewEnrollment("e1", "p1", "c1", day0)
	e.Status = models.EnrollmentStatusIncomplete

	next := rules.Apply(e, models.EnrollmentStatusCompleted, Consumer{}, days(70))
	require.NotNil(t, next.CompletionDate)
	assert.Equal(t, days(70), *next.CompletionDate)
	assert.Equal(t, days(250), next.ExpirationDate)
	assert.Equal(t, e.DeadlineDate, next.DeadlineDate)
	assert.Equal(t, e.EnrollmentDate, next.EnrollmentDate)
	assert.Nil(t, e.CompletionDate, "input must not be mutated")
}

func TestApplyUseKeepsCompletionDate(t *testing.T) {
	rules := DefaultLifecycleRules()
	e := rules.NewEnrollment("e1", "p1", "c1", day0)
	e = rules.Apply(e, models.EnrollmentStatusCompleted, Consumer{}, days(5))

	used := rules.Apply(e, models.EnrollmentStatusUsed, Consumer{JudgeID: strPtr("j1")}, days(30))
	assert.Equal(t, days(5), *used.CompletionDate)
	assert.Equal(t, days(30), used.ExpirationDate)
	assert.Nil(t, used.InspectorID)
	require.NotNil(t, used.JudgeID)
	assert.Equal(t, "j1", *used.JudgeID)
}

func TestApplyUseFromPendingSetsCompletion(t *testing.T) {
	rules := DefaultLifecycleRules()
	e := rules.NewEnrollment("e1", "p1", "c1", day0)

	used := rules.Apply(e, models.EnrollmentStatusUsed, Consumer{InspectorID: strPtr("i1")}, days(3))
	require.NotNil(t, used.CompletionDate)
	assert.Equal(t, days(3), *used.CompletionDate)
	assert.Equal(t, days(3), used.ExpirationDate)
}

func TestApplyNonUsedClearsConsumers(t *testing.T) {
	rules := DefaultLifecycleRules()
	e := rules.NewEnrollment("e1", "p1", "c1", day0)
	e.InspectorID = strPtr("stale")

	expired := rules.Apply(e, models.EnrollmentStatusExpired, Consumer{InspectorID: strPtr("i1")}, days(10))
	assert.Nil(t, expired.InspectorID)
	assert.Nil(t, expired.JudgeID)
	assert.Equal(t, days(10), expired.ExpirationDate)
	assert.Nil(t, expired.CompletionDate)
}

func TestCheckTransitionGraph(t *testing.T) {
	all := []models.EnrollmentStatus{
		models.EnrollmentStatusPending,
		models.EnrollmentStatusCompleted,
		models.EnrollmentStatusUsed,
		models.EnrollmentStatusExpired,
		models.EnrollmentStatusIncomplete,
	}
	allowed := map[models.EnrollmentStatus][]models.EnrollmentStatus{
		models.EnrollmentStatusPending:    {models.EnrollmentStatusCompleted, models.EnrollmentStatusUsed, models.EnrollmentStatusExpired, models.EnrollmentStatusIncomplete},
		models.EnrollmentStatusIncomplete: {models.EnrollmentStatusCompleted, models.EnrollmentStatusUsed, models.EnrollmentStatusExpired},
		models.EnrollmentStatusCompleted:  {models.EnrollmentStatusUsed, models.EnrollmentStatusExpired},
	}

	for _, from := range all {
		for _, to := range all {
			err := CheckTransition(from, to)
			if contains(allowed[from], to) {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			require.Error(t, err, "%s -> %s", from, to)
			assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
			assert.Contains(t, err.Error(), string(from)+" -> "+string(to))
		}
	}
	assert.Empty(t, AllowedTargets(models.EnrollmentStatusUsed))
	assert.Equal(t, allowed[models.EnrollmentStatusCompleted], AllowedTargets(models.EnrollmentStatusCompleted))
}

func contains(list []models.EnrollmentStatus, s models.EnrollmentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestAuthorizeTransition(t *testing.T) {
	normalOwner := Actor{UserID: "u1", Role: models.RoleNormal, DNI: "12345678"}
	normalOther := Actor{UserID: "u2", Role: models.RoleNormal, DNI: "99999999"}
	inspector := Actor{UserID: "u3", Role: models.RoleInspector}
	judge := Actor{UserID: "u4", Role: models.RoleJudge}
	admin := Actor{UserID: "u5", Role: models.RoleAdmin}

	cases := []struct {
		name    string
		from    models.EnrollmentStatus
		to      models.EnrollmentStatus
		actor   Actor
		allowed bool
	}{
		{"owner completes pending", models.EnrollmentStatusPending, models.EnrollmentStatusCompleted, normalOwner, true},
		{"other normal completes pending", models.EnrollmentStatusPending, models.EnrollmentStatusCompleted, normalOther, false},
		{"inspector completes pending", models.EnrollmentStatusPending, models.EnrollmentStatusCompleted, inspector, true},
		{"owner completes incomplete", models.EnrollmentStatusIncomplete, models.EnrollmentStatusCompleted, normalOwner, false},
		{"judge completes incomplete", models.EnrollmentStatusIncomplete, models.EnrollmentStatusCompleted, judge, true},
		{"owner uses", models.EnrollmentStatusCompleted, models.EnrollmentStatusUsed, normalOwner, false},
		{"judge uses", models.EnrollmentStatusCompleted, models.EnrollmentStatusUsed, judge, true},
		{"admin uses pending", models.EnrollmentStatusPending, models.EnrollmentStatusUsed, admin, true},
		{"inspector expires", models.EnrollmentStatusCompleted, models.EnrollmentStatusExpired, inspector, false},
		{"admin expires", models.EnrollmentStatusCompleted, models.EnrollmentStatusExpired, admin, true},
		{"judge marks incomplete", models.EnrollmentStatusPending, models.EnrollmentStatusIncomplete, judge, false},
		{"admin marks incomplete", models.EnrollmentStatusPending, models.EnrollmentStatusIncomplete, admin, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := AuthorizeTransition(tc.from, tc.to, tc.actor, "12345678")
			if tc.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
		})
	}
}

func TestAuthorizeUnknownEdgeIsInvalidTransition(t *testing.T) {
	err := AuthorizeTransition(models.EnrollmentStatusUsed, models.EnrollmentStatusCompleted, Actor{Role: models.RoleAdmin}, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestValidateConsumer(t *testing.T) {
	_, err := ValidateConsumer(nil, nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = ValidateConsumer(strPtr("  "), nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = ValidateConsumer(strPtr("i1"), strPtr("j1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	consumer, err := ValidateConsumer(strPtr(" i1 "), nil)
	require.NoError(t, err)
	assert.Equal(t, "i1", *consumer.InspectorID)
	assert.Nil(t, consumer.JudgeID)
}

func TestCivilDateUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	late := time.Date(2024, 1, 11, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, day0, CivilDate(late, loc))
	assert.Equal(t, 2, DaysBetween(day0, time.Date(2024, 1, 12, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, -2, DaysBetween(days(2), day0))
}
