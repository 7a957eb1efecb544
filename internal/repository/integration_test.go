//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/noah-isme/vial-compliance-api/internal/models"
	"github.com/noah-isme/vial-compliance-api/pkg/database"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
)

func TestEnrollmentRepositoryAgainstPostgres(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("vial"),
		tcpostgres.WithUsername("vial"),
		tcpostgres.WithPassword("vial"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Open(ctx, dsn, 5, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	version, err := database.Migrate(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	persons := NewPersonRepository(db)
	courses := NewCourseRepository(db)
	judges := NewOfficialRepository(db, models.OfficialJudge)
	enrollments := NewEnrollmentRepository(db)

	person := &models.Person{Name: "Ana Quispe", DNI: "12345678"}
	require.NoError(t, persons.Create(ctx, person))
	course := &models.Course{Name: "Manejo defensivo", Description: "Curso obligatorio"}
	require.NoError(t, courses.Create(ctx, course))
	judge := &models.Official{Name: "Dra. Rojas"}
	require.NoError(t, judges.Create(ctx, judge))

	today := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	e := &models.Enrollment{
		ID: uuid.NewString(), PersonID: person.ID, CourseID: course.ID,
		EnrollmentDate: today, DeadlineDate: today.AddDate(0, 0, 60), ExpirationDate: today.AddDate(0, 0, 60),
		Status: models.EnrollmentStatusPending, Version: 1,
	}
	require.NoError(t, enrollments.Create(ctx, e))

	detail, err := enrollments.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "12345678", detail.PersonDNI)
	assert.True(t, detail.DeadlineDate.Equal(today.AddDate(0, 0, 60)))

	stale := detail.Enrollment
	used := detail.Enrollment
	used.Status = models.EnrollmentStatusUsed
	used.CompletionDate = &today
	used.ExpirationDate = today
	used.JudgeID = &judge.ID
	require.NoError(t, enrollments.UpdateState(ctx, &used))
	assert.Equal(t, 2, used.Version)

	stale.Status = models.EnrollmentStatusExpired
	assert.ErrorIs(t, enrollments.UpdateState(ctx, &stale), ErrVersionConflict)

	items, err := enrollments.ListExpiring(ctx, models.ComplianceFilter{
		Cutoff:           today.AddDate(0, 0, 30),
		ExcludedStatuses: []models.EnrollmentStatus{models.EnrollmentStatusUsed},
	})
	require.NoError(t, err)
	assert.Empty(t, items)

	err = persons.Delete(ctx, person.ID)
	assert.True(t, errors.Is(err, ErrReferenced))
	assert.ErrorIs(t, judges.Delete(ctx, judge.ID), ErrReferenced)
}

func TestCacheRepositoryAgainstRedis(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	repo := NewCacheRepository(redis.NewClient(opts), "vial:", nil)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.Set(ctx, "reports:compliance:a", map[string]int{"rows": 2}, time.Minute))
	var got map[string]int
	require.NoError(t, repo.Get(ctx, "reports:compliance:a", &got))
	assert.Equal(t, 2, got["rows"])

	require.NoError(t, repo.DeleteByPattern(ctx, "reports:compliance:*"))
	assert.ErrorIs(t, repo.Get(ctx, "reports:compliance:a", &got), appErrors.ErrCacheMiss)
}
