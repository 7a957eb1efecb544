package service

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vial-compliance-api/internal/repository"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
)

func TestGetMalformedIDIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.id = $1")).
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "not-a-uuid"`})

	repo := repository.NewEnrollmentRepository(sqlx.NewDb(db, "sqlmock"))
	svc := NewEnrollmentService(repo, newFakeDirectory().sources(), EnrollmentConfig{Rules: DefaultLifecycleRules()}, nil, NewMetricsService(), nil, nil, nil)

	_, err = svc.Get(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}
