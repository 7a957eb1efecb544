package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vial-compliance-api/internal/dto"
	"github.com/noah-isme/vial-compliance-api/internal/models"
	"github.com/noah-isme/vial-compliance-api/internal/repository"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
)

type stubPersonStore struct {
	rows      map[string]models.Person
	createErr error
	deleteErr error
	listErr   error
	lastList  models.DirectoryFilter
}

func (s *stubPersonStore) FindByID(ctx context.Context, id string) (*models.Person, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (s *stubPersonStore) List(ctx context.Context, filter models.DirectoryFilter) ([]models.Person, int, error) {
	s.lastList = filter
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	out := make([]models.Person, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	return out, len(out), nil
}

func (s *stubPersonStore) Create(ctx context.Context, person *models.Person) error {
	if s.createErr != nil {
		return s.createErr
	}
	person.ID = "p-new"
	s.rows[person.ID] = *person
	return nil
}

func (s *stubPersonStore) Update(ctx context.Context, person *models.Person) error {
	s.rows[person.ID] = *person
	return nil
}

func (s *stubPersonStore) Delete(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.rows, id)
	return nil
}

type stubOfficialStore struct {
	rows      map[string]models.Official
	deleteErr error
}

func (s *stubOfficialStore) FindByID(ctx context.Context, id string) (*models.Official, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (s *stubOfficialStore) List(ctx context.Context, filter models.DirectoryFilter) ([]models.Official, int, error) {
	out := make([]models.Official, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	return out, len(out), nil
}

func (s *stubOfficialStore) Create(ctx context.Context, official *models.Official) error {
	official.ID = "o-new"
	s.rows[official.ID] = *official
	return nil
}

func (s *stubOfficialStore) Update(ctx context.Context, official *models.Official) error {
	s.rows[official.ID] = *official
	return nil
}

func (s *stubOfficialStore) Delete(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.rows, id)
	return nil
}

type directoryFixture struct {
	svc        *DirectoryService
	persons    *stubPersonStore
	inspectors *stubOfficialStore
	judges     *stubOfficialStore
	audit      *fakeAudit
}

func newDirectoryFixture() *directoryFixture {
	persons := &stubPersonStore{rows: map[string]models.Person{
		"p1": {ID: "p1", Name: "Ana Torres", DNI: "12345678"},
	}}
	inspectors := &stubOfficialStore{rows: map[string]models.Official{"i1": {ID: "i1", Name: "Inspector Ruiz"}}}
	judges := &stubOfficialStore{rows: map[string]models.Official{"j1": {ID: "j1", Name: "Judge Paz"}}}
	audit := &fakeAudit{}
	svc := NewDirectoryService(persons, nil, inspectors, judges, audit, nil, nil)
	return &directoryFixture{svc: svc, persons: persons, inspectors: inspectors, judges: judges, audit: audit}
}

func TestDirectoryCreatePersonTrimsAndAudits(t *testing.T) {
	f := newDirectoryFixture()

	person, err := f.svc.CreatePerson(context.Background(), dto.PersonRequest{Name: "  Luis Gómez ", DNI: " 87654321 "}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "p-new", person.ID)
	assert.Equal(t, "Luis Gómez", person.Name)
	assert.Equal(t, "87654321", person.DNI)
	assert.Equal(t, []string{models.AuditActionDirectoryWrite}, f.audit.actions())
}

func TestDirectoryCreatePersonValidation(t *testing.T) {
	f := newDirectoryFixture()

	_, err := f.svc.CreatePerson(context.Background(), dto.PersonRequest{Name: "No DNI"}, adminActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.audit.actions())
}

func TestDirectoryDuplicateDNIIsConflict(t *testing.T) {
	f := newDirectoryFixture()
	f.persons.createErr = repository.ErrDuplicate

	_, err := f.svc.CreatePerson(context.Background(), dto.PersonRequest{Name: "Ana", DNI: "12345678"}, adminActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Contains(t, err.Error(), "already exists")
}

func TestDirectoryDeleteReferencedPersonIsConflict(t *testing.T) {
	f := newDirectoryFixture()
	f.persons.deleteErr = repository.ErrReferenced

	err := f.svc.DeletePerson(context.Background(), "p1", adminActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Contains(t, f.persons.rows, "p1")
}

func TestDirectoryMissingPerson(t *testing.T) {
	f := newDirectoryFixture()

	_, err := f.svc.GetPerson(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.UpdatePerson(context.Background(), "missing", dto.PersonRequest{Name: "x", DNI: "1"}, adminActor)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestDirectoryListPersonsPagination(t *testing.T) {
	f := newDirectoryFixture()

	items, page, err := f.svc.ListPersons(context.Background(), models.DirectoryFilter{Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PageSize)
	assert.Equal(t, 1, page.TotalCount)

	f.persons.listErr = errors.New("boom")
	_, _, err = f.svc.ListPersons(context.Background(), models.DirectoryFilter{})
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestDirectoryOfficialsRouteByKind(t *testing.T) {
	f := newDirectoryFixture()

	judge, err := f.svc.GetOfficial(context.Background(), models.OfficialJudge, "j1")
	require.NoError(t, err)
	assert.Equal(t, "Judge Paz", judge.Name)

	_, err = f.svc.GetOfficial(context.Background(), models.OfficialInspector, "j1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Contains(t, err.Error(), "inspector not found")

	created, err := f.svc.CreateOfficial(context.Background(), models.OfficialInspector, dto.OfficialRequest{Name: " Inspector Vega "}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "Inspector Vega", created.Name)
	assert.Contains(t, f.inspectors.rows, "o-new")
	assert.NotContains(t, f.judges.rows, "o-new")

	_, err = f.svc.GetOfficial(context.Background(), models.OfficialKind("wardens"), "i1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestDirectoryDeleteOfficialReferencedByUsedCertification(t *testing.T) {
	f := newDirectoryFixture()
	f.judges.deleteErr = repository.ErrReferenced

	err := f.svc.DeleteOfficial(context.Background(), models.OfficialJudge, "j1", adminActor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Contains(t, err.Error(), "judge is referenced")
}
