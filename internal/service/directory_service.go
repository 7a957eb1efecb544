package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/vial-compliance-api/internal/dto"
	"github.com/noah-isme/vial-compliance-api/internal/models"
	"github.com/noah-isme/vial-compliance-api/internal/repository"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
)

type personStore interface {
	FindByID(ctx context.Context, id string) (*models.Person, error)
	List(ctx context.Context, filter models.DirectoryFilter) ([]models.Person, int, error)
	Create(ctx context.Context, person *models.Person) error
	Update(ctx context.Context, person *models.Person) error
	Delete(ctx context.Context, id string) error
}

type courseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.DirectoryFilter) ([]models.Course, int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type officialStore interface {
	FindByID(ctx context.Context, id string) (*models.Official, error)
	List(ctx context.Context, filter models.DirectoryFilter) ([]models.Official, int, error)
	Create(ctx context.Context, official *models.Official) error
	Update(ctx context.Context, official *models.Official) error
	Delete(ctx context.Context, id string) error
}

// DirectoryService manages persons, courses, inspectors and judges.
type DirectoryService struct {
	persons    personStore
	courses    courseStore
	inspectors officialStore
	judges     officialStore
	validator  *validator.Validate
	logger     *zap.Logger
	audit      auditTrail
}

// NewDirectoryService constructs DirectoryService.
func NewDirectoryService(persons personStore, courses courseStore, inspectors, judges officialStore, audit AuditWriter, validate *validator.Validate, logger *zap.Logger) *DirectoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{
		persons:    persons,
		courses:    courses,
		inspectors: inspectors,
		judges:     judges,
		validator:  validate,
		logger:     logger,
		audit:      auditTrail{writer: audit, logger: logger},
	}
}

// GetPerson returns a person by id.
func (s *DirectoryService) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	person, err := s.persons.FindByID(ctx, id)
	if err != nil {
		return nil, directoryError(err, "person")
	}
	return person, nil
}

// ListPersons lists persons with pagination.
func (s *DirectoryService) ListPersons(ctx context.Context, filter models.DirectoryFilter) ([]models.Person, *models.Pagination, error) {
	items, total, err := s.persons.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list persons")
	}
	return items, pagination(filter.Page, filter.PageSize, total), nil
}

// CreatePerson registers a person. DNI must be unique.
func (s *DirectoryService) CreatePerson(ctx context.Context, req dto.PersonRequest, actor Actor) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid person payload")
	}
	person := &models.Person{Name: strings.TrimSpace(req.Name), DNI: strings.TrimSpace(req.DNI)}
	if err := s.persons.Create(ctx, person); err != nil {
		return nil, directoryError(err, "person")
	}
	s.audit.record(ctx, actor, models.AuditActionDirectoryWrite, "persons", person.ID, nil, person)
	return person, nil
}

// UpdatePerson replaces name and DNI.
func (s *DirectoryService) UpdatePerson(ctx context.Context, id string, req dto.PersonRequest, actor Actor) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid person payload")
	}
	existing, err := s.persons.FindByID(ctx, id)
	if err != nil {
		return nil, directoryError(err, "person")
	}
	updated := *existing
	updated.Name = strings.TrimSpace(req.Name)
	updated.DNI = strings.TrimSpace(req.DNI)
	if err := s.persons.Update(ctx, &updated); err != nil {
		return nil, directoryError(err, "person")
	}
	s.audit.record(ctx, actor, models.AuditActionDirectoryWrite, "persons", id, existing, updated)
	return &updated, nil
}

// DeletePerson removes a person that no enrollment references.
func (s *DirectoryService) DeletePerson(ctx context.Context, id string, actor Actor) error {
	if err := s.persons.Delete(ctx, id); err != nil {
		return directoryError(err, "person")
	}
	s.audit.record(ctx, actor, models.AuditActionDirectoryWrite, "persons", id, nil, nil)
	return nil
}

// GetCourse returns a course by id.
func (s *DirectoryService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		return nil, directoryError(err, "course")
	}
	return course, nil
}

// ListCourses lists courses with pagination.
func (s *DirectoryService) ListCourses(ctx context.Context, filter models.DirectoryFilter) ([]models.Course, *models.Pagination, error) {
	items, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return items, pagination(filter.Page, filter.PageSize, total), nil
}

// CreateCourse registers a course.
func (s *DirectoryService) CreateCourse(ctx context.Context, req dto.CourseRequest, actor Actor) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course := &models.Course{Name: strings.TrimSpace(req.Name), Description: strings.TrimSpace(req.Description)}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, directoryError(err, "course")
	}
	s.audit.record(ctx, actor, models.AuditActionDirectoryWrite, "courses", course.ID, nil, course)
	return course, nil
}

// UpdateCourse replaces name and description.
func (s *DirectoryService) UpdateCourse(ctx context.Context, id string, req dto.CourseRequest, actor Actor) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	existing, err := s.courses.FindByID(ctx, id)
	if err != nil {
		return nil, directoryError(err, "course")
	}
	updated := *existing
	updated.Name = strings.TrimSpace(req.Name)
	updated.Description = strings.TrimSpace(req.Description)
	if err := s.courses.Update(ctx, &updated); err != nil {
		return nil, directoryError(err, "course")
	}
	s.audit.record(ctx, actor, models.AuditActionDirectoryWrite, "courses", id, existing, updated)
	return &updated, nil
}

// DeleteCourse removes a course that no enrollment references.
func (s *DirectoryService) DeleteCourse(ctx context.Context, id string, actor Actor) error {
	if err := s.courses.Delete(ctx, id); err != nil {
		return directoryError(err, "course")
	}
	s.audit.record(ctx, actor, models.AuditActionDirectoryWrite, "courses", id, nil, nil)
	return nil
}

// GetOfficial returns an inspector or judge.
func (s *DirectoryService) GetOfficial(ctx context.Context, kind models.OfficialKind, id string) (*models.Official, error) {
	store, err := s.officials(kind)
	if err != nil {
		return nil, err
	}
	official, err := store.FindByID(ctx, id)
	if err != nil {
		return nil, directoryError(err, officialLabel(kind))
	}
	return official, nil
}

// ListOfficials lists inspectors or judges.
func (s *DirectoryService) ListOfficials(ctx context.Context, kind models.OfficialKind, filter models.DirectoryFilter) ([]models.Official, *models.Pagination, error) {
	store, err := s.officials(kind)
	if err != nil {
		return nil, nil, err
	}
	items, total, err := store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to list %s", kind))
	}
	return items, pagination(filter.Page, filter.PageSize, total), nil
}

// CreateOfficial registers an inspector or judge.
func (s *DirectoryService) CreateOfficial(ctx context.Context, kind models.OfficialKind, req dto.OfficialRequest, actor Actor) (*models.Official, error) {
	store, err := s.officials(kind)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	official := &models.Official{Name: strings.TrimSpace(req.Name)}
	if err := store.Create(ctx, official); err != nil {
		return nil, directoryError(err, officialLabel(kind))
	}
	s.audit.record(ctx, actor, models.AuditActionDirectoryWrite, string(kind), official.ID, nil, official)
	return official, nil
}

// UpdateOfficial renames an inspector or judge.
func (s *DirectoryService) UpdateOfficial(ctx context.Context, kind models.OfficialKind, id string, req dto.OfficialRequest, actor Actor) (*models.Official, error) {
	store, err := s.officials(kind)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	existing, err := store.FindByID(ctx, id)
	if err != nil {
		return nil, directoryError(err, officialLabel(kind))
	}
	updated := *existing
	updated.Name = strings.TrimSpace(req.Name)
	if err := store.Update(ctx, &updated); err != nil {
		return nil, directoryError(err, officialLabel(kind))
	}
	s.audit.record(ctx, actor, models.AuditActionDirectoryWrite, string(kind), id, existing, updated)
	return &updated, nil
}

// DeleteOfficial removes an inspector or judge not referenced by a used certification.
func (s *DirectoryService) DeleteOfficial(ctx context.Context, kind models.OfficialKind, id string, actor Actor) error {
	store, err := s.officials(kind)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, id); err != nil {
		return directoryError(err, officialLabel(kind))
	}
	s.audit.record(ctx, actor, models.AuditActionDirectoryWrite, string(kind), id, nil, nil)
	return nil
}

func (s *DirectoryService) officials(kind models.OfficialKind) (officialStore, error) {
	switch kind {
	case models.OfficialInspector:
		return s.inspectors, nil
	case models.OfficialJudge:
		return s.judges, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown directory %q", kind))
}

func officialLabel(kind models.OfficialKind) string {
	if kind == models.OfficialJudge {
		return "judge"
	}
	return "inspector"
}

// directoryError maps repository failures onto the error taxonomy.
func directoryError(err error, entity string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, entity+" already exists")
	case errors.Is(err, repository.ErrReferenced):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, entity+" is referenced by enrollments")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to access "+entity)
}

func pagination(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
