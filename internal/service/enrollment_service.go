package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/vial-compliance-api/internal/dto"
	"github.com/noah-isme/vial-compliance-api/internal/models"
	"github.com/noah-isme/vial-compliance-api/internal/repository"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
)

type enrollmentStore interface {
	Create(ctx context.Context, e *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	UpdateState(ctx context.Context, e *models.Enrollment) error
	Delete(ctx context.Context, id string) error
}

type personReader interface {
	FindByID(ctx context.Context, id string) (*models.Person, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type officialReader interface {
	FindByID(ctx context.Context, id string) (*models.Official, error)
}

// IdentitySources are the directory readers the lifecycle resolves against.
type IdentitySources struct {
	Persons    personReader
	Courses    courseReader
	Inspectors officialReader
	Judges     officialReader
}

// EnrollmentConfig tunes the lifecycle date rules and the calendar used for "today".
type EnrollmentConfig struct {
	Rules    LifecycleRules
	Location *time.Location
	Now      func() time.Time
}

func (c EnrollmentConfig) normalised() EnrollmentConfig {
	c.Rules = c.Rules.normalised()
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func (c EnrollmentConfig) today() time.Time {
	return CivilDate(c.Now(), c.Location)
}

// EnrollmentService orchestrates enrollment creation, reads and status transitions.
type EnrollmentService struct {
	repo       enrollmentStore
	identities IdentitySources
	cfg        EnrollmentConfig
	cache      *CacheService
	metrics    *MetricsService
	audit      auditTrail
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentStore, identities IdentitySources, cfg EnrollmentConfig, cache *CacheService, metrics *MetricsService, audit AuditWriter, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:       repo,
		identities: identities,
		cfg:        cfg.normalised(),
		cache:      cache,
		metrics:    metrics,
		audit:      auditTrail{writer: audit, logger: logger},
		validator:  validate,
		logger:     logger,
	}
}

// Create enrolls a person in a course. Only ADMIN may create enrollments.
func (s *EnrollmentService) Create(ctx context.Context, req dto.CreateEnrollmentRequest, actor Actor) (*dto.EnrollmentView, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may create enrollments")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	lookup := newIdentityLookup(s.identities)
	var (
		person *models.Person
		course *models.Course
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		person, err = lookup.person(gctx, req.PersonID)
		return err
	})
	g.Go(func() error {
		var err error
		course, err = lookup.course(gctx, req.CourseID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	today := s.cfg.today()
	enrollment := s.cfg.Rules.NewEnrollment(uuid.NewString(), person.ID, course.ID, today)
	if err := s.repo.Create(ctx, &enrollment); err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person or course no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	detail := models.EnrollmentDetail{
		Enrollment:        enrollment,
		PersonName:        person.Name,
		PersonDNI:         person.DNI,
		CourseName:        course.Name,
		CourseDescription: course.Description,
	}
	s.audit.record(ctx, actor, models.AuditActionEnrollmentCreate, "enrollments", enrollment.ID, nil, enrollment)
	s.cache.Invalidate(ctx, reportCachePattern)
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("person_id", person.ID),
		zap.String("course_id", course.ID))

	view := BuildEnrollmentView(s.cfg.Rules, detail, today)
	return &view, nil
}

// Get returns the enrollment with its status evaluated against today.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*dto.EnrollmentView, error) {
	detail, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := BuildEnrollmentView(s.cfg.Rules, *detail, s.cfg.today())
	return &view, nil
}

// List returns enrollments matching filter, each evaluated against today.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]dto.EnrollmentView, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", filter.Status))
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	today := s.cfg.today()
	views := make([]dto.EnrollmentView, 0, len(items))
	for _, item := range items {
		views = append(views, BuildEnrollmentView(s.cfg.Rules, item, today))
	}
	return views, pagination(filter.Page, filter.PageSize, total), nil
}

// Transition moves an enrollment to req.Status. The checks run in a fixed
// order and nothing is written before the final versioned update.
func (s *EnrollmentService) Transition(ctx context.Context, id string, req dto.TransitionRequest, actor Actor) (*dto.EnrollmentView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	target := req.Status
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", target))
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	from := current.Status

	view, err := s.transition(ctx, current, target, req, actor)
	s.metrics.RecordTransition(string(from), string(target), outcomeOf(err))
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *EnrollmentService) transition(ctx context.Context, current *models.EnrollmentDetail, target models.EnrollmentStatus, req dto.TransitionRequest, actor Actor) (*dto.EnrollmentView, error) {
	from := current.Status
	if err := CheckTransition(from, target); err != nil {
		return nil, err
	}
	if err := AuthorizeTransition(from, target, actor, current.PersonDNI); err != nil {
		return nil, err
	}

	var consumer Consumer
	if target == models.EnrollmentStatusUsed {
		var err error
		if consumer, err = ValidateConsumer(req.InspectorID, req.JudgeID); err != nil {
			return nil, err
		}
		lookup := newIdentityLookup(s.identities)
		if err := lookup.consumer(ctx, consumer); err != nil {
			return nil, err
		}
	}

	today := s.cfg.today()
	next := s.cfg.Rules.Apply(current.Enrollment, target, consumer, today)
	if err := s.repo.UpdateState(ctx, &next); err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment was modified concurrently, reload and retry")
		case errors.Is(err, repository.ErrReferenced):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "consumer no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}

	s.audit.record(ctx, actor, models.AuditActionEnrollmentStatus, "enrollments", next.ID,
		map[string]interface{}{"status": from, "version": current.Version},
		map[string]interface{}{"status": next.Status, "version": next.Version, "inspector_id": next.InspectorID, "judge_id": next.JudgeID})
	s.cache.Invalidate(ctx, reportCachePattern)
	s.logger.Info("enrollment status changed",
		zap.String("enrollment_id", next.ID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.String("actor_role", string(actor.Role)))

	detail := *current
	detail.Enrollment = next
	view := BuildEnrollmentView(s.cfg.Rules, detail, today)
	return &view, nil
}

// Delete removes an enrollment. ADMIN only.
func (s *EnrollmentService) Delete(ctx context.Context, id string, actor Actor) error {
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators may delete enrollments")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	s.audit.record(ctx, actor, models.AuditActionEnrollmentDelete, "enrollments", id, nil, nil)
	s.cache.Invalidate(ctx, reportCachePattern)
	return nil
}

func (s *EnrollmentService) load(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("enrollment %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// BuildEnrollmentView renders detail evaluated against today.
func BuildEnrollmentView(rules LifecycleRules, detail models.EnrollmentDetail, today time.Time) dto.EnrollmentView {
	eval := rules.Evaluate(detail.Enrollment, today)
	return dto.EnrollmentView{
		ID:                  detail.ID,
		PersonID:            detail.PersonID,
		PersonName:          detail.PersonName,
		PersonDNI:           detail.PersonDNI,
		CourseID:            detail.CourseID,
		CourseName:          detail.CourseName,
		CourseDescription:   detail.CourseDescription,
		EnrollmentDate:      dto.Date(detail.EnrollmentDate),
		CompletionDate:      dto.DatePtr(detail.CompletionDate),
		DeadlineDate:        dto.Date(detail.DeadlineDate),
		ExpirationDate:      dto.Date(detail.ExpirationDate),
		Status:              detail.Status,
		EffectiveStatus:     eval.EffectiveStatus,
		DaysUntilDeadline:   eval.DaysUntilDeadline,
		DaysUntilExpiration: eval.DaysUntilExpiration,
		InspectorID:         detail.InspectorID,
		JudgeID:             detail.JudgeID,
		Version:             detail.Version,
		CreatedAt:           detail.CreatedAt,
		UpdatedAt:           detail.UpdatedAt,
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return appErrors.FromError(err).Code
}

// identityLookup memoizes directory reads for the lifetime of one call.
type identityLookup struct {
	src     IdentitySources
	mu      sync.Mutex
	persons map[string]*models.Person
	courses map[string]*models.Course
}

func newIdentityLookup(src IdentitySources) *identityLookup {
	return &identityLookup{
		src:     src,
		persons: make(map[string]*models.Person),
		courses: make(map[string]*models.Course),
	}
}

func (l *identityLookup) person(ctx context.Context, id string) (*models.Person, error) {
	l.mu.Lock()
	cached, ok := l.persons[id]
	l.mu.Unlock()
	if ok {
		return cached, nil
	}
	person, err := l.src.Persons.FindByID(ctx, id)
	if err != nil {
		return nil, resolveError(err, "person", id)
	}
	l.mu.Lock()
	l.persons[id] = person
	l.mu.Unlock()
	return person, nil
}

func (l *identityLookup) course(ctx context.Context, id string) (*models.Course, error) {
	l.mu.Lock()
	cached, ok := l.courses[id]
	l.mu.Unlock()
	if ok {
		return cached, nil
	}
	course, err := l.src.Courses.FindByID(ctx, id)
	if err != nil {
		return nil, resolveError(err, "course", id)
	}
	l.mu.Lock()
	l.courses[id] = course
	l.mu.Unlock()
	return course, nil
}

func (l *identityLookup) consumer(ctx context.Context, c Consumer) error {
	if c.InspectorID != nil {
		if _, err := l.src.Inspectors.FindByID(ctx, *c.InspectorID); err != nil {
			return resolveError(err, "inspector", *c.InspectorID)
		}
	}
	if c.JudgeID != nil {
		if _, err := l.src.Judges.FindByID(ctx, *c.JudgeID); err != nil {
			return resolveError(err, "judge", *c.JudgeID)
		}
	}
	return nil
}

func resolveError(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s %s not found", entity, id))
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve "+entity)
}
