package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vial-compliance-api/internal/models"
)

var courseSorts = map[string]string{"name": "name", "created_at": "created_at"}

// CourseRepository stores traffic-safety courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course by id.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, description, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if isMissing(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// List returns courses matching filter with the total count.
func (r *CourseRepository) List(ctx context.Context, filter models.DirectoryFilter) ([]models.Course, int, error) {
	where := ""
	var args []interface{}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		where = " WHERE LOWER(name) LIKE $1"
	}
	p := paginate(filter.Page, filter.PageSize)
	order := sortClause(filter.SortBy, filter.SortOrder, courseSorts, "name")

	query := fmt.Sprintf("SELECT id, name, description, created_at, updated_at FROM courses%s ORDER BY %s LIMIT %d OFFSET %d", where, order, p.limit, p.offset)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM courses"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt, course.UpdatedAt = now, now
	const query = `INSERT INTO courses (id, name, description, created_at, updated_at) VALUES (:id, :name, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", classify(err))
	}
	return nil
}

// Update changes name and description.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	return execAffectingOne(func() (sql.Result, error) {
		return r.db.NamedExecContext(ctx, query, course)
	}, "update course")
}

// Delete removes a course.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	return execAffectingOne(func() (sql.Result, error) {
		return r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	}, "delete course")
}
