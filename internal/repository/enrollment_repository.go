package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/vial-compliance-api/internal/models"
)

const enrollmentColumns = `e.id, e.person_id, e.course_id, e.enrollment_date, e.completion_date, e.deadline_date,
	e.expiration_date, e.status, e.inspector_id, e.judge_id, e.version, e.created_at, e.updated_at`

const enrollmentDetailSelect = `SELECT ` + enrollmentColumns + `,
	p.name AS person_name, p.dni AS person_dni, c.name AS course_name, c.description AS course_description
FROM enrollments e
JOIN persons p ON p.id = e.person_id
JOIN courses c ON c.id = e.course_id`

var enrollmentSorts = map[string]string{
	"expiration_date": "e.expiration_date",
	"enrollment_date": "e.enrollment_date",
	"deadline_date":   "e.deadline_date",
	"created_at":      "e.created_at",
}

// EnrollmentRepository persists enrollments.
type EnrollmentRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, e *models.Enrollment) error {
	now := r.now()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Version == 0 {
		e.Version = 1
	}
	const query = `INSERT INTO enrollments (id, person_id, course_id, enrollment_date, completion_date, deadline_date, expiration_date, status, inspector_id, judge_id, version, created_at, updated_at)
VALUES (:id, :person_id, :course_id, :enrollment_date, :completion_date, :deadline_date, :expiration_date, :status, :inspector_id, :judge_id, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("create enrollment: %w", classify(err))
	}
	return nil
}

// FindByID returns the enrollment joined with person and course data.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if isMissing(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &detail, nil
}

// List returns enrollments matching filter along with the total count.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.PersonID != "" {
		args = append(args, filter.PersonID)
		conditions = append(conditions, fmt.Sprintf("e.person_id = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	p := paginate(filter.Page, filter.PageSize)
	order := sortClause(filter.SortBy, filter.SortOrder, enrollmentSorts, "expiration_date")
	listQuery := fmt.Sprintf("%s%s ORDER BY %s, e.id ASC LIMIT %d OFFSET %d", enrollmentDetailSelect, where, order, p.limit, p.offset)

	var items []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enrollments e"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return items, total, nil
}

// UpdateState writes the mutable lifecycle fields of e if the stored version
// still equals e.Version. On success e.Version is bumped.
func (r *EnrollmentRepository) UpdateState(ctx context.Context, e *models.Enrollment) error {
	now := r.now()
	const query = `UPDATE enrollments
SET status = $3, completion_date = $4, expiration_date = $5, inspector_id = $6, judge_id = $7, version = version + 1, updated_at = $8
WHERE id = $1 AND version = $2`
	result, err := r.db.ExecContext(ctx, query, e.ID, e.Version, e.Status, e.CompletionDate, e.ExpirationDate, e.InspectorID, e.JudgeID, now)
	if err != nil {
		return fmt.Errorf("update enrollment state: %w", classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check enrollment update rows: %w", err)
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	e.Version++
	e.UpdatedAt = now
	return nil
}

// Delete removes an enrollment.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if isMissing(err) {
		return sql.ErrNoRows
	}
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check enrollment delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListExpiring returns enrollments with expiration_date <= cutoff whose status
// is not excluded, ordered by expiration_date then id.
func (r *EnrollmentRepository) ListExpiring(ctx context.Context, filter models.ComplianceFilter) ([]models.EnrollmentDetail, error) {
	args := []interface{}{filter.Cutoff}
	query := enrollmentDetailSelect + ` WHERE e.expiration_date <= $1`
	if len(filter.ExcludedStatuses) > 0 {
		excluded := make([]string, len(filter.ExcludedStatuses))
		for i, s := range filter.ExcludedStatuses {
			excluded[i] = string(s)
		}
		args = append(args, pq.Array(excluded))
		query += ` AND NOT (e.status = ANY($2))`
	}
	query += ` ORDER BY e.expiration_date ASC, e.id ASC`

	var items []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list expiring enrollments: %w", err)
	}
	return items, nil
}

// ListSweepCandidates pages through rows that have expired by today, keyed by
// id. A PENDING row only qualifies once it was enrolled before abandonedBefore
// as well.
func (r *EnrollmentRepository) ListSweepCandidates(ctx context.Context, today, abandonedBefore time.Time, afterID string, limit int) ([]models.SweepCandidate, error) {
	if limit <= 0 {
		limit = 200
	}
	const query = `SELECT e.id, e.enrollment_date, e.status, e.deadline_date, e.expiration_date, e.version
FROM enrollments e
WHERE ((e.status = 'PENDING' AND e.expiration_date < $1 AND e.enrollment_date < $2) OR (e.status = 'COMPLETED' AND e.expiration_date < $1))
AND e.id::text > $3
ORDER BY e.id::text ASC
LIMIT $4`
	var items []models.SweepCandidate
	if err := r.db.SelectContext(ctx, &items, query, today, abandonedBefore, afterID, limit); err != nil {
		return nil, fmt.Errorf("list sweep candidates: %w", classify(err))
	}
	return items, nil
}

// SweepStatus moves a row from one status to another without touching dates.
func (r *EnrollmentRepository) SweepStatus(ctx context.Context, id string, version int, from, to models.EnrollmentStatus) error {
	const query = `UPDATE enrollments
SET status = $4, inspector_id = NULL, judge_id = NULL, version = version + 1, updated_at = $5
WHERE id = $1 AND version = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, id, version, from, to, r.now())
	if err != nil {
		return fmt.Errorf("sweep enrollment status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check sweep rows: %w", err)
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	return nil
}
