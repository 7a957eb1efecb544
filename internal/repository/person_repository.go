package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vial-compliance-api/internal/models"
)

var personSorts = map[string]string{"name": "name", "dni": "dni", "created_at": "created_at"}

// PersonRepository stores persons.
type PersonRepository struct {
	db *sqlx.DB
}

// NewPersonRepository creates a PersonRepository.
func NewPersonRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// FindByID returns a person by id.
func (r *PersonRepository) FindByID(ctx context.Context, id string) (*models.Person, error) {
	const query = `SELECT id, name, dni, created_at, updated_at FROM persons WHERE id = $1`
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, id); err != nil {
		if isMissing(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find person: %w", err)
	}
	return &person, nil
}

// FindByDNI returns a person by national identifier.
func (r *PersonRepository) FindByDNI(ctx context.Context, dni string) (*models.Person, error) {
	const query = `SELECT id, name, dni, created_at, updated_at FROM persons WHERE dni = $1`
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, dni); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find person by dni: %w", err)
	}
	return &person, nil
}

// List returns persons matching filter with the total count.
func (r *PersonRepository) List(ctx context.Context, filter models.DirectoryFilter) ([]models.Person, int, error) {
	where := ""
	var args []interface{}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		where = " WHERE LOWER(name) LIKE $1 OR dni LIKE $1"
	}
	p := paginate(filter.Page, filter.PageSize)
	order := sortClause(filter.SortBy, filter.SortOrder, personSorts, "name")

	query := fmt.Sprintf("SELECT id, name, dni, created_at, updated_at FROM persons%s ORDER BY %s LIMIT %d OFFSET %d", where, order, p.limit, p.offset)
	var persons []models.Person
	if err := r.db.SelectContext(ctx, &persons, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list persons: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM persons"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count persons: %w", err)
	}
	return persons, total, nil
}

// Create inserts a person.
func (r *PersonRepository) Create(ctx context.Context, person *models.Person) error {
	if person.ID == "" {
		person.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	person.CreatedAt, person.UpdatedAt = now, now
	const query = `INSERT INTO persons (id, name, dni, created_at, updated_at) VALUES (:id, :name, :dni, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, person); err != nil {
		return fmt.Errorf("create person: %w", classify(err))
	}
	return nil
}

// Update changes name and dni.
func (r *PersonRepository) Update(ctx context.Context, person *models.Person) error {
	person.UpdatedAt = time.Now().UTC()
	const query = `UPDATE persons SET name = :name, dni = :dni, updated_at = :updated_at WHERE id = :id`
	return execAffectingOne(func() (sql.Result, error) {
		return r.db.NamedExecContext(ctx, query, person)
	}, "update person")
}

// Delete removes a person; referenced persons fail with ErrReferenced.
func (r *PersonRepository) Delete(ctx context.Context, id string) error {
	return execAffectingOne(func() (sql.Result, error) {
		return r.db.ExecContext(ctx, `DELETE FROM persons WHERE id = $1`, id)
	}, "delete person")
}

func execAffectingOne(exec func() (sql.Result, error), op string) error {
	result, err := exec()
	if isMissing(err) {
		return sql.ErrNoRows
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
