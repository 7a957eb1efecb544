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

var officialSorts = map[string]string{"name": "name", "created_at": "created_at"}

// OfficialRepository stores inspectors or judges; both tables share a shape.
type OfficialRepository struct {
	db    *sqlx.DB
	table string
}

// NewOfficialRepository creates a repository bound to kind's table.
func NewOfficialRepository(db *sqlx.DB, kind models.OfficialKind) *OfficialRepository {
	table := string(models.OfficialInspector)
	if kind == models.OfficialJudge {
		table = string(models.OfficialJudge)
	}
	return &OfficialRepository{db: db, table: table}
}

// FindByID returns an official by id.
func (r *OfficialRepository) FindByID(ctx context.Context, id string) (*models.Official, error) {
	query := fmt.Sprintf(`SELECT id, name, created_at, updated_at FROM %s WHERE id = $1`, r.table)
	var official models.Official
	if err := r.db.GetContext(ctx, &official, query, id); err != nil {
		if isMissing(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find %s: %w", r.table, err)
	}
	return &official, nil
}

// List returns officials matching filter with the total count.
func (r *OfficialRepository) List(ctx context.Context, filter models.DirectoryFilter) ([]models.Official, int, error) {
	where := ""
	var args []interface{}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		where = " WHERE LOWER(name) LIKE $1"
	}
	p := paginate(filter.Page, filter.PageSize)
	order := sortClause(filter.SortBy, filter.SortOrder, officialSorts, "name")

	query := fmt.Sprintf("SELECT id, name, created_at, updated_at FROM %s%s ORDER BY %s LIMIT %d OFFSET %d", r.table, where, order, p.limit, p.offset)
	var officials []models.Official
	if err := r.db.SelectContext(ctx, &officials, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", r.table, err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", r.table, where), args...); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", r.table, err)
	}
	return officials, total, nil
}

// Create inserts an official.
func (r *OfficialRepository) Create(ctx context.Context, official *models.Official) error {
	if official.ID == "" {
		official.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	official.CreatedAt, official.UpdatedAt = now, now
	query := fmt.Sprintf(`INSERT INTO %s (id, name, created_at, updated_at) VALUES (:id, :name, :created_at, :updated_at)`, r.table)
	if _, err := r.db.NamedExecContext(ctx, query, official); err != nil {
		return fmt.Errorf("create %s: %w", r.table, classify(err))
	}
	return nil
}

// Update renames an official.
func (r *OfficialRepository) Update(ctx context.Context, official *models.Official) error {
	official.UpdatedAt = time.Now().UTC()
	query := fmt.Sprintf(`UPDATE %s SET name = :name, updated_at = :updated_at WHERE id = :id`, r.table)
	return execAffectingOne(func() (sql.Result, error) {
		return r.db.NamedExecContext(ctx, query, official)
	}, "update "+r.table)
}

// Delete removes an official; officials referenced by USED enrollments fail with ErrReferenced.
func (r *OfficialRepository) Delete(ctx context.Context, id string) error {
	return execAffectingOne(func() (sql.Result, error) {
		return r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), id)
	}, "delete "+r.table)
}
