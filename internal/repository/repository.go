package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrVersionConflict means a versioned update matched no row at the expected version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate wraps unique constraint violations.
	ErrDuplicate = errors.New("duplicate record")
	// ErrReferenced wraps foreign key violations.
	ErrReferenced = errors.New("record is referenced")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	// raised when an id is not a valid uuid
	pqInvalidTextRepresentation = "22P02"
)

// classify maps well-known PostgreSQL errors onto repository sentinels.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		return errors.Join(ErrDuplicate, err)
	case pqForeignKeyViolation:
		return errors.Join(ErrReferenced, err)
	}
	return err
}

// isMissing reports whether a lookup by id can match no row. A malformed uuid
// never matches, so it reads the same as sql.ErrNoRows.
func isMissing(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqInvalidTextRepresentation
}

type pageParams struct {
	limit  int
	offset int
	page   int
}

func paginate(page, size int) pageParams {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return pageParams{limit: size, offset: (page - 1) * size, page: page}
}

func sortClause(requested, order string, allowed map[string]string, fallback string) string {
	column, ok := allowed[requested]
	if !ok {
		column = allowed[fallback]
	}
	dir := "ASC"
	if order == "desc" || order == "DESC" {
		dir = "DESC"
	}
	return column + " " + dir
}
