package resource

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("resource: database handle is required")

// GormSource executes compiled statements for schema against a gorm handle.
type GormSource[T any] struct {
	db     *gorm.DB
	schema Schema[T]
}

// NewGormSource binds schema to db.
func NewGormSource[T any](db *gorm.DB, schema Schema[T]) (*GormSource[T], error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &GormSource[T]{db: db, schema: schema}, nil
}

// List returns the rows selected by q.
func (s *GormSource[T]) List(ctx context.Context, q Query) ([]T, error) {
	statement, err := Compile(s.schema, q)
	if err != nil {
		return nil, err
	}
	// Limit is caller-controlled; let the scan size the slice.
	rows := []T{}
	if statement.Limit == 0 {
		return rows, nil
	}
	text, args := statement.SelectSQL(s.schema.Table())
	if err := s.db.WithContext(ctx).Raw(text, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of rows matching search.
func (s *GormSource[T]) Count(ctx context.Context, search string) (int, error) {
	text, args := CompileCount(s.schema, search).CountSQL(s.schema.Table())
	var count int64
	if err := s.db.WithContext(ctx).Raw(text, args...).Scan(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// IsUniqueViolation reports whether err is a unique or primary key collision.
// glebarez/sqlite only surfaces gorm.ErrDuplicatedKey when TranslateError is
// enabled, so the driver message is checked as well.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
