package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/repositories"
)

// baseRepository carries the default connection of a sub-repository
type baseRepository struct {
	db *gorm.DB
}

// getDB returns the transaction DB if provided, otherwise the default DB
func (b baseRepository) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return b.db
}

// wrapErr maps gorm sentinels onto repository errors and adds the operation name
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, repositories.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, repositories.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// requireAffected turns a zero-row update into ErrNotFound
func requireAffected(op string, res *gorm.DB) error {
	if res.Error != nil {
		return wrapErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, repositories.ErrNotFound)
	}
	return nil
}

func paginate(limit, offset int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	}
}
