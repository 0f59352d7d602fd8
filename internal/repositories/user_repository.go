package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/models"
)

type UserFilters struct {
	Query  string
	Role   *models.UserRole
	Limit  int
	Offset int
}

type UserRepository interface {
	Create(ctx context.Context, tx *gorm.DB, user *models.User) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error)
	GetByGoogleID(ctx context.Context, tx *gorm.DB, googleID string) (*models.User, error)
	Update(ctx context.Context, tx *gorm.DB, user *models.User) error
	UpdateRole(ctx context.Context, tx *gorm.DB, id string, role models.UserRole) error
	TouchLogin(ctx context.Context, tx *gorm.DB, id string, at time.Time) error
	List(ctx context.Context, tx *gorm.DB, filters UserFilters) ([]*models.User, int64, error)
}

type MFARepository interface {
	GetSecret(ctx context.Context, tx *gorm.DB, userID string) (*models.UserMFASecret, error)
	SaveSecret(ctx context.Context, tx *gorm.DB, secret *models.UserMFASecret) error
	DeleteSecret(ctx context.Context, tx *gorm.DB, userID string) error

	ReplaceBackupCodes(ctx context.Context, tx *gorm.DB, userID string, hashes []string) error
	ListUnusedBackupCodes(ctx context.Context, tx *gorm.DB, userID string) ([]*models.MFABackupCode, error)
	MarkBackupCodeUsed(ctx context.Context, tx *gorm.DB, id string, at time.Time) error
	CountUnusedBackupCodes(ctx context.Context, tx *gorm.DB, userID string) (int64, error)
}
