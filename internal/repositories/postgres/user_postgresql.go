package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/cache"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
)

type UserPostgreSQL struct {
	baseRepository
	cacheManager *cache.CacheManager
}

func NewUserPostgreSQL(db *gorm.DB, cm *cache.CacheManager) repositories.UserRepository {
	return &UserPostgreSQL{baseRepository: baseRepository{db: db}, cacheManager: cm}
}

func (u *UserPostgreSQL) Create(ctx context.Context, tx *gorm.DB, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	return wrapErr("create user", u.getDB(tx).WithContext(ctx).Create(user).Error)
}

func (u *UserPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	db := u.getDB(tx)
	var user models.User
	err := u.cacheManager.User.CacheOrExecute(ctx, fmt.Sprintf("id:%s", id), &user, cache.UserCacheConfig.TTL, func() (interface{}, error) {
		var dbUser models.User
		if err := db.WithContext(ctx).First(&dbUser, "id = ?", id).Error; err != nil {
			return nil, wrapErr("get user", err)
		}
		return &dbUser, nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *UserPostgreSQL) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error) {
	var user models.User
	err := u.getDB(tx).WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, wrapErr("get user by email", err)
	}
	return &user, nil
}

func (u *UserPostgreSQL) GetByGoogleID(ctx context.Context, tx *gorm.DB, googleID string) (*models.User, error) {
	var user models.User
	if err := u.getDB(tx).WithContext(ctx).Where("google_id = ?", googleID).First(&user).Error; err != nil {
		return nil, wrapErr("get user by google id", err)
	}
	return &user, nil
}

func (u *UserPostgreSQL) Update(ctx context.Context, tx *gorm.DB, user *models.User) error {
	if err := u.getDB(tx).WithContext(ctx).Save(user).Error; err != nil {
		return wrapErr("update user", err)
	}
	cache.InvalidateUserCache(ctx, u.cacheManager, user.ID)
	return nil
}

func (u *UserPostgreSQL) UpdateRole(ctx context.Context, tx *gorm.DB, id string, role models.UserRole) error {
	res := u.getDB(tx).WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", role)
	if err := requireAffected("update user role", res); err != nil {
		return err
	}
	cache.InvalidateUserCache(ctx, u.cacheManager, id)
	return nil
}

func (u *UserPostgreSQL) TouchLogin(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	err := u.getDB(tx).WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login_at", at).Error
	if err != nil {
		return wrapErr("touch login", err)
	}
	cache.InvalidateUserCache(ctx, u.cacheManager, id)
	return nil
}

func (u *UserPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.UserFilters) ([]*models.User, int64, error) {
	query := u.getDB(tx).WithContext(ctx).Model(&models.User{})
	if q := strings.TrimSpace(filters.Query); q != "" {
		like := "%" + q + "%"
		query = query.Where("full_name ILIKE ? OR email ILIKE ?", like, like)
	}
	if filters.Role != nil {
		query = query.Where("role = ?", *filters.Role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrapErr("count users", err)
	}

	var users []*models.User
	if err := query.Scopes(paginate(filters.Limit, filters.Offset)).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, 0, wrapErr("list users", err)
	}
	return users, total, nil
}

type MFAPostgreSQL struct {
	baseRepository
}

func NewMFAPostgreSQL(db *gorm.DB) repositories.MFARepository {
	return &MFAPostgreSQL{baseRepository{db: db}}
}

func (m *MFAPostgreSQL) GetSecret(ctx context.Context, tx *gorm.DB, userID string) (*models.UserMFASecret, error) {
	var secret models.UserMFASecret
	if err := m.getDB(tx).WithContext(ctx).First(&secret, "user_id = ?", userID).Error; err != nil {
		return nil, wrapErr("get mfa secret", err)
	}
	return &secret, nil
}

func (m *MFAPostgreSQL) SaveSecret(ctx context.Context, tx *gorm.DB, secret *models.UserMFASecret) error {
	return wrapErr("save mfa secret", m.getDB(tx).WithContext(ctx).Save(secret).Error)
}

func (m *MFAPostgreSQL) DeleteSecret(ctx context.Context, tx *gorm.DB, userID string) error {
	db := m.getDB(tx).WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&models.MFABackupCode{}).Error; err != nil {
		return wrapErr("delete backup codes", err)
	}
	return wrapErr("delete mfa secret", db.Where("user_id = ?", userID).Delete(&models.UserMFASecret{}).Error)
}

func (m *MFAPostgreSQL) ReplaceBackupCodes(ctx context.Context, tx *gorm.DB, userID string, hashes []string) error {
	db := m.getDB(tx).WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&models.MFABackupCode{}).Error; err != nil {
		return wrapErr("clear backup codes", err)
	}
	if len(hashes) == 0 {
		return nil
	}
	codes := make([]*models.MFABackupCode, len(hashes))
	for i, h := range hashes {
		codes[i] = &models.MFABackupCode{UserID: userID, CodeHash: h}
	}
	return wrapErr("insert backup codes", db.Create(&codes).Error)
}

func (m *MFAPostgreSQL) ListUnusedBackupCodes(ctx context.Context, tx *gorm.DB, userID string) ([]*models.MFABackupCode, error) {
	var codes []*models.MFABackupCode
	err := m.getDB(tx).WithContext(ctx).
		Where("user_id = ? AND used_at IS NULL", userID).
		Find(&codes).Error
	return codes, wrapErr("list backup codes", err)
}

func (m *MFAPostgreSQL) MarkBackupCodeUsed(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	res := m.getDB(tx).WithContext(ctx).Model(&models.MFABackupCode{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	return requireAffected("mark backup code used", res)
}

func (m *MFAPostgreSQL) CountUnusedBackupCodes(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	var count int64
	err := m.getDB(tx).WithContext(ctx).Model(&models.MFABackupCode{}).
		Where("user_id = ? AND used_at IS NULL", userID).
		Count(&count).Error
	return count, wrapErr("count backup codes", err)
}
