package models

import (
	"time"

	"gorm.io/gorm"
)

// UserMFASecret holds the AES-GCM encrypted TOTP secret of a user
type UserMFASecret struct {
	UserID          string     `json:"user_id" gorm:"primaryKey;size:36"`
	EncryptedSecret string     `json:"-" gorm:"type:text;not null"`
	Enabled         bool       `json:"enabled" gorm:"default:false"`
	VerifiedAt      *time.Time `json:"verified_at"`
	LastUsedAt      *time.Time `json:"last_used_at"`
	LastUsedStep    int64      `json:"-" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserMFASecret) TableName() string {
	return "user_mfa_secrets"
}

type MFABackupCode struct {
	ID       string     `json:"id" gorm:"primaryKey;size:36"`
	UserID   string     `json:"user_id" gorm:"size:36;not null;index"`
	CodeHash string     `json:"-" gorm:"size:100;not null"`
	UsedAt   *time.Time `json:"used_at"`

	CreatedAt time.Time `json:"created_at"`
}

func (MFABackupCode) TableName() string {
	return "mfa_backup_codes"
}

func (b *MFABackupCode) BeforeCreate(tx *gorm.DB) error {
	b.ID = ensureID(b.ID)
	return nil
}
