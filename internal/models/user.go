package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	RoleStudent    UserRole = "student"
	RoleInstructor UserRole = "instructor"
	RoleAdmin      UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID       string   `json:"id" gorm:"primaryKey;size:36"`
	Email    string   `json:"email" gorm:"uniqueIndex;not null;size:255"`
	FullName string   `json:"full_name" gorm:"size:150"`
	Role     UserRole `json:"role" gorm:"size:20;not null;default:student;index"`

	AvatarURL        *string `json:"avatar_url" gorm:"size:500"`
	GoogleID         *string `json:"-" gorm:"uniqueIndex;size:64"`
	Locale           string  `json:"locale" gorm:"size:10;default:tr"`
	StripeCustomerID *string `json:"-" gorm:"size:64"`

	LastLoginAt *time.Time     `json:"last_login_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleStudent
	}
	if u.Locale == "" {
		u.Locale = "tr"
	}
	return nil
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
