package models

import (
	"time"

	"gorm.io/gorm"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
	EnrollmentExpired   EnrollmentStatus = "expired"
)

func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentActive, EnrollmentCompleted, EnrollmentCancelled, EnrollmentExpired:
		return true
	}
	return false
}

type Enrollment struct {
	ID              string           `json:"id" gorm:"primaryKey;size:36"`
	UserID          string           `json:"user_id" gorm:"size:36;not null;uniqueIndex:idx_enrollment_user_course"`
	CourseID        string           `json:"course_id" gorm:"size:36;not null;uniqueIndex:idx_enrollment_user_course;index"`
	Status          EnrollmentStatus `json:"status" gorm:"size:20;not null;default:active;index"`
	ProgressPercent float64          `json:"progress_percent" gorm:"type:numeric(5,2);default:0;check:progress_percent >= 0 AND progress_percent <= 100"`
	EnrolledAt      time.Time        `json:"enrolled_at"`
	CompletedAt     *time.Time       `json:"completed_at"`
	ExpiresAt       *time.Time       `json:"expires_at" gorm:"index"`
	PaymentID       *string          `json:"payment_id" gorm:"size:36"`
	LastAccessedAt  *time.Time       `json:"last_accessed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Course *Course `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	User   *User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	e.ID = ensureID(e.ID)
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now()
	}
	return nil
}

// Counted reports whether the enrollment is included in courses.enrollment_count
func (e *Enrollment) Counted() bool {
	return e.Status == EnrollmentActive || e.Status == EnrollmentCompleted
}

// GrantsAccess reports whether the enrollment currently unlocks course content
func (e *Enrollment) GrantsAccess(now time.Time) bool {
	if e.Status != EnrollmentActive && e.Status != EnrollmentCompleted {
		return false
	}
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

type LessonProgress struct {
	ID                  string     `json:"id" gorm:"primaryKey;size:36"`
	UserID              string     `json:"user_id" gorm:"size:36;not null;uniqueIndex:idx_progress_user_lesson"`
	LessonID            string     `json:"lesson_id" gorm:"size:36;not null;uniqueIndex:idx_progress_user_lesson"`
	CourseID            string     `json:"course_id" gorm:"size:36;not null;index"`
	Completed           bool       `json:"completed" gorm:"default:false"`
	CompletedAt         *time.Time `json:"completed_at"`
	WatchSeconds        int        `json:"watch_seconds" gorm:"default:0"`
	LastPositionSeconds int        `json:"last_position_seconds" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LessonProgress) TableName() string {
	return "lesson_progress"
}

func (p *LessonProgress) BeforeCreate(tx *gorm.DB) error {
	p.ID = ensureID(p.ID)
	return nil
}

type Certificate struct {
	ID                string    `json:"id" gorm:"primaryKey;size:36"`
	UserID            string    `json:"user_id" gorm:"size:36;not null;uniqueIndex:idx_certificate_user_course"`
	CourseID          string    `json:"course_id" gorm:"size:36;not null;uniqueIndex:idx_certificate_user_course"`
	CertificateNumber string    `json:"certificate_number" gorm:"size:32;uniqueIndex;not null"`
	IssuedAt          time.Time `json:"issued_at"`

	Course *Course `json:"course,omitempty" gorm:"foreignKey:CourseID"`
}

func (Certificate) TableName() string {
	return "certificates"
}

func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	c.ID = ensureID(c.ID)
	return nil
}
