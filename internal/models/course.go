package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CourseLevel string

const (
	LevelBeginner     CourseLevel = "beginner"
	LevelIntermediate CourseLevel = "intermediate"
	LevelAdvanced     CourseLevel = "advanced"
)

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

type CourseCategory struct {
	ID   string `json:"id" gorm:"primaryKey;size:36"`
	Name string `json:"name" gorm:"size:100;not null"`
	Slug string `json:"slug" gorm:"uniqueIndex;size:120;not null"`
}

func (CourseCategory) TableName() string {
	return "course_categories"
}

type Course struct {
	ID               string       `json:"id" gorm:"primaryKey;size:36"`
	Slug             string       `json:"slug" gorm:"uniqueIndex;size:220;not null"`
	Title            string       `json:"title" gorm:"size:200;not null"`
	Description      string       `json:"description" gorm:"type:text"`
	ShortDescription string       `json:"short_description" gorm:"size:500"`
	InstructorID     string       `json:"instructor_id" gorm:"size:36;not null;index"`
	CategoryID       *string      `json:"category_id" gorm:"size:36;index"`
	Level            CourseLevel  `json:"level" gorm:"size:20;default:beginner"`
	Language         string       `json:"language" gorm:"size:10;default:tr"`
	Price            float64      `json:"price" gorm:"type:numeric(10,2);not null;default:0;check:price >= 0"`
	Currency         string       `json:"currency" gorm:"size:3;default:TRY"`
	Status           CourseStatus `json:"status" gorm:"size:20;default:draft;index"`
	ThumbnailURL     *string      `json:"thumbnail_url" gorm:"size:500"`
	DurationMinutes  int          `json:"duration_minutes"`
	IsFeatured       bool         `json:"is_featured" gorm:"default:false;index"`
	RatingAvg        float64      `json:"rating_avg" gorm:"type:numeric(3,2);default:0"`
	RatingCount      int          `json:"rating_count" gorm:"default:0"`
	EnrollmentCount  int          `json:"enrollment_count" gorm:"default:0"`
	StripePriceID    *string      `json:"-" gorm:"size:64"`
	PublishedAt      *time.Time   `json:"published_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Category   *CourseCategory `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Instructor *User           `json:"instructor,omitempty" gorm:"foreignKey:InstructorID"`
	Modules    []CourseModule  `json:"modules,omitempty" gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE"`
}

func (Course) TableName() string {
	return "courses"
}

func (c *Course) IsFree() bool {
	return c.Price <= 0
}

func (c *Course) IsPublished() bool {
	return c.Status == CoursePublished
}

type CourseModule struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	CourseID    string `json:"course_id" gorm:"size:36;not null;index"`
	Title       string `json:"title" gorm:"size:200;not null"`
	Description string `json:"description" gorm:"type:text"`
	OrderIndex  int    `json:"order_index" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lessons []CourseLesson `json:"lessons,omitempty" gorm:"foreignKey:ModuleID;constraint:OnDelete:CASCADE"`
}

func (CourseModule) TableName() string {
	return "course_modules"
}

type LessonResource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type CourseLesson struct {
	ID              string         `json:"id" gorm:"primaryKey;size:36"`
	ModuleID        string         `json:"module_id" gorm:"size:36;not null;index"`
	CourseID        string         `json:"course_id" gorm:"size:36;not null;index"`
	Title           string         `json:"title" gorm:"size:200;not null"`
	Content         string         `json:"content,omitempty" gorm:"type:text"`
	VideoPath       *string        `json:"-" gorm:"size:500"`
	DurationMinutes int            `json:"duration_minutes"`
	OrderIndex      int            `json:"order_index" gorm:"not null;default:0"`
	IsPreview       bool           `json:"is_preview" gorm:"default:false"`
	Resources       datatypes.JSON `json:"resources,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CourseLesson) TableName() string {
	return "course_lessons"
}

type CourseReview struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	UserID     string `json:"user_id" gorm:"size:36;not null;uniqueIndex:idx_review_user_course"`
	CourseID   string `json:"course_id" gorm:"size:36;not null;uniqueIndex:idx_review_user_course;index"`
	Rating     int    `json:"rating" gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment    string `json:"comment" gorm:"type:text"`
	IsApproved bool   `json:"is_approved" gorm:"default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (CourseReview) TableName() string {
	return "course_reviews"
}

func (c *CourseCategory) BeforeCreate(tx *gorm.DB) error { c.ID = ensureID(c.ID); return nil }
func (c *Course) BeforeCreate(tx *gorm.DB) error         { c.ID = ensureID(c.ID); return nil }
func (m *CourseModule) BeforeCreate(tx *gorm.DB) error   { m.ID = ensureID(m.ID); return nil }
func (l *CourseLesson) BeforeCreate(tx *gorm.DB) error   { l.ID = ensureID(l.ID); return nil }
func (r *CourseReview) BeforeCreate(tx *gorm.DB) error   { r.ID = ensureID(r.ID); return nil }

func ensureID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}
