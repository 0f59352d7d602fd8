package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/models"
)

type CourseRepository interface {
	Create(ctx context.Context, tx *gorm.DB, course *models.Course) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Course, error)
	GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*models.Course, error)
	// GetWithContent loads modules and lessons in display order
	GetWithContent(ctx context.Context, tx *gorm.DB, slug string) (*models.Course, error)
	Update(ctx context.Context, tx *gorm.DB, course *models.Course) error
	Delete(ctx context.Context, tx *gorm.DB, course *models.Course) error
	List(ctx context.Context, tx *gorm.DB, params models.CourseListParams) ([]*models.Course, int64, error)

	SlugExists(ctx context.Context, tx *gorm.DB, slug string) (bool, error)
	IncrementEnrollmentCount(ctx context.Context, tx *gorm.DB, courseID string, delta int) error
	UpdateRating(ctx context.Context, tx *gorm.DB, courseID string, avg float64, count int) error
	// InvalidateCache drops cached reads of a course; callers run it after their transaction commits
	InvalidateCache(ctx context.Context, courseID string)

	ListCategories(ctx context.Context, tx *gorm.DB) ([]*models.CourseCategory, error)
}

type ModuleRepository interface {
	Create(ctx context.Context, tx *gorm.DB, module *models.CourseModule) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.CourseModule, error)
	Update(ctx context.Context, tx *gorm.DB, module *models.CourseModule) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error
	ListByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*models.CourseModule, error)
	NextOrderIndex(ctx context.Context, tx *gorm.DB, courseID string) (int, error)
	// Reorder assigns order_index by position in moduleIDs
	Reorder(ctx context.Context, tx *gorm.DB, courseID string, moduleIDs []string) error
}

type LessonRepository interface {
	Create(ctx context.Context, tx *gorm.DB, lesson *models.CourseLesson) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.CourseLesson, error)
	Update(ctx context.Context, tx *gorm.DB, lesson *models.CourseLesson) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error
	// ListByCourse returns lessons ordered by module then lesson order
	ListByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*models.CourseLesson, error)
	CountByCourse(ctx context.Context, tx *gorm.DB, courseID string) (int64, error)
	NextOrderIndex(ctx context.Context, tx *gorm.DB, moduleID string) (int, error)
}

type ReviewRepository interface {
	Get(ctx context.Context, tx *gorm.DB, userID, courseID string) (*models.CourseReview, error)
	Save(ctx context.Context, tx *gorm.DB, review *models.CourseReview) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error
	ListByCourse(ctx context.Context, tx *gorm.DB, courseID string, limit, offset int) ([]*models.CourseReview, int64, error)
	// Aggregate returns the approved rating average and count
	Aggregate(ctx context.Context, tx *gorm.DB, courseID string) (float64, int64, error)
}
