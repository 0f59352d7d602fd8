package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/cache"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
)

type CoursePostgreSQL struct {
	baseRepository
	cacheManager *cache.CacheManager
}

func NewCoursePostgreSQL(db *gorm.DB, cm *cache.CacheManager) repositories.CourseRepository {
	return &CoursePostgreSQL{baseRepository: baseRepository{db: db}, cacheManager: cm}
}

var courseSorts = map[string]string{
	"newest":     "courses.published_at DESC NULLS LAST, courses.created_at DESC",
	"popular":    "courses.enrollment_count DESC, courses.created_at DESC",
	"rating":     "courses.rating_avg DESC, courses.rating_count DESC",
	"price_asc":  "courses.price ASC, courses.created_at DESC",
	"price_desc": "courses.price DESC, courses.created_at DESC",
}

func (c *CoursePostgreSQL) Create(ctx context.Context, tx *gorm.DB, course *models.Course) error {
	if err := c.getDB(tx).WithContext(ctx).Create(course).Error; err != nil {
		return wrapErr("create course", err)
	}
	cache.SafeInvalidatePattern(ctx, c.cacheManager.Catalog, "*")
	return nil
}

func (c *CoursePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Course, error) {
	db := c.getDB(tx)
	var course models.Course
	err := c.cacheManager.Course.CacheOrExecute(ctx, fmt.Sprintf("id:%s", id), &course, cache.CourseCacheConfig.TTL, func() (interface{}, error) {
		var dbCourse models.Course
		if err := db.WithContext(ctx).First(&dbCourse, "id = ?", id).Error; err != nil {
			return nil, wrapErr("get course", err)
		}
		return &dbCourse, nil
	})
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (c *CoursePostgreSQL) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*models.Course, error) {
	db := c.getDB(tx)
	var course models.Course
	err := c.cacheManager.Course.CacheOrExecute(ctx, fmt.Sprintf("slug:%s", slug), &course, cache.CourseCacheConfig.TTL, func() (interface{}, error) {
		var dbCourse models.Course
		if err := db.WithContext(ctx).Preload("Category").First(&dbCourse, "slug = ?", slug).Error; err != nil {
			return nil, wrapErr("get course by slug", err)
		}
		return &dbCourse, nil
	})
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (c *CoursePostgreSQL) GetWithContent(ctx context.Context, tx *gorm.DB, slug string) (*models.Course, error) {
	db := c.getDB(tx)
	var course models.Course
	err := c.cacheManager.Course.CacheOrExecute(ctx, fmt.Sprintf("content:%s", slug), &course, cache.CourseCacheConfig.TTL, func() (interface{}, error) {
		var dbCourse models.Course
		err := db.WithContext(ctx).
			Preload("Category").
			Preload("Instructor").
			Preload("Modules", func(db *gorm.DB) *gorm.DB {
				return db.Order("order_index ASC, created_at ASC")
			}).
			Preload("Modules.Lessons", func(db *gorm.DB) *gorm.DB {
				return db.Order("order_index ASC, created_at ASC")
			}).
			First(&dbCourse, "slug = ?", slug).Error
		if err != nil {
			return nil, wrapErr("get course content", err)
		}
		return &dbCourse, nil
	})
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (c *CoursePostgreSQL) Update(ctx context.Context, tx *gorm.DB, course *models.Course) error {
	err := c.getDB(tx).WithContext(ctx).
		Omit("Category", "Instructor", "Modules").
		Save(course).Error
	if err != nil {
		return wrapErr("update course", err)
	}
	cache.InvalidateCourseCache(ctx, c.cacheManager, course.ID, course.Slug)
	return nil
}

func (c *CoursePostgreSQL) Delete(ctx context.Context, tx *gorm.DB, course *models.Course) error {
	if err := c.getDB(tx).WithContext(ctx).Delete(&models.Course{}, "id = ?", course.ID).Error; err != nil {
		return wrapErr("delete course", err)
	}
	cache.InvalidateCourseCache(ctx, c.cacheManager, course.ID, course.Slug)
	return nil
}

type coursePage struct {
	Items []*models.Course `json:"items"`
	Total int64            `json:"total"`
}

func (c *CoursePostgreSQL) List(ctx context.Context, tx *gorm.DB, params models.CourseListParams) ([]*models.Course, int64, error) {
	params.Normalize()
	db := c.getDB(tx)

	keyBytes, _ := json.Marshal(params)
	var page coursePage
	err := c.cacheManager.Catalog.CacheOrExecute(ctx, "list:"+string(keyBytes), &page, cache.CatalogCacheConfig.TTL, func() (interface{}, error) {
		query := c.applyCourseFilters(db.WithContext(ctx).Model(&models.Course{}), params)

		var total int64
		if err := query.Count(&total).Error; err != nil {
			return nil, wrapErr("count courses", err)
		}

		order, ok := courseSorts[params.Sort]
		if !ok {
			order = courseSorts["newest"]
		}

		var items []*models.Course
		err := query.
			Preload("Category").
			Order(order).
			Scopes(paginate(params.Size, (params.Page-1)*params.Size)).
			Find(&items).Error
		if err != nil {
			return nil, wrapErr("list courses", err)
		}
		return &coursePage{Items: items, Total: total}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return page.Items, page.Total, nil
}

func (c *CoursePostgreSQL) applyCourseFilters(query *gorm.DB, params models.CourseListParams) *gorm.DB {
	if params.Status != "" {
		query = query.Where("courses.status = ?", params.Status)
	}
	if params.InstructorID != "" {
		query = query.Where("courses.instructor_id = ?", params.InstructorID)
	}
	if params.Category != "" {
		query = query.Joins("JOIN course_categories cc ON cc.id = courses.category_id").
			Where("cc.slug = ?", params.Category)
	}
	if params.Level != "" {
		query = query.Where("courses.level = ?", params.Level)
	}
	if params.Language != "" {
		query = query.Where("courses.language = ?", params.Language)
	}
	switch params.Price {
	case "free":
		query = query.Where("courses.price = 0")
	case "paid":
		query = query.Where("courses.price > 0")
	}
	if params.MinPrice != nil {
		query = query.Where("courses.price >= ?", *params.MinPrice)
	}
	if params.MaxPrice != nil {
		query = query.Where("courses.price <= ?", *params.MaxPrice)
	}
	if params.Featured != nil {
		query = query.Where("courses.is_featured = ?", *params.Featured)
	}
	if s := strings.TrimSpace(params.Search); s != "" {
		like := "%" + s + "%"
		query = query.Where("courses.title ILIKE ? OR courses.short_description ILIKE ? OR courses.description ILIKE ?", like, like, like)
	}
	return query
}

func (c *CoursePostgreSQL) SlugExists(ctx context.Context, tx *gorm.DB, slug string) (bool, error) {
	var count int64
	err := c.getDB(tx).WithContext(ctx).Unscoped().Model(&models.Course{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, wrapErr("check slug", err)
}

func (c *CoursePostgreSQL) IncrementEnrollmentCount(ctx context.Context, tx *gorm.DB, courseID string, delta int) error {
	res := c.getDB(tx).WithContext(ctx).Model(&models.Course{}).
		Where("id = ?", courseID).
		Update("enrollment_count", gorm.Expr("GREATEST(enrollment_count + ?, 0)", delta))
	return requireAffected("increment enrollment count", res)
}

func (c *CoursePostgreSQL) UpdateRating(ctx context.Context, tx *gorm.DB, courseID string, avg float64, count int) error {
	res := c.getDB(tx).WithContext(ctx).Model(&models.Course{}).
		Where("id = ?", courseID).
		Updates(map[string]interface{}{"rating_avg": avg, "rating_count": count})
	return requireAffected("update course rating", res)
}

func (c *CoursePostgreSQL) InvalidateCache(ctx context.Context, courseID string) {
	cache.InvalidateCourseCache(ctx, c.cacheManager, courseID, "")
	cache.SafeInvalidatePattern(ctx, c.cacheManager.Course, "slug:*")
}

func (c *CoursePostgreSQL) ListCategories(ctx context.Context, tx *gorm.DB) ([]*models.CourseCategory, error) {
	db := c.getDB(tx)
	var categories []*models.CourseCategory
	err := c.cacheManager.Catalog.CacheOrExecute(ctx, "categories", &categories, cache.CourseCacheConfig.TTL, func() (interface{}, error) {
		var rows []*models.CourseCategory
		if err := db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
			return nil, wrapErr("list categories", err)
		}
		return rows, nil
	})
	return categories, err
}

type ModulePostgreSQL struct {
	baseRepository
	cacheManager *cache.CacheManager
}

func NewModulePostgreSQL(db *gorm.DB, cm *cache.CacheManager) repositories.ModuleRepository {
	return &ModulePostgreSQL{baseRepository: baseRepository{db: db}, cacheManager: cm}
}

// content pages embed modules and lessons
func (m *ModulePostgreSQL) invalidate(ctx context.Context) {
	cache.SafeInvalidatePattern(ctx, m.cacheManager.Course, "content:*")
}

func (m *ModulePostgreSQL) Create(ctx context.Context, tx *gorm.DB, module *models.CourseModule) error {
	if err := m.getDB(tx).WithContext(ctx).Omit("Lessons").Create(module).Error; err != nil {
		return wrapErr("create module", err)
	}
	m.invalidate(ctx)
	return nil
}

func (m *ModulePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.CourseModule, error) {
	var module models.CourseModule
	if err := m.getDB(tx).WithContext(ctx).First(&module, "id = ?", id).Error; err != nil {
		return nil, wrapErr("get module", err)
	}
	return &module, nil
}

func (m *ModulePostgreSQL) Update(ctx context.Context, tx *gorm.DB, module *models.CourseModule) error {
	if err := m.getDB(tx).WithContext(ctx).Omit("Lessons").Save(module).Error; err != nil {
		return wrapErr("update module", err)
	}
	m.invalidate(ctx)
	return nil
}

func (m *ModulePostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	db := m.getDB(tx).WithContext(ctx)
	if err := db.Where("module_id = ?", id).Delete(&models.CourseLesson{}).Error; err != nil {
		return wrapErr("delete module lessons", err)
	}
	if err := requireAffected("delete module", db.Delete(&models.CourseModule{}, "id = ?", id)); err != nil {
		return err
	}
	m.invalidate(ctx)
	return nil
}

func (m *ModulePostgreSQL) ListByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*models.CourseModule, error) {
	var modules []*models.CourseModule
	err := m.getDB(tx).WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("order_index ASC, created_at ASC").
		Find(&modules).Error
	return modules, wrapErr("list modules", err)
}

func (m *ModulePostgreSQL) NextOrderIndex(ctx context.Context, tx *gorm.DB, courseID string) (int, error) {
	var next int
	err := m.getDB(tx).WithContext(ctx).Model(&models.CourseModule{}).
		Where("course_id = ?", courseID).
		Select("COALESCE(MAX(order_index) + 1, 0)").
		Scan(&next).Error
	return next, wrapErr("next module order", err)
}

func (m *ModulePostgreSQL) Reorder(ctx context.Context, tx *gorm.DB, courseID string, moduleIDs []string) error {
	db := m.getDB(tx).WithContext(ctx)
	for i, id := range moduleIDs {
		res := db.Model(&models.CourseModule{}).
			Where("id = ? AND course_id = ?", id, courseID).
			Update("order_index", i)
		if err := requireAffected("reorder module", res); err != nil {
			return err
		}
	}
	m.invalidate(ctx)
	return nil
}

type LessonPostgreSQL struct {
	baseRepository
	cacheManager *cache.CacheManager
}

func NewLessonPostgreSQL(db *gorm.DB, cm *cache.CacheManager) repositories.LessonRepository {
	return &LessonPostgreSQL{baseRepository: baseRepository{db: db}, cacheManager: cm}
}

func (l *LessonPostgreSQL) Create(ctx context.Context, tx *gorm.DB, lesson *models.CourseLesson) error {
	if err := l.getDB(tx).WithContext(ctx).Create(lesson).Error; err != nil {
		return wrapErr("create lesson", err)
	}
	cache.SafeInvalidatePattern(ctx, l.cacheManager.Course, "content:*")
	return nil
}

func (l *LessonPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.CourseLesson, error) {
	var lesson models.CourseLesson
	if err := l.getDB(tx).WithContext(ctx).First(&lesson, "id = ?", id).Error; err != nil {
		return nil, wrapErr("get lesson", err)
	}
	return &lesson, nil
}

func (l *LessonPostgreSQL) Update(ctx context.Context, tx *gorm.DB, lesson *models.CourseLesson) error {
	if err := l.getDB(tx).WithContext(ctx).Save(lesson).Error; err != nil {
		return wrapErr("update lesson", err)
	}
	cache.SafeInvalidatePattern(ctx, l.cacheManager.Course, "content:*")
	return nil
}

func (l *LessonPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	if err := requireAffected("delete lesson", l.getDB(tx).WithContext(ctx).Delete(&models.CourseLesson{}, "id = ?", id)); err != nil {
		return err
	}
	cache.SafeInvalidatePattern(ctx, l.cacheManager.Course, "content:*")
	return nil
}

func (l *LessonPostgreSQL) ListByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*models.CourseLesson, error) {
	var lessons []*models.CourseLesson
	err := l.getDB(tx).WithContext(ctx).
		Joins("JOIN course_modules cm ON cm.id = course_lessons.module_id").
		Where("course_lessons.course_id = ?", courseID).
		Order("cm.order_index ASC, course_lessons.order_index ASC, course_lessons.created_at ASC").
		Find(&lessons).Error
	return lessons, wrapErr("list lessons", err)
}

func (l *LessonPostgreSQL) CountByCourse(ctx context.Context, tx *gorm.DB, courseID string) (int64, error) {
	var count int64
	err := l.getDB(tx).WithContext(ctx).Model(&models.CourseLesson{}).Where("course_id = ?", courseID).Count(&count).Error
	return count, wrapErr("count lessons", err)
}

func (l *LessonPostgreSQL) NextOrderIndex(ctx context.Context, tx *gorm.DB, moduleID string) (int, error) {
	var next int
	err := l.getDB(tx).WithContext(ctx).Model(&models.CourseLesson{}).
		Where("module_id = ?", moduleID).
		Select("COALESCE(MAX(order_index) + 1, 0)").
		Scan(&next).Error
	return next, wrapErr("next lesson order", err)
}

type ReviewPostgreSQL struct {
	baseRepository
}

func NewReviewPostgreSQL(db *gorm.DB) repositories.ReviewRepository {
	return &ReviewPostgreSQL{baseRepository{db: db}}
}

func (r *ReviewPostgreSQL) Get(ctx context.Context, tx *gorm.DB, userID, courseID string) (*models.CourseReview, error) {
	var review models.CourseReview
	err := r.getDB(tx).WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&review).Error
	if err != nil {
		return nil, wrapErr("get review", err)
	}
	return &review, nil
}

func (r *ReviewPostgreSQL) Save(ctx context.Context, tx *gorm.DB, review *models.CourseReview) error {
	return wrapErr("save review", r.getDB(tx).WithContext(ctx).Omit("User").Save(review).Error)
}

func (r *ReviewPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	return requireAffected("delete review", r.getDB(tx).WithContext(ctx).Delete(&models.CourseReview{}, "id = ?", id))
}

func (r *ReviewPostgreSQL) ListByCourse(ctx context.Context, tx *gorm.DB, courseID string, limit, offset int) ([]*models.CourseReview, int64, error) {
	query := r.getDB(tx).WithContext(ctx).Model(&models.CourseReview{}).
		Where("course_id = ? AND is_approved = ?", courseID, true)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrapErr("count reviews", err)
	}

	var reviews []*models.CourseReview
	err := query.
		Preload("User", func(db *gorm.DB) *gorm.DB { return db.Select("id", "full_name", "avatar_url") }).
		Order("created_at DESC").
		Scopes(paginate(limit, offset)).
		Find(&reviews).Error
	if err != nil {
		return nil, 0, wrapErr("list reviews", err)
	}
	return reviews, total, nil
}

func (r *ReviewPostgreSQL) Aggregate(ctx context.Context, tx *gorm.DB, courseID string) (float64, int64, error) {
	var result struct {
		Avg   float64
		Count int64
	}
	err := r.getDB(tx).WithContext(ctx).Model(&models.CourseReview{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Where("course_id = ? AND is_approved = ?", courseID, true).
		Scan(&result).Error
	if err != nil {
		return 0, 0, wrapErr("aggregate reviews", err)
	}
	return result.Avg, result.Count, nil
}
