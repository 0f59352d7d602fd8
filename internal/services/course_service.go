package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
	"github.com/7p-education/platform/internal/validator"
)

// VideoURLTTL is how long a signed lesson video link stays valid
const VideoURLTTL = time.Hour

// VideoSigner issues short lived links to private lesson videos
type VideoSigner interface {
	SignedURL(ctx context.Context, path string, expiresIn time.Duration) (string, error)
}

type courseService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	videos    VideoSigner
	now       func() time.Time
}

func NewCourseService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, videos VideoSigner) CourseService {
	return &courseService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		videos:    videos,
		now:       time.Now,
	}
}

// ===== PUBLIC CATALOG =====

func (s *courseService) List(ctx context.Context, params models.CourseListParams) (*models.PaginatedResponse, error) {
	if err := s.validator.Validate(&params); err != nil {
		return nil, err
	}
	params.Normalize()
	params.Status = models.CoursePublished

	courses, total, err := s.repo.Course().List(ctx, s.db, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	return models.NewPaginatedResponse(courses, total, params.Page, params.Size), nil
}

func (s *courseService) GetBySlug(ctx context.Context, slug, viewerID string) (*CourseDetailResponse, error) {
	course, err := s.repo.Course().GetWithContent(ctx, s.db, slug)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	var viewer *models.User
	if viewerID != "" {
		if viewer, err = getUser(ctx, s.repo, s.db, viewerID); err != nil && !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
	}

	canEdit := canManageCourse(viewer, course)
	if !course.IsPublished() && !canEdit {
		return nil, ErrCourseNotFound
	}

	resp := &CourseDetailResponse{Course: course, CanEdit: canEdit}
	if viewer != nil {
		access, err := hasCourseAccess(ctx, s.repo, s.db, viewer, course, s.now())
		if err != nil {
			return nil, err
		}
		resp.HasAccess = access
		if enrollment, err := s.repo.Enrollment().Get(ctx, s.db, viewer.ID, course.ID); err == nil {
			resp.Enrolled = enrollment.GrantsAccess(s.now())
		}
	}

	for i := range course.Modules {
		for j := range course.Modules[i].Lessons {
			resp.LessonCount++
			lesson := &course.Modules[i].Lessons[j]
			if !lesson.IsPreview && !resp.HasAccess {
				lesson.Content = ""
				lesson.Resources = nil
			}
		}
	}
	return resp, nil
}

func (s *courseService) Categories(ctx context.Context) ([]*models.CourseCategory, error) {
	categories, err := s.repo.Course().ListCategories(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// ===== COURSE MANAGEMENT =====

func (s *courseService) Create(ctx context.Context, req *models.CourseCreateRequest, userID string) (*models.Course, error) {
	s.logger.Info("Creating course", "user_id", userID, "title", req.Title)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	user, err := getUser(ctx, s.repo, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleInstructor && !user.IsAdmin() {
		return nil, NewPermissionError(userID, "", "course", "create", "only instructors can create courses")
	}

	course := &models.Course{
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		ShortDescription: req.ShortDescription,
		InstructorID:     userID,
		CategoryID:       req.CategoryID,
		Level:            req.Level,
		Language:         req.Language,
		Price:            roundFloat(req.Price, 2),
		Currency:         "TRY",
		Status:           models.CourseDraft,
		ThumbnailURL:     req.ThumbnailURL,
		DurationMinutes:  req.DurationMinutes,
		IsFeatured:       req.IsFeatured && user.IsAdmin(),
	}
	if course.Level == "" {
		course.Level = models.LevelBeginner
	}
	if course.Language == "" {
		course.Language = "tr"
	}

	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		slug, err := s.uniqueSlug(ctx, tx, course.Title)
		if err != nil {
			return err
		}
		course.Slug = slug
		if err := s.repo.Course().Create(ctx, tx, course); err != nil {
			return fmt.Errorf("failed to create course: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Course created successfully", "course_id", course.ID, "slug", course.Slug)
	return course, nil
}

func (s *courseService) Update(ctx context.Context, courseID string, req *models.CourseUpdateRequest, userID string) (*models.Course, error) {
	s.logger.Info("Updating course", "course_id", courseID, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	user, course, err := s.loadManaged(ctx, courseID, userID, "update")
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		course.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.ShortDescription != nil {
		course.ShortDescription = *req.ShortDescription
	}
	if req.CategoryID != nil {
		course.CategoryID = req.CategoryID
	}
	if req.Level != nil {
		course.Level = *req.Level
	}
	if req.Language != nil {
		course.Language = *req.Language
	}
	if req.Price != nil {
		course.Price = roundFloat(*req.Price, 2)
	}
	if req.ThumbnailURL != nil {
		course.ThumbnailURL = req.ThumbnailURL
	}
	if req.DurationMinutes != nil {
		course.DurationMinutes = *req.DurationMinutes
	}
	if req.IsFeatured != nil && user.IsAdmin() {
		course.IsFeatured = *req.IsFeatured
	}

	if err := s.repo.Course().Update(ctx, s.db, course); err != nil {
		return nil, fmt.Errorf("failed to update course: %w", err)
	}

	s.logger.Info("Course updated successfully", "course_id", courseID)
	return course, nil
}

func (s *courseService) Delete(ctx context.Context, courseID, userID string) error {
	s.logger.Info("Deleting course", "course_id", courseID, "user_id", userID)

	_, course, err := s.loadManaged(ctx, courseID, userID, "delete")
	if err != nil {
		return err
	}

	enrollments, err := s.repo.Enrollment().CountByCourse(ctx, s.db, courseID)
	if err != nil {
		return fmt.Errorf("failed to count enrollments: %w", err)
	}
	if enrollments > 0 {
		return NewBusinessRuleError("course_has_enrollments",
			fmt.Sprintf("course has %d enrollments; archive it instead", enrollments), ErrConflict)
	}

	if err := s.repo.Course().Delete(ctx, s.db, course); err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}

	s.logger.Info("Course deleted successfully", "course_id", courseID)
	return nil
}

func (s *courseService) Publish(ctx context.Context, courseID, userID string) (*models.Course, error) {
	s.logger.Info("Publishing course", "course_id", courseID, "user_id", userID)

	_, course, err := s.loadManaged(ctx, courseID, userID, "publish")
	if err != nil {
		return nil, err
	}

	lessons, err := s.repo.Lesson().CountByCourse(ctx, s.db, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to count lessons: %w", err)
	}
	if err := s.validator.ValidatePublish(course, lessons); err != nil {
		return nil, err
	}

	if course.Status != models.CoursePublished {
		now := s.now()
		course.Status = models.CoursePublished
		if course.PublishedAt == nil {
			course.PublishedAt = &now
		}
		if err := s.repo.Course().Update(ctx, s.db, course); err != nil {
			return nil, fmt.Errorf("failed to publish course: %w", err)
		}
	}

	s.logger.Info("Course published successfully", "course_id", courseID)
	return course, nil
}

func (s *courseService) Archive(ctx context.Context, courseID, userID string) (*models.Course, error) {
	s.logger.Info("Archiving course", "course_id", courseID, "user_id", userID)

	_, course, err := s.loadManaged(ctx, courseID, userID, "archive")
	if err != nil {
		return nil, err
	}
	if course.Status == models.CourseArchived {
		return course, nil
	}

	course.Status = models.CourseArchived
	if err := s.repo.Course().Update(ctx, s.db, course); err != nil {
		return nil, fmt.Errorf("failed to archive course: %w", err)
	}
	return course, nil
}

// ===== MODULES =====

func (s *courseService) CreateModule(ctx context.Context, courseID string, req *models.ModuleRequest, userID string) (*models.CourseModule, error) {
	s.logger.Info("Creating module", "course_id", courseID, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if _, _, err := s.loadManaged(ctx, courseID, userID, "add_module"); err != nil {
		return nil, err
	}

	module := &models.CourseModule{
		CourseID:    courseID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
	}
	err := withTx(ctx, s.db, func(tx *gorm.DB) error {
		if req.OrderIndex != nil {
			module.OrderIndex = *req.OrderIndex
		} else {
			next, err := s.repo.Module().NextOrderIndex(ctx, tx, courseID)
			if err != nil {
				return fmt.Errorf("failed to get next module order: %w", err)
			}
			module.OrderIndex = next
		}
		if err := s.repo.Module().Create(ctx, tx, module); err != nil {
			return fmt.Errorf("failed to create module: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return module, nil
}

func (s *courseService) UpdateModule(ctx context.Context, moduleID string, req *models.ModuleRequest, userID string) (*models.CourseModule, error) {
	s.logger.Info("Updating module", "module_id", moduleID, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	module, err := s.getModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.loadManaged(ctx, module.CourseID, userID, "update_module"); err != nil {
		return nil, err
	}

	module.Title = strings.TrimSpace(req.Title)
	module.Description = req.Description
	if req.OrderIndex != nil {
		module.OrderIndex = *req.OrderIndex
	}
	if err := s.repo.Module().Update(ctx, s.db, module); err != nil {
		return nil, fmt.Errorf("failed to update module: %w", err)
	}
	return module, nil
}

func (s *courseService) DeleteModule(ctx context.Context, moduleID, userID string) error {
	s.logger.Info("Deleting module", "module_id", moduleID, "user_id", userID)

	module, err := s.getModule(ctx, moduleID)
	if err != nil {
		return err
	}
	if _, _, err := s.loadManaged(ctx, module.CourseID, userID, "delete_module"); err != nil {
		return err
	}
	if err := s.repo.Module().Delete(ctx, s.db, moduleID); err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
	}
	return nil
}

func (s *courseService) ReorderModules(ctx context.Context, courseID string, req *models.ReorderModulesRequest, userID string) error {
	s.logger.Info("Reordering modules", "course_id", courseID, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return err
	}
	if _, _, err := s.loadManaged(ctx, courseID, userID, "reorder_modules"); err != nil {
		return err
	}

	return withTx(ctx, s.db, func(tx *gorm.DB) error {
		modules, err := s.repo.Module().ListByCourse(ctx, tx, courseID)
		if err != nil {
			return fmt.Errorf("failed to list modules: %w", err)
		}
		if !sameIDSet(modules, req.ModuleIDs) {
			return NewValidationError("module_ids", "must list every module of the course exactly once", req.ModuleIDs)
		}
		if err := s.repo.Module().Reorder(ctx, tx, courseID, req.ModuleIDs); err != nil {
			return fmt.Errorf("failed to reorder modules: %w", err)
		}
		return nil
	})
}

func sameIDSet(modules []*models.CourseModule, ids []string) bool {
	if len(modules) != len(ids) {
		return false
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	for _, m := range modules {
		if !seen[m.ID] {
			return false
		}
	}
	return true
}

// ===== LESSONS =====

func (s *courseService) CreateLesson(ctx context.Context, moduleID string, req *models.LessonRequest, userID string) (*models.CourseLesson, error) {
	s.logger.Info("Creating lesson", "module_id", moduleID, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	module, err := s.getModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.loadManaged(ctx, module.CourseID, userID, "add_lesson"); err != nil {
		return nil, err
	}

	lesson := &models.CourseLesson{
		ModuleID: moduleID,
		CourseID: module.CourseID,
	}
	if err := applyLessonRequest(lesson, req); err != nil {
		return nil, err
	}

	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		if req.OrderIndex == nil {
			next, err := s.repo.Lesson().NextOrderIndex(ctx, tx, moduleID)
			if err != nil {
				return fmt.Errorf("failed to get next lesson order: %w", err)
			}
			lesson.OrderIndex = next
		}
		if err := s.repo.Lesson().Create(ctx, tx, lesson); err != nil {
			return fmt.Errorf("failed to create lesson: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lesson, nil
}

func (s *courseService) UpdateLesson(ctx context.Context, lessonID string, req *models.LessonRequest, userID string) (*models.CourseLesson, error) {
	s.logger.Info("Updating lesson", "lesson_id", lessonID, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	lesson, err := s.getLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.loadManaged(ctx, lesson.CourseID, userID, "update_lesson"); err != nil {
		return nil, err
	}

	if err := applyLessonRequest(lesson, req); err != nil {
		return nil, err
	}
	if err := s.repo.Lesson().Update(ctx, s.db, lesson); err != nil {
		return nil, fmt.Errorf("failed to update lesson: %w", err)
	}
	return lesson, nil
}

func (s *courseService) DeleteLesson(ctx context.Context, lessonID, userID string) error {
	s.logger.Info("Deleting lesson", "lesson_id", lessonID, "user_id", userID)

	lesson, err := s.getLesson(ctx, lessonID)
	if err != nil {
		return err
	}
	if _, _, err := s.loadManaged(ctx, lesson.CourseID, userID, "delete_lesson"); err != nil {
		return err
	}
	if err := s.repo.Lesson().Delete(ctx, s.db, lessonID); err != nil {
		return fmt.Errorf("failed to delete lesson: %w", err)
	}
	return nil
}

func applyLessonRequest(lesson *models.CourseLesson, req *models.LessonRequest) error {
	lesson.Title = strings.TrimSpace(req.Title)
	lesson.Content = req.Content
	lesson.VideoPath = req.VideoPath
	lesson.DurationMinutes = req.DurationMinutes
	lesson.IsPreview = req.IsPreview
	if req.OrderIndex != nil {
		lesson.OrderIndex = *req.OrderIndex
	}
	lesson.Resources = nil
	if len(req.Resources) > 0 {
		raw, err := json.Marshal(req.Resources)
		if err != nil {
			return fmt.Errorf("failed to encode lesson resources: %w", err)
		}
		lesson.Resources = datatypes.JSON(raw)
	}
	return nil
}

func (s *courseService) LessonVideoURL(ctx context.Context, lessonID, userID string) (*VideoURLResponse, error) {
	lesson, err := s.getLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.VideoPath == nil || *lesson.VideoPath == "" || s.videos == nil {
		return nil, ErrVideoUnavailable
	}

	if !lesson.IsPreview {
		user, err := getUser(ctx, s.repo, s.db, userID)
		if err != nil {
			return nil, err
		}
		course, err := getCourse(ctx, s.repo, s.db, lesson.CourseID)
		if err != nil {
			return nil, err
		}
		access, err := hasCourseAccess(ctx, s.repo, s.db, user, course, s.now())
		if err != nil {
			return nil, err
		}
		if !access {
			return nil, NewPermissionError(userID, lessonID, "lesson", "watch", "not enrolled in course")
		}
	}

	url, err := s.videos.SignedURL(ctx, *lesson.VideoPath, VideoURLTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign video url: %w", err)
	}
	return &VideoURLResponse{URL: url, ExpiresAt: s.now().Add(VideoURLTTL)}, nil
}

// ===== HELPERS =====

// loadManaged loads the course and checks the user may manage it
func (s *courseService) loadManaged(ctx context.Context, courseID, userID, action string) (*models.User, *models.Course, error) {
	user, err := getUser(ctx, s.repo, s.db, userID)
	if err != nil {
		return nil, nil, err
	}
	course, err := getCourse(ctx, s.repo, s.db, courseID)
	if err != nil {
		return nil, nil, err
	}
	if !canManageCourse(user, course) {
		return nil, nil, NewPermissionError(userID, courseID, "course", action, "not the course instructor")
	}
	return user, course, nil
}

func (s *courseService) getModule(ctx context.Context, id string) (*models.CourseModule, error) {
	module, err := s.repo.Module().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	return module, nil
}

func (s *courseService) getLesson(ctx context.Context, id string) (*models.CourseLesson, error) {
	lesson, err := s.repo.Lesson().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrLessonNotFound
		}
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	return lesson, nil
}

const maxSlugLength = 200

func (s *courseService) uniqueSlug(ctx context.Context, tx *gorm.DB, title string) (string, error) {
	base := Slugify(title)
	if base == "" {
		base = "kurs"
	}
	for i := 1; i <= 50; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		exists, err := s.repo.Course().SlugExists(ctx, tx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8]), nil
}

var turkishFold = strings.NewReplacer(
	"ç", "c", "Ç", "c",
	"ğ", "g", "Ğ", "g",
	"ı", "i", "I", "i", "İ", "i",
	"ö", "o", "Ö", "o",
	"ş", "s", "Ş", "s",
	"ü", "u", "Ü", "u",
)

// Slugify lowercases title, folds Turkish letters to ASCII and joins words with dashes
func Slugify(title string) string {
	folded := strings.ToLower(turkishFold.Replace(title))

	var b strings.Builder
	dash := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}
