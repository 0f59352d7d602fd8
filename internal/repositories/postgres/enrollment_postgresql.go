package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
)

type EnrollmentPostgreSQL struct {
	baseRepository
}

func NewEnrollmentPostgreSQL(db *gorm.DB) repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{baseRepository{db: db}}
}

func (e *EnrollmentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	return wrapErr("create enrollment", e.getDB(tx).WithContext(ctx).Omit("Course", "User").Create(enrollment).Error)
}

func (e *EnrollmentPostgreSQL) Get(ctx context.Context, tx *gorm.DB, userID, courseID string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := e.getDB(tx).WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if err != nil {
		return nil, wrapErr("get enrollment", err)
	}
	return &enrollment, nil
}

func (e *EnrollmentPostgreSQL) Update(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	return wrapErr("update enrollment", e.getDB(tx).WithContext(ctx).Omit("Course", "User").Save(enrollment).Error)
}

func (e *EnrollmentPostgreSQL) ListByUser(ctx context.Context, tx *gorm.DB, userID string, status *models.EnrollmentStatus) ([]*models.Enrollment, error) {
	query := e.getDB(tx).WithContext(ctx).Where("user_id = ?", userID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var enrollments []*models.Enrollment
	err := query.Preload("Course").Order("COALESCE(last_accessed_at, enrolled_at) DESC").Find(&enrollments).Error
	return enrollments, wrapErr("list enrollments", err)
}

func (e *EnrollmentPostgreSQL) CountByCourse(ctx context.Context, tx *gorm.DB, courseID string) (int64, error) {
	var count int64
	err := e.getDB(tx).WithContext(ctx).Model(&models.Enrollment{}).Where("course_id = ?", courseID).Count(&count).Error
	return count, wrapErr("count enrollments", err)
}

func (e *EnrollmentPostgreSQL) ExpireOverdue(ctx context.Context, tx *gorm.DB, now time.Time) (map[string]int64, error) {
	var expired []models.Enrollment
	err := e.getDB(tx).WithContext(ctx).Model(&expired).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}, {Name: "course_id"}}}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.EnrollmentActive, now).
		Update("status", models.EnrollmentExpired).Error
	if err != nil {
		return nil, wrapErr("expire enrollments", err)
	}

	perCourse := make(map[string]int64)
	for _, row := range expired {
		perCourse[row.CourseID]++
	}
	return perCourse, nil
}

type ProgressPostgreSQL struct {
	baseRepository
}

func NewProgressPostgreSQL(db *gorm.DB) repositories.ProgressRepository {
	return &ProgressPostgreSQL{baseRepository{db: db}}
}

func (p *ProgressPostgreSQL) Get(ctx context.Context, tx *gorm.DB, userID, lessonID string) (*models.LessonProgress, error) {
	var progress models.LessonProgress
	err := p.getDB(tx).WithContext(ctx).Where("user_id = ? AND lesson_id = ?", userID, lessonID).First(&progress).Error
	if err != nil {
		return nil, wrapErr("get lesson progress", err)
	}
	return &progress, nil
}

func (p *ProgressPostgreSQL) Save(ctx context.Context, tx *gorm.DB, progress *models.LessonProgress) error {
	return wrapErr("save lesson progress", p.getDB(tx).WithContext(ctx).Save(progress).Error)
}

func (p *ProgressPostgreSQL) ListByCourse(ctx context.Context, tx *gorm.DB, userID, courseID string) ([]*models.LessonProgress, error) {
	var rows []*models.LessonProgress
	err := p.getDB(tx).WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).Find(&rows).Error
	return rows, wrapErr("list lesson progress", err)
}

func (p *ProgressPostgreSQL) CountCompleted(ctx context.Context, tx *gorm.DB, userID, courseID string) (int64, error) {
	var count int64
	err := p.getDB(tx).WithContext(ctx).Model(&models.LessonProgress{}).
		Where("user_id = ? AND course_id = ? AND completed = ?", userID, courseID, true).
		Count(&count).Error
	return count, wrapErr("count completed lessons", err)
}

func (p *ProgressPostgreSQL) Totals(ctx context.Context, tx *gorm.DB, userID string) (*repositories.UserLearningTotals, error) {
	var totals repositories.UserLearningTotals
	err := p.getDB(tx).WithContext(ctx).Model(&models.LessonProgress{}).
		Select("COUNT(*) FILTER (WHERE completed) AS completed_lessons, COALESCE(SUM(watch_seconds), 0) AS watch_seconds").
		Where("user_id = ?", userID).
		Scan(&totals).Error
	if err != nil {
		return nil, wrapErr("learning totals", err)
	}
	return &totals, nil
}

func (p *ProgressPostgreSQL) ActivityDays(ctx context.Context, tx *gorm.DB, userID string, since time.Time) ([]time.Time, error) {
	var rows []struct {
		Day time.Time
	}
	err := p.getDB(tx).WithContext(ctx).Model(&models.LessonProgress{}).
		Select("DISTINCT date_trunc('day', updated_at AT TIME ZONE 'UTC') AS day").
		Where("user_id = ? AND updated_at >= ?", userID, since).
		Order("day DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapErr("activity days", err)
	}
	days := make([]time.Time, len(rows))
	for i, r := range rows {
		days[i] = r.Day
	}
	return days, nil
}

type CertificatePostgreSQL struct {
	baseRepository
}

func NewCertificatePostgreSQL(db *gorm.DB) repositories.CertificateRepository {
	return &CertificatePostgreSQL{baseRepository{db: db}}
}

func (c *CertificatePostgreSQL) Create(ctx context.Context, tx *gorm.DB, cert *models.Certificate) error {
	return wrapErr("create certificate", c.getDB(tx).WithContext(ctx).Omit("Course").Create(cert).Error)
}

func (c *CertificatePostgreSQL) Get(ctx context.Context, tx *gorm.DB, userID, courseID string) (*models.Certificate, error) {
	var cert models.Certificate
	err := c.getDB(tx).WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&cert).Error
	if err != nil {
		return nil, wrapErr("get certificate", err)
	}
	return &cert, nil
}

func (c *CertificatePostgreSQL) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*models.Certificate, error) {
	var certs []*models.Certificate
	err := c.getDB(tx).WithContext(ctx).
		Preload("Course", func(db *gorm.DB) *gorm.DB { return db.Select("id", "title", "slug", "thumbnail_url") }).
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Find(&certs).Error
	return certs, wrapErr("list certificates", err)
}
