package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
)

type QuizPostgreSQL struct {
	baseRepository
}

func NewQuizPostgreSQL(db *gorm.DB) repositories.QuizRepository {
	return &QuizPostgreSQL{baseRepository{db: db}}
}

func (q *QuizPostgreSQL) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	return wrapErr("create quiz", q.getDB(tx).WithContext(ctx).Omit("Questions").Create(quiz).Error)
}

func (q *QuizPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Quiz, error) {
	var quiz models.Quiz
	if err := q.getDB(tx).WithContext(ctx).First(&quiz, "id = ?", id).Error; err != nil {
		return nil, wrapErr("get quiz", err)
	}
	return &quiz, nil
}

func (q *QuizPostgreSQL) GetWithQuestions(ctx context.Context, tx *gorm.DB, id string) (*models.Quiz, error) {
	var quiz models.Quiz
	err := q.getDB(tx).WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC, created_at ASC")
		}).
		First(&quiz, "id = ?", id).Error
	if err != nil {
		return nil, wrapErr("get quiz with questions", err)
	}
	return &quiz, nil
}

func (q *QuizPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	db := q.getDB(tx).WithContext(ctx)
	if err := db.Where("quiz_id = ?", id).Delete(&models.QuizQuestion{}).Error; err != nil {
		return wrapErr("delete quiz questions", err)
	}
	return requireAffected("delete quiz", db.Delete(&models.Quiz{}, "id = ?", id))
}

func (q *QuizPostgreSQL) AddQuestion(ctx context.Context, tx *gorm.DB, question *models.QuizQuestion) error {
	return wrapErr("add quiz question", q.getDB(tx).WithContext(ctx).Create(question).Error)
}

func (q *QuizPostgreSQL) ListByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*models.Quiz, error) {
	var quizzes []*models.Quiz
	err := q.getDB(tx).WithContext(ctx).Where("course_id = ?", courseID).Order("created_at ASC").Find(&quizzes).Error
	return quizzes, wrapErr("list quizzes", err)
}

type QuizAttemptPostgreSQL struct {
	baseRepository
}

func NewQuizAttemptPostgreSQL(db *gorm.DB) repositories.QuizAttemptRepository {
	return &QuizAttemptPostgreSQL{baseRepository{db: db}}
}

func (a *QuizAttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	return wrapErr("create quiz attempt", a.getDB(tx).WithContext(ctx).Create(attempt).Error)
}

func (a *QuizAttemptPostgreSQL) CountByUser(ctx context.Context, tx *gorm.DB, quizID, userID string) (int64, error) {
	var count int64
	err := a.getDB(tx).WithContext(ctx).Model(&models.QuizAttempt{}).
		Where("quiz_id = ? AND user_id = ?", quizID, userID).
		Count(&count).Error
	return count, wrapErr("count quiz attempts", err)
}

func (a *QuizAttemptPostgreSQL) ListByUser(ctx context.Context, tx *gorm.DB, quizID, userID string) ([]*models.QuizAttempt, error) {
	var attempts []*models.QuizAttempt
	err := a.getDB(tx).WithContext(ctx).
		Where("quiz_id = ? AND user_id = ?", quizID, userID).
		Order("attempt_number DESC").
		Find(&attempts).Error
	return attempts, wrapErr("list quiz attempts", err)
}

func (a *QuizAttemptPostgreSQL) Best(ctx context.Context, tx *gorm.DB, quizID, userID string) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	err := a.getDB(tx).WithContext(ctx).
		Where("quiz_id = ? AND user_id = ?", quizID, userID).
		Order("percentage DESC, submitted_at ASC").
		First(&attempt).Error
	if err != nil {
		return nil, wrapErr("best quiz attempt", err)
	}
	return &attempt, nil
}

func (a *QuizAttemptPostgreSQL) Summary(ctx context.Context, tx *gorm.DB, userID string) (*repositories.QuizSummary, error) {
	var summary repositories.QuizSummary
	err := a.getDB(tx).WithContext(ctx).Model(&models.QuizAttempt{}).
		Select("COALESCE(AVG(percentage), 0) AS average_percentage, COUNT(DISTINCT quiz_id) FILTER (WHERE passed) AS passed_quizzes").
		Where("user_id = ?", userID).
		Scan(&summary).Error
	if err != nil {
		return nil, wrapErr("quiz summary", err)
	}
	return &summary, nil
}
