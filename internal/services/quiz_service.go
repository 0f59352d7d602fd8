package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/events"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
	"github.com/7p-education/platform/internal/validator"
)

type quizService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	now       func() time.Time
}

func NewQuizService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) QuizService {
	return &quizService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		now:       time.Now,
	}
}

// ===== TAKING QUIZZES =====

func (s *quizService) GetForTaking(ctx context.Context, userID, quizID string) (*QuizForTaking, error) {
	quiz, err := s.loadForLearner(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}

	used, err := s.repo.QuizAttempt().CountByUser(ctx, s.db, quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	resp := &QuizForTaking{
		ID:               quiz.ID,
		CourseID:         quiz.CourseID,
		Title:            quiz.Title,
		Description:      quiz.Description,
		PassingScore:     quiz.PassingScore,
		TimeLimitMinutes: quiz.TimeLimitMinutes,
		MaxAttempts:      quiz.MaxAttempts,
		AttemptsUsed:     used,
		Questions:        make([]QuestionForTaking, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		item := QuestionForTaking{
			ID:     q.ID,
			Type:   q.Type,
			Text:   q.Text,
			Points: q.Points,
		}
		if len(q.Options) > 0 {
			if err := json.Unmarshal(q.Options, &item.Options); err != nil {
				return nil, fmt.Errorf("failed to decode options of question %s: %w", q.ID, err)
			}
		}
		resp.Questions = append(resp.Questions, item)
	}

	if quiz.ShuffleQuestions {
		rand.Shuffle(len(resp.Questions), func(i, j int) {
			resp.Questions[i], resp.Questions[j] = resp.Questions[j], resp.Questions[i]
		})
	}
	return resp, nil
}

func (s *quizService) Submit(ctx context.Context, userID, quizID string, req *models.SubmitQuizRequest) (*QuizResult, error) {
	s.logger.Info("Submitting quiz", "user_id", userID, "quiz_id", quizID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	quiz, err := s.loadForLearner(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	graded := gradeAttempt(quiz, req.Answers)
	answers, err := json.Marshal(req.Answers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answers: %w", err)
	}

	var attempt *models.QuizAttempt
	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		previous, err := s.repo.QuizAttempt().CountByUser(ctx, tx, quizID, userID)
		if err != nil {
			return fmt.Errorf("failed to count attempts: %w", err)
		}
		if err := s.validator.ValidateQuizSubmission(quiz, previous, req.StartedAt, now); err != nil {
			return err
		}

		attempt = &models.QuizAttempt{
			QuizID:           quizID,
			UserID:           userID,
			AttemptNumber:    int(previous) + 1,
			Answers:          datatypes.JSON(answers),
			Score:            graded.Score,
			MaxScore:         graded.MaxScore,
			Percentage:       graded.Percentage,
			Passed:           graded.Passed,
			StartedAt:        req.StartedAt,
			SubmittedAt:      now,
			TimeSpentSeconds: int(now.Sub(req.StartedAt).Seconds()),
		}
		if attempt.TimeSpentSeconds < 0 {
			attempt.TimeSpentSeconds = 0
		}
		if err := s.repo.QuizAttempt().Create(ctx, tx, attempt); err != nil {
			if repositories.IsDuplicateError(err) {
				return s.concurrentAttempt(quiz, previous+1, req.StartedAt, now)
			}
			return fmt.Errorf("failed to save attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.publisher, s.logger, events.EventQuizCompleted, userID, events.QuizCompletedData{
		QuizID:        quizID,
		AttemptID:     attempt.ID,
		CourseID:      quiz.CourseID,
		AttemptNumber: attempt.AttemptNumber,
		Percentage:    attempt.Percentage,
		Passed:        attempt.Passed,
	})

	s.logger.Info("Quiz graded", "quiz_id", quizID, "attempt_id", attempt.ID, "percentage", attempt.Percentage, "passed", attempt.Passed)
	return &QuizResult{Attempt: attempt, Results: graded.Results}, nil
}

func (s *quizService) Attempts(ctx context.Context, userID, quizID string) ([]*models.QuizAttempt, error) {
	if _, err := s.getQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	attempts, err := s.repo.QuizAttempt().ListByUser(ctx, s.db, quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

func (s *quizService) BestAttempt(ctx context.Context, userID, quizID string) (*models.QuizAttempt, error) {
	attempt, err := s.repo.QuizAttempt().Best(ctx, s.db, quizID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get best attempt: %w", err)
	}
	return attempt, nil
}

// ===== AUTHORING =====

func (s *quizService) Create(ctx context.Context, courseID string, req *models.QuizCreateRequest, userID string) (*models.Quiz, error) {
	s.logger.Info("Creating quiz", "course_id", courseID, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.checkManage(ctx, courseID, userID, "create_quiz"); err != nil {
		return nil, err
	}

	if req.LessonID != nil {
		lesson, err := s.repo.Lesson().GetByID(ctx, s.db, *req.LessonID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return nil, ErrLessonNotFound
			}
			return nil, fmt.Errorf("failed to get lesson: %w", err)
		}
		if lesson.CourseID != courseID {
			return nil, NewValidationError("lesson_id", "lesson belongs to another course", *req.LessonID)
		}
	}

	quiz := &models.Quiz{
		CourseID:         courseID,
		LessonID:         req.LessonID,
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		PassingScore:     req.PassingScore,
		TimeLimitMinutes: req.TimeLimitMinutes,
		MaxAttempts:      req.MaxAttempts,
		ShuffleQuestions: req.ShuffleQuestions,
	}
	if err := s.repo.Quiz().Create(ctx, s.db, quiz); err != nil {
		return nil, fmt.Errorf("failed to create quiz: %w", err)
	}

	s.logger.Info("Quiz created successfully", "quiz_id", quiz.ID)
	return quiz, nil
}

func (s *quizService) AddQuestion(ctx context.Context, quizID string, req *models.QuestionCreateRequest, userID string) (*models.QuizQuestion, error) {
	s.logger.Info("Adding quiz question", "quiz_id", quizID, "user_id", userID, "type", req.Type)

	if err := s.validator.ValidateQuestionCreate(req); err != nil {
		return nil, err
	}
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.checkManage(ctx, quiz.CourseID, userID, "add_question"); err != nil {
		return nil, err
	}

	question := &models.QuizQuestion{
		QuizID:        quizID,
		Type:          req.Type,
		Text:          strings.TrimSpace(req.Text),
		CorrectAnswer: datatypes.JSON(req.CorrectAnswer),
		Points:        req.Points,
		Explanation:   req.Explanation,
		OrderIndex:    req.OrderIndex,
	}
	if question.Points == 0 {
		question.Points = 1
	}
	if len(req.Options) > 0 {
		raw, err := json.Marshal(req.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to encode options: %w", err)
		}
		question.Options = datatypes.JSON(raw)
	}

	if err := s.repo.Quiz().AddQuestion(ctx, s.db, question); err != nil {
		return nil, fmt.Errorf("failed to add question: %w", err)
	}
	return question, nil
}

func (s *quizService) Delete(ctx context.Context, quizID, userID string) error {
	s.logger.Info("Deleting quiz", "quiz_id", quizID, "user_id", userID)

	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if err := s.checkManage(ctx, quiz.CourseID, userID, "delete_quiz"); err != nil {
		return err
	}
	if err := s.repo.Quiz().Delete(ctx, s.db, quizID); err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}
	return nil
}

// ===== HELPERS =====

// concurrentAttempt explains a lost race on (quiz_id, user_id, attempt_number):
// another submission took the number, so judge the limit as if it counted.
func (s *quizService) concurrentAttempt(quiz *models.Quiz, taken int64, startedAt, now time.Time) error {
	if err := s.validator.ValidateQuizSubmission(quiz, taken, startedAt, now); err != nil {
		return err
	}
	return NewBusinessRuleError("concurrent_attempt", "another attempt was submitted at the same time; try again", ErrConflict)
}

func (s *quizService) getQuiz(ctx context.Context, quizID string) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, s.db, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

// loadForLearner loads the quiz with questions once course access is confirmed
func (s *quizService) loadForLearner(ctx context.Context, userID, quizID string) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetWithQuestions(ctx, s.db, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	user, err := getUser(ctx, s.repo, s.db, userID)
	if err != nil {
		return nil, err
	}
	course, err := getCourse(ctx, s.repo, s.db, quiz.CourseID)
	if err != nil {
		return nil, err
	}
	access, err := hasCourseAccess(ctx, s.repo, s.db, user, course, s.now())
	if err != nil {
		return nil, err
	}
	if !access {
		return nil, ErrNotEnrolled
	}
	return quiz, nil
}

func (s *quizService) checkManage(ctx context.Context, courseID, userID, action string) error {
	user, err := getUser(ctx, s.repo, s.db, userID)
	if err != nil {
		return err
	}
	course, err := getCourse(ctx, s.repo, s.db, courseID)
	if err != nil {
		return err
	}
	if !canManageCourse(user, course) {
		return NewPermissionError(userID, courseID, "course", action, "not the course instructor")
	}
	return nil
}
