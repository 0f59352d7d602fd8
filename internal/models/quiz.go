package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
)

type Quiz struct {
	ID               string  `json:"id" gorm:"primaryKey;size:36"`
	CourseID         string  `json:"course_id" gorm:"size:36;not null;index"`
	LessonID         *string `json:"lesson_id" gorm:"size:36;index"`
	Title            string  `json:"title" gorm:"size:200;not null"`
	Description      string  `json:"description" gorm:"type:text"`
	PassingScore     int     `json:"passing_score" gorm:"not null;default:70;check:passing_score >= 0 AND passing_score <= 100"`
	TimeLimitMinutes int     `json:"time_limit_minutes" gorm:"default:0"`
	MaxAttempts      int     `json:"max_attempts" gorm:"default:0"` // 0 means unlimited
	ShuffleQuestions bool    `json:"shuffle_questions" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Questions []QuizQuestion `json:"questions,omitempty" gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// QuizOption is one selectable answer of a choice question
type QuizOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuizQuestion stores CorrectAnswer per type:
// single_choice an option id, multiple_choice a list of option ids,
// true_false a bool, short_answer a list of accepted answers.
type QuizQuestion struct {
	ID            string         `json:"id" gorm:"primaryKey;size:36"`
	QuizID        string         `json:"quiz_id" gorm:"size:36;not null;index"`
	Type          QuestionType   `json:"type" gorm:"size:20;not null"`
	Text          string         `json:"text" gorm:"type:text;not null"`
	Options       datatypes.JSON `json:"options,omitempty" gorm:"type:jsonb"`
	CorrectAnswer datatypes.JSON `json:"correct_answer,omitempty" gorm:"type:jsonb"`
	Points        int            `json:"points" gorm:"not null;default:1;check:points >= 1"`
	Explanation   string         `json:"explanation,omitempty" gorm:"type:text"`
	OrderIndex    int            `json:"order_index" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

type QuizAttempt struct {
	ID               string         `json:"id" gorm:"primaryKey;size:36"`
	QuizID           string         `json:"quiz_id" gorm:"size:36;not null;index;uniqueIndex:idx_quiz_attempt_number"`
	UserID           string         `json:"user_id" gorm:"size:36;not null;index;uniqueIndex:idx_quiz_attempt_number"`
	AttemptNumber    int            `json:"attempt_number" gorm:"not null;uniqueIndex:idx_quiz_attempt_number"`
	Answers          datatypes.JSON `json:"answers" gorm:"type:jsonb"`
	Score            float64        `json:"score"`
	MaxScore         int            `json:"max_score"`
	Percentage       float64        `json:"percentage" gorm:"type:numeric(5,2)"`
	Passed           bool           `json:"passed"`
	StartedAt        time.Time      `json:"started_at"`
	SubmittedAt      time.Time      `json:"submitted_at"`
	TimeSpentSeconds int            `json:"time_spent_seconds"`

	CreatedAt time.Time `json:"created_at"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

func (q *Quiz) BeforeCreate(tx *gorm.DB) error         { q.ID = ensureID(q.ID); return nil }
func (q *QuizQuestion) BeforeCreate(tx *gorm.DB) error { q.ID = ensureID(q.ID); return nil }
func (a *QuizAttempt) BeforeCreate(tx *gorm.DB) error  { a.ID = ensureID(a.ID); return nil }
