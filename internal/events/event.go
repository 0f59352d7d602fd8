package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventEnrollmentCreated EventType = "enrollment.created"
	EventPaymentSucceeded  EventType = "payment.succeeded"
	EventPaymentRefunded   EventType = "payment.refunded"
	EventCourseCompleted   EventType = "course.completed"
	EventQuizCompleted     EventType = "quiz.completed"
)

const (
	EventSource  = "7p-education"
	EventVersion = "1.0"
)

// Event is the envelope every domain event travels in
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    string          `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

func NewEvent(eventType EventType, userID string, data interface{}) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Data:      raw,
	}, nil
}

// Decode unmarshals the payload into dest
func (e *Event) Decode(dest interface{}) error {
	if err := json.Unmarshal(e.Data, dest); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// ===== PAYLOADS =====

type EnrollmentCreatedData struct {
	EnrollmentID string `json:"enrollment_id"`
	CourseID     string `json:"course_id"`
	CourseTitle  string `json:"course_title"`
	CourseSlug   string `json:"course_slug"`
	Free         bool   `json:"free"`
}

type PaymentSucceededData struct {
	PaymentID   string  `json:"payment_id"`
	CourseID    string  `json:"course_id"`
	CourseTitle string  `json:"course_title"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

type PaymentRefundedData struct {
	PaymentID string  `json:"payment_id"`
	CourseID  string  `json:"course_id"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason,omitempty"`
}

type CourseCompletedData struct {
	CourseID          string `json:"course_id"`
	CourseTitle       string `json:"course_title"`
	CertificateNumber string `json:"certificate_number"`
}

type QuizCompletedData struct {
	QuizID        string  `json:"quiz_id"`
	AttemptID     string  `json:"attempt_id"`
	CourseID      string  `json:"course_id"`
	AttemptNumber int     `json:"attempt_number"`
	Percentage    float64 `json:"percentage"`
	Passed        bool    `json:"passed"`
}
