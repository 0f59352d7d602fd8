package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/events"
	"github.com/7p-education/platform/internal/notify"
	"github.com/7p-education/platform/internal/repositories"
)

type notificationService struct {
	repo        repositories.Repository
	db          *gorm.DB
	logger      *slog.Logger
	mailer      notify.Mailer
	frontendURL string
}

func NewNotificationService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, mailer notify.Mailer, frontendURL string) NotificationService {
	return &notificationService{
		repo:        repo,
		db:          db,
		logger:      logger,
		mailer:      mailer,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// Register subscribes the email handlers on router
func (s *notificationService) Register(router *events.Router) {
	router.Handle("email.enrollment_created", events.EventEnrollmentCreated, s.HandleEnrollmentCreated)
	router.Handle("email.payment_succeeded", events.EventPaymentSucceeded, s.HandlePaymentSucceeded)
	router.Handle("email.course_completed", events.EventCourseCompleted, s.HandleCourseCompleted)
}

func (s *notificationService) HandleEnrollmentCreated(ctx context.Context, event *events.Event) error {
	var data events.EnrollmentCreatedData
	if err := event.Decode(&data); err != nil {
		s.logger.Error("Dropping enrollment event", "event_id", event.ID, "error", err)
		return nil
	}
	return s.send(ctx, event, func(email, name string) (notify.Message, error) {
		return notify.EnrollmentWelcome(email, name, data.CourseTitle, s.frontendURL+"/courses/"+data.CourseSlug)
	})
}

func (s *notificationService) HandlePaymentSucceeded(ctx context.Context, event *events.Event) error {
	var data events.PaymentSucceededData
	if err := event.Decode(&data); err != nil {
		s.logger.Error("Dropping payment event", "event_id", event.ID, "error", err)
		return nil
	}
	return s.send(ctx, event, func(email, name string) (notify.Message, error) {
		return notify.PaymentReceipt(email, name, data.CourseTitle, data.Amount, data.Currency)
	})
}

func (s *notificationService) HandleCourseCompleted(ctx context.Context, event *events.Event) error {
	var data events.CourseCompletedData
	if err := event.Decode(&data); err != nil {
		s.logger.Error("Dropping completion event", "event_id", event.ID, "error", err)
		return nil
	}
	return s.send(ctx, event, func(email, name string) (notify.Message, error) {
		return notify.CertificateIssued(email, name, data.CourseTitle, data.CertificateNumber, s.frontendURL+"/dashboard/certificates")
	})
}

// send resolves the recipient of event and mails the rendered message.
// Unknown users are acknowledged so the event is not redelivered.
func (s *notificationService) send(ctx context.Context, event *events.Event, build func(email, name string) (notify.Message, error)) error {
	if event.UserID == "" {
		s.logger.Warn("Event without user", "event_id", event.ID, "type", event.Type)
		return nil
	}
	user, err := s.repo.User().GetByID(ctx, s.db, event.UserID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			s.logger.Warn("Event for unknown user", "event_id", event.ID, "user_id", event.UserID)
			return nil
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	msg, err := build(user.Email, user.FullName)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s email: %w", event.Type, err)
	}

	s.logger.Info("Notification sent", "event_id", event.ID, "type", event.Type, "user_id", user.ID)
	return nil
}
