package services

import (
	"errors"
	"fmt"

	"github.com/7p-education/platform/internal/validator"
)

// Sentinel errors returned by the service layer
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrCourseNotFound      = errors.New("course not found")
	ErrModuleNotFound      = errors.New("module not found")
	ErrLessonNotFound      = errors.New("lesson not found")
	ErrEnrollmentNotFound  = errors.New("enrollment not found")
	ErrReviewNotFound      = errors.New("review not found")
	ErrQuizNotFound        = errors.New("quiz not found")
	ErrAttemptNotFound     = errors.New("quiz attempt not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrCertificateNotFound = errors.New("certificate not found")

	ErrUnauthenticated    = errors.New("authentication required")
	ErrNotEnrolled        = errors.New("user is not enrolled in this course")
	ErrAlreadyEnrolled    = errors.New("user is already enrolled in this course")
	ErrCourseNotPublished = errors.New("course is not published")
	ErrPaymentRequired    = errors.New("payment required for this course")
	ErrPaymentsDisabled   = errors.New("payments are disabled")
	ErrConflict           = errors.New("resource state conflict")
	ErrTooManyAttempts    = errors.New("too many attempts")

	ErrMFANotEnabled     = errors.New("mfa is not enabled")
	ErrMFAAlreadyEnabled = errors.New("mfa is already enabled")
	ErrMFASetupMissing   = errors.New("mfa setup has not been started")
	ErrInvalidMFACode    = errors.New("invalid mfa code")

	ErrVideoUnavailable = errors.New("lesson has no video")
	ErrSSONotConfigured = errors.New("google sign-in is not configured")
)

// ValidationError and ValidationErrors are shared with the validator package
// so handlers only need one type switch.
type (
	ValidationError  = validator.ValidationError
	ValidationErrors = validator.ValidationErrors
)

func NewValidationError(field, message string, value interface{}) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message, Value: value, Rule: "business_logic"}}
}

// PermissionError reports an action the user is not allowed to perform
type PermissionError struct {
	UserID     string
	ResourceID string
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %s: %s",
		e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID, resourceID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// BusinessRuleError is a request that is well formed but violates a domain rule.
// Err, when set, is one of the sentinels above and drives the HTTP status.
type BusinessRuleError struct {
	Rule    string
	Message string
	Err     error
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func (e *BusinessRuleError) Unwrap() error {
	return e.Err
}

func NewBusinessRuleError(rule, message string, err error) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message, Err: err}
}

// IsNotFound reports whether err is one of the not-found sentinels
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrUserNotFound, ErrCourseNotFound, ErrModuleNotFound, ErrLessonNotFound,
		ErrEnrollmentNotFound, ErrReviewNotFound, ErrQuizNotFound, ErrAttemptNotFound,
		ErrPaymentNotFound, ErrCertificateNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func IsValidationError(err error) bool {
	var ve validator.ValidationErrors
	return errors.As(err, &ve)
}

func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
