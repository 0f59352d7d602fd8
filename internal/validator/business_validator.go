package validator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/7p-education/platform/internal/models"
)

// QuizGracePeriod is the slack allowed past a quiz time limit
const QuizGracePeriod = 30 * time.Second

// ValidateQuestionCreate checks that options and correct answer fit the question type
func (v *Validator) ValidateQuestionCreate(req *models.QuestionCreateRequest) error {
	var errs ValidationErrors
	if err := v.Validate(req); err != nil {
		if ve, ok := err.(ValidationErrors); ok {
			errs = append(errs, ve...)
		} else {
			return err
		}
	}
	errs = append(errs, validateQuestionAnswer(req)...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateQuestionAnswer(req *models.QuestionCreateRequest) ValidationErrors {
	var errs ValidationErrors
	optionIDs := make(map[string]bool, len(req.Options))
	for _, o := range req.Options {
		optionIDs[o.ID] = true
	}

	bad := func(msg string) {
		errs = append(errs, ValidationError{
			Field:   "correct_answer",
			Message: msg,
			Value:   string(req.CorrectAnswer),
			Rule:    "question_answer",
		})
	}

	switch req.Type {
	case models.SingleChoice:
		if len(req.Options) < 2 {
			errs = append(errs, ValidationError{Field: "options", Message: "needs at least 2 options", Rule: "question_answer"})
		}
		var id string
		if err := json.Unmarshal(req.CorrectAnswer, &id); err != nil || !optionIDs[id] {
			bad("must be the id of one option")
		}
	case models.MultipleChoice:
		if len(req.Options) < 2 {
			errs = append(errs, ValidationError{Field: "options", Message: "needs at least 2 options", Rule: "question_answer"})
		}
		var ids []string
		if err := json.Unmarshal(req.CorrectAnswer, &ids); err != nil || len(ids) == 0 {
			bad("must be a non-empty list of option ids")
			break
		}
		for _, id := range ids {
			if !optionIDs[id] {
				bad(fmt.Sprintf("unknown option id %q", id))
			}
		}
	case models.TrueFalse:
		var b bool
		if err := json.Unmarshal(req.CorrectAnswer, &b); err != nil {
			bad("must be true or false")
		}
	case models.ShortAnswer:
		var accepted []string
		if err := json.Unmarshal(req.CorrectAnswer, &accepted); err != nil || len(accepted) == 0 {
			bad("must be a non-empty list of accepted answers")
		}
	}
	return errs
}

// ValidatePublish requires content before a course goes live
func (v *Validator) ValidatePublish(course *models.Course, lessonCount int64) error {
	var errs ValidationErrors
	if course.Status == models.CourseArchived {
		errs = append(errs, ValidationError{
			Field:   "status",
			Message: "archived courses cannot be published",
			Value:   course.Status,
			Rule:    "status_transition",
		})
	}
	if lessonCount == 0 {
		errs = append(errs, ValidationError{
			Field:   "lessons",
			Message: "course must have at least one lesson before publishing",
			Value:   lessonCount,
			Rule:    "business_logic",
		})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateQuizSubmission enforces attempt limits and the time limit
func (v *Validator) ValidateQuizSubmission(quiz *models.Quiz, previousAttempts int64, startedAt, now time.Time) error {
	var errs ValidationErrors
	if quiz.MaxAttempts > 0 && previousAttempts >= int64(quiz.MaxAttempts) {
		errs = append(errs, ValidationError{
			Field:   "attempts",
			Message: "maximum attempts exceeded",
			Value:   previousAttempts,
			Rule:    "max_attempts",
		})
	}
	if startedAt.After(now.Add(time.Minute)) {
		errs = append(errs, ValidationError{
			Field:   "started_at",
			Message: "cannot be in the future",
			Value:   startedAt,
			Rule:    "business_logic",
		})
	}
	if quiz.TimeLimitMinutes > 0 {
		limit := time.Duration(quiz.TimeLimitMinutes)*time.Minute + QuizGracePeriod
		if now.Sub(startedAt) > limit {
			errs = append(errs, ValidationError{
				Field:   "started_at",
				Message: "time limit exceeded",
				Value:   now.Sub(startedAt).Round(time.Second).String(),
				Rule:    "time_limit",
			})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *Validator) registerBusinessRules() {
	v.validate.RegisterValidation("course_level", func(fl validator.FieldLevel) bool {
		switch models.CourseLevel(fl.Field().String()) {
		case models.LevelBeginner, models.LevelIntermediate, models.LevelAdvanced:
			return true
		}
		return false
	})

	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		switch models.QuestionType(fl.Field().String()) {
		case models.SingleChoice, models.MultipleChoice, models.TrueFalse, models.ShortAnswer:
			return true
		}
		return false
	})

	v.validate.RegisterValidation("user_role", func(fl validator.FieldLevel) bool {
		return models.UserRole(fl.Field().String()).Valid()
	})

	// 6 digit TOTP or 8 character backup code, dashes and spaces ignored
	v.validate.RegisterValidation("mfa_code", func(fl validator.FieldLevel) bool {
		code := NormalizeCode(fl.Field().String())
		switch len(code) {
		case 6:
			return isDigits(code)
		case 8:
			return isAlnum(code)
		}
		return false
	})
}

// NormalizeCode strips separators users type into MFA codes
func NormalizeCode(code string) string {
	r := strings.NewReplacer(" ", "", "-", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(code)))
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isAlnum(s string) bool {
	for _, c := range s {
		if !(c >= '0' && c <= '9') && !(c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
