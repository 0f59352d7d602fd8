package validator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7p-education/platform/internal/models"
)

func TestValidateReportsJSONFieldNames(t *testing.T) {
	v := New()

	err := v.Validate(&models.ReviewRequest{Rating: 6})
	require.Error(t, err)

	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve, 1)
	assert.Equal(t, "rating", ve[0].Field)
	assert.Equal(t, "max", ve[0].Rule)
}

func TestMFACodeRule(t *testing.T) {
	v := New()
	tests := []struct {
		code  string
		valid bool
	}{
		{"123456", true},
		{"123 456", true},
		{"abcd-1234", true},
		{"12345", false},
		{"12345a", false},
		{"ABCD!234", false},
	}
	for _, tt := range tests {
		err := v.Validate(&models.MFACodeRequest{Code: tt.code})
		if tt.valid {
			assert.NoError(t, err, tt.code)
		} else {
			assert.Error(t, err, tt.code)
		}
	}
}

func TestValidateQuestionCreate(t *testing.T) {
	v := New()
	options := []models.QuizOption{{ID: "a", Text: "Go"}, {ID: "b", Text: "Rust"}, {ID: "c", Text: "Zig"}}

	tests := []struct {
		name    string
		req     models.QuestionCreateRequest
		wantErr bool
	}{
		{
			name: "single choice ok",
			req:  models.QuestionCreateRequest{Type: models.SingleChoice, Text: "?", Options: options, CorrectAnswer: json.RawMessage(`"a"`)},
		},
		{
			name:    "single choice unknown option",
			req:     models.QuestionCreateRequest{Type: models.SingleChoice, Text: "?", Options: options, CorrectAnswer: json.RawMessage(`"z"`)},
			wantErr: true,
		},
		{
			name: "multiple choice ok",
			req:  models.QuestionCreateRequest{Type: models.MultipleChoice, Text: "?", Options: options, CorrectAnswer: json.RawMessage(`["a","c"]`)},
		},
		{
			name:    "multiple choice empty",
			req:     models.QuestionCreateRequest{Type: models.MultipleChoice, Text: "?", Options: options, CorrectAnswer: json.RawMessage(`[]`)},
			wantErr: true,
		},
		{
			name: "true false ok",
			req:  models.QuestionCreateRequest{Type: models.TrueFalse, Text: "?", CorrectAnswer: json.RawMessage(`false`)},
		},
		{
			name:    "true false wrong type",
			req:     models.QuestionCreateRequest{Type: models.TrueFalse, Text: "?", CorrectAnswer: json.RawMessage(`"yes"`)},
			wantErr: true,
		},
		{
			name: "short answer ok",
			req:  models.QuestionCreateRequest{Type: models.ShortAnswer, Text: "?", CorrectAnswer: json.RawMessage(`["Ankara"]`)},
		},
		{
			name:    "unknown type",
			req:     models.QuestionCreateRequest{Type: "essay", Text: "?", CorrectAnswer: json.RawMessage(`"x"`)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateQuestionCreate(&tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateQuizSubmission(t *testing.T) {
	v := New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	quiz := &models.Quiz{MaxAttempts: 2, TimeLimitMinutes: 10}

	assert.NoError(t, v.ValidateQuizSubmission(quiz, 1, now.Add(-10*time.Minute-20*time.Second), now))
	assert.Error(t, v.ValidateQuizSubmission(quiz, 1, now.Add(-10*time.Minute-31*time.Second), now))
	assert.Error(t, v.ValidateQuizSubmission(quiz, 2, now.Add(-time.Minute), now))

	unlimited := &models.Quiz{}
	assert.NoError(t, v.ValidateQuizSubmission(unlimited, 500, now.Add(-5*time.Hour), now))
}

func TestValidatePublish(t *testing.T) {
	v := New()
	assert.NoError(t, v.ValidatePublish(&models.Course{Status: models.CourseDraft}, 3))
	assert.Error(t, v.ValidatePublish(&models.Course{Status: models.CourseDraft}, 0))
	assert.Error(t, v.ValidatePublish(&models.Course{Status: models.CourseArchived}, 3))
}
