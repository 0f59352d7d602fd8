package services

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/7p-education/platform/internal/models"
)

// ===== GRADING UTILITIES =====

// gradeQuestion returns the earned fraction of the question's points (0..1)
// and whether the answer is fully correct. Malformed answers earn nothing.
func gradeQuestion(question *models.QuizQuestion, submitted json.RawMessage) (float64, bool) {
	if len(submitted) == 0 || string(submitted) == "null" {
		return 0, false
	}

	correct := json.RawMessage(question.CorrectAnswer)
	switch question.Type {
	case models.SingleChoice:
		return gradeSingleChoice(correct, submitted)
	case models.MultipleChoice:
		return gradeMultipleChoice(correct, submitted)
	case models.TrueFalse:
		return gradeTrueFalse(correct, submitted)
	case models.ShortAnswer:
		return gradeShortAnswer(correct, submitted)
	default:
		return 0, false
	}
}

func gradeSingleChoice(correctAnswer, submitted json.RawMessage) (float64, bool) {
	var correct, answer string
	if err := json.Unmarshal(correctAnswer, &correct); err != nil {
		return 0, false
	}
	if err := json.Unmarshal(submitted, &answer); err != nil {
		return 0, false
	}
	if answer == correct {
		return 1, true
	}
	return 0, false
}

// gradeMultipleChoice gives partial credit: max(0, correct picks - wrong picks) / total correct
func gradeMultipleChoice(correctAnswer, submitted json.RawMessage) (float64, bool) {
	var correctAnswers []string
	if err := json.Unmarshal(correctAnswer, &correctAnswers); err != nil || len(correctAnswers) == 0 {
		return 0, false
	}

	var answer []string
	if err := json.Unmarshal(submitted, &answer); err != nil {
		var single string
		if err := json.Unmarshal(submitted, &single); err != nil {
			return 0, false
		}
		answer = []string{single}
	}

	correctSet := make(map[string]bool, len(correctAnswers))
	for _, c := range correctAnswers {
		correctSet[c] = true
	}

	picked := make(map[string]bool, len(answer))
	right, wrong := 0, 0
	for _, a := range answer {
		if picked[a] {
			continue
		}
		picked[a] = true
		if correctSet[a] {
			right++
		} else {
			wrong++
		}
	}

	score := math.Max(0, float64(right-wrong)/float64(len(correctSet)))
	return score, right == len(correctSet) && wrong == 0
}

func gradeTrueFalse(correctAnswer, submitted json.RawMessage) (float64, bool) {
	var correct, answer bool
	if err := json.Unmarshal(correctAnswer, &correct); err != nil {
		return 0, false
	}
	if err := json.Unmarshal(submitted, &answer); err != nil {
		return 0, false
	}
	if answer == correct {
		return 1, true
	}
	return 0, false
}

func gradeShortAnswer(correctAnswer, submitted json.RawMessage) (float64, bool) {
	var accepted []string
	if err := json.Unmarshal(correctAnswer, &accepted); err != nil {
		return 0, false
	}
	var answer string
	if err := json.Unmarshal(submitted, &answer); err != nil {
		return 0, false
	}

	for _, a := range accepted {
		if compareStrings(answer, a, false) {
			return 1, true
		}
	}
	return 0, false
}

func compareStrings(s1, s2 string, caseSensitive bool) bool {
	s1 = strings.TrimSpace(s1)
	s2 = strings.TrimSpace(s2)
	if caseSensitive {
		return s1 == s2
	}
	return strings.EqualFold(s1, s2)
}

// gradedAttempt is the scored outcome of one submission
type gradedAttempt struct {
	Score      float64
	MaxScore   int
	Percentage float64
	Passed     bool
	Results    []QuestionResult
}

func gradeAttempt(quiz *models.Quiz, answers map[string]json.RawMessage) gradedAttempt {
	out := gradedAttempt{Results: make([]QuestionResult, 0, len(quiz.Questions))}

	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		fraction, correct := gradeQuestion(q, answers[q.ID])
		earned := roundFloat(fraction*float64(q.Points), 2)

		out.Score += earned
		out.MaxScore += q.Points
		out.Results = append(out.Results, QuestionResult{
			QuestionID:     q.ID,
			Correct:        correct,
			PointsEarned:   earned,
			PointsPossible: q.Points,
			Submitted:      answers[q.ID],
			CorrectAnswer:  json.RawMessage(q.CorrectAnswer),
			Explanation:    q.Explanation,
		})
	}

	out.Score = roundFloat(out.Score, 2)
	if out.MaxScore > 0 {
		out.Percentage = roundFloat(out.Score/float64(out.MaxScore)*100, 2)
	}
	out.Passed = out.Percentage >= float64(quiz.PassingScore)
	return out
}
