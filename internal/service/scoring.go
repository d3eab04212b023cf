package service

import (
	"math"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// Score grades an attempt. Only multiple-choice questions can earn points,
// but every snapshotted question counts toward the denominator, so an exam
// that mixes in essays cannot reach 100 automatically. External-form exams
// are graded out-of-band and always score 0 here.
func Score(mode model.ExamMode, questions []model.Question, answers *AnswerStore) int {
	if mode != model.ExamModeNative || len(questions) == 0 {
		return 0
	}

	correct := 0
	for i := range questions {
		q := &questions[i]
		if q.Type != model.QuestionTypeMultipleChoice {
			continue
		}
		if answers == nil {
			break
		}
		if a, ok := answers.Get(q.ID); ok && a == q.CorrectAnswer {
			correct++
		}
	}

	return int(math.Round(float64(correct) / float64(len(questions)) * 100))
}
