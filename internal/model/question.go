package model

import (
	"errors"
	"strconv"
)

// QuestionType is the kind of answer a question expects.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeEssay          QuestionType = "ESSAY"
	QuestionTypeExternalForm   QuestionType = "EXTERNAL_FORM"
)

var (
	ErrQuestionOptions = errors.New("multiple-choice question needs at least two options")
	ErrQuestionAnswer  = errors.New("correct answer index out of range")
)

// Question represents a single question in the bank.
type Question struct {
	ID              string       `json:"id" yaml:"id"`
	Text            string       `json:"text" yaml:"text"`
	Type            QuestionType `json:"type" yaml:"type"`
	Options         []string     `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectAnswer   string       `json:"correct_answer,omitempty" yaml:"correct_answer,omitempty"`
	Topic           string       `json:"topic,omitempty" yaml:"topic,omitempty"`
	ExternalFormURL string       `json:"external_form_url,omitempty" yaml:"external_form_url,omitempty"`
}

// Validate enforces the multiple-choice shape; other types are free-form.
func (q *Question) Validate() error {
	if q.Type != QuestionTypeMultipleChoice {
		return nil
	}
	if len(q.Options) < 2 {
		return ErrQuestionOptions
	}
	idx, err := strconv.Atoi(q.CorrectAnswer)
	if err != nil || idx < 0 || idx >= len(q.Options) {
		return ErrQuestionAnswer
	}
	return nil
}

// QuestionForStudent is a question without its correct answer.
type QuestionForStudent struct {
	ID              string       `json:"id"`
	Text            string       `json:"text"`
	Type            QuestionType `json:"type"`
	Options         []string     `json:"options,omitempty"`
	Topic           string       `json:"topic,omitempty"`
	ExternalFormURL string       `json:"external_form_url,omitempty"`
}

// ForStudent returns the question with the answer key removed.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:              q.ID,
		Text:            q.Text,
		Type:            q.Type,
		Options:         append([]string(nil), q.Options...),
		Topic:           q.Topic,
		ExternalFormURL: q.ExternalFormURL,
	}
}

// QuestionPackage is an ordered selection of bank questions used by native exams.
type QuestionPackage struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Subject     string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	QuestionIDs []string `json:"question_ids" yaml:"question_ids"`
}
