package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// List retrieves every question in the bank.
func (r *QuestionRepository) List(ctx context.Context) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, text, type, options, correct_answer, topic, external_form_url
		 FROM questions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.Type, &q.Options, &q.CorrectAnswer, &q.Topic, &q.ExternalFormURL); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Upsert inserts or replaces a question by id.
func (r *QuestionRepository) Upsert(ctx context.Context, q *model.Question) error {
	options := q.Options
	if options == nil {
		options = []string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO questions (id, text, type, options, correct_answer, topic, external_form_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		     text = EXCLUDED.text,
		     type = EXCLUDED.type,
		     options = EXCLUDED.options,
		     correct_answer = EXCLUDED.correct_answer,
		     topic = EXCLUDED.topic,
		     external_form_url = EXCLUDED.external_form_url,
		     updated_at = NOW()`,
		q.ID, q.Text, q.Type, options, q.CorrectAnswer, q.Topic, q.ExternalFormURL)
	return err
}
