package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// ResultRepository handles exam result data access.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// List retrieves every result.
func (r *ResultRepository) List(ctx context.Context) ([]model.Result, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, student_name, class_name, completed_at, status, score, answers
		 FROM results ORDER BY completed_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Result
	for rows.Next() {
		var res model.Result
		if err := rows.Scan(&res.ID, &res.ExamID, &res.StudentName, &res.ClassName,
			&res.CompletedAt, &res.Status, &res.Score, &res.Answers); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// Upsert stores a result keyed on (exam_id, student_name). A resubmission
// overwrites the previous row and keeps its id.
func (r *ResultRepository) Upsert(ctx context.Context, res *model.Result) error {
	answers := res.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO results (id, exam_id, student_name, class_name, completed_at, status, score, answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (exam_id, student_name) DO UPDATE SET
		     class_name = EXCLUDED.class_name,
		     completed_at = EXCLUDED.completed_at,
		     status = EXCLUDED.status,
		     score = EXCLUDED.score,
		     answers = EXCLUDED.answers
		 RETURNING id`,
		res.ID, res.ExamID, res.StudentName, res.ClassName, res.CompletedAt, res.Status, res.Score, answers,
	).Scan(&res.ID)
}

// UpdateScore overwrites the score of an existing result.
func (r *ResultRepository) UpdateScore(ctx context.Context, key model.ResultKey, score int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE results SET score = $3 WHERE exam_id = $1 AND student_name = $2`,
		key.ExamID, key.StudentName, score)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrResultNotFound
	}
	return nil
}
