package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// List retrieves the whole catalog in creation order.
func (r *ExamRepository) List(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, mode, external_form_url, package_id, token,
		        duration_minutes, is_active, eligible_classes, scheduled_start, created_at
		 FROM exams ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Mode, &e.ExternalFormURL, &e.PackageID, &e.Token,
			&e.DurationMinutes, &e.IsActive, &e.EligibleClasses, &e.ScheduledStart, &e.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Upsert inserts or replaces an exam by id. Tokens are stored upper-case.
func (r *ExamRepository) Upsert(ctx context.Context, e *model.Exam) error {
	classes := e.EligibleClasses
	if classes == nil {
		classes = []string{}
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (id, title, mode, external_form_url, package_id, token,
		                    duration_minutes, is_active, eligible_classes, scheduled_start)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title,
		     mode = EXCLUDED.mode,
		     external_form_url = EXCLUDED.external_form_url,
		     package_id = EXCLUDED.package_id,
		     token = EXCLUDED.token,
		     duration_minutes = EXCLUDED.duration_minutes,
		     is_active = EXCLUDED.is_active,
		     eligible_classes = EXCLUDED.eligible_classes,
		     scheduled_start = EXCLUDED.scheduled_start
		 RETURNING created_at`,
		e.ID, e.Title, e.Mode, e.ExternalFormURL, e.PackageID, model.NormalizeToken(e.Token),
		e.DurationMinutes, e.IsActive, classes, e.ScheduledStart,
	).Scan(&e.CreatedAt)
}
