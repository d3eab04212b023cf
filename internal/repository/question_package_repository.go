package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// QuestionPackageRepository handles question package data access.
type QuestionPackageRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionPackageRepository creates a new QuestionPackageRepository.
func NewQuestionPackageRepository(pool *pgxpool.Pool) *QuestionPackageRepository {
	return &QuestionPackageRepository{pool: pool}
}

// List retrieves every package with its ordered question ids.
func (r *QuestionPackageRepository) List(ctx context.Context) ([]model.QuestionPackage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, subject, question_ids FROM question_packages ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packages []model.QuestionPackage
	for rows.Next() {
		var p model.QuestionPackage
		if err := rows.Scan(&p.ID, &p.Title, &p.Subject, &p.QuestionIDs); err != nil {
			return nil, err
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

// Upsert inserts or replaces a package by id.
func (r *QuestionPackageRepository) Upsert(ctx context.Context, p *model.QuestionPackage) error {
	ids := p.QuestionIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO question_packages (id, title, subject, question_ids)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title,
		     subject = EXCLUDED.subject,
		     question_ids = EXCLUDED.question_ids`,
		p.ID, p.Title, p.Subject, ids)
	return err
}
