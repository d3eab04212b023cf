package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// PostgresStore exposes the catalog tables as one store for the exam engine.
type PostgresStore struct {
	Exams     *ExamRepository
	Questions *QuestionRepository
	Packages  *QuestionPackageRepository
	Classes   *ClassRepository
	Results   *ResultRepository
}

// NewPostgresStore builds the repositories on a shared pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		Exams:     NewExamRepository(pool),
		Questions: NewQuestionRepository(pool),
		Packages:  NewQuestionPackageRepository(pool),
		Classes:   NewClassRepository(pool),
		Results:   NewResultRepository(pool),
	}
}

func (s *PostgresStore) ListExams(ctx context.Context) ([]model.Exam, error) {
	return s.Exams.List(ctx)
}

func (s *PostgresStore) ListResults(ctx context.Context) ([]model.Result, error) {
	return s.Results.List(ctx)
}

func (s *PostgresStore) ListQuestions(ctx context.Context) ([]model.Question, error) {
	return s.Questions.List(ctx)
}

func (s *PostgresStore) ListQuestionPackages(ctx context.Context) ([]model.QuestionPackage, error) {
	return s.Packages.List(ctx)
}

func (s *PostgresStore) ListClasses(ctx context.Context) ([]model.Class, error) {
	return s.Classes.List(ctx)
}

// SubmitResult upserts the result; any database error is returned as is.
func (s *PostgresStore) SubmitResult(ctx context.Context, res model.Result) error {
	if err := s.Results.Upsert(ctx, &res); err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateScore(ctx context.Context, key model.ResultKey, score int) error {
	return s.Results.UpdateScore(ctx, key, score)
}

// Import upserts a whole catalog file in dependency order.
func (s *PostgresStore) Import(ctx context.Context, f *CatalogFile) error {
	for i := range f.Classes {
		if err := s.Classes.Upsert(ctx, &f.Classes[i]); err != nil {
			return fmt.Errorf("class %s: %w", f.Classes[i].ID, err)
		}
	}
	for i := range f.Questions {
		if err := s.Questions.Upsert(ctx, &f.Questions[i]); err != nil {
			return fmt.Errorf("question %s: %w", f.Questions[i].ID, err)
		}
	}
	for i := range f.Packages {
		if err := s.Packages.Upsert(ctx, &f.Packages[i]); err != nil {
			return fmt.Errorf("package %s: %w", f.Packages[i].ID, err)
		}
	}
	for i := range f.Exams {
		if err := s.Exams.Upsert(ctx, &f.Exams[i]); err != nil {
			return fmt.Errorf("exam %s: %w", f.Exams[i].ID, err)
		}
	}
	for i := range f.Results {
		if err := s.Results.Upsert(ctx, &f.Results[i]); err != nil {
			return fmt.Errorf("result %s/%s: %w", f.Results[i].ExamID, f.Results[i].StudentName, err)
		}
	}
	return nil
}
