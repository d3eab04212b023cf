package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// ErrPackageNotFound means a native exam references a package the catalog does not have.
var ErrPackageNotFound = errors.New("question package not found")

// EligibleExams filters the catalog down to the exams student may start at now.
// It is a pure function: the output depends only on its inputs and catalog
// order is preserved.
func EligibleExams(exams []model.Exam, results []model.Result, student model.User, now time.Time) []model.Exam {
	name := student.DisplayName()
	done := make(map[string]struct{}, len(results))
	for i := range results {
		if results[i].StudentName == name {
			done[results[i].ExamID] = struct{}{}
		}
	}

	eligible := make([]model.Exam, 0, len(exams))
	for i := range exams {
		e := &exams[i]
		if !e.IsActive {
			continue
		}
		if !e.OpenTo(student.ClassName) {
			continue
		}
		if e.ScheduledStart != nil && now.Before(*e.ScheduledStart) {
			continue
		}
		if _, ok := done[e.ID]; ok {
			continue
		}
		eligible = append(eligible, *e)
	}
	return eligible
}

// SnapshotQuestions resolves a package against the bank in package order.
// Ids missing from the bank are skipped. The returned questions are copies,
// so later bank edits do not reach an attempt that holds them.
func SnapshotQuestions(packages []model.QuestionPackage, bank []model.Question, packageID string) ([]model.Question, error) {
	var pkg *model.QuestionPackage
	for i := range packages {
		if packages[i].ID == packageID {
			pkg = &packages[i]
			break
		}
	}
	if pkg == nil {
		return nil, fmt.Errorf("%w: %q", ErrPackageNotFound, packageID)
	}

	byID := make(map[string]*model.Question, len(bank))
	for i := range bank {
		byID[bank[i].ID] = &bank[i]
	}

	snapshot := make([]model.Question, 0, len(pkg.QuestionIDs))
	for _, id := range pkg.QuestionIDs {
		q, ok := byID[id]
		if !ok {
			continue
		}
		cp := *q
		cp.Options = append([]string(nil), q.Options...)
		snapshot = append(snapshot, cp)
	}
	return snapshot, nil
}

// LobbyService reads the catalog on behalf of student sessions.
type LobbyService struct {
	catalog CatalogReader
	log     zerolog.Logger
}

// NewLobbyService creates a new LobbyService.
func NewLobbyService(catalog CatalogReader, log zerolog.Logger) *LobbyService {
	return &LobbyService{
		catalog: catalog,
		log:     logger.Component(log, "lobby"),
	}
}

// Discover fetches exams and results concurrently and returns the eligible subset.
func (s *LobbyService) Discover(ctx context.Context, student model.User, now time.Time) ([]model.Exam, error) {
	var (
		exams   []model.Exam
		results []model.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exams, err = s.catalog.ListExams(gctx)
		if err != nil {
			return fmt.Errorf("list exams: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		results, err = s.catalog.ListResults(gctx)
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	eligible := EligibleExams(exams, results, student, now)
	s.log.Debug().
		Str("student", student.DisplayName()).
		Int("catalog", len(exams)).
		Int("eligible", len(eligible)).
		Msg("Lobby discovered")
	return eligible, nil
}

// LoadQuestions builds the question snapshot for a native exam. An exam
// without a package reference yields ErrPackageNotFound.
func (s *LobbyService) LoadQuestions(ctx context.Context, exam model.Exam) ([]model.Question, error) {
	if exam.Mode != model.ExamModeNative {
		return nil, nil
	}
	if exam.PackageID == "" {
		return nil, fmt.Errorf("%w: exam %s has none", ErrPackageNotFound, exam.ID)
	}

	var (
		packages []model.QuestionPackage
		bank     []model.Question
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		packages, err = s.catalog.ListQuestionPackages(gctx)
		if err != nil {
			return fmt.Errorf("list packages: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		bank, err = s.catalog.ListQuestions(gctx)
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return SnapshotQuestions(packages, bank, exam.PackageID)
}
