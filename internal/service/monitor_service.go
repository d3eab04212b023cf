package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// ErrScoreSyncNative is returned when a sync targets a natively graded exam.
var ErrScoreSyncNative = errors.New("scores of native exams are computed at submission")

// ErrExamNotFound is returned when an exam id is not in the catalog.
var ErrExamNotFound = errors.New("exam not found")

// PresenceReader answers who has sent a heartbeat recently.
type PresenceReader interface {
	ListOnline(ctx context.Context, since time.Time) ([]model.OnlineStudent, error)
}

// ScoreUpdater overwrites the score of an existing result.
type ScoreUpdater interface {
	UpdateScore(ctx context.Context, key model.ResultKey, score int) error
}

// MonitorService serves the admin-facing views: global stats, who is online,
// and the out-of-band score sync for external-form exams.
type MonitorService struct {
	catalog  CatalogReader
	presence PresenceReader
	scores   ScoreUpdater
	window   time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewMonitorService creates a new MonitorService. window is how recent a
// heartbeat must be for a student to count as online.
func NewMonitorService(catalog CatalogReader, presence PresenceReader, scores ScoreUpdater, window time.Duration, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		catalog:  catalog,
		presence: presence,
		scores:   scores,
		window:   window,
		now:      time.Now,
		log:      logger.Component(log, "monitor"),
	}
}

// OnlineStudents lists students whose last heartbeat is inside the window.
func (s *MonitorService) OnlineStudents(ctx context.Context) ([]model.OnlineStudent, error) {
	online, err := s.presence.ListOnline(ctx, s.now().Add(-s.window))
	if err != nil {
		return nil, fmt.Errorf("list online: %w", err)
	}
	return online, nil
}

// GlobalStats counts active exams, submitted results and online students. The three reads run concurrently; presence is
// best-effort and reported as zero when unavailable.
func (s *MonitorService) GlobalStats(ctx context.Context) (*model.GlobalStats, error) {
	var (
		exams   []model.Exam
		results []model.Result
		online  []model.OnlineStudent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exams, err = s.catalog.ListExams(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		results, err = s.catalog.ListResults(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		online, err = s.presence.ListOnline(gctx, s.now().Add(-s.window))
		if err != nil {
			s.log.Warn().Err(err).Msg("Presence unavailable for stats")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("global stats: %w", err)
	}

	stats := &model.GlobalStats{OnlineStudents: len(online)}
	for i := range exams {
		if exams[i].IsActive {
			stats.ActiveExams++
		}
	}
	stats.CompletedStudents = len(results)

	return stats, nil
}

// SyncExternalScore records a score graded outside the system. Only
// external-form exams accept it, and the result must already exist.
func (s *MonitorService) SyncExternalScore(ctx context.Context, key model.ResultKey, score int) error {
	exams, err := s.catalog.ListExams(ctx)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}

	var exam *model.Exam
	for i := range exams {
		if exams[i].ID == key.ExamID {
			exam = &exams[i]
			break
		}
	}
	if exam == nil {
		return ErrExamNotFound
	}
	if exam.Mode != model.ExamModeExternalForm {
		return ErrScoreSyncNative
	}

	if err := s.scores.UpdateScore(ctx, key, score); err != nil {
		return fmt.Errorf("update score: %w", err)
	}

	s.log.Info().
		Str("exam_id", key.ExamID).
		Str("student", key.StudentName).
		Int("score", score).
		Msg("External score synced")
	return nil
}

// DefaultResultsPerPage applies when a results query leaves per_page unset.
const DefaultResultsPerPage = 50

// ResultPage is one page of the admin results list.
type ResultPage struct {
	Results []model.Result
	Page    int
	PerPage int
	Total   int
}

// ListResults returns results newest first, optionally for one exam.
func (s *MonitorService) ListResults(ctx context.Context, q model.ResultQuery) (*ResultPage, error) {
	all, err := s.catalog.ListResults(ctx)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	filtered := all[:0:0]
	for _, r := range all {
		if q.ExamID == "" || r.ExamID == q.ExamID {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CompletedAt.After(filtered[j].CompletedAt)
	})

	page := &ResultPage{Page: q.Page, PerPage: q.PerPage, Total: len(filtered)}
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PerPage < 1 {
		page.PerPage = DefaultResultsPerPage
	}
	start := len(filtered)
	if page.Page-1 <= len(filtered)/page.PerPage {
		start = min((page.Page-1)*page.PerPage, len(filtered))
	}
	end := start + page.PerPage
	if end > len(filtered) {
		end = len(filtered)
	}
	page.Results = filtered[start:end]
	return page, nil
}
