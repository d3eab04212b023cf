package service

import (
	"context"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// CatalogReader is the read side of the exam catalog. Implementations are
// eventually consistent; callers re-read periodically.
type CatalogReader interface {
	ListExams(ctx context.Context) ([]model.Exam, error)
	ListResults(ctx context.Context) ([]model.Result, error)
	ListQuestions(ctx context.Context) ([]model.Question, error)
	ListQuestionPackages(ctx context.Context) ([]model.QuestionPackage, error)
}

// ResultSubmitter persists a finished attempt. SubmitResult upserts on
// (exam id, student name) and must return an error when nothing was stored.
type ResultSubmitter interface {
	SubmitResult(ctx context.Context, result model.Result) error
}

// HeartbeatSender delivers a presence pulse. Errors are ignored by callers.
type HeartbeatSender interface {
	SendHeartbeat(ctx context.Context, hb model.Heartbeat) error
}

// Store is everything a student session needs from the outside world.
type Store interface {
	CatalogReader
	ResultSubmitter
}
