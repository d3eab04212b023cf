package model

import (
	"errors"
	"time"
)

// ErrResultNotFound is returned by stores when no result matches a key.
var ErrResultNotFound = errors.New("result not found")

// ResultStatus is the verdict attached to a submitted attempt.
type ResultStatus string

const (
	ResultStatusCompleted ResultStatus = "COMPLETED"
	// ResultStatusCheatingSuspected is reserved for proctoring tools.
	ResultStatusCheatingSuspected ResultStatus = "CHEATING_SUSPECTED"
)

// Result is the persisted outcome of one attempt. There is at most one per
// (ExamID, StudentName); resubmission overwrites.
type Result struct {
	ID          string            `json:"id" yaml:"id"`
	ExamID      string            `json:"exam_id" yaml:"exam_id"`
	StudentName string            `json:"student_name" yaml:"student_name"`
	ClassName   string            `json:"class_name" yaml:"class_name"`
	CompletedAt time.Time         `json:"completed_at" yaml:"completed_at"`
	Status      ResultStatus      `json:"status" yaml:"status"`
	Score       int               `json:"score" yaml:"score"`
	Answers     map[string]string `json:"answers,omitempty" yaml:"answers,omitempty"`
}

// ResultKey identifies a result for upsert purposes.
type ResultKey struct {
	ExamID      string
	StudentName string
}

// Key returns the upsert key of the result.
func (r *Result) Key() ResultKey {
	return ResultKey{ExamID: r.ExamID, StudentName: r.StudentName}
}

// UpdateScoreRequest is sent by the external-form sync collaborator.
type UpdateScoreRequest struct {
	ExamID      string `json:"exam_id" binding:"required,max=64"`
	StudentName string `json:"student_name" binding:"required,notblank,max=255"`
	Score       *int   `json:"score" binding:"required,min=0,max=100"`
}

// ResultQuery filters and pages the admin results list.
type ResultQuery struct {
	ExamID  string `form:"exam_id" binding:"max=64"`
	Page    int    `form:"page" binding:"omitempty,min=1,max=100000"`
	PerPage int    `form:"per_page" binding:"omitempty,min=1,max=200"`
}
