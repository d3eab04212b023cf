package model

import (
	"errors"
	"strings"
	"time"
)

// ExamMode is the closed set of ways an exam is delivered.
type ExamMode string

const (
	ExamModeNative       ExamMode = "NATIVE"
	ExamModeExternalForm ExamMode = "EXTERNAL_FORM"
)

// Valid reports whether m is one of the known modes.
func (m ExamMode) Valid() bool {
	return m == ExamModeNative || m == ExamModeExternalForm
}

var (
	ErrExamDuration = errors.New("exam duration must be positive")
	ErrExamToken    = errors.New("active exam requires an entry token")
	ErrExamMode     = errors.New("unknown exam mode")
)

// Exam represents an exam entry in the catalog.
type Exam struct {
	ID              string     `json:"id" yaml:"id"`
	Title           string     `json:"title" yaml:"title"`
	Mode            ExamMode   `json:"mode" yaml:"mode"`
	ExternalFormURL string     `json:"external_form_url,omitempty" yaml:"external_form_url,omitempty"`
	PackageID       string     `json:"package_id,omitempty" yaml:"package_id,omitempty"`
	Token           string     `json:"token,omitempty" yaml:"token"`
	DurationMinutes int        `json:"duration_minutes" yaml:"duration_minutes"`
	IsActive        bool       `json:"is_active" yaml:"is_active"`
	EligibleClasses []string   `json:"eligible_classes" yaml:"eligible_classes,omitempty"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty" yaml:"scheduled_start,omitempty"`
	CreatedAt       time.Time  `json:"created_at" yaml:"-"`
}

// NormalizeToken upper-cases and trims an entry token.
func NormalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

// Validate checks the catalog invariants of an exam.
func (e *Exam) Validate() error {
	if !e.Mode.Valid() {
		return ErrExamMode
	}
	if e.DurationMinutes <= 0 {
		return ErrExamDuration
	}
	if e.IsActive && e.Token == "" {
		return ErrExamToken
	}
	return nil
}

// DurationSeconds is the starting value of the attempt countdown.
func (e *Exam) DurationSeconds() int {
	return e.DurationMinutes * 60
}

// OpenTo reports whether students of className may see the exam.
// An empty class list means every class.
func (e *Exam) OpenTo(className string) bool {
	if len(e.EligibleClasses) == 0 {
		return true
	}
	for _, c := range e.EligibleClasses {
		if c == className {
			return true
		}
	}
	return false
}

// ExamSummary is the student-facing view of an exam; the token never leaves the server.
type ExamSummary struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Mode            ExamMode   `json:"mode"`
	DurationMinutes int        `json:"duration_minutes"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
}

// Summary strips secrets from the exam.
func (e *Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:              e.ID,
		Title:           e.Title,
		Mode:            e.Mode,
		DurationMinutes: e.DurationMinutes,
		ScheduledStart:  e.ScheduledStart,
	}
}
