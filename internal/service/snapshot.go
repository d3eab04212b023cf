package service

import (
	"time"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// EventType distinguishes full snapshots from countdown ticks.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventTick     EventType = "tick"
)

// Event is published after every change. Seq increases monotonically per
// session so consumers can discard events that arrive out of order.
type Event struct {
	Seq      uint64
	Type     EventType
	Snapshot *Snapshot
	Tick     *TickView
}

// Notifier receives session events. It is called without the session lock
// held and must not block for long.
type Notifier func(Event)

// TickView is the countdown as the student sees it.
type TickView struct {
	Remaining int    `json:"remaining"`
	Display   string `json:"display"`
	LowTime   bool   `json:"low_time"`
}

func newTickView(remaining int) TickView {
	return TickView{
		Remaining: remaining,
		Display:   FormatRemaining(remaining),
		LowTime:   IsLowTime(remaining),
	}
}

// AttemptView is the renderable part of an in-progress attempt.
type AttemptView struct {
	ExamID    string         `json:"exam_id"`
	Title     string         `json:"title"`
	Mode      model.ExamMode `json:"mode"`
	StartedAt time.Time      `json:"started_at"`
	Countdown TickView       `json:"countdown"`

	// Native mode.
	Questions            []model.QuestionForStudent `json:"questions,omitempty"`
	Answers              map[string]string          `json:"answers,omitempty"`
	Index                int                        `json:"index"`
	QuestionsUnavailable bool                       `json:"questions_unavailable,omitempty"`

	// External-form mode.
	ExternalFormURL string `json:"external_form_url,omitempty"`

	ConfirmPending bool   `json:"confirm_pending"`
	Submitting     bool   `json:"submitting"`
	Error          string `json:"error,omitempty"`
}

// Snapshot is the full renderable state of a session.
type Snapshot struct {
	Seq         uint64              `json:"seq"`
	State       SessionState        `json:"state"`
	StudentName string              `json:"student_name"`
	ClassName   string              `json:"class_name"`
	Eligible    []model.ExamSummary `json:"eligible"`
	Selected    *model.ExamSummary  `json:"selected,omitempty"`
	Attempt     *AttemptView        `json:"attempt,omitempty"`
	Result      *model.Result       `json:"result,omitempty"`
	Reason      CompletionReason    `json:"reason,omitempty"`
}

func (s *ExamSession) snapshotLocked() Snapshot {
	snap := Snapshot{
		Seq:         s.seq,
		State:       s.state,
		StudentName: s.student.DisplayName(),
		ClassName:   s.student.Class(),
		Eligible:    make([]model.ExamSummary, 0, len(s.eligible)),
		Reason:      s.reason,
	}
	for i := range s.eligible {
		snap.Eligible = append(snap.Eligible, s.eligible[i].Summary())
	}
	if s.selected != nil {
		sum := s.selected.Summary()
		snap.Selected = &sum
	}
	if s.result != nil {
		res := *s.result
		snap.Result = &res
	}
	if a := s.attempt; a != nil {
		v := &AttemptView{
			ExamID:         a.exam.ID,
			Title:          a.exam.Title,
			Mode:           a.exam.Mode,
			StartedAt:      a.startedAt,
			Countdown:      newTickView(a.remaining),
			ConfirmPending: a.confirmPending,
			Submitting:     a.submitting,
		}
		if a.lastErr != nil {
			v.Error = a.lastErr.Error()
		}
		if n := a.native; n != nil {
			v.Questions = make([]model.QuestionForStudent, 0, len(n.questions))
			for i := range n.questions {
				v.Questions = append(v.Questions, n.questions[i].ForStudent())
			}
			v.Answers = n.answers.Snapshot()
			v.Index = n.index
			v.QuestionsUnavailable = n.unavailable
		}
		if e := a.external; e != nil {
			v.ExternalFormURL = e.formURL
		}
		snap.Attempt = v
	}
	return snap
}

// eventLocked stamps the next sequence number and captures the event payload.
func (s *ExamSession) eventLocked(t EventType) Event {
	s.seq++
	ev := Event{Seq: s.seq, Type: t}
	if t == EventTick && s.attempt != nil {
		tv := newTickView(s.attempt.remaining)
		ev.Tick = &tv
		return ev
	}
	snap := s.snapshotLocked()
	ev.Snapshot = &snap
	return ev
}
