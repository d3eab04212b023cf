package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// Terminal renders one student session as text and turns input lines into
// session actions.
type Terminal struct {
	out  io.Writer
	sess *service.StudentSession

	title *color.Color
	warn  *color.Color
	good  *color.Color
	muted *color.Color

	last []byte
	seq  uint64
}

func NewTerminal(out io.Writer, sess *service.StudentSession) *Terminal {
	return &Terminal{
		out:   out,
		sess:  sess,
		title: color.New(color.Bold),
		warn:  color.New(color.FgRed, color.Bold),
		good:  color.New(color.FgGreen),
		muted: color.New(color.Faint),
	}
}

// Render draws a snapshot. Snapshots older than the last one drawn and
// screens identical to the previous one are skipped.
func (t *Terminal) Render(s service.Snapshot) {
	if s.Seq < t.seq {
		return
	}
	t.seq = s.Seq
	var buf bytes.Buffer
	switch s.State {
	case service.StateBrowsing:
		t.renderLobby(&buf, s)
	case service.StateTokenPending:
		t.renderToken(&buf, s)
	case service.StateInProgress:
		t.renderAttempt(&buf, s)
	case service.StateFinished:
		t.renderFinished(&buf, s)
	}
	if bytes.Equal(buf.Bytes(), t.last) {
		return
	}
	t.last = buf.Bytes()
	_, _ = t.out.Write(t.last)
}

// RenderTick prints the countdown on minute marks, every 30 seconds once
// time runs low and every second through the last ten.
func (t *Terminal) RenderTick(tv service.TickView) {
	r := tv.Remaining
	if !(r%60 == 0 || (tv.LowTime && r%30 == 0) || r <= 10) {
		return
	}
	t.countdown(t.out, tv)
	fmt.Fprintln(t.out)
}

// Fail reports a rejected command and repeats the prompt.
func (t *Terminal) Fail(err error) {
	t.warn.Fprintf(t.out, "! %v\n", err)
	// The next render must show the screen again even if nothing changed.
	t.last = nil
}

// Handle applies one input line to the session. quit reports that the
// student asked to leave.
func (t *Terminal) Handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	exam := t.sess.Exam
	s := exam.Snapshot()

	switch s.State {
	case service.StateBrowsing:
		switch line {
		case "q":
			return true, nil
		case "", "r":
			t.last = nil
			return false, exam.Refresh(ctx)
		}
		n, convErr := strconv.Atoi(line)
		if convErr != nil || n < 1 || n > len(s.Eligible) {
			return false, fmt.Errorf("choose an exam number between 1 and %d", len(s.Eligible))
		}
		return false, exam.Select(s.Eligible[n-1].ID)

	case service.StateTokenPending:
		if line == "" {
			return false, exam.CancelToken()
		}
		return false, exam.SubmitToken(ctx, line)

	case service.StateInProgress:
		return false, t.handleAttempt(ctx, s, line)

	case service.StateFinished:
		if line == "q" {
			return true, nil
		}
		t.last = nil
		return false, exam.Acknowledge(ctx)
	}
	return false, nil
}

func (t *Terminal) handleAttempt(ctx context.Context, s service.Snapshot, line string) error {
	exam := t.sess.Exam
	a := s.Attempt

	switch {
	case a.Submitting:
		return fmt.Errorf("submission in progress")
	case a.Error != "":
		switch line {
		case "r":
			_, err := exam.RetrySubmit(ctx)
			return err
		case "x":
			return exam.Abandon()
		}
		return fmt.Errorf("type r to retry or x to abandon")
	case a.ConfirmPending:
		switch line {
		case "y":
			_, err := exam.ConfirmFinish(ctx)
			return err
		case "n":
			return exam.DismissFinish()
		}
		return fmt.Errorf("type y to submit or n to go back")
	}

	q, hasQuestion := currentQuestion(a)

	// A single letter picks an option of the current multiple-choice
	// question; it wins over the one-letter commands below.
	if hasQuestion && q.Type == model.QuestionTypeMultipleChoice && len(line) == 1 {
		idx := int(strings.ToUpper(line)[0]) - 'A'
		if idx >= 0 && idx < len(q.Options) {
			return exam.Answer(q.ID, strconv.Itoa(idx))
		}
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "n", "next":
		return exam.Next()
	case "p", "prev":
		return exam.Prev()
	case "f", "finish":
		return exam.RequestFinish()
	case "x", "abandon":
		return exam.Abandon()
	case "g", "goto":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return fmt.Errorf("usage: g <number>")
		}
		return exam.Goto(n - 1)
	case "a", "answer":
		if !hasQuestion {
			return fmt.Errorf("no question to answer")
		}
		return exam.Answer(q.ID, strings.TrimSpace(arg))
	}
	return fmt.Errorf("unknown command %q", line)
}

func currentQuestion(a *service.AttemptView) (model.QuestionForStudent, bool) {
	if a == nil || a.Index < 0 || a.Index >= len(a.Questions) {
		return model.QuestionForStudent{}, false
	}
	return a.Questions[a.Index], true
}

// ─── Screens ────────────────────────────────────────────────────────

func (t *Terminal) renderLobby(w io.Writer, s service.Snapshot) {
	t.title.Fprintf(w, "\n%s (%s)\n", s.StudentName, s.ClassName)
	if len(s.Eligible) == 0 {
		fmt.Fprintln(w, "No exams available right now.")
		t.muted.Fprintln(w, "[r] refresh  [q] quit")
		return
	}
	writeExamTable(w, s.Eligible)
	t.muted.Fprintln(w, "[number] choose exam  [r] refresh  [q] quit")
}

func (t *Terminal) renderToken(w io.Writer, s service.Snapshot) {
	title := ""
	if s.Selected != nil {
		title = s.Selected.Title
	}
	t.title.Fprintf(w, "\n%s\n", title)
	fmt.Fprintln(w, "Enter the exam token (empty line to go back):")
}

func (t *Terminal) renderAttempt(w io.Writer, s service.Snapshot) {
	a := s.Attempt
	t.title.Fprintf(w, "\n%s  ", a.Title)
	t.countdown(w, a.Countdown)
	fmt.Fprintln(w)

	switch {
	case a.Submitting:
		fmt.Fprintln(w, "Submitting answers...")
		return
	case a.Error != "":
		t.warn.Fprintf(w, "Submission failed: %s\n", a.Error)
		t.muted.Fprintln(w, "[r] retry  [x] abandon attempt")
		return
	case a.ConfirmPending:
		fmt.Fprintf(w, "Answered %d of %d. Submit now?\n", len(a.Answers), len(a.Questions))
		t.muted.Fprintln(w, "[y] submit  [n] back")
		return
	}

	if a.Mode == model.ExamModeExternalForm {
		fmt.Fprintf(w, "Open the form and fill it in:\n  %s\n", a.ExternalFormURL)
		t.muted.Fprintln(w, "[f] finish  [x] abandon")
		return
	}
	if a.QuestionsUnavailable || len(a.Questions) == 0 {
		t.warn.Fprintln(w, "Questions are unavailable for this exam.")
		t.muted.Fprintln(w, "[f] finish  [x] abandon")
		return
	}

	q := a.Questions[a.Index]
	fmt.Fprintf(w, "Question %d/%d  (answered %d)\n", a.Index+1, len(a.Questions), len(a.Answers))
	fmt.Fprintln(w, q.Text)
	chosen, answered := a.Answers[q.ID]
	switch q.Type {
	case model.QuestionTypeMultipleChoice:
		for i, opt := range q.Options {
			mark := " "
			if answered && chosen == strconv.Itoa(i) {
				mark = "*"
			}
			fmt.Fprintf(w, " %s %c. %s\n", mark, 'A'+i, opt)
		}
		t.muted.Fprintln(w, "[letter] answer  [next] [prev] [goto N] [finish] [abandon]")
	default:
		if answered {
			fmt.Fprintf(w, "Your answer: %s\n", chosen)
		}
		t.muted.Fprintln(w, "[a text] answer  [n] next  [p] prev  [g N] go to  [f] finish")
	}
}

func (t *Terminal) renderFinished(w io.Writer, s service.Snapshot) {
	if s.Reason == service.ReasonTimeout {
		t.warn.Fprintln(w, "\nTime is up. Your answers were submitted.")
	} else {
		t.good.Fprintln(w, "\nExam submitted.")
	}
	if r := s.Result; r != nil {
		if s.Selected != nil && s.Selected.Mode == model.ExamModeExternalForm {
			fmt.Fprintln(w, "The score will appear once the form is graded.")
		} else {
			t.title.Fprintf(w, "Score: %d\n", r.Score)
		}
	}
	t.muted.Fprintln(w, "[enter] back to exams  [q] quit")
}

func (t *Terminal) countdown(w io.Writer, tv service.TickView) {
	if tv.LowTime {
		t.warn.Fprintf(w, "[%s]", tv.Display)
		return
	}
	fmt.Fprintf(w, "[%s]", tv.Display)
}
