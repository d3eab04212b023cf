package websocket

import "github.com/stemsi/exstem-cbt/internal/service"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionRefresh Action = "refresh"
	ActionSelect  Action = "select"
	ActionCancel  Action = "cancel"
	ActionToken   Action = "token"
	ActionAnswer  Action = "answer"
	ActionGoto    Action = "goto"
	ActionNext    Action = "next"
	ActionPrev    Action = "prev"
	ActionFinish  Action = "finish"
	ActionDismiss Action = "dismiss"
	ActionConfirm Action = "confirm"
	ActionRetry   Action = "retry"
	ActionAck     Action = "ack"
	ActionAbandon Action = "abandon"
	ActionPing    Action = "ping"
)

// Request is every client message. Only the fields of the given action are
// read.
type Request struct {
	Action     Action `json:"action"`
	ExamID     string `json:"exam_id,omitempty"`
	Token      string `json:"token,omitempty"`
	QuestionID string `json:"question_id,omitempty"`
	Answer     string `json:"answer,omitempty"`
	Index      *int   `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSnapshot Event = "snapshot"
	EventTick     Event = "tick"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// SnapshotResponse carries the whole session after a transition.
type SnapshotResponse struct {
	Event   Event             `json:"event"`
	Seq     uint64            `json:"seq"`
	Session *service.Snapshot `json:"session"`
}

// TickResponse carries one countdown second.
type TickResponse struct {
	Event Event  `json:"event"`
	Seq   uint64 `json:"seq"`
	service.TickView
}

type ErrorResponse struct {
	Event   Event  `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// FromSessionEvent converts an engine event to its wire form.
func FromSessionEvent(ev service.Event) interface{} {
	if ev.Type == service.EventTick && ev.Tick != nil {
		return TickResponse{Event: EventTick, Seq: ev.Seq, TickView: *ev.Tick}
	}
	return SnapshotResponse{Event: EventSnapshot, Seq: ev.Seq, Session: ev.Snapshot}
}
