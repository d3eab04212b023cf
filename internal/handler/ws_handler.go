package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	ws "github.com/stemsi/exstem-cbt/internal/websocket"
)

const (
	maxMessageSize    = 4096
	maxPendingReplies = 32
)

var (
	errUnknownAction = errors.New("unknown action")
	errMissingField  = errors.New("missing field")
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler hosts one exam session per connected student.
type WSHandler struct {
	sessions *service.ExamSessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      logger.Component(log, "ws_handler"),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/session
// Opens the student's exam session for the lifetime of the connection.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	user := claims.User()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("student", user.DisplayName()).
		Str("class", user.Class()).
		Logger()

	// The connection outlives nothing: its scope ends when this handler returns.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := newOutbox()
	sess, err := h.sessions.Open(ctx, user, out.notify)
	if err != nil {
		_, code, _ := classify(err)
		_ = ws.WriteTyped(conn, errorReply(code))
		return
	}
	defer sess.Close()

	// Discovery may have failed inside Open; the client still needs a first frame.
	snap := sess.Exam.Snapshot()
	out.notify(service.Event{Seq: snap.Seq, Type: service.EventSnapshot, Snapshot: &snap})

	wsLog.Info().Msg("Student connected")

	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(conn, out, done, wsLog)
	}()

	h.readPump(ctx, conn, sess, out, wsLog)
	close(done)
	<-writerDone

	wsLog.Info().Str("state", string(sess.Exam.State())).Msg("Student disconnected")
}

func (h *WSHandler) readPump(ctx context.Context, conn *websocket.Conn, sess *service.StudentSession, out *outbox, log zerolog.Logger) {
	ws.PrepareRead(conn, maxMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		var req ws.Request
		if err := json.Unmarshal(data, &req); err != nil {
			out.reply(errorReply(response.ErrInvalidPayload))
			continue
		}

		if err := h.dispatch(ctx, sess, out, req); err != nil {
			code := errorCodeFor(err)
			if code == response.ErrCatalogUnavailable || code == response.ErrSubmissionFailed {
				log.Warn().Err(err).Str("action", string(req.Action)).Msg("Session action failed")
			}
			out.reply(errorReply(code))
		}
	}
}

// dispatch runs one client action against the session engine.
func (h *WSHandler) dispatch(ctx context.Context, sess *service.StudentSession, out *outbox, req ws.Request) error {
	exam := sess.Exam
	switch req.Action {
	case ws.ActionRefresh:
		return exam.Refresh(ctx)
	case ws.ActionSelect:
		return exam.Select(req.ExamID)
	case ws.ActionCancel:
		return exam.CancelToken()
	case ws.ActionToken:
		return exam.SubmitToken(ctx, req.Token)
	case ws.ActionAnswer:
		if req.QuestionID == "" {
			return errMissingField
		}
		return exam.Answer(req.QuestionID, req.Answer)
	case ws.ActionGoto:
		if req.Index == nil {
			return errMissingField
		}
		return exam.Goto(*req.Index)
	case ws.ActionNext:
		return exam.Next()
	case ws.ActionPrev:
		return exam.Prev()
	case ws.ActionFinish:
		return exam.RequestFinish()
	case ws.ActionDismiss:
		return exam.DismissFinish()
	case ws.ActionConfirm:
		_, err := exam.ConfirmFinish(ctx)
		return err
	case ws.ActionRetry:
		_, err := exam.RetrySubmit(ctx)
		return err
	case ws.ActionAck:
		return exam.Acknowledge(ctx)
	case ws.ActionAbandon:
		return exam.Abandon()
	case ws.ActionPing:
		out.reply(ws.PongResponse{Event: ws.EventPong})
		return nil
	default:
		return errUnknownAction
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, out *outbox, done <-chan struct{}, log zerolog.Logger) {
	ping := time.NewTicker(ws.PingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-out.wake:
			for _, msg := range out.drain() {
				if err := ws.WriteTyped(conn, msg); err != nil {
					log.Debug().Err(err).Msg("Write failed")
					return
				}
			}
		case <-ping.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		}
	}
}

func errorCodeFor(err error) response.ErrCode {
	switch {
	case errors.Is(err, errUnknownAction):
		return response.ErrUnknownAction
	case errors.Is(err, errMissingField):
		return response.ErrInvalidPayload
	}
	_, code, _ := classify(err)
	return code
}

func errorReply(code response.ErrCode) ws.ErrorResponse {
	return ws.ErrorResponse{Event: ws.EventError, Code: string(code), Message: response.GetMessage(code)}
}

// outbox decouples the session engine from the socket. The engine never
// blocks on a slow client: only the newest snapshot and tick are kept.
type outbox struct {
	mu       sync.Mutex
	snapshot *service.Event
	tick     *service.Event
	replies  []interface{}
	wake     chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

func (o *outbox) notify(ev service.Event) {
	o.mu.Lock()
	if ev.Type == service.EventTick {
		if o.tick == nil || o.tick.Seq < ev.Seq {
			o.tick = &ev
		}
	} else if o.snapshot == nil || o.snapshot.Seq < ev.Seq {
		o.snapshot = &ev
	}
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) reply(v interface{}) {
	o.mu.Lock()
	if len(o.replies) < maxPendingReplies {
		o.replies = append(o.replies, v)
	}
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// drain empties the outbox in send order. A tick older than the pending
// snapshot is already contained in it and is dropped.
func (o *outbox) drain() []interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()

	msgs := o.replies
	o.replies = nil
	snap, tick := o.snapshot, o.tick
	o.snapshot, o.tick = nil, nil

	if snap != nil && tick != nil && tick.Seq < snap.Seq {
		tick = nil
	}
	if snap != nil {
		msgs = append(msgs, ws.FromSessionEvent(*snap))
	}
	if tick != nil {
		msgs = append(msgs, ws.FromSessionEvent(*tick))
	}
	return msgs
}
