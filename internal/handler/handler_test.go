package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	ws "github.com/stemsi/exstem-cbt/internal/websocket"
)

func TestOutboxKeepsNewestSnapshotAndTick(t *testing.T) {
	o := newOutbox()

	o.notify(service.Event{Seq: 1, Type: service.EventSnapshot, Snapshot: &service.Snapshot{Seq: 1}})
	o.notify(service.Event{Seq: 3, Type: service.EventSnapshot, Snapshot: &service.Snapshot{Seq: 3}})
	o.notify(service.Event{Seq: 2, Type: service.EventSnapshot, Snapshot: &service.Snapshot{Seq: 2}})
	o.notify(service.Event{Seq: 4, Type: service.EventTick, Tick: &service.TickView{Remaining: 10}})
	o.reply(errorReply(response.ErrInvalidState))

	msgs := o.drain()
	if len(msgs) != 3 {
		t.Fatalf("drain = %d messages, want 3", len(msgs))
	}
	if _, ok := msgs[0].(ws.ErrorResponse); !ok {
		t.Fatalf("first message = %T, want the reply", msgs[0])
	}
	snap, ok := msgs[1].(ws.SnapshotResponse)
	if !ok || snap.Seq != 3 {
		t.Fatalf("second message = %+v, want snapshot seq 3", msgs[1])
	}
	if tick, ok := msgs[2].(ws.TickResponse); !ok || tick.Remaining != 10 {
		t.Fatalf("third message = %+v, want tick", msgs[2])
	}

	if left := o.drain(); len(left) != 0 {
		t.Fatalf("second drain = %v, want empty", left)
	}
}

func TestOutboxDropsTickOlderThanSnapshot(t *testing.T) {
	o := newOutbox()
	o.notify(service.Event{Seq: 5, Type: service.EventTick, Tick: &service.TickView{Remaining: 59}})
	o.notify(service.Event{Seq: 6, Type: service.EventSnapshot, Snapshot: &service.Snapshot{Seq: 6}})

	msgs := o.drain()
	if len(msgs) != 1 {
		t.Fatalf("drain = %+v, want only the snapshot", msgs)
	}
}

func TestOutboxWakeDoesNotBlock(t *testing.T) {
	o := newOutbox()
	for i := 0; i < 100; i++ {
		o.notify(service.Event{Seq: uint64(i + 1), Type: service.EventTick, Tick: &service.TickView{}})
		o.reply(ws.PongResponse{Event: ws.EventPong})
	}
	if got := len(o.drain()); got != maxPendingReplies+1 {
		t.Fatalf("drain = %d messages, want %d", got, maxPendingReplies+1)
	}
}

func TestErrorCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want response.ErrCode
	}{
		{errUnknownAction, response.ErrUnknownAction},
		{errMissingField, response.ErrInvalidPayload},
		{service.ErrInvalidToken, response.ErrInvalidEntryToken},
		{service.ErrFinishNotRequested, response.ErrFinishNotRequested},
		{context.DeadlineExceeded, response.ErrCatalogUnavailable},
	}
	for _, tc := range cases {
		if got := errorCodeFor(tc.err); got != tc.want {
			t.Errorf("errorCodeFor(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

type presenceEvent struct {
	OnlineStudents int                   `json:"online_students"`
	Students       []model.OnlineStudent `json:"students"`
}

// readPresence returns the data of the next "presence" SSE event.
func readPresence(t *testing.T, sc *bufio.Scanner) presenceEvent {
	t.Helper()
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var ev presenceEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		return ev
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return presenceEvent{}
}

func TestPresenceStreamPushesOnHeartbeat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	presence := repository.NewPresenceRepository(rdb)
	store := repository.NewMemoryStore(&repository.CatalogFile{})
	monitor := service.NewMonitorService(store, presence, store, time.Minute, zerolog.Nop())
	h := NewMonitorHandler(monitor, presence, time.Hour, zerolog.Nop())

	r := gin.New()
	r.GET("/stream", h.PresenceStream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	if first := readPresence(t, sc); first.OnlineStudents != 0 {
		t.Fatalf("first event = %+v, want nobody online", first)
	}

	hb := model.Heartbeat{StudentName: "Budi", ClassName: "XII RPL 1", At: time.Now()}
	if err := presence.SendHeartbeat(ctx, hb); err != nil {
		t.Fatalf("SendHeartbeat: %v", err)
	}

	next := readPresence(t, sc)
	if next.OnlineStudents != 1 || next.Students[0].StudentName != "Budi" {
		t.Fatalf("event after heartbeat = %+v", next)
	}
}
