package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

type testApp struct {
	store  *repository.MemoryStore
	server *httptest.Server
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	validator.Setup()

	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cfg := &config.Config{
		GinMode:           "test",
		JWTSecret:         "router-test",
		JWTExpiry:         time.Hour,
		BcryptCost:        bcrypt.MinCost,
		AdminUsername:     "admin",
		AdminPasswordHash: string(hash),
	}

	store := repository.NewMemoryStore(&repository.CatalogFile{
		Classes: []model.Class{{ID: "c1", Name: "XII RPL 1"}},
		Questions: []model.Question{
			{ID: "q1", Text: "1 + 1", Type: model.QuestionTypeMultipleChoice, Options: []string{"1", "2"}, CorrectAnswer: "1"},
			{ID: "q2", Text: "2 + 2", Type: model.QuestionTypeMultipleChoice, Options: []string{"4", "5"}, CorrectAnswer: "0"},
		},
		Packages: []model.QuestionPackage{{ID: "p1", Title: "Dasar", QuestionIDs: []string{"q1", "q2"}}},
		Exams: []model.Exam{
			{ID: "math", Title: "Matematika", Mode: model.ExamModeNative, PackageID: "p1", Token: "MATH01", DurationMinutes: 30, IsActive: true},
			{ID: "bio", Title: "Biologi", Mode: model.ExamModeExternalForm, ExternalFormURL: "https://forms.example/bio", Token: "BIO22", DurationMinutes: 30, IsActive: true},
		},
	})

	log := zerolog.Nop()
	auth := service.NewAuthService(cfg, store)
	heartbeat := service.NewHeartbeatService(store, time.Hour, log)
	sessions := service.NewExamSessionService(store, heartbeat, service.SessionConfig{}, time.Hour, log)
	monitor := service.NewMonitorService(store, store, store, 90*time.Second, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := SetupRouter(ctx, auth, &Handlers{
		Auth:          handler.NewAuthHandler(auth, log),
		StudentPortal: handler.NewStudentPortalHandler(sessions.Lobby(), store, store, log),
		WS:            handler.NewWSHandler(sessions, log, nil),
		Monitor:       handler.NewMonitorHandler(monitor, nil, time.Second, log),
	}, cfg)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testApp{store: store, server: srv}
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *struct{ Code string } `json:"error"`
	Pagination *struct {
		TotalItems int `json:"total_items"`
		TotalPages int `json:"total_pages"`
	} `json:"pagination"`
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, a.server.URL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func (a *testApp) login(t *testing.T, path string, body interface{}) string {
	t.Helper()
	status, env := a.do(t, http.MethodPost, path, "", body)
	if status != http.StatusOK {
		t.Fatalf("login %s status = %d error = %+v", path, status, env.Error)
	}
	var resp model.LoginResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token
}

func (a *testApp) studentToken(t *testing.T) string {
	return a.login(t, "/api/v1/auth/student/login", model.StudentLoginRequest{FullName: "Budi Santoso", ClassName: "xii rpl 1"})
}

func (a *testApp) adminToken(t *testing.T) string {
	return a.login(t, "/api/v1/auth/admin/login", model.AdminLoginRequest{Username: "admin", Password: "rahasia123"})
}

func TestStudentRESTFlow(t *testing.T) {
	app := newTestApp(t)

	status, env := app.do(t, http.MethodPost, "/api/v1/auth/student/login", "", map[string]string{"full_name": "   ", "class_name": "XII RPL 1"})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("blank name: status = %d error = %+v", status, env.Error)
	}
	status, env = app.do(t, http.MethodPost, "/api/v1/auth/student/login", "", model.StudentLoginRequest{FullName: "Budi", ClassName: "X MM 9"})
	if status != http.StatusBadRequest || env.Error.Code != "UNKNOWN_CLASS" {
		t.Fatalf("unknown class: status = %d error = %+v", status, env.Error)
	}
	status, env = app.do(t, http.MethodPost, "/api/v1/auth/student/login", "", model.StudentLoginRequest{FullName: "Budi", ClassName: "XII|RPL 1"})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("separator in class: status = %d error = %+v", status, env.Error)
	}

	token := app.studentToken(t)

	status, env = app.do(t, http.MethodGet, "/api/v1/student/exams", token, nil)
	if status != http.StatusOK {
		t.Fatalf("lobby status = %d", status)
	}
	var lobby struct{ Exams []model.ExamSummary }
	_ = json.Unmarshal(env.Data, &lobby)
	if len(lobby.Exams) != 2 || lobby.Exams[0].ID != "math" {
		t.Fatalf("lobby = %+v", lobby)
	}
	if strings.Contains(string(env.Data), "MATH01") {
		t.Fatal("lobby leaked the entry token")
	}

	if status, _ := app.do(t, http.MethodPost, "/api/v1/student/heartbeat", token, nil); status != http.StatusNoContent {
		t.Fatalf("heartbeat status = %d", status)
	}

	admin := app.adminToken(t)
	status, env = app.do(t, http.MethodGet, "/api/v1/admin/stats", admin, nil)
	if status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	var stats model.GlobalStats
	_ = json.Unmarshal(env.Data, &stats)
	if stats.OnlineStudents != 1 || stats.ActiveExams != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	if status, _ := app.do(t, http.MethodGet, "/api/v1/admin/stats", token, nil); status != http.StatusForbidden {
		t.Fatalf("student on admin route: status = %d", status)
	}
}

func TestPublicClasses(t *testing.T) {
	app := newTestApp(t)
	status, env := app.do(t, http.MethodGet, "/api/v1/public/classes", "", nil)
	if status != http.StatusOK || !strings.Contains(string(env.Data), "XII RPL 1") {
		t.Fatalf("status = %d data = %s", status, env.Data)
	}
}

func TestAdminLoginRejectsWrongPassword(t *testing.T) {
	app := newTestApp(t)
	status, env := app.do(t, http.MethodPost, "/api/v1/auth/admin/login", "", model.AdminLoginRequest{Username: "admin", Password: "salah123"})
	if status != http.StatusUnauthorized || env.Error.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("status = %d error = %+v", status, env.Error)
	}
}

func TestScoreSyncAndResults(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	_ = app.store.SubmitResult(ctx, model.Result{ID: "r1", ExamID: "bio", StudentName: "Budi Santoso", CompletedAt: time.Now()})
	_ = app.store.SubmitResult(ctx, model.Result{ID: "r2", ExamID: "math", StudentName: "Budi Santoso", Score: 50, CompletedAt: time.Now()})
	admin := app.adminToken(t)

	score := 88
	status, _ := app.do(t, http.MethodPut, "/api/v1/admin/results/score", admin,
		model.UpdateScoreRequest{ExamID: "bio", StudentName: "Budi Santoso", Score: &score})
	if status != http.StatusOK {
		t.Fatalf("sync status = %d", status)
	}

	status, env := app.do(t, http.MethodPut, "/api/v1/admin/results/score", admin,
		model.UpdateScoreRequest{ExamID: "math", StudentName: "Budi Santoso", Score: &score})
	if status != http.StatusConflict || env.Error.Code != "SCORE_SYNC_NATIVE_EXAM" {
		t.Fatalf("native sync: status = %d error = %+v", status, env.Error)
	}

	status, env = app.do(t, http.MethodPut, "/api/v1/admin/results/score", admin,
		model.UpdateScoreRequest{ExamID: "bio", StudentName: "Siti", Score: &score})
	if status != http.StatusNotFound || env.Error.Code != "RESULT_NOT_FOUND" {
		t.Fatalf("missing result: status = %d error = %+v", status, env.Error)
	}

	status, env = app.do(t, http.MethodGet, "/api/v1/admin/results?exam_id=bio&per_page=1", admin, nil)
	if status != http.StatusOK || env.Pagination == nil || env.Pagination.TotalItems != 1 {
		t.Fatalf("results: status = %d pagination = %+v", status, env.Pagination)
	}
	var results []model.Result
	_ = json.Unmarshal(env.Data, &results)
	if len(results) != 1 || results[0].Score != 88 {
		t.Fatalf("results = %+v", results)
	}

	status, env = app.do(t, http.MethodGet, "/api/v1/admin/results?page=9223372036854775807", admin, nil)
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("huge page: status = %d error = %+v", status, env.Error)
	}
}

// wsMessage is the union of every server event.
type wsMessage struct {
	Event   string            `json:"event"`
	Seq     uint64            `json:"seq"`
	Session *service.Snapshot `json:"session"`
	Code    string            `json:"code"`
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (a *testApp) dial(t *testing.T, token string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/ws/v1/student/session?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(v interface{}) {
	c.t.Helper()
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// until reads events until match accepts one.
func (c *wsClient) until(desc string, match func(wsMessage) bool) wsMessage {
	c.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.t.Fatalf("waiting for %s: %v", desc, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func (c *wsClient) untilState(state service.SessionState) *service.Snapshot {
	c.t.Helper()
	msg := c.until(string(state), func(m wsMessage) bool {
		return m.Event == "snapshot" && m.Session != nil && m.Session.State == state
	})
	return msg.Session
}

func (c *wsClient) untilError(code string) {
	c.t.Helper()
	c.until("error "+code, func(m wsMessage) bool { return m.Event == "error" && m.Code == code })
}

func TestSessionOverWebSocket(t *testing.T) {
	app := newTestApp(t)
	client := app.dial(t, app.studentToken(t))

	first := client.untilState(service.StateBrowsing)
	if len(first.Eligible) != 2 || first.StudentName != "Budi Santoso" || first.ClassName != "XII RPL 1" {
		t.Fatalf("first snapshot = %+v", first)
	}

	client.send(map[string]string{"action": "select", "exam_id": "math"})
	client.untilState(service.StateTokenPending)

	client.send(map[string]string{"action": "token", "token": "WRONG"})
	client.untilError("INVALID_ENTRY_TOKEN")

	client.send(map[string]string{"action": "token", "token": "math01"})
	started := client.untilState(service.StateInProgress)
	if started.Attempt == nil || len(started.Attempt.Questions) != 2 || started.Attempt.Countdown.Remaining != 1800 {
		t.Fatalf("attempt = %+v", started.Attempt)
	}

	client.send(map[string]string{"action": "answer", "question_id": "q1", "answer": "1"})
	client.send(map[string]interface{}{"action": "goto", "index": 1})
	client.send(map[string]string{"action": "confirm"})
	client.untilError("FINISH_NOT_REQUESTED")

	client.send(map[string]string{"action": "finish"})
	client.send(map[string]string{"action": "confirm"})
	done := client.untilState(service.StateFinished)
	if done.Result == nil || done.Result.Score != 50 || done.Reason != service.ReasonManual {
		t.Fatalf("finished = %+v", done)
	}

	client.send(map[string]string{"action": "ack"})
	back := client.untilState(service.StateBrowsing)
	if len(back.Eligible) != 1 || back.Eligible[0].ID != "bio" {
		t.Fatalf("eligible after ack = %+v", back.Eligible)
	}

	results, _ := app.store.ListResults(context.Background())
	if len(results) != 1 || results[0].Answers["q1"] != "1" {
		t.Fatalf("stored results = %+v", results)
	}
}

func TestWebSocketRejectsBadInput(t *testing.T) {
	app := newTestApp(t)
	client := app.dial(t, app.studentToken(t))
	client.untilState(service.StateBrowsing)

	client.send(map[string]string{"action": "dance"})
	client.untilError("UNKNOWN_ACTION")

	if err := client.conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	client.untilError("INVALID_PAYLOAD")

	client.send(map[string]string{"action": "next"})
	client.untilError("INVALID_STATE")

	client.send(map[string]string{"action": "ping"})
	client.until("pong", func(m wsMessage) bool { return m.Event == "pong" })
}

func TestWebSocketRequiresStudentToken(t *testing.T) {
	app := newTestApp(t)
	url := "ws" + strings.TrimPrefix(app.server.URL, "http") + "/ws/v1/student/session?token=" + app.adminToken(t)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("admin token should not open a session")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp = %+v", resp)
	}
}
