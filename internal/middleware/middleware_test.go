package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noClasses struct{}

func (noClasses) ListClasses(context.Context) ([]model.Class, error) { return nil, nil }

func studentToken(t *testing.T, auth *service.AuthService) string {
	t.Helper()
	resp, err := auth.StudentLogin(context.Background(), model.StudentLoginRequest{FullName: "Budi", ClassName: "XII RPL 1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return resp.Token
}

func TestRequireStudentJWT(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "s", JWTExpiry: time.Hour}, noClasses{})
	token := studentToken(t, auth)

	r := gin.New()
	r.GET("/student", RequireStudentJWT(auth), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).User().DisplayName())
	})
	r.GET("/admin", RequireAdminJWT(auth), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ws", RequireStudentWSAuth(auth), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		path   string
		header string
		want   int
		code   string
	}{
		{"bearer header", "/student", "Bearer " + token, http.StatusOK, ""},
		{"query fallback", "/student?token=" + token, "", http.StatusOK, ""},
		{"missing", "/student", "", http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"garbage", "/student", "Bearer nope", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"wrong role", "/admin", "Bearer " + token, http.StatusForbidden, "ADMIN_ACCESS_ONLY"},
		{"ws query", "/ws?token=" + token, "", http.StatusOK, ""},
		{"ws ignores header", "/ws", "Bearer " + token, http.StatusUnauthorized, "TOKEN_REQUIRED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
			if tc.code != "" && !strings.Contains(w.Body.String(), tc.code) {
				t.Fatalf("body = %s, want code %s", w.Body.String(), tc.code)
			}
		})
	}
}

func TestRequireStudentJWTExpired(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "s", JWTExpiry: -time.Minute}, noClasses{})
	token := studentToken(t, auth)

	r := gin.New()
	r.GET("/student", RequireStudentJWT(auth), func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/student", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "TOKEN_EXPIRED") {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestRateLimiterAllow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 2, time.Minute)
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("other client should not be limited")
	}
	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("bucket should refill after one interval")
	}

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 0 {
		t.Fatalf("visitors after cleanup = %d", n)
	}
}

func TestBrotliCompressesLargeJSON(t *testing.T) {
	big := strings.Repeat("a", 4096)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/big", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": big}) })
	r.GET("/small", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip, br;q=1.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("encoding = %q", w.Header().Get("Content-Encoding"))
	}
	body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(string(body), big) {
		t.Fatal("decoded body mismatch")
	}

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") != "" {
		t.Fatal("small body should not be compressed")
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestBrotliSkipsEventStream(t *testing.T) {
	r := gin.New()
	r.Use(Brotli())
	r.GET("/sse", func(c *gin.Context) { c.String(http.StatusOK, strings.Repeat("x", 4096)) })

	req := httptest.NewRequest(http.MethodGet, "/sse", nil)
	req.Header.Set("Accept-Encoding", "br")
	req.Header.Set("Accept", "text/event-stream")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") != "" || w.Body.Len() != 4096 {
		t.Fatalf("encoding = %q len = %d", w.Header().Get("Content-Encoding"), w.Body.Len())
	}
}
