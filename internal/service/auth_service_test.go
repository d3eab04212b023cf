package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

type fakeClasses struct {
	classes []model.Class
	err     error
}

func (f fakeClasses) ListClasses(context.Context) ([]model.Class, error) {
	return f.classes, f.err
}

func testAuthConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &config.Config{
		JWTSecret:         "test-secret",
		JWTExpiry:         time.Hour,
		BcryptCost:        bcrypt.MinCost,
		AdminUsername:     "admin",
		AdminPasswordHash: string(hash),
	}
}

func TestStudentLoginRoundTrip(t *testing.T) {
	classes := fakeClasses{classes: []model.Class{{ID: "c1", Name: "XII RPL 1"}}}
	svc := NewAuthService(testAuthConfig(t), classes)

	resp, err := svc.StudentLogin(context.Background(), model.StudentLoginRequest{FullName: " Budi Santoso ", ClassName: "xii rpl 1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	user := claims.User()
	if user.DisplayName() != "Budi Santoso" || user.ClassName != "XII RPL 1" || !user.IsStudent() {
		t.Fatalf("user = %+v", user)
	}
}

func TestStudentLoginRejectsUnknownClass(t *testing.T) {
	classes := fakeClasses{classes: []model.Class{{ID: "c1", Name: "XII RPL 1"}}}
	svc := NewAuthService(testAuthConfig(t), classes)

	_, err := svc.StudentLogin(context.Background(), model.StudentLoginRequest{FullName: "Budi", ClassName: "X AKL 3"})
	if !errors.Is(err, ErrUnknownClass) {
		t.Fatalf("err = %v, want ErrUnknownClass", err)
	}
}

func TestStudentLoginWithoutClassCatalog(t *testing.T) {
	svc := NewAuthService(testAuthConfig(t), fakeClasses{})
	resp, err := svc.StudentLogin(context.Background(), model.StudentLoginRequest{FullName: "Budi", ClassName: "Any"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.User.ClassName != "Any" {
		t.Fatalf("class = %q", resp.User.ClassName)
	}
}

func TestStudentLoginRejectsPresenceSeparatorInClass(t *testing.T) {
	svc := NewAuthService(testAuthConfig(t), fakeClasses{})
	_, err := svc.StudentLogin(context.Background(), model.StudentLoginRequest{FullName: "Budi", ClassName: "XII|RPL"})
	if !errors.Is(err, ErrUnknownClass) {
		t.Fatalf("err = %v, want ErrUnknownClass", err)
	}
}

func TestAdminLogin(t *testing.T) {
	svc := NewAuthService(testAuthConfig(t), fakeClasses{})

	if _, err := svc.AdminLogin(model.AdminLoginRequest{Username: "admin", Password: "salah"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.AdminLogin(model.AdminLoginRequest{Username: "root", Password: "rahasia123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}

	resp, err := svc.AdminLogin(model.AdminLoginRequest{Username: "admin", Password: "rahasia123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.TokenType != TokenTypeAdmin || claims.User().IsStudent() {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestAdminLoginDisabledWithoutHash(t *testing.T) {
	cfg := testAuthConfig(t)
	cfg.AdminPasswordHash = ""
	svc := NewAuthService(cfg, fakeClasses{})
	if _, err := svc.AdminLogin(model.AdminLoginRequest{Username: "admin", Password: "whatever"}); !errors.Is(err, ErrAdminDisabled) {
		t.Fatalf("err = %v, want ErrAdminDisabled", err)
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	cfg := testAuthConfig(t)
	issuer := NewAuthService(cfg, fakeClasses{})
	resp, err := issuer.StudentLogin(context.Background(), model.StudentLoginRequest{FullName: "Budi", ClassName: "A"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	other := *cfg
	other.JWTSecret = "different"
	if _, err := NewAuthService(&other, fakeClasses{}).ValidateToken(resp.Token); err == nil {
		t.Fatal("token signed with another secret validated")
	}
}

func TestHashPasswordMatchesCheck(t *testing.T) {
	svc := NewAuthService(testAuthConfig(t), nil)
	hash, err := svc.HashPassword("rahasia123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := svc.CheckPassword(hash, "rahasia123"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := svc.CheckPassword(hash, "salah"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}
