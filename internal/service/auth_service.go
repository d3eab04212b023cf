package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownClass       = errors.New("class is not registered")
	ErrAdminDisabled      = errors.New("admin login is not configured")
)

// TokenType distinguishes student vs admin tokens.
type TokenType string

const (
	TokenTypeStudent TokenType = "student"
	TokenTypeAdmin   TokenType = "admin"
)

// Claims extends JWT standard claims with the session identity.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	FullName  string    `json:"full_name,omitempty"`  // Student only
	ClassName string    `json:"class_name,omitempty"` // Student only
}

// User rebuilds the principal carried by the token.
func (c *Claims) User() model.User {
	u := model.User{
		Username:  c.Subject,
		FullName:  c.FullName,
		ClassName: c.ClassName,
		Role:      model.RoleStudent,
	}
	if c.TokenType == TokenTypeAdmin {
		u.Role = model.RoleAdmin
	}
	return u
}

// ClassLister lists the classes students may log in with.
type ClassLister interface {
	ListClasses(ctx context.Context) ([]model.Class, error)
}

// AuthService handles login and JWT issuance.
type AuthService struct {
	cfg     *config.Config
	classes ClassLister
	now     func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, classes ClassLister) *AuthService {
	return &AuthService{cfg: cfg, classes: classes, now: time.Now}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// StudentLogin identifies a student by full name and class. When the catalog
// has classes the class must be one of them.
func (s *AuthService) StudentLogin(ctx context.Context, req model.StudentLoginRequest) (*model.LoginResponse, error) {
	name := strings.TrimSpace(req.FullName)
	class := strings.TrimSpace(req.ClassName)
	if name == "" {
		return nil, ErrInvalidCredentials
	}
	if strings.Contains(class, "|") {
		return nil, ErrUnknownClass
	}

	classes, err := s.classes.ListClasses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	if len(classes) > 0 {
		found := false
		for _, c := range classes {
			if strings.EqualFold(c.Name, class) {
				class = c.Name
				found = true
				break
			}
		}
		if !found {
			return nil, ErrUnknownClass
		}
	}

	user := model.User{Username: name, FullName: name, ClassName: class, Role: model.RoleStudent}
	return s.issue(user, TokenTypeStudent)
}

// AdminLogin checks the configured admin credential.
func (s *AuthService) AdminLogin(req model.AdminLoginRequest) (*model.LoginResponse, error) {
	if s.cfg.AdminPasswordHash == "" {
		return nil, ErrAdminDisabled
	}
	if req.Username != s.cfg.AdminUsername {
		return nil, ErrInvalidCredentials
	}
	if err := s.CheckPassword(s.cfg.AdminPasswordHash, req.Password); err != nil {
		return nil, err
	}

	user := model.User{Username: req.Username, Role: model.RoleAdmin}
	return s.issue(user, TokenTypeAdmin)
}

func (s *AuthService) issue(user model.User, tt TokenType) (*model.LoginResponse, error) {
	now := s.now()
	expires := now.Add(s.cfg.JWTExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		TokenType: tt,
		FullName:  user.FullName,
		ClassName: user.ClassName,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &model.LoginResponse{Token: signed, ExpiresAt: expires, User: user}, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
