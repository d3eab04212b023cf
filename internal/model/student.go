package model

import (
	"strings"
	"time"
)

// UnknownClass is used when a student identity carries no class.
const UnknownClass = "Unknown"

// Role distinguishes students from administrators.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

// User is an authenticated principal.
type User struct {
	Username  string `json:"username"`
	FullName  string `json:"full_name,omitempty"`
	ClassName string `json:"class_name,omitempty"`
	Role      Role   `json:"role"`
}

// IsStudent reports whether the user takes exams.
func (u User) IsStudent() bool {
	return u.Role == RoleStudent
}

// DisplayName is the name results are keyed on: full name, else username.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	return u.Username
}

// Class returns the class name or UnknownClass.
func (u User) Class() string {
	if u.ClassName == "" {
		return UnknownClass
	}
	return u.ClassName
}

// StudentLoginRequest is the payload for student authentication.
type StudentLoginRequest struct {
	FullName  string `json:"full_name" binding:"required,notblank,min=2,max=255"`
	ClassName string `json:"class_name" binding:"required,min=1,max=64,excludes=0x7C"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}
