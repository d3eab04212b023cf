package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         logger.Component(log, "auth_handler"),
	}
}

// StudentLogin godoc
// POST /api/v1/auth/student/login
// Identifies a student by full name and class and returns a JWT.
func (h *AuthHandler) StudentLogin(c *gin.Context) {
	var req model.StudentLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.authService.StudentLogin(c.Request.Context(), req)
	if err != nil {
		status, code, known := classify(err)
		if !known {
			h.log.Error().Err(err).Msg("Student login failed")
		}
		response.Fail(c, status, code)
		return
	}

	h.log.Info().Str("student", resp.User.DisplayName()).Str("class", resp.User.Class()).Msg("Student logged in")
	response.Success(c, http.StatusOK, resp)
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Checks the configured admin credential and returns a JWT.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.authService.AdminLogin(req)
	if err != nil {
		status, code, _ := classify(err)
		h.log.Warn().Str("username", req.Username).Msg("Admin login rejected")
		response.Fail(c, status, code)
		return
	}

	response.Success(c, http.StatusOK, resp)
}

// Me godoc
// GET /api/v1/auth/me
// Returns the principal carried by the token.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user := claims.User()
	response.Success(c, http.StatusOK, gin.H{
		"user":         user,
		"display_name": user.DisplayName(),
		"class_name":   user.Class(),
	})
}
