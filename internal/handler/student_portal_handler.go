package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// StudentPortalHandler handles the student-facing REST endpoints used by thin
// clients that do not hold a WebSocket session.
type StudentPortalHandler struct {
	lobby     *service.LobbyService
	heartbeat service.HeartbeatSender
	classes   service.ClassLister
	now       func() time.Time
	log       zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	lobby *service.LobbyService,
	heartbeat service.HeartbeatSender,
	classes service.ClassLister,
	log zerolog.Logger,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		lobby:     lobby,
		heartbeat: heartbeat,
		classes:   classes,
		now:       time.Now,
		log:       logger.Component(log, "student_portal_handler"),
	}
}

// GetLobby godoc
// GET /api/v1/student/exams
// Returns the exams the student may join right now.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	exams, err := h.lobby.Discover(c.Request.Context(), claims.User(), h.now())
	if err != nil {
		h.log.Warn().Err(err).Msg("Lobby discovery failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrCatalogUnavailable)
		return
	}

	summaries := make([]model.ExamSummary, 0, len(exams))
	for i := range exams {
		summaries = append(summaries, exams[i].Summary())
	}
	response.Success(c, http.StatusOK, gin.H{"exams": summaries})
}

// Heartbeat godoc
// POST /api/v1/student/heartbeat
// Marks the student as online. Failures are not reported to the client.
func (h *StudentPortalHandler) Heartbeat(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user := claims.User()
	hb := model.Heartbeat{StudentName: user.DisplayName(), ClassName: user.Class(), At: h.now()}
	if err := h.heartbeat.SendHeartbeat(c.Request.Context(), hb); err != nil {
		h.log.Debug().Err(err).Str("student", hb.StudentName).Msg("Heartbeat dropped")
	}

	c.Status(http.StatusNoContent)
}

// ListClasses godoc
// GET /api/v1/public/classes
// Lists the classes offered on the login form.
func (h *StudentPortalHandler) ListClasses(c *gin.Context) {
	classes, err := h.classes.ListClasses(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("List classes failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrCatalogUnavailable)
		return
	}
	if classes == nil {
		classes = []model.Class{}
	}
	response.Success(c, http.StatusOK, gin.H{"classes": classes})
}
