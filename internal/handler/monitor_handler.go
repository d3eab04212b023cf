package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

const (
	refreshTimeout   = 5 * time.Second // prevent slow reads from blocking the SSE loop
	minPushInterval  = time.Second
	defaultRefreshAt = 10 * time.Second
)

// PresenceFeed publishes every recorded heartbeat.
type PresenceFeed interface {
	Subscribe(ctx context.Context) *redis.PubSub
}

// MonitorHandler serves the admin analytics endpoints.
type MonitorHandler struct {
	monitor *service.MonitorService
	feed    PresenceFeed
	refresh time.Duration
	log     zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler. feed may be nil, in which
// case the presence stream only refreshes on its interval.
func NewMonitorHandler(monitor *service.MonitorService, feed PresenceFeed, refresh time.Duration, log zerolog.Logger) *MonitorHandler {
	if refresh <= 0 {
		refresh = defaultRefreshAt
	}
	return &MonitorHandler{
		monitor: monitor,
		feed:    feed,
		refresh: refresh,
		log:     logger.Component(log, "monitor_handler"),
	}
}

// GetStats godoc
// GET /api/v1/admin/stats
func (h *MonitorHandler) GetStats(c *gin.Context) {
	stats, err := h.monitor.GlobalStats(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Global stats failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrCatalogUnavailable)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// ListResults godoc
// GET /api/v1/admin/results?exam_id=&page=&per_page=
func (h *MonitorHandler) ListResults(c *gin.Context) {
	var q model.ResultQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	page, err := h.monitor.ListResults(c.Request.Context(), q)
	if err != nil {
		h.log.Warn().Err(err).Msg("List results failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrCatalogUnavailable)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, page.Results,
		response.NewPagination(page.Page, page.PerPage, page.Total))
}

// UpdateScore godoc
// PUT /api/v1/admin/results/score
// Records a score graded on an external form.
func (h *MonitorHandler) UpdateScore(c *gin.Context) {
	var req model.UpdateScoreRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	key := model.ResultKey{ExamID: req.ExamID, StudentName: req.StudentName}
	if err := h.monitor.SyncExternalScore(c.Request.Context(), key, *req.Score); err != nil {
		status, code, known := classify(err)
		if !known {
			h.log.Error().Err(err).Msg("Score sync failed")
		}
		response.Fail(c, status, code)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam_id": req.ExamID, "student_name": req.StudentName, "score": *req.Score})
}

// PresenceStream godoc
// GET /api/v1/admin/presence/stream
// Streams the online list on every refresh interval and after heartbeats.
func (h *MonitorHandler) PresenceStream(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	var beats <-chan *redis.Message
	if h.feed != nil {
		pubsub := h.feed.Subscribe(reqCtx)
		defer pubsub.Close()
		beats = pubsub.Channel()
	}

	refreshTicker := time.NewTicker(h.refresh)
	defer refreshTicker.Stop()
	pushTicker := time.NewTicker(minPushInterval)
	defer pushTicker.Stop()

	h.log.Info().Msg("Admin attached to presence stream")

	h.sendPresence(c, reqCtx)
	dirty := false
	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin detached from presence stream")
			return
		case _, ok := <-beats:
			if !ok {
				beats = nil
				continue
			}
			// Heartbeats arrive per student; coalesce them to one push per second.
			dirty = true
		case <-pushTicker.C:
			if dirty {
				dirty = false
				h.sendPresence(c, reqCtx)
			}
		case <-refreshTicker.C:
			dirty = false
			h.sendPresence(c, reqCtx)
		}
	}
}

func (h *MonitorHandler) sendPresence(c *gin.Context, parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	online, err := h.monitor.OnlineStudents(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("Presence refresh failed")
		return
	}
	if online == nil {
		online = []model.OnlineStudent{}
	}

	c.SSEvent("presence", gin.H{
		"online_students": len(online),
		"students":        online,
		"at":              time.Now().UTC(),
	})
	c.Writer.Flush()
}
