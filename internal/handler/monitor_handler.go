package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// examInfo is the exam header of a relay snapshot.
type examInfo struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Duration       int       `json:"duration"`
	TotalQuestions int       `json:"total_questions"`
}

type monitorSnapshot struct {
	Type string   `json:"type"`
	Exam examInfo `json:"exam"`
	*service.ExamProgressSnapshot
}

type monitorRefresh struct {
	Type string `json:"type"`
	*service.ExamProgressSnapshot
}

type MonitorHandler struct {
	rdb            *redis.Client
	examService    *service.ExamService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(
	rdb *redis.Client,
	examService *service.ExamService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		examService:    examService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// ExamIncidentsSSE godoc
// GET /api/v1/proctor/exams/:exam_id/incidents
// Sends a snapshot of the exam's attempts, then relays the exam monitor channel
// (incidents, joins, submissions) verbatim, with periodic refreshes.
func (h *MonitorHandler) ExamIncidentsSSE(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetExam(c.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to load exam for monitor")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	reqCtx := c.Request.Context()

	// Subscribe before the snapshot so no event falls between the two.
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	info := examInfo{
		ID:             examID,
		Title:          exam.Definition.Title,
		Duration:       exam.Definition.DurationSeconds,
		TotalQuestions: len(exam.Definition.Questions),
	}
	if snap, err := h.progress(reqCtx, examID); err == nil {
		c.SSEvent("message", monitorSnapshot{Type: "snapshot", Exam: info, ExamProgressSnapshot: snap})
		c.Writer.Flush()
	} else {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to build monitor snapshot")
	}

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Proctor attached to incident relay")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Proctor detached from incident relay")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward raw JSON directly, no deserialization needed
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			snap, err := h.progress(reqCtx, examID)
			if err != nil {
				h.log.Warn().Err(err).Msg("Failed to fetch exam progress for refresh")
				continue
			}
			c.SSEvent("message", monitorRefresh{Type: "refresh", ExamProgressSnapshot: snap})
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: {\"type\":\"ping\"}\n\n"))
			c.Writer.Flush()
		}
	}
}

// progress fetches the attempt table with a scoped timeout.
func (h *MonitorHandler) progress(parent context.Context, examID uuid.UUID) (*service.ExamProgressSnapshot, error) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()
	return h.monitorService.GetExamProgress(ctx, examID)
}
