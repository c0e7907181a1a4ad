package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/hostinfo"
	"github.com/stemsi/exstem-session/internal/response"
)

const (
	metricsInterval = 7 * time.Second
	healthTimeout   = 2 * time.Second
)

// SystemHandler serves the health check and streams host, runtime and
// persistence queue metrics to proctors.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	sampler   *hostinfo.Sampler
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		sampler:   hostinfo.NewSampler(),
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type hostMetrics struct {
	CPUModel       string  `json:"cpu_model"`
	NumCPU         int     `json:"num_cpu"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedBytes   uint64  `json:"mem_used_bytes"`
	MemTotalBytes  uint64  `json:"mem_total_bytes"`
	MemPercent     float64 `json:"mem_percent"`
	DiskUsedBytes  uint64  `json:"disk_used_bytes"`
	DiskTotalBytes uint64  `json:"disk_total_bytes"`
	DiskPercent    float64 `json:"disk_percent"`
	LoadAvg1       float64 `json:"load_avg_1"`
	LoadAvg5       float64 `json:"load_avg_5"`
	LoadAvg15      float64 `json:"load_avg_15"`
}

type runtimeMetrics struct {
	GoVersion   string `json:"go_version"`
	Goroutines  int    `json:"goroutines"`
	HeapAlloc   uint64 `json:"heap_alloc"`
	HeapSys     uint64 `json:"heap_sys"`
	StackInuse  uint64 `json:"stack_inuse"`
	NumGC       uint32 `json:"num_gc"`
	AppRSSBytes uint64 `json:"app_rss_bytes"`
}

// queueDepths is the backlog of each persistence worker.
type queueDepths struct {
	Progress      int64 `json:"progress"`
	Incidents     int64 `json:"incidents"`
	Submissions   int64 `json:"submissions"`
	QuestionOrder int64 `json:"question_order"`
}

type systemMetrics struct {
	Timestamp int64          `json:"timestamp"`
	Uptime    string         `json:"uptime"`
	Host      hostMetrics    `json:"host"`
	Runtime   runtimeMetrics `json:"runtime"`
	Queues    *queueDepths   `json:"queues,omitempty"`
}

type healthStatus struct {
	Status   string       `json:"status"`
	Postgres string       `json:"postgres"`
	Redis    string       `json:"redis"`
	Uptime   string       `json:"uptime"`
	Queues   *queueDepths `json:"queues,omitempty"`
}

// Health godoc
// GET /health
// Pings PostgreSQL and Redis. Answers 503 when either is unreachable.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	st := healthStatus{Status: "ok", Postgres: "ok", Redis: "ok", Uptime: formatDuration(time.Since(h.startTime))}
	if err := h.pool.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Health check: PostgreSQL unreachable")
		st.Status, st.Postgres = "degraded", "unreachable"
	}
	if q, err := h.queueDepths(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Health check: Redis unreachable")
		st.Status, st.Redis = "degraded", "unreachable"
	} else {
		st.Queues = q
	}

	code := http.StatusOK
	if st.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	response.Success(c, code, st)
}

// SystemMetricsSSE godoc
// GET /api/v1/proctor/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Proctor connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	for {
		c.SSEvent("message", h.collect(reqCtx))
		c.Writer.Flush()

		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Proctor disconnected from system metrics SSE")
			return
		case <-ticker.C:
		}
	}
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	snap := h.sampler.Sample()

	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		Uptime:    formatDuration(time.Since(h.startTime)),
		Host: hostMetrics{
			CPUModel:      h.sampler.CPUModel(),
			NumCPU:        runtime.NumCPU(),
			CPUPercent:    snap.CPUPercent,
			MemUsedBytes:  snap.MemUsed,
			MemTotalBytes: snap.MemTotal,
			MemPercent:    snap.MemPercent,
			LoadAvg1:      snap.Load1,
			LoadAvg5:      snap.Load5,
			LoadAvg15:     snap.Load15,
		},
	}

	if total, free, err := hostinfo.DiskUsage("/"); err == nil && total > 0 {
		m.Host.DiskTotalBytes = total
		m.Host.DiskUsedBytes = total - free
		m.Host.DiskPercent = float64(total-free) / float64(total) * 100
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Runtime = runtimeMetrics{
		GoVersion:   runtime.Version(),
		Goroutines:  runtime.NumGoroutine(),
		HeapAlloc:   ms.HeapAlloc,
		HeapSys:     ms.Sys,
		StackInuse:  ms.StackInuse,
		NumGC:       ms.NumGC,
		AppRSSBytes: snap.ProcessRSS,
	}

	if q, err := h.queueDepths(ctx); err == nil {
		m.Queues = q
	} else {
		h.log.Debug().Err(err).Msg("Failed to read queue depths")
	}
	return m
}

// queueDepths reads every persistence queue length in one round trip.
func (h *SystemHandler) queueDepths(ctx context.Context) (*queueDepths, error) {
	pipe := h.rdb.Pipeline()
	progress := pipe.LLen(ctx, config.WorkerKey.PersistProgressQueue)
	incidents := pipe.LLen(ctx, config.WorkerKey.PersistIncidentsQueue)
	submissions := pipe.LLen(ctx, config.WorkerKey.PersistSubmissionsQueue)
	order := pipe.LLen(ctx, config.WorkerKey.PersistQuestionOrderQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return &queueDepths{
		Progress:      progress.Val(),
		Incidents:     incidents.Val(),
		Submissions:   submissions.Val(),
		QuestionOrder: order.Val(),
	}, nil
}

func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	if days > 0 {
		return fmt.Sprintf("%dd %s", days, d)
	}
	return d.String()
}
