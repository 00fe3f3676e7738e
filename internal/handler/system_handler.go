package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
)

const (
	metricsInterval = 7 * time.Second
	pingTimeout     = 2 * time.Second
)

// SystemHandler reports liveness and streams worker queue metrics via SSE.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	checks := gin.H{"postgres": "ok", "redis": "ok"}
	healthy := true
	if err := h.pool.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	if !healthy {
		h.log.Warn().Interface("checks", checks).Msg("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`

	QueueSnapshots int64 `json:"queue_snapshots"`
	QueueResults   int64 `json:"queue_results"`
}

// MetricsSSE godoc
// GET /api/v1/system/metrics
func (h *SystemHandler) MetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m := systemMetrics{
		Timestamp:  time.Now().Unix(),
		Uptime:     time.Since(h.startTime).Truncate(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		NumGC:      ms.NumGC,
		GoVersion:  runtime.Version(),
	}

	// ── Worker Queues (pipelined LLEN) ──
	pipe := h.rdb.Pipeline()
	snapshotsCmd := pipe.LLen(ctx, config.WorkerKey.PersistSnapshotsQueue)
	resultsCmd := pipe.LLen(ctx, config.WorkerKey.PersistResultsQueue)
	if _, err := pipe.Exec(ctx); err == nil {
		m.QueueSnapshots, _ = snapshotsCmd.Result()
		m.QueueResults, _ = resultsCmd.Result()
	} else {
		h.log.Debug().Err(err).Msg("Queue length query failed")
	}
	return m
}
