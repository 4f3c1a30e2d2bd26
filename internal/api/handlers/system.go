// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package handlers

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"leadlynx/internal/database"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/realtime"
	"leadlynx/internal/tracking"
	"leadlynx/internal/version"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// SystemHandler handles system statistics and maintenance requests
type SystemHandler struct {
	statsRepo      repositories.StatsRepository
	visitors       repositories.VisitorRepository
	cleanupService *database.CleanupService
	rescorer       *tracking.Rescorer
	metrics        *realtime.MetricsCollector
	logger         *pterm.Logger
	startTime      time.Time
	dbPath         string
	retentionDays  int
}

// SystemStats holds comprehensive system statistics
type SystemStats struct {
	// Process Info
	AppVersion    string  `json:"app_version"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	StartTime     string  `json:"start_time"`
	GoVersion     string  `json:"go_version"`
	NumCPU        int     `json:"num_cpu"`
	NumGoroutines int     `json:"num_goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemorySysMB   float64 `json:"memory_sys_mb"`
	GCPauseMs     float64 `json:"gc_pause_ms"`

	// Database Info
	TotalVisitors  int64   `json:"total_visitors"`
	StaleLogs      int64   `json:"stale_logs"`
	DatabaseSizeMB float64 `json:"database_size_mb"`
	DatabasePath   string  `json:"database_path"`

	// Cleanup Info
	RetentionDays        int    `json:"retention_days"`
	NextCleanupTime      string `json:"next_cleanup_time"`
	NextCleanupCountdown string `json:"next_cleanup_countdown"`
	LastCleanupTime      string `json:"last_cleanup_time"`
	LastCleanupDeleted   int64  `json:"last_cleanup_deleted"`

	// Activity
	OldestActivityAge string                     `json:"oldest_activity_age"`
	NewestActivityAge string                     `json:"newest_activity_age"`
	Ingestion         *realtime.IngestionMetrics `json:"ingestion,omitempty"`
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(
	statsRepo repositories.StatsRepository,
	visitors repositories.VisitorRepository,
	cleanupService *database.CleanupService,
	rescorer *tracking.Rescorer,
	metrics *realtime.MetricsCollector,
	logger *pterm.Logger,
	dbPath string,
	retentionDays int,
) *SystemHandler {
	return &SystemHandler{
		statsRepo:      statsRepo,
		visitors:       visitors,
		cleanupService: cleanupService,
		rescorer:       rescorer,
		metrics:        metrics,
		logger:         logger,
		startTime:      time.Now(),
		dbPath:         dbPath,
		retentionDays:  retentionDays,
	}
}

// GetSystemStats returns comprehensive system statistics
func (h *SystemHandler) GetSystemStats(c *gin.Context) {
	stats, err := h.collectSystemStats(c)
	if err != nil {
		h.logger.WithCaller().Error("Failed to collect system stats", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect system stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetIngestionMetrics returns the latest ingestion snapshot
func (h *SystemHandler) GetIngestionMetrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusOK, &realtime.IngestionMetrics{})
		return
	}
	if cached := h.metrics.GetCachedJSON(); cached != nil {
		c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
		return
	}
	c.JSON(http.StatusOK, h.metrics.GetMetrics())
}

// TriggerCleanup starts an unknown-visitor cleanup in the background
func (h *SystemHandler) TriggerCleanup(c *gin.Context) {
	if h.cleanupService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Cleanup is not configured"})
		return
	}
	if err := h.cleanupService.ManualCleanup(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cleanup started"})
}

// RunRescore recomputes stored totals, optionally resuming after a visitor ID
func (h *SystemHandler) RunRescore(c *gin.Context) {
	var after uint
	if raw := c.Query("after"); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after"})
			return
		}
		after = uint(value)
	}

	report, err := h.rescorer.Run(c.Request.Context(), after)
	if err != nil {
		h.logger.WithCaller().Error("Rescoring aborted", h.logger.Args("error", err, "last_id", report.LastID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Rescoring aborted", "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

// collectSystemStats gathers all system statistics
func (h *SystemHandler) collectSystemStats(c *gin.Context) (*SystemStats, error) {
	stats := &SystemStats{
		AppVersion:    version.Version,
		StartTime:     h.startTime.Format(time.RFC3339),
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		NumGoroutines: runtime.NumGoroutine(),
		DatabasePath:  h.dbPath,
		RetentionDays: h.retentionDays,
	}

	uptime := time.Since(h.startTime)
	stats.UptimeSeconds = int64(uptime.Seconds())
	stats.Uptime = formatDuration(uptime)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.MemoryAllocMB = float64(m.Alloc) / 1024 / 1024
	stats.MemorySysMB = float64(m.Sys) / 1024 / 1024
	stats.GCPauseMs = float64(m.PauseNs[(m.NumGC+255)%256]) / 1000000

	totalVisitors, err := h.visitors.Count(c.Request.Context())
	if err != nil {
		return nil, err
	}
	stats.TotalVisitors = totalVisitors

	if h.retentionDays > 0 {
		cutoffDate := time.Now().AddDate(0, 0, -h.retentionDays)
		staleLogs, err := h.statsRepo.CountLogsOlderThan(cutoffDate)
		if err != nil {
			h.logger.WithCaller().Warn("Failed to count stale logs", h.logger.Args("error", err))
		}
		stats.StaleLogs = staleLogs
	}

	if fileInfo, err := os.Stat(h.dbPath); err == nil {
		stats.DatabaseSizeMB = float64(fileInfo.Size()) / 1024 / 1024
	}

	if h.cleanupService != nil && h.retentionDays > 0 {
		cleanupStats := h.cleanupService.GetStats()
		stats.NextCleanupTime = cleanupStats.NextScheduledRun.Format(time.DateTime)
		stats.NextCleanupCountdown = formatDuration(time.Until(cleanupStats.NextScheduledRun))
		stats.LastCleanupDeleted = cleanupStats.VisitorsDeleted
		if cleanupStats.LastRunTime.IsZero() {
			stats.LastCleanupTime = "Never"
		} else {
			stats.LastCleanupTime = cleanupStats.LastRunTime.Format(time.DateTime)
		}
	}

	oldest, newest, err := h.statsRepo.GetLogTimeRange()
	if err != nil {
		h.logger.WithCaller().Warn("Failed to get activity range", h.logger.Args("error", err))
	} else {
		stats.OldestActivityAge = ageOf(oldest)
		stats.NewestActivityAge = ageOf(newest)
	}

	if h.metrics != nil {
		stats.Ingestion = h.metrics.GetMetrics()
	}

	return stats, nil
}

func ageOf(t time.Time) string {
	if t.IsZero() {
		return "No activity"
	}
	return formatDuration(time.Since(t))
}

// formatDuration formats a duration into a human-readable string
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return formatPlural(days, "day", hours, "hour")
	}
	if hours > 0 {
		return formatPlural(hours, "hour", minutes, "minute")
	}
	if minutes > 0 {
		return formatPlural(minutes, "minute", seconds, "second")
	}
	return formatPlural(seconds, "second", 0, "")
}

func formatPlural(n1 int, unit1 string, n2 int, unit2 string) string {
	result := formatSingle(n1, unit1)
	if n2 > 0 && unit2 != "" {
		result += ", " + formatSingle(n2, unit2)
	}
	return result
}

func formatSingle(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
