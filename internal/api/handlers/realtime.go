package handlers

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"leadlynx/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/pterm/pterm"
)

const (
	// MaxSSEConnections is the maximum number of simultaneous SSE connections
	MaxSSEConnections = 100
)

// RealtimeHandler streams ingestion metrics to the dashboard
type RealtimeHandler struct {
	collector         *realtime.MetricsCollector
	logger            *pterm.Logger
	interval          time.Duration
	activeConnections int
	maxConnections    int
	connectionMutex   sync.Mutex
}

func NewRealtimeHandler(collector *realtime.MetricsCollector, logger *pterm.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		collector:      collector,
		logger:         logger,
		interval:       time.Second,
		maxConnections: MaxSSEConnections,
	}
}

func (h *RealtimeHandler) acquire() (int, bool) {
	h.connectionMutex.Lock()
	defer h.connectionMutex.Unlock()
	if h.activeConnections >= h.maxConnections {
		return h.activeConnections, false
	}
	h.activeConnections++
	return h.activeConnections, true
}

func (h *RealtimeHandler) release() {
	h.connectionMutex.Lock()
	h.activeConnections--
	h.connectionMutex.Unlock()
}

// StreamMetrics streams ingestion metrics via Server-Sent Events
func (h *RealtimeHandler) StreamMetrics(c *gin.Context) {
	current, ok := h.acquire()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Maximum concurrent connections reached. Please try again later."})
		return
	}
	defer func() {
		h.release()
		if r := recover(); r != nil {
			h.logger.Error("Panic in SSE stream", h.logger.Args("panic", r, "client_ip", c.ClientIP()))
		}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Debug("Client connected to ingestion metrics stream",
		h.logger.Args("client_ip", c.ClientIP(), "active_connections", current))

	for {
		select {
		case <-c.Request.Context().Done():
			h.logger.Debug("Ingestion metrics stream closed", h.logger.Args("client_ip", c.ClientIP()))
			return

		case <-ticker.C:
			// The collector caches the encoded snapshot, so every client shares one marshal
			data := h.collector.GetCachedJSON()
			if data == nil {
				var err error
				data, err = json.Marshal(h.collector.GetMetrics())
				if err != nil {
					h.logger.Error("Failed to marshal metrics", h.logger.Args("error", err))
					continue
				}
			}

			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
				h.logger.Debug("Failed to write SSE data", h.logger.Args("error", err))
				return
			}
			c.Writer.Flush()
		}
	}
}
