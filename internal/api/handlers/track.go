package handlers

import (
	"io"
	"net/http"

	"leadlynx/internal/errs"
	"leadlynx/internal/ingestion"
	"leadlynx/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/pterm/pterm"
)

const (
	// MaxTrackBody bounds a single tracking request
	MaxTrackBody = 64 << 10
	// MaxBatchBody bounds a batch request
	MaxBatchBody = 1 << 20
	// MaxBatchEvents is the largest accepted batch
	MaxBatchEvents = 100
)

// TrackHandler is the public endpoint the tracking script posts to
type TrackHandler struct {
	gateway *ingestion.Gateway
	logger  *pterm.Logger
}

func NewTrackHandler(gateway *ingestion.Gateway, logger *pterm.Logger) *TrackHandler {
	return &TrackHandler{gateway: gateway, logger: logger}
}

func meta(c *gin.Context) ingestion.Meta {
	return ingestion.Meta{
		UserAgent: c.Request.UserAgent(),
		ClientIP:  c.ClientIP(),
	}
}

func readBody(c *gin.Context, limit int64, target interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		return errs.Validation("body", "too large or unreadable")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errs.Validation("body", "malformed json")
	}
	return nil
}

// Track answers with the workflow directives of one event. Internal failures
// degrade to an empty directive list so the page keeps working.
func (h *TrackHandler) Track(c *gin.Context) {
	var req ingestion.Request
	if err := readBody(c, MaxTrackBody, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tracking request"})
		return
	}

	directives, err := h.gateway.Handle(c.Request.Context(), req, meta(c))
	if err != nil {
		if errs.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tracking request"})
			return
		}
		directives = nil
	}
	if directives == nil {
		directives = []workflow.Directive{}
	}
	c.JSON(http.StatusOK, directives)
}

// TrackBatch processes every event of the array on its own
func (h *TrackHandler) TrackBatch(c *gin.Context) {
	var reqs []ingestion.Request
	if err := readBody(c, MaxBatchBody, &reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tracking batch"})
		return
	}
	if len(reqs) > MaxBatchEvents {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many events in batch"})
		return
	}

	c.JSON(http.StatusOK, h.gateway.HandleBatch(c.Request.Context(), reqs, meta(c)))
}
