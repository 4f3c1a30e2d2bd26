package handlers

import (
	"net/http"

	"leadlynx/internal/database/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// DashboardHandler serves the dashboard widgets
type DashboardHandler struct {
	statsRepo repositories.StatsRepository
	logger    *pterm.Logger
}

func NewDashboardHandler(statsRepo repositories.StatsRepository, logger *pterm.Logger) *DashboardHandler {
	return &DashboardHandler{statsRepo: statsRepo, logger: logger}
}

func daysQuery(c *gin.Context) int {
	return intQuery(c, "days", repositories.DefaultLookbackDays, 365)
}

func limitQuery(c *gin.Context) int {
	return intQuery(c, "limit", 10, 100)
}

func (h *DashboardHandler) GetSummary(c *gin.Context) {
	summary, err := h.statsRepo.GetSummary(daysQuery(c))
	if err != nil {
		h.logger.Debug("Summary widget fetch error", h.logger.Args("error", err))
		c.JSON(http.StatusOK, gin.H{
			"status":               "error",
			"visitors":             0,
			"identified_visitors":  0,
			"recurring_visitors":   0,
			"blacklisted_visitors": 0,
			"pagevisits":           0,
			"downloads":            0,
			"linkclicks":           0,
			"new_visitors":         0,
		})
		return
	}

	identifiedRate := 0.0
	if summary.Visitors > 0 {
		identifiedRate = float64(summary.IdentifiedVisitors) / float64(summary.Visitors) * 100
	}

	c.JSON(http.StatusOK, gin.H{
		"status":               "ok",
		"visitors":             summary.Visitors,
		"identified_visitors":  summary.IdentifiedVisitors,
		"identified_rate":      identifiedRate,
		"recurring_visitors":   summary.RecurringVisitors,
		"blacklisted_visitors": summary.BlacklistedVisitors,
		"pagevisits":           summary.Pagevisits,
		"downloads":            summary.Downloads,
		"linkclicks":           summary.Linkclicks,
		"new_visitors":         summary.NewVisitors,
	})
}

// timeline widgets degrade to an empty series, like the rest of the dashboard
func (h *DashboardHandler) timeline(c *gin.Context, name string, fetch func() ([]*repositories.TimelineData, error)) {
	timeline, err := fetch()
	if err != nil {
		h.logger.Debug("Timeline widget fetch error", h.logger.Args("widget", name, "error", err))
		c.JSON(http.StatusOK, []interface{}{})
		return
	}
	c.JSON(http.StatusOK, timeline)
}

func (h *DashboardHandler) GetPagevisitTimeline(c *gin.Context) {
	d := daysQuery(c)
	h.timeline(c, "pagevisits", func() ([]*repositories.TimelineData, error) {
		return h.statsRepo.GetPagevisitTimeline(d)
	})
}

func (h *DashboardHandler) GetPagevisitsPerWeek(c *gin.Context) {
	weeks := intQuery(c, "weeks", 12, 104)
	h.timeline(c, "pagevisits_per_week", func() ([]*repositories.TimelineData, error) {
		return h.statsRepo.GetPagevisitsPerWeek(weeks)
	})
}

func (h *DashboardHandler) GetDownloadTimeline(c *gin.Context) {
	d := daysQuery(c)
	h.timeline(c, "downloads", func() ([]*repositories.TimelineData, error) {
		return h.statsRepo.GetDownloadTimeline(d)
	})
}

func (h *DashboardHandler) GetIdentifiedPerMonth(c *gin.Context) {
	months := intQuery(c, "months", 12, 60)
	h.timeline(c, "identified_per_month", func() ([]*repositories.TimelineData, error) {
		return h.statsRepo.GetIdentifiedPerMonth(months)
	})
}

func (h *DashboardHandler) GetTopPages(c *gin.Context) {
	pages, err := h.statsRepo.GetTopPages(daysQuery(c), limitQuery(c))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get top pages")
		return
	}
	c.JSON(http.StatusOK, pages)
}

func (h *DashboardHandler) GetTopDownloads(c *gin.Context) {
	downloads, err := h.statsRepo.GetTopDownloads(daysQuery(c), limitQuery(c))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get top downloads")
		return
	}
	c.JSON(http.StatusOK, downloads)
}

func (h *DashboardHandler) GetTopReferrers(c *gin.Context) {
	referrers, err := h.statsRepo.GetTopReferrers(daysQuery(c), limitQuery(c))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get top referrers")
		return
	}
	c.JSON(http.StatusOK, referrers)
}

func (h *DashboardHandler) GetTopBrowsers(c *gin.Context) {
	browsers, err := h.statsRepo.GetTopBrowsers(daysQuery(c), limitQuery(c))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get top browsers")
		return
	}
	c.JSON(http.StatusOK, browsers)
}

func (h *DashboardHandler) GetTopCategories(c *gin.Context) {
	categories, err := h.statsRepo.GetTopCategories(limitQuery(c))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get top categories")
		return
	}
	c.JSON(http.StatusOK, categories)
}
