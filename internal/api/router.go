package api

import (
	"net/http"
	"time"

	"leadlynx/internal/api/handlers"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// Handlers bundles every endpoint group. Nil groups are not mounted.
type Handlers struct {
	Track     *handlers.TrackHandler
	Leads     *handlers.LeadHandler
	Catalog   *handlers.CatalogHandler
	Dashboard *handlers.DashboardHandler
	System    *handlers.SystemHandler
	Realtime  *handlers.RealtimeHandler
}

// NewRouter wires the routes on a fresh gin engine
func NewRouter(h Handlers, logger *pterm.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Tracking endpoints are called cross-origin by the page script
	if h.Track != nil {
		track := router.Group("/track", cors())
		track.OPTIONS("", preflight)
		track.OPTIONS("/batch", preflight)
		track.POST("", h.Track.Track)
		track.POST("/batch", h.Track.TrackBatch)
	}

	api := router.Group("/api")

	if h.Leads != nil {
		api.GET("/leads/hottest", h.Leads.GetHottestLeads)
		api.GET("/leads/top", h.Leads.GetHottestLead)

		visitors := api.Group("/visitors/:id")
		visitors.GET("", h.Leads.GetVisitor)
		visitors.GET("/scores", h.Leads.GetScores)
		visitors.GET("/hottest-category", h.Leads.GetHottestCategory)
		visitors.PUT("/scores/:category", h.Leads.SetScore)
		visitors.POST("/scores/:category/increment", h.Leads.IncrementScore)
		visitors.POST("/blacklist", h.Leads.Blacklist)
		visitors.POST("/merge/:target", h.Leads.Merge)
		visitors.POST("/rescore", h.Leads.Rescore)
	}

	if h.Catalog != nil {
		catalog := api.Group("/catalog")
		catalog.GET("/categories", h.Catalog.ListCategories)
		catalog.POST("/categories", h.Catalog.CreateCategory)
		catalog.PUT("/pages/:id", h.Catalog.PutPage)
		catalog.PUT("/news/:id", h.Catalog.PutNews)
		catalog.PUT("/files", h.Catalog.PutFile)
		catalog.POST("/linklisteners", h.Catalog.CreateLinklistener)
		catalog.PUT("/redirects", h.Catalog.PutRedirect)
		catalog.GET("/ip-companies", h.Catalog.ListIPCompanies)
		catalog.PUT("/ip-companies", h.Catalog.PutIPCompany)
	}

	if h.Dashboard != nil {
		dashboard := api.Group("/dashboard")
		dashboard.GET("/summary", h.Dashboard.GetSummary)
		dashboard.GET("/pagevisits", h.Dashboard.GetPagevisitTimeline)
		dashboard.GET("/pagevisits/weekly", h.Dashboard.GetPagevisitsPerWeek)
		dashboard.GET("/downloads", h.Dashboard.GetDownloadTimeline)
		dashboard.GET("/identified/monthly", h.Dashboard.GetIdentifiedPerMonth)
		dashboard.GET("/top/pages", h.Dashboard.GetTopPages)
		dashboard.GET("/top/downloads", h.Dashboard.GetTopDownloads)
		dashboard.GET("/top/referrers", h.Dashboard.GetTopReferrers)
		dashboard.GET("/top/browsers", h.Dashboard.GetTopBrowsers)
		dashboard.GET("/top/categories", h.Dashboard.GetTopCategories)
	}

	if h.System != nil {
		system := api.Group("/system")
		system.GET("/stats", h.System.GetSystemStats)
		system.GET("/ingestion", h.System.GetIngestionMetrics)
		system.POST("/cleanup", h.System.TriggerCleanup)
		system.POST("/rescore", h.System.RunRescore)
	}

	if h.Realtime != nil {
		api.GET("/stream/ingestion", h.Realtime.StreamMetrics)
	}

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Next()
	}
}

func preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// requestLogger logs every request at trace level and server errors at warn level
func requestLogger(logger *pterm.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := logger.Args(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start).Round(time.Microsecond),
			"client_ip", c.ClientIP(),
		)
		if status >= http.StatusInternalServerError {
			logger.Warn("Request failed", args)
			return
		}
		logger.Trace("Request served", args)
	}
}
