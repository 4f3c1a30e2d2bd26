package handlers

import (
	"net/http"
	"time"

	"leadlynx/internal/database/models"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/scoring"
	"leadlynx/internal/tracking"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// LeadHandler serves visitor profiles and the administrative visitor operations
type LeadHandler struct {
	store       *repositories.Store
	engine      *scoring.Engine
	calc        *scoring.Calculator
	registry    *tracking.Registry
	blacklister *tracking.Blacklister
	rescorer    *tracking.Rescorer
	companies   tracking.CompanyLookup
	providers   tracking.ProviderList
	labels      tracking.Labels
	logger      *pterm.Logger
}

// LeadDeps groups what the lead endpoints need
type LeadDeps struct {
	Store       *repositories.Store
	Engine      *scoring.Engine
	Calculator  *scoring.Calculator
	Registry    *tracking.Registry
	Blacklister *tracking.Blacklister
	Rescorer    *tracking.Rescorer
	Companies   tracking.CompanyLookup
	Providers   tracking.ProviderList
	Labels      tracking.Labels
}

func NewLeadHandler(deps LeadDeps, logger *pterm.Logger) *LeadHandler {
	return &LeadHandler{
		store:       deps.Store,
		engine:      deps.Engine,
		calc:        deps.Calculator,
		registry:    deps.Registry,
		blacklister: deps.Blacklister,
		rescorer:    deps.Rescorer,
		companies:   deps.Companies,
		providers:   deps.Providers,
		labels:      deps.Labels,
		logger:      logger,
	}
}

// ScoreView is one category score of a visitor
type ScoreView struct {
	CategoryID uint   `json:"category_id"`
	Category   string `json:"category"`
	Scoring    int    `json:"scoring"`
}

// LeadSummary is a visitor line in lead lists
type LeadSummary struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	Identified    bool   `json:"identified"`
	Scoring       int    `json:"scoring"`
	ScoringByDate int    `json:"scoring_by_date"`
	Visits        int    `json:"visits"`
}

// VisitorProfile is the full view of one visitor
type VisitorProfile struct {
	LeadSummary
	Company         string            `json:"company,omitempty"`
	Location        string            `json:"location,omitempty"`
	Latitude        float64           `json:"latitude,omitempty"`
	Longitude       float64           `json:"longitude,omitempty"`
	IPAddress       string            `json:"ip_address,omitempty"`
	Description     string            `json:"description,omitempty"`
	Blacklisted     bool              `json:"blacklisted"`
	Fingerprints    []string          `json:"fingerprints"`
	Attributes      map[string]string `json:"attributes"`
	Ipinformations  map[string]string `json:"ipinformations"`
	HottestCategory *ScoreView        `json:"hottest_category,omitempty"`
	Categories      []ScoreView       `json:"categories"`
	Pagevisits      int               `json:"pagevisits"`
	Downloads       int               `json:"downloads"`
	Linkclicks      int               `json:"linkclicks"`
	UniqueVisits    int               `json:"unique_visits"`
	FirstVisit      *time.Time        `json:"first_visit,omitempty"`
	LastVisit       *time.Time        `json:"last_visit,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

func scoreView(cs *models.Categoryscoring) ScoreView {
	return ScoreView{CategoryID: cs.CategoryID, Category: cs.Category.Title, Scoring: cs.Scoring}
}

func (h *LeadHandler) summary(visitor *models.Visitor, name string, lastActivity time.Time) LeadSummary {
	return LeadSummary{
		ID:            visitor.ID,
		Name:          name,
		Email:         visitor.Email,
		Identified:    visitor.Identified,
		Scoring:       visitor.Scoring,
		ScoringByDate: h.calc.ScoreAt(visitor.Scoring, lastActivity, time.Now()),
		Visits:        visitor.Visits,
	}
}

func (h *LeadHandler) profile(c *gin.Context, agg *tracking.Aggregate) *VisitorProfile {
	lastVisit := agg.DateOfLastVisit()
	p := &VisitorProfile{
		LeadSummary:    h.summary(agg.Visitor, agg.FullName(h.labels), lastVisit),
		Company:        agg.Company(c.Request.Context(), h.companies, h.providers, h.logger),
		Location:       agg.Location(),
		Latitude:       agg.Latitude(),
		Longitude:      agg.Longitude(),
		IPAddress:      agg.Visitor.IPAddress,
		Description:    agg.Visitor.Description,
		Blacklisted:    agg.Visitor.Blacklisted,
		Fingerprints:   make([]string, 0, len(agg.Fingerprints)),
		Attributes:     make(map[string]string),
		Ipinformations: make(map[string]string),
		Categories:     make([]ScoreView, 0, len(agg.Categoryscorings)),
		Pagevisits:     len(agg.Pagevisits),
		Downloads:      len(agg.Downloads),
		Linkclicks:     len(agg.Linkclicks),
		UniqueVisits:   agg.CountUniqueVisits(),
		CreatedAt:      agg.Visitor.CreatedAt,
	}

	for _, fp := range agg.Fingerprints {
		p.Fingerprints = append(p.Fingerprints, fp.Value)
	}
	for _, attr := range agg.ImportantAttributes() {
		p.Attributes[attr.Name] = attr.Value
	}
	for _, info := range agg.ImportantIpinformations() {
		p.Ipinformations[info.Name] = info.Value
	}
	for _, cs := range agg.Categoryscorings {
		p.Categories = append(p.Categories, scoreView(cs))
	}
	if hottest := agg.HottestCategoryscoring(); hottest != nil {
		view := scoreView(hottest)
		p.HottestCategory = &view
	}
	if first := agg.FirstPagevisit(); first != nil {
		p.FirstVisit = &first.CreatedAt
	}
	if !lastVisit.IsZero() {
		p.LastVisit = &lastVisit
	}
	return p
}

// GetVisitor returns the visitor profile
func (h *LeadHandler) GetVisitor(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	agg, err := tracking.LoadAggregate(c.Request.Context(), h.store, id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load visitor")
		return
	}
	c.JSON(http.StatusOK, h.profile(c, agg))
}

// GetScores returns the ranked category scores of a visitor
func (h *LeadHandler) GetScores(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.Visitors.FindByID(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "Failed to load visitor")
		return
	}

	ranked, err := h.engine.RankedScores(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load scores")
		return
	}

	result := make([]ScoreView, len(ranked))
	for i, r := range ranked {
		result[i] = scoreView(r.Categoryscoring)
	}
	c.JSON(http.StatusOK, result)
}

// GetHottestCategory answers 204 when the visitor has no category scores
func (h *LeadHandler) GetHottestCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.Visitors.FindByID(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "Failed to load visitor")
		return
	}

	hottest, err := h.engine.HottestCategory(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load hottest category")
		return
	}
	if hottest == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, scoreView(hottest))
}

type scoreRequest struct {
	Value *int `json:"value" binding:"required"`
}

// SetScore overwrites one category score
func (h *LeadHandler) SetScore(c *gin.Context) {
	visitorID, ok := idParam(c, "id")
	if !ok {
		return
	}
	categoryID, ok := idParam(c, "category")
	if !ok {
		return
	}
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}

	change, err := h.engine.SetScore(c.Request.Context(), visitorID, categoryID, *req.Value)
	if err != nil {
		respondError(c, h.logger, err, "Failed to set score")
		return
	}
	c.JSON(http.StatusOK, change)
}

type incrementRequest struct {
	Delta *int `json:"delta" binding:"required"`
}

// IncrementScore adds a delta to one category score
func (h *LeadHandler) IncrementScore(c *gin.Context) {
	visitorID, ok := idParam(c, "id")
	if !ok {
		return
	}
	categoryID, ok := idParam(c, "category")
	if !ok {
		return
	}
	var req incrementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delta is required"})
		return
	}

	change, err := h.engine.Increment(c.Request.Context(), visitorID, categoryID, *req.Delta)
	if err != nil {
		respondError(c, h.logger, err, "Failed to increment score")
		return
	}
	c.JSON(http.StatusOK, change)
}

// Blacklist erases the visitor for good
func (h *LeadHandler) Blacklist(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	agg, err := h.blacklister.BlacklistByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to blacklist visitor")
		return
	}
	c.JSON(http.StatusOK, h.profile(c, agg))
}

// Merge folds the visitor into the target and returns the surviving profile
func (h *LeadHandler) Merge(c *gin.Context) {
	sourceID, ok := idParam(c, "id")
	if !ok {
		return
	}
	targetID, ok := idParam(c, "target")
	if !ok {
		return
	}

	merged, err := h.registry.MergeFingerprints(c.Request.Context(), sourceID, targetID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to merge visitors")
		return
	}

	agg, err := tracking.LoadAggregate(c.Request.Context(), h.store, merged.ID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load visitor")
		return
	}
	c.JSON(http.StatusOK, h.profile(c, agg))
}

// Rescore recomputes the stored total of one visitor
func (h *LeadHandler) Rescore(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	changed, err := h.rescorer.RescoreOne(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to rescore visitor")
		return
	}
	visitor, err := h.store.Visitors.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load visitor")
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed, "scoring": visitor.Scoring})
}

// GetHottestLeads ranks visitors by lead score
func (h *LeadHandler) GetHottestLeads(c *gin.Context) {
	limit := intQuery(c, "limit", 10, 100)

	leads, err := h.engine.HottestLeads(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load hottest leads")
		return
	}

	result := make([]LeadSummary, 0, len(leads))
	for _, lead := range leads {
		summary, err := h.leadSummary(c, lead)
		if err != nil {
			respondError(c, h.logger, err, "Failed to load hottest leads")
			return
		}
		result = append(result, summary)
	}
	c.JSON(http.StatusOK, result)
}

// GetHottestLead answers 204 for an empty population
func (h *LeadHandler) GetHottestLead(c *gin.Context) {
	lead, err := h.engine.HottestLead(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to load hottest lead")
		return
	}
	if lead == nil {
		c.Status(http.StatusNoContent)
		return
	}

	agg, err := tracking.LoadAggregate(c.Request.Context(), h.store, lead.ID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load hottest lead")
		return
	}
	c.JSON(http.StatusOK, h.profile(c, agg))
}

// leadSummary needs the attributes for the name and the last activity for decay
func (h *LeadHandler) leadSummary(c *gin.Context, visitor *models.Visitor) (LeadSummary, error) {
	ctx := c.Request.Context()
	attrs, err := h.store.Facts.LoadAttributes(ctx, visitor.ID)
	if err != nil {
		return LeadSummary{}, err
	}
	lastActivity, err := h.store.Facts.LastActivity(ctx, visitor.ID)
	if err != nil {
		return LeadSummary{}, err
	}
	agg := &tracking.Aggregate{Visitor: visitor, Attributes: attrs}
	return h.summary(visitor, agg.FullName(h.labels), lastActivity), nil
}
