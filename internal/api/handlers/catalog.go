package handlers

import (
	"context"
	"net/http"

	"leadlynx/internal/database/models"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/errs"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// Reloader is implemented by caches built from catalog content
type Reloader interface {
	Reload(ctx context.Context) error
}

// CatalogHandler registers the CMS content that tags tracked facts with categories
type CatalogHandler struct {
	catalog   repositories.CatalogRepository
	companies Reloader
	logger    *pterm.Logger
}

func NewCatalogHandler(catalog repositories.CatalogRepository, companies Reloader, logger *pterm.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, companies: companies, logger: logger}
}

type categoryRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}

type contentRequest struct {
	Title      string `json:"title" binding:"max=255"`
	CategoryID *uint  `json:"category_id"`
}

type fileRequest struct {
	Href       string `json:"href" binding:"required,max=1024"`
	Title      string `json:"title" binding:"max=255"`
	CategoryID *uint  `json:"category_id"`
}

type linklistenerRequest struct {
	Title      string `json:"title" binding:"max=255"`
	Link       string `json:"link"`
	CategoryID *uint  `json:"category_id"`
}

type redirectRequest struct {
	Hash       string `json:"hash" binding:"required,max=64"`
	Target     string `json:"target" binding:"required,url"`
	CategoryID *uint  `json:"category_id"`
}

type ipCompanyRequest struct {
	CIDR    string `json:"cidr" binding:"required,cidr|ip"`
	Company string `json:"company" binding:"required,max=255"`
}

func (h *CatalogHandler) bind(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// checkCategory turns an unknown category reference into a validation error
func (h *CatalogHandler) checkCategory(c *gin.Context, categoryID *uint) bool {
	if categoryID == nil {
		return true
	}
	if _, err := h.catalog.FindCategory(c.Request.Context(), *categoryID); err != nil {
		if errs.IsNotFound(err) {
			err = errs.Validation("category_id", "unknown category")
		}
		respondError(c, h.logger, err, "Failed to check category")
		return false
	}
	return true
}

func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to list categories")
		return
	}
	result := make([]gin.H, len(categories))
	for i, category := range categories {
		result[i] = gin.H{"id": category.ID, "title": category.Title}
	}
	c.JSON(http.StatusOK, result)
}

func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if !h.bind(c, &req) {
		return
	}
	category := &models.Category{Title: req.Title}
	if err := h.catalog.AddCategory(c.Request.Context(), category); err != nil {
		respondError(c, h.logger, err, "Failed to create category")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": category.ID, "title": category.Title})
}

// PutPage registers a CMS page under its own ID
func (h *CatalogHandler) PutPage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req contentRequest
	if !h.bind(c, &req) || !h.checkCategory(c, req.CategoryID) {
		return
	}
	page := &models.Page{ID: id, Title: req.Title, CategoryID: req.CategoryID}
	if err := h.catalog.SavePage(c.Request.Context(), page); err != nil {
		respondError(c, h.logger, err, "Failed to save page")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": page.ID, "title": page.Title, "category_id": page.CategoryID})
}

// PutNews registers a CMS news record under its own ID
func (h *CatalogHandler) PutNews(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req contentRequest
	if !h.bind(c, &req) || !h.checkCategory(c, req.CategoryID) {
		return
	}
	news := &models.News{ID: id, Title: req.Title, CategoryID: req.CategoryID}
	if err := h.catalog.SaveNews(c.Request.Context(), news); err != nil {
		respondError(c, h.logger, err, "Failed to save news")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": news.ID, "title": news.Title, "category_id": news.CategoryID})
}

func (h *CatalogHandler) PutFile(c *gin.Context) {
	var req fileRequest
	if !h.bind(c, &req) || !h.checkCategory(c, req.CategoryID) {
		return
	}
	file := &models.File{Href: req.Href, Title: req.Title, CategoryID: req.CategoryID}
	if err := h.catalog.SaveFile(c.Request.Context(), file); err != nil {
		respondError(c, h.logger, err, "Failed to save file")
		return
	}
	saved, err := h.catalog.FindFileByHref(c.Request.Context(), req.Href)
	if err != nil {
		respondError(c, h.logger, err, "Failed to save file")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": saved.ID, "href": saved.Href, "title": saved.Title, "category_id": saved.CategoryID})
}

func (h *CatalogHandler) CreateLinklistener(c *gin.Context) {
	var req linklistenerRequest
	if !h.bind(c, &req) || !h.checkCategory(c, req.CategoryID) {
		return
	}
	listener := &models.Linklistener{Title: req.Title, Link: req.Link, CategoryID: req.CategoryID}
	if err := h.catalog.SaveLinklistener(c.Request.Context(), listener); err != nil {
		respondError(c, h.logger, err, "Failed to save link listener")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": listener.ID, "title": listener.Title, "category_id": listener.CategoryID})
}

func (h *CatalogHandler) PutRedirect(c *gin.Context) {
	var req redirectRequest
	if !h.bind(c, &req) || !h.checkCategory(c, req.CategoryID) {
		return
	}
	redirect := &models.Redirect{Hash: req.Hash, Target: req.Target, CategoryID: req.CategoryID}
	if err := h.catalog.SaveRedirect(c.Request.Context(), redirect); err != nil {
		respondError(c, h.logger, err, "Failed to save redirect")
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": redirect.Hash, "target": redirect.Target, "category_id": redirect.CategoryID})
}

func (h *CatalogHandler) ListIPCompanies(c *gin.Context) {
	companies, err := h.catalog.ListIPCompanies(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to list ip companies")
		return
	}
	result := make([]gin.H, len(companies))
	for i, company := range companies {
		result[i] = gin.H{"cidr": company.CIDR, "company": company.Company}
	}
	c.JSON(http.StatusOK, result)
}

// PutIPCompany stores the range and refreshes the in-memory directory
func (h *CatalogHandler) PutIPCompany(c *gin.Context) {
	var req ipCompanyRequest
	if !h.bind(c, &req) {
		return
	}
	company := &models.IPCompany{CIDR: req.CIDR, Company: req.Company}
	if err := h.catalog.SaveIPCompany(c.Request.Context(), company); err != nil {
		respondError(c, h.logger, err, "Failed to save ip company")
		return
	}
	if h.companies != nil {
		if err := h.companies.Reload(c.Request.Context()); err != nil {
			h.logger.Warn("Failed to reload company directory", h.logger.Args("error", err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"cidr": company.CIDR, "company": company.Company})
}
