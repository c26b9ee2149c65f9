package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mezmur-app/mezmur-sync/internal/catalogue"
	"github.com/mezmur-app/mezmur-sync/internal/history"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
)

// CatalogueHandler serves the hymn index.
type CatalogueHandler struct {
	index   *catalogue.Index
	history *history.Cache
}

// NewCatalogueHandler creates a handler. history may be nil.
func NewCatalogueHandler(index *catalogue.Index, hist *history.Cache) *CatalogueHandler {
	return &CatalogueHandler{index: index, history: hist}
}

func (h *CatalogueHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/hymns", h.list)
	rg.GET("/hymns/:id", h.get)
	rg.GET("/sections", h.sections)
	rg.GET("/sections/:id/hymns", h.bySection)
	rg.GET("/sections/:id/featured", h.featured)
	rg.GET("/history", h.recent)
}

func (h *CatalogueHandler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, gin.H{"ok": true, "hymns": h.index.All()})
		return
	}

	if h.history != nil && limit <= 0 {
		if cached, ok := h.history.Suggestions(q); ok {
			c.JSON(http.StatusOK, gin.H{"ok": true, "hymns": cached})
			return
		}
	}

	hits := h.index.Search(q, limit)
	if h.history != nil {
		if limit <= 0 {
			h.history.SetSuggestions(q, hits)
		}
		if err := h.history.AddSearch(c.Request.Context(), q); err != nil {
			logging.FromContext(c.Request.Context(), "catalogue_http").Error("search", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "hymns": hits})
}

func (h *CatalogueHandler) get(c *gin.Context) {
	hymn, ok := h.index.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "hymn not found"})
		return
	}
	if h.history != nil {
		if err := h.history.AddHymn(c.Request.Context(), hymn.Hymn); err != nil {
			logging.FromContext(c.Request.Context(), "catalogue_http").Error("get", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "hymn": hymn})
}

func (h *CatalogueHandler) sections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "sections": h.index.Sections()})
}

func (h *CatalogueHandler) bySection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "hymns": h.index.BySection(c.Param("id"))})
}

func (h *CatalogueHandler) featured(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "hymns": h.index.FeaturedForFeast(c.Param("id"))})
}

func (h *CatalogueHandler) recent(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true, "searches": []string{}, "hymns": []history.Entry{}})
		return
	}
	ctx := c.Request.Context()
	searches, err := h.history.RecentSearches(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	hymns, err := h.history.Hymns(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "searches": searches, "hymns": hymns})
}
