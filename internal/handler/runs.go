package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nrlengine/internal/repository"
)

// RunHandler serves pipeline run manifests and per-source scraper
// observability rows.
type RunHandler struct {
	Repo repository.Repository
}

func (h *RunHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/runs")
	group.GET("", h.listManifests)
	group.GET("/scrapers", h.scraperStatus)
	group.GET("/scrapers/:run_id", h.scraperRuns)
}

func (h *RunHandler) listManifests(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListRunManifests(c.Request.Context(), intQuery(c, "limit", 20))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// scraperStatus returns the most recent run row per scraper, the at-a-glance
// ingest health view.
func (h *RunHandler) scraperStatus(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.LatestScraperStatus(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *RunHandler) scraperRuns(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	runID := strings.TrimSpace(c.Param("run_id"))
	items, err := h.Repo.ListScraperRuns(c.Request.Context(), runID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
