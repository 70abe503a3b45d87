package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nrlengine/internal/repository"
)

// QualityHandler serves persisted gate verdicts. Reports are append-only;
// the latest row covering a season is the authoritative verdict.
type QualityHandler struct {
	Repo repository.Repository
}

func (h *QualityHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/quality")
	group.GET("/reports", h.listReports)
	group.GET("/latest", h.latestForSeason)
}

// @Summary List quality reports
// @Tags quality
// @Param limit query int false "limit"
// @Success 200 {object} apiResponse
// @Router /api/v1/quality/reports [get]
func (h *QualityHandler) listReports(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListQualityReports(c.Request.Context(), intQuery(c, "limit", 20))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Latest quality verdict covering a season
// @Tags quality
// @Param season query int true "season"
// @Success 200 {object} apiResponse
// @Router /api/v1/quality/latest [get]
func (h *QualityHandler) latestForSeason(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	season := intQueryPtr(c, "season")
	if season == nil {
		Error(c, http.StatusBadRequest, "season query param is required", nil)
		return
	}
	report, err := h.Repo.LatestQualityReportForSeason(c.Request.Context(), *season)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if report == nil {
		Error(c, http.StatusNotFound, "no quality report covers season", nil)
		return
	}
	Ok(c, report, nil)
}
