package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"nrlengine/internal/repository"
)

// ModelHandler serves the model registry and fitted calibration params.
// DefaultModelKey backs requests that do not name a key explicitly.
type ModelHandler struct {
	Repo            repository.Repository
	DefaultModelKey string
}

func (h *ModelHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/models")
	group.GET("", h.listEntries)
	group.GET("/champion", h.getChampion)
	group.GET("/calibration/:season", h.getCalibration)
}

// @Summary List registry entries
// @Tags models
// @Param model_key query string false "model key"
// @Param limit query int false "limit"
// @Success 200 {object} apiResponse
// @Router /api/v1/models [get]
func (h *ModelHandler) listEntries(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	modelKey := strings.TrimSpace(c.Query("model_key"))
	if modelKey == "" {
		modelKey = h.DefaultModelKey
	}
	items, err := h.Repo.ListRegistryEntries(c.Request.Context(), modelKey, intQuery(c, "limit", 50))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"model_key": modelKey})
}

// @Summary Get the current champion
// @Tags models
// @Param model_key query string false "model key"
// @Success 200 {object} apiResponse
// @Router /api/v1/models/champion [get]
func (h *ModelHandler) getChampion(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	modelKey := strings.TrimSpace(c.Query("model_key"))
	if modelKey == "" {
		modelKey = h.DefaultModelKey
	}
	entry, err := h.Repo.GetChampion(c.Request.Context(), modelKey)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if entry == nil {
		Error(c, http.StatusNotFound, "no champion for model key", map[string]any{"model_key": modelKey})
		return
	}
	Ok(c, entry, nil)
}

// @Summary Get calibration params for a season
// @Tags models
// @Param season path int true "season"
// @Success 200 {object} apiResponse
// @Router /api/v1/models/calibration/{season} [get]
func (h *ModelHandler) getCalibration(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	season, err := strconv.Atoi(c.Param("season"))
	if err != nil {
		Error(c, http.StatusBadRequest, "season must be an integer", nil)
		return
	}
	params, err := h.Repo.GetCalibrationParams(c.Request.Context(), season)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if params == nil {
		Error(c, http.StatusNotFound, "no calibration fitted for season", nil)
		return
	}
	Ok(c, params, nil)
}
