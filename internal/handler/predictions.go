package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"nrlengine/internal/repository"
)

// PredictionHandler serves the single current prediction view per match.
type PredictionHandler struct {
	Repo repository.Repository
}

func (h *PredictionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/predictions")
	group.GET("", h.listPredictions)
	group.GET("/:season/:round/:match_id", h.getPrediction)
}

// @Summary List predictions
// @Tags predictions
// @Param season query int false "season"
// @Param round query int false "round"
// @Param outcome_known query bool false "labeled only"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/predictions [get]
func (h *PredictionHandler) listPredictions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	items, err := h.Repo.ListPredictions(c.Request.Context(), repository.ListPredictionsParams{
		Season:       intQueryPtr(c, "season"),
		Round:        intQueryPtr(c, "round"),
		OutcomeKnown: boolQueryPtr(c, "outcome_known"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	meta := paginationMeta(limit, offset, int64(len(items)))
	Ok(c, items, meta)
}

// @Summary Get one prediction
// @Tags predictions
// @Param season path int true "season"
// @Param round path int true "round"
// @Param match_id path string true "match id"
// @Success 200 {object} apiResponse
// @Router /api/v1/predictions/{season}/{round}/{match_id} [get]
func (h *PredictionHandler) getPrediction(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	season, err := strconv.Atoi(c.Param("season"))
	if err != nil {
		Error(c, http.StatusBadRequest, "season must be an integer", nil)
		return
	}
	round, err := strconv.Atoi(c.Param("round"))
	if err != nil {
		Error(c, http.StatusBadRequest, "round must be an integer", nil)
		return
	}
	item, err := h.Repo.GetPrediction(c.Request.Context(), season, round, strings.TrimSpace(c.Param("match_id")))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "prediction not found", nil)
		return
	}
	Ok(c, item, nil)
}
