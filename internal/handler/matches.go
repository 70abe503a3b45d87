package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nrlengine/internal/repository"
)

// MatchHandler serves the truth-layer fixture rows and the assembled
// feature view used by prediction.
type MatchHandler struct {
	Repo repository.Repository
}

func (h *MatchHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/matches")
	group.GET("", h.listMatches)
	group.GET("/:match_id", h.getMatch)
	group.GET("/:match_id/features", h.getFeatures)
}

// @Summary List matches
// @Tags matches
// @Param season query int false "season"
// @Param round query int false "round"
// @Param resolved query bool false "resolved"
// @Param order_by query string false "order by field"
// @Param ascending query bool false "ascending"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/matches [get]
func (h *MatchHandler) listMatches(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	orderBy := parseOrder(c.Query("order_by"), map[string]string{
		"match_date": "match_date",
		"match_id":   "match_id",
		"round":      "round_num",
	})

	items, err := h.Repo.ListMatches(c.Request.Context(), repository.ListMatchesParams{
		Season:   intQueryPtr(c, "season"),
		Round:    intQueryPtr(c, "round"),
		Resolved: boolQueryPtr(c, "resolved"),
		OrderBy:  orderBy,
		Asc:      boolQueryPtr(c, "ascending"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	meta := paginationMeta(limit, offset, int64(len(items)))
	Ok(c, items, meta)
}

// @Summary Get one match with its price rollups
// @Tags matches
// @Param match_id path string true "match id"
// @Success 200 {object} apiResponse
// @Router /api/v1/matches/{match_id} [get]
func (h *MatchHandler) getMatch(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	matchID := strings.TrimSpace(c.Param("match_id"))
	match, err := h.Repo.GetMatch(c.Request.Context(), matchID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if match == nil {
		Error(c, http.StatusNotFound, "match not found", nil)
		return
	}
	odds, err := h.Repo.ListOddsByMatchIDs(c.Request.Context(), []string{matchID})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"match": match, "odds": odds}, nil)
}

// @Summary Get the assembled feature row for one match
// @Tags matches
// @Param match_id path string true "match id"
// @Success 200 {object} apiResponse
// @Router /api/v1/matches/{match_id}/features [get]
func (h *MatchHandler) getFeatures(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	row, err := h.Repo.FeatureRowForMatch(c.Request.Context(), c.Param("match_id"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if row == nil {
		Error(c, http.StatusNotFound, "match not found", nil)
		return
	}
	Ok(c, row, nil)
}

func parseOrder(value string, allow map[string]string) string {
	key := strings.TrimSpace(strings.ToLower(value))
	if key == "" {
		return ""
	}
	if mapped, ok := allow[key]; ok {
		return mapped
	}
	return ""
}
