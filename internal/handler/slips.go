package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nrlengine/internal/repository"
)

// SlipHandler serves the staking ledger. Read-only; slips are written by
// the decision pipeline and settled by the labeler.
type SlipHandler struct {
	Repo repository.Repository
}

func (h *SlipHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/slips")
	group.GET("", h.listSlips)
	group.GET("/:portfolio_id", h.getSlip)
}

// @Summary List slips
// @Tags slips
// @Param season query int false "season"
// @Param round query int false "round"
// @Param status query string false "pending|dry_run|settled|void"
// @Param match_id query string false "match id"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/slips [get]
func (h *SlipHandler) listSlips(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	items, err := h.Repo.ListSlips(c.Request.Context(), repository.ListSlipsParams{
		Season:  intQueryPtr(c, "season"),
		Round:   intQueryPtr(c, "round"),
		Status:  strQueryPtr(c, "status"),
		MatchID: strQueryPtr(c, "match_id"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	meta := paginationMeta(limit, offset, int64(len(items)))
	Ok(c, items, meta)
}

// @Summary Get one slip
// @Tags slips
// @Param portfolio_id path string true "portfolio id"
// @Success 200 {object} apiResponse
// @Router /api/v1/slips/{portfolio_id} [get]
func (h *SlipHandler) getSlip(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	slip, err := h.Repo.GetSlip(c.Request.Context(), strings.TrimSpace(c.Param("portfolio_id")))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if slip == nil {
		Error(c, http.StatusNotFound, "slip not found", nil)
		return
	}
	Ok(c, slip, nil)
}
