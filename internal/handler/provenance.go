package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nrlengine/internal/repository"
)

// ProvenanceHandler serves the append-only ingest lineage.
type ProvenanceHandler struct {
	Repo repository.Repository
}

func (h *ProvenanceHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/provenance", h.listProvenance)
}

// @Summary List provenance rows
// @Tags provenance
// @Param season query int false "season"
// @Param match_id query string false "match id"
// @Param source query string false "source name"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/provenance [get]
func (h *ProvenanceHandler) listProvenance(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	items, err := h.Repo.ListProvenance(c.Request.Context(), repository.ListProvenanceParams{
		Season:     intQueryPtr(c, "season"),
		MatchID:    strQueryPtr(c, "match_id"),
		SourceName: strQueryPtr(c, "source"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	meta := paginationMeta(limit, offset, int64(len(items)))
	Ok(c, items, meta)
}
