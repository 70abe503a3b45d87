package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"nrlengine/internal/schema"
)

// RelationChecker is the slice of the store the readiness probe needs.
type RelationChecker interface {
	RelationExists(ctx context.Context, schemaName, table string) (bool, error)
}

type HealthHandler struct {
	DB   *gorm.DB
	Repo RelationChecker
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Readiness check
// @Description Ready means the database answers and the truth schema has been applied.
// @Tags health
// @Success 200 {object} map[string]string
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	if h.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_missing"})
		return
	}
	sqlDB, err := h.DB.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_error"})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	if h.Repo != nil {
		ok, err := h.Repo.RelationExists(c.Request.Context(), schema.Active().TruthSchema, "matches_raw")
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "schema_check_failed"})
			return
		}
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "schema_missing"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
