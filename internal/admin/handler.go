package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"spinevision-backend/internal/shared/server/respond"
	"spinevision-backend/internal/uploads"
)

// Handler exposes read-only system-wide aggregates for operators.
type Handler struct {
	Repo uploads.Repo
}

// NewHandler constructs a Handler.
func NewHandler(repo uploads.Repo) *Handler {
	return &Handler{Repo: repo}
}

// RegisterRoutes attaches admin routes to the router group. The group
// is expected to carry the admin role check.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/admin/stats", h.stats)
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.Repo.StatsGlobal(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to compute statistics", nil)
		return
	}
	respond.JSON(c, http.StatusOK, stats)
}
