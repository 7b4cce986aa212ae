package diag

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/relay"
)

// Service is the read-only surface the REST layer consumes from the relay.
type Service interface {
	Stats() relay.Stats
	Healthy() bool
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the diagnostics routes on the router.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/stats", h.GetStats)
	api.GET("/health", h.GetHealth)
}

func (h *Handler) GetStats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"error": nil,
		"data":  h.svc.Stats(),
	})
}

// GetHealth serves liveness probes: 200 while the upstream feed is
// connected and fresh, 503 otherwise.
func (h *Handler) GetHealth(ctx *gin.Context) {
	if h.svc.Healthy() {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
}
