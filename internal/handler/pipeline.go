package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ipotracker/internal/repository"
	"ipotracker/internal/runlog"
	"ipotracker/internal/service"
)

// PipelineHandler exposes each pipeline stage as an independent trigger.
type PipelineHandler struct {
	Discovery      *service.DiscoveryService
	Reconciliation *service.ReconciliationService
	Enrichment     *service.EnrichmentService
	Repo           repository.Repository
	Logger         *zap.Logger
}

func (h *PipelineHandler) Register(r *gin.Engine) {
	group := r.Group("/api/pipeline")
	group.POST("/discover", h.discover)
	group.POST("/reconcile", h.reconcile)
	group.POST("/enrich", h.enrich)
	group.GET("/sync-state", h.listSyncState)
}

// @Summary Run discovery
// @Description Queries both exchanges and stages their current and upcoming listings.
// @Tags pipeline
// @Success 200 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/pipeline/discover [post]
func (h *PipelineHandler) discover(c *gin.Context) {
	if h.Discovery == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	result, err := h.Discovery.RunDiscovery(c.Request.Context())
	h.report(c, "ipo_discovery", result, err)
	if err != nil {
		Error(c, statusFor(err), err.Error(), map[string]any{"result": result})
		return
	}
	Ok(c, result, nil)
}

// @Summary Run reconciliation
// @Description Resolves staged findings to canonical offerings.
// @Tags pipeline
// @Success 200 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/pipeline/reconcile [post]
func (h *PipelineHandler) reconcile(c *gin.Context) {
	if h.Reconciliation == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	result, err := h.Reconciliation.RunReconciliation(c.Request.Context())
	h.report(c, "ipo_reconciliation", result, err)
	if err != nil {
		Error(c, statusFor(err), err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}

// @Summary Run an enrichment batch
// @Description Refreshes the offerings most in need of detail, paced between offerings.
// @Tags pipeline
// @Success 200 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/pipeline/enrich [post]
func (h *PipelineHandler) enrich(c *gin.Context) {
	if h.Enrichment == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	result, err := h.Enrichment.EnrichBatch(c.Request.Context())
	h.report(c, "ipo_enrichment", result, err)
	if err != nil {
		Error(c, statusFor(err), err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}

// @Summary List stage bookkeeping
// @Tags pipeline
// @Success 200 {object} apiResponse
// @Router /api/pipeline/sync-state [get]
func (h *PipelineHandler) listSyncState(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	states, err := h.Repo.ListSyncStates(c.Request.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("list sync state failed", zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, states, nil)
}

func (h *PipelineHandler) report(c *gin.Context, action string, result any, err error) {
	details := map[string]any{"result": result, "trigger": "http"}
	if err != nil {
		details["error"] = err.Error()
		if h.Logger != nil {
			h.Logger.Warn("pipeline stage failed", zap.String("stage", action), zap.Error(err))
		}
	}
	runlog.ReportCtx(c.Request.Context(), action, runlog.LevelFor(err), details)
}
