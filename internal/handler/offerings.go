package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ipotracker/internal/models"
	"ipotracker/internal/repository"
	"ipotracker/internal/runlog"
	"ipotracker/internal/service"
)

type OfferingsHandler struct {
	Repo       repository.Repository
	Enrichment *service.EnrichmentService
	Fallback   *service.DateFallbackService
	Logger     *zap.Logger
}

func (h *OfferingsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/offerings")
	group.GET("", h.list)
	group.GET("/:id", h.get)
	group.POST("/:id/enrich", h.enrich)
	group.POST("/:id/fallback", h.applyFallback)
	r.GET("/api/findings", h.listFindings)
}

type offeringDetail struct {
	Offering  models.Offering       `json:"offering"`
	Dates     *models.OfferingDates `json:"dates,omitempty"`
	Registrar *models.Registrar     `json:"registrar,omitempty"`
}

// @Summary List offerings
// @Tags offerings
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param status query string false "upcoming|open|closed|listed|withdrawn"
// @Param segment query string false "mainboard|sme"
// @Param q query string false "company name or symbol contains"
// @Param order_by query string false "order by field"
// @Param ascending query bool false "ascending"
// @Success 200 {object} apiResponse
// @Router /api/offerings [get]
func (h *OfferingsHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListOfferingsParams{
		Limit:   intQuery(c, "limit", 50),
		Offset:  intQuery(c, "offset", 0),
		Status:  lowerQueryPtr(c, "status"),
		Segment: lowerQueryPtr(c, "segment"),
		Query:   strQueryPtr(c, "q"),
		OrderBy: parseOrder(c.Query("order_by"), map[string]string{
			"updated_at":   "updated_at",
			"created_at":   "created_at",
			"company_name": "company_name",
			"symbol":       "symbol",
		}),
		Asc: boolQueryPtr(c, "ascending"),
	}
	ctx := c.Request.Context()
	items, err := h.Repo.ListOfferings(ctx, params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountOfferings(ctx, params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

// @Summary Get one offering with its dates and registrar
// @Tags offerings
// @Param id path int true "offering id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/offerings/{id} [get]
func (h *OfferingsHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	ctx := c.Request.Context()
	item, err := h.Repo.GetOffering(ctx, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "offering not found", nil)
		return
	}
	out := offeringDetail{Offering: *item}
	if out.Dates, err = h.Repo.GetOfferingDates(ctx, id); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item.RegistrarID != nil {
		if out.Registrar, err = h.Repo.GetRegistrar(ctx, *item.RegistrarID); err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
	}
	Ok(c, out, nil)
}

// @Summary Refresh one offering now
// @Description Joins a refresh of the same offering that is already running.
// @Tags offerings
// @Param id path int true "offering id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/offerings/{id}/enrich [post]
func (h *OfferingsHandler) enrich(c *gin.Context) {
	if h.Enrichment == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	err := h.Enrichment.EnrichOne(c.Request.Context(), id)
	runlog.ReportCtx(c.Request.Context(), "ipo_enrich_offering", runlog.LevelFor(err), map[string]any{
		"offering_id": id,
		"error":       errString(err),
	})
	if err != nil {
		if h.Logger != nil && !errors.Is(err, service.ErrOfferingNotFound) {
			h.Logger.Warn("offering refresh failed", zap.Uint64("offering_id", id), zap.Error(err))
		}
		Error(c, statusFor(err), err.Error(), nil)
		return
	}
	Ok(c, gin.H{"offering_id": id}, nil)
}

type fallbackRequest struct {
	CloseDate string `json:"close_date"`
}

// @Summary Fill missing settlement dates from a close date
// @Description Writes the regulatory T+N dates only where the stored value is empty or not a business day.
// @Tags offerings
// @Param id path int true "offering id"
// @Param body body fallbackRequest true "issue close date"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/offerings/{id}/fallback [post]
func (h *OfferingsHandler) applyFallback(c *gin.Context) {
	if h.Repo == nil || h.Fallback == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req fallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	offering, err := h.Repo.GetOffering(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if offering == nil {
		Error(c, http.StatusNotFound, service.ErrOfferingNotFound.Error(), nil)
		return
	}
	if err := h.Repo.EnsureOfferingDates(c.Request.Context(), id); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	applied, err := h.Fallback.ApplyIfMissingRaw(c.Request.Context(), id, req.CloseDate)
	if err != nil {
		Error(c, statusFor(err), err.Error(), nil)
		return
	}
	if applied == nil {
		applied = []string{}
	}
	Ok(c, gin.H{"offering_id": id, "applied": applied}, nil)
}

// @Summary List staged findings
// @Tags findings
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param source query string false "nse|bse"
// @Param unresolved query bool false "only findings not yet linked"
// @Param ascending query bool false "ascending"
// @Success 200 {object} apiResponse
// @Router /api/findings [get]
func (h *OfferingsHandler) listFindings(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListFindingsParams{
		Limit:      intQuery(c, "limit", 50),
		Offset:     intQuery(c, "offset", 0),
		Source:     lowerQueryPtr(c, "source"),
		Unresolved: boolQueryPtr(c, "unresolved"),
		OrderBy: parseOrder(c.Query("order_by"), map[string]string{
			"id":           "id",
			"last_seen_at": "last_seen_at",
		}),
		Asc: boolQueryPtr(c, "ascending"),
	}
	ctx := c.Request.Context()
	items, err := h.Repo.ListFindings(ctx, params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountFindings(ctx, params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

func lowerQueryPtr(c *gin.Context, key string) *string {
	v := strQueryPtr(c, key)
	if v == nil {
		return nil
	}
	lower := strings.ToLower(*v)
	return &lower
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
