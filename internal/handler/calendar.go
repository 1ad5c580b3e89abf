package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ipotracker/internal/sebi"
)

// CalendarHandler exposes the business-day calendar behind the settlement
// date fallback.
type CalendarHandler struct {
	Calendar *sebi.Calendar
}

func (h *CalendarHandler) Register(r *gin.Engine) {
	r.GET("/api/calendar", h.get)
	r.GET("/api/calendar/fallback", h.fallback)
}

type calendarView struct {
	Timezone string   `json:"timezone"`
	Holidays []string `json:"holidays"`
}

type fallbackView struct {
	CloseDate   string `json:"close_date"`
	Allotment   string `json:"allotment_date"`
	Refund      string `json:"refund_date"`
	DematCredit string `json:"demat_credit_date"`
	Listing     string `json:"listing_date"`
}

// @Summary Calendar zone and exchange holidays
// @Tags calendar
// @Success 200 {object} apiResponse
// @Router /api/calendar [get]
func (h *CalendarHandler) get(c *gin.Context) {
	if h.Calendar == nil {
		Error(c, http.StatusInternalServerError, "calendar unavailable", nil)
		return
	}
	holidays := h.Calendar.Holidays()
	Ok(c, calendarView{Timezone: h.Calendar.Location().String(), Holidays: holidays}, map[string]any{"total": len(holidays)})
}

// @Summary Regulatory settlement dates for a close date
// @Tags calendar
// @Param close query string true "issue close date, e.g. 2025-12-22"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/calendar/fallback [get]
func (h *CalendarHandler) fallback(c *gin.Context) {
	if h.Calendar == nil {
		Error(c, http.StatusInternalServerError, "calendar unavailable", nil)
		return
	}
	raw := c.Query("close")
	dates, err := h.Calendar.FallbackFor(raw)
	if err != nil {
		Error(c, statusFor(err), err.Error(), nil)
		return
	}
	closeDate, _ := h.Calendar.ParseCloseDate(raw)
	Ok(c, fallbackView{
		CloseDate:   closeDate.Format(time.DateOnly),
		Allotment:   dates.Allotment.Format(time.DateOnly),
		Refund:      dates.Refund.Format(time.DateOnly),
		DematCredit: dates.DematCredit.Format(time.DateOnly),
		Listing:     dates.Listing.Format(time.DateOnly),
	}, nil)
}
