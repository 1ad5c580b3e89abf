package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterDocs serves a short route overview next to the swagger UI.
func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# IPO Tracker

Tracks Indian IPOs listed on NSE and BSE: discovery stages each exchange's
current and upcoming issues, reconciliation links them to one offering per
company, enrichment fills details and settlement dates.

## Triggers

- POST /api/pipeline/discover
- POST /api/pipeline/reconcile
- POST /api/pipeline/enrich
- POST /api/offerings/{id}/enrich
- POST /api/offerings/{id}/fallback

## Queries

- GET /api/offerings
- GET /api/offerings/{id}
- GET /api/findings
- GET /api/pipeline/sync-state
- GET /api/system-settings/switches
- GET /api/calendar
- GET /api/calendar/fallback?close=YYYY-MM-DD

## Infra

- GET /healthz
- GET /readyz
- GET /metrics
- GET /swagger/index.html
`)
	})
}
