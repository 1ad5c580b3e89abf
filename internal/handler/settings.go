package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ipotracker/internal/service"
)

const switchPrefix = "feature."

// SettingsHandler reads and flips the runtime feature switches.
type SettingsHandler struct {
	Settings *service.SystemSettingsService
}

func (h *SettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/system-settings/switches")
	g.GET("", h.listSwitches)
	g.GET("/:name", h.getSwitch)
	g.PUT("/:name", h.putSwitch)
}

type switchView struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
	Enabled     bool   `json:"enabled"`
}

func viewOf(sw service.FeatureSwitch) switchView {
	return switchView{
		Name:        strings.TrimPrefix(sw.Key, switchPrefix),
		Key:         sw.Key,
		Description: sw.Description,
		Default:     sw.Default,
		Enabled:     sw.Enabled,
	}
}

// @Summary List feature switches
// @Tags settings
// @Success 200 {object} apiResponse
// @Router /api/system-settings/switches [get]
func (h *SettingsHandler) listSwitches(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	switches := h.Settings.Switches(c.Request.Context())
	out := make([]switchView, 0, len(switches))
	for _, sw := range switches {
		out = append(out, viewOf(sw))
	}
	Ok(c, out, nil)
}

// @Summary Get one feature switch
// @Tags settings
// @Param name path string true "switch name, e.g. enrichment"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/system-settings/switches/{name} [get]
func (h *SettingsHandler) getSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	key := switchPrefix + strings.TrimSpace(c.Param("name"))
	for _, sw := range h.Settings.Switches(c.Request.Context()) {
		if sw.Key == key {
			Ok(c, viewOf(sw), nil)
			return
		}
	}
	Error(c, http.StatusNotFound, service.ErrUnknownSwitch.Error(), nil)
}

type putSwitchRequest struct {
	Enabled bool `json:"enabled"`
}

// @Summary Turn a feature switch on or off
// @Tags settings
// @Param name path string true "switch name, e.g. enrichment"
// @Param body body putSwitchRequest true "new state"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/system-settings/switches/{name} [put]
func (h *SettingsHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	key := switchPrefix + strings.TrimSpace(c.Param("name"))
	if err := h.Settings.SetEnabled(c.Request.Context(), key, req.Enabled); err != nil {
		Error(c, statusFor(err), err.Error(), nil)
		return
	}
	h.getSwitch(c)
}
