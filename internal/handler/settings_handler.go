package handler

import (
	"github.com/gin-gonic/gin"

	"flowbar/backend/internal/model"
	"flowbar/backend/internal/service"
)

type SettingsHandler struct {
	settings *service.SettingsService
}

type themeRequest struct {
	Theme model.Theme `json:"theme"`
}

func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	writeOK(c, gin.H{"settings": h.settings.Get(c.Request.Context())})
}

func (h *SettingsHandler) Update(c *gin.Context) {
	var req model.Settings
	if !bindJSON(c, &req, false) {
		return
	}

	saved, apiErr := h.settings.Update(c.Request.Context(), req)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, gin.H{"settings": saved})
}

func (h *SettingsHandler) SetTheme(c *gin.Context) {
	var req themeRequest
	if !bindJSON(c, &req, false) {
		return
	}
	if apiErr := h.settings.SetTheme(c.Request.Context(), req.Theme); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, gin.H{"theme": req.Theme})
}

func (h *SettingsHandler) FirstInstall(c *gin.Context) {
	first, apiErr := h.settings.ConsumeFirstInstall(c.Request.Context())
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, gin.H{"firstInstall": first})
}
