package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"flowbar/backend/internal/dispatcher"
	apperrors "flowbar/backend/internal/errors"
)

// PlatformHandler receives the browser events forwarded by the extension's
// thin shim.
type PlatformHandler struct {
	dispatcher *dispatcher.Dispatcher
}

type tabActivatedRequest struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
}

type navigationRequest struct {
	TabID   int    `json:"tabId"`
	FrameID int    `json:"frameId"`
	URL     string `json:"url"`
}

type windowFocusRequest struct {
	Focused bool `json:"focused"`
}

type alarmRequest struct {
	Name string `json:"name"`
}

type installedRequest struct {
	Reason string `json:"reason"`
}

func NewPlatformHandler(d *dispatcher.Dispatcher) *PlatformHandler {
	return &PlatformHandler{dispatcher: d}
}

func (h *PlatformHandler) TabActivated(c *gin.Context) {
	var req tabActivatedRequest
	if !bindJSON(c, &req, false) {
		return
	}
	activity := h.dispatcher.TabActivated(c.Request.Context(), req.TabID, req.URL)
	writeOK(c, gin.H{"activity": activity})
}

func (h *PlatformHandler) Navigation(c *gin.Context) {
	var req navigationRequest
	if !bindJSON(c, &req, false) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(c, apperrors.BadRequest("invalid_url", "url is required"))
		return
	}
	decision := h.dispatcher.NavigationCommitted(c.Request.Context(), req.TabID, req.FrameID, req.URL)
	writeOK(c, gin.H{"decision": decision})
}

func (h *PlatformHandler) WindowFocus(c *gin.Context) {
	var req windowFocusRequest
	if !bindJSON(c, &req, false) {
		return
	}
	activity := h.dispatcher.WindowFocusChanged(c.Request.Context(), req.Focused)
	writeOK(c, gin.H{"activity": activity})
}

func (h *PlatformHandler) Alarm(c *gin.Context) {
	var req alarmRequest
	if !bindJSON(c, &req, false) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(c, apperrors.BadRequest("invalid_alarm", "name is required"))
		return
	}
	info := h.dispatcher.AlarmFired(c.Request.Context(), req.Name)
	writeOK(c, gin.H{"timer": info})
}

func (h *PlatformHandler) Startup(c *gin.Context) {
	info := h.dispatcher.Startup(c.Request.Context())
	writeOK(c, gin.H{"timer": info})
}

func (h *PlatformHandler) Installed(c *gin.Context) {
	var req installedRequest
	if !bindJSON(c, &req, true) {
		return
	}
	info := h.dispatcher.Installed(c.Request.Context(), req.Reason)
	writeOK(c, gin.H{"timer": info})
}
