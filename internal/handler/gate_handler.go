package handler

import (
	"github.com/gin-gonic/gin"

	"flowbar/backend/internal/service"
)

type GateHandler struct {
	gate     *service.GateService
	tracking *service.TrackingService
}

type allowRequest struct {
	Site string `json:"site"`
	URL  string `json:"url"`
}

func NewGateHandler(gate *service.GateService, tracking *service.TrackingService) *GateHandler {
	return &GateHandler{gate: gate, tracking: tracking}
}

func (h *GateHandler) Allow(c *gin.Context) {
	var req allowRequest
	if !bindJSON(c, &req, false) {
		return
	}

	grant, apiErr := h.gate.AllowFor(c.Request.Context(), req.Site, req.URL)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, gin.H{"grant": grant})
}

// Target resolves where the sanctuary page's proceed button leads.
func (h *GateHandler) Target(c *gin.Context) {
	target, apiErr := service.ProceedTarget(c.Query("site"), c.Query("url"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, gin.H{"target": target})
}

func (h *GateHandler) Grants(c *gin.Context) {
	grants, apiErr := h.tracking.ActiveGrants(c.Request.Context())
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, gin.H{"grants": grants})
}
