package handler

import (
	"github.com/gin-gonic/gin"

	"flowbar/backend/internal/dispatcher"
)

// TimerHandler exposes the popup controls as REST endpoints. Each one
// runs the same control message the extension would send.
type TimerHandler struct {
	dispatcher *dispatcher.Dispatcher
}

func NewTimerHandler(d *dispatcher.Dispatcher) *TimerHandler {
	return &TimerHandler{dispatcher: d}
}

func (h *TimerHandler) Info(c *gin.Context)   { h.run(c, dispatcher.ActionGetTimerInfo) }
func (h *TimerHandler) Start(c *gin.Context)  { h.run(c, dispatcher.ActionStartTimer) }
func (h *TimerHandler) Pause(c *gin.Context)  { h.run(c, dispatcher.ActionPauseTimer) }
func (h *TimerHandler) Resume(c *gin.Context) { h.run(c, dispatcher.ActionResumeTimer) }
func (h *TimerHandler) Reset(c *gin.Context)  { h.run(c, dispatcher.ActionResetTimer) }
func (h *TimerHandler) Stop(c *gin.Context)   { h.run(c, dispatcher.ActionStopTimer) }
func (h *TimerHandler) Toggle(c *gin.Context) { h.run(c, dispatcher.ActionToggleTimer) }

func (h *TimerHandler) run(c *gin.Context, action string) {
	response := h.dispatcher.HandleMessage(c.Request.Context(), dispatcher.Message{Action: action})
	c.JSON(response.Status(), response)
}

// Message accepts the raw {action, site?, url?} contract.
func (h *TimerHandler) Message(c *gin.Context) {
	var msg dispatcher.Message
	if !bindJSON(c, &msg, false) {
		return
	}
	response := h.dispatcher.HandleMessage(c.Request.Context(), msg)
	c.JSON(response.Status(), response)
}
