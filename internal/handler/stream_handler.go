package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"flowbar/backend/internal/repository"
	"flowbar/backend/internal/surface"
)

const streamHeartbeat = 15 * time.Second

type EffectSource interface {
	Subscribe(name string, buffer int) (<-chan surface.Effect, func())
}

type ChangeSource interface {
	Subscribe(buffer int) (<-chan repository.StorageChange, func())
}

// StreamHandler pushes surface effects and storage changes to connected
// clients as server-sent events.
type StreamHandler struct {
	effects EffectSource
	changes ChangeSource
}

func NewStreamHandler(effects EffectSource, changes ChangeSource) *StreamHandler {
	return &StreamHandler{effects: effects, changes: changes}
}

func (h *StreamHandler) Stream(c *gin.Context) {
	effects, stopEffects := h.effects.Subscribe(c.ClientIP(), 32)
	defer stopEffects()
	changes, stopChanges := h.changes.Subscribe(32)
	defer stopChanges()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case effect, ok := <-effects:
			if !ok {
				return false
			}
			c.SSEvent("effect", effect)
		case change, ok := <-changes:
			if !ok {
				return false
			}
			c.SSEvent("storage", change)
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UnixMilli()})
		}
		return true
	})
}
