package surface

import (
	"context"
	"log/slog"
	"sync"
)

// Hub broadcasts effects to subscribed surfaces. A subscriber that cannot
// keep up loses the effect and is logged; the rest still receive it.
type Hub struct {
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	last        map[Kind]Effect
}

type subscriber struct {
	name string
	ch   chan Effect
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:      logger.With("component", "surface.hub"),
		subscribers: make(map[int]*subscriber),
		last:        make(map[Kind]Effect),
	}
}

// Subscribe registers a surface. The channel is primed with the latest
// border, badge and title effects so late joiners render the right state.
func (h *Hub) Subscribe(name string, buffer int) (<-chan Effect, func()) {
	if buffer < 4 {
		buffer = 4
	}
	sub := &subscriber{name: name, ch: make(chan Effect, buffer)}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subscribers[id] = sub
	for _, kind := range []Kind{KindBorder, KindBadge, KindTitle} {
		if effect, ok := h.last[kind]; ok {
			sub.ch <- effect
		}
	}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

func (h *Hub) Notify(_ context.Context, effect Effect) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if effect.Kind != KindPhase {
		h.last[effect.Kind] = effect
	}
	for _, sub := range h.subscribers {
		select {
		case sub.ch <- effect:
		default:
			h.logger.Warn("surface not keeping up, effect dropped",
				"surface", sub.name,
				"kind", effect.Kind,
			)
		}
	}
}

// Subscribers returns the number of connected surfaces.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
