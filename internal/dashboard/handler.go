package dashboard

import (
	"log"
	"sync"

	"github.com/steveyegge/treewatch/internal/events"
	"github.com/steveyegge/treewatch/internal/watcher"
)

// Handler turns dispatched watch events into dashboard messages and keeps
// running totals for the stats message that follows each event.
type Handler struct {
	server *Server
	logger *log.Logger

	mu       sync.Mutex
	stats    StatsData
	snapshot func() watcher.Stats
}

// NewHandler creates an event handler broadcasting through server. New
// clients of server receive the handler's current stats.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
		stats: StatsData{
			ByKind: make(map[string]int),
		},
	}
	server.SetStatsSource(h.Stats)
	return h
}

// SetSnapshot supplies the watcher whose size is reported in stats messages.
// The watcher is usually created after its handlers, hence the setter.
func (h *Handler) SetSnapshot(fn func() watcher.Stats) {
	h.mu.Lock()
	h.snapshot = fn
	h.mu.Unlock()
}

// OnEvent broadcasts ev followed by the updated stats.
func (h *Handler) OnEvent(ev events.Event) {
	h.logger.Printf("%s", ev)
	h.server.BroadcastEvent(ev)

	h.mu.Lock()
	h.stats.Total++
	h.stats.ByKind[ev.Kind.String()]++
	h.refresh()
	stats := h.copyStats()
	h.mu.Unlock()

	h.server.BroadcastStats(stats)
}

// Stats returns a copy of the running totals with the watcher's current size.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refresh()
	return h.copyStats()
}

func (h *Handler) refresh() {
	if h.snapshot != nil {
		s := h.snapshot()
		h.stats.Nodes, h.stats.Queued = s.Nodes, s.Queued
	}
}

func (h *Handler) copyStats() StatsData {
	out := h.stats
	out.ByKind = make(map[string]int, len(h.stats.ByKind))
	for k, v := range h.stats.ByKind {
		out.ByKind[k] = v
	}
	return out
}
