package devserver

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bundlekit/internal/assets"
	"github.com/wolfeidau/bundlekit/internal/telemetry"
)

const heartbeatInterval = 30 * time.Second

// Hub streams content hashes to browsers over server-sent events. Pages
// reload when the hash they see differs from the one they connected with.
type Hub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*hubClient
	closed   bool
	lastHash string
	metrics  *telemetry.Metrics
}

type hubClient struct {
	id   int
	ch   chan string
	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{clients: map[int]*hubClient{}, metrics: telemetry.GetMetrics()}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "live reload shutting down", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &hubClient{ch: make(chan string, 8), done: make(chan struct{})}
	h.mu.Lock()
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	current := h.lastHash
	h.mu.Unlock()
	h.metrics.LiveReloadClients.Add(r.Context(), 1)

	bw := bufio.NewWriter(w)
	send := func(s string) bool {
		if _, err := bw.WriteString(s); err != nil {
			log.Debug().Err(err).Msg("live reload write")
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(": connected\n\n") {
		h.removeClient(client.id)
		return
	}
	if current != "" && !send(event(current)) {
		h.removeClient(client.id)
		return
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.removeClient(client.id)
			return
		case <-client.done:
			return
		case <-hb.C:
			send(": ping\n\n")
		case hash := <-client.ch:
			send(event(hash))
		}
	}
}

func event(hash string) string {
	return fmt.Sprintf("data: {\"hash\":%q}\n\n", hash)
}

func (h *Hub) removeClient(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
		h.metrics.LiveReloadClients.Add(context.Background(), -1)
	}
}

// Broadcast sends hash to every client unless it is the hash they already
// have. Clients that are not keeping up are dropped and reconnect.
func (h *Hub) Broadcast(hash string) {
	h.mu.Lock()
	if h.closed || hash == "" || hash == h.lastHash {
		h.mu.Unlock()
		return
	}
	h.lastHash = hash
	snapshot := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- hash:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}

	h.metrics.ReloadsBroadcast.Add(context.Background(), 1)
	log.Debug().Str("hash", hash).Int("clients", len(snapshot)).Int("dropped", dropped).Msg("live reload broadcast")
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and ignores later broadcasts.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*hubClient{}
	h.mu.Unlock()

	for _, c := range clients {
		close(c.done)
	}
	h.metrics.LiveReloadClients.Add(context.Background(), -int64(len(clients)))
}

// liveReloadScript connects to the hub and reloads the page when a hash
// differs from the one in its own src, which the store stamps into each page.
// Without one it falls back to the first hash it receives.
var liveReloadScript = `(() => {
  if (window.__BUNDLEKIT_LR__) return;
  window.__BUNDLEKIT_LR__ = true;
  const src = document.currentScript && document.currentScript.src;
  let current = src ? new URL(src).searchParams.get("h") : null;
  function connect() {
    const es = new EventSource("` + assets.LiveReloadPath + `");
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (current === null) { current = p.hash; return; }
        if (p.hash && p.hash !== current) { location.reload(); }
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`

func serveLiveReloadScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(liveReloadScript))
}
