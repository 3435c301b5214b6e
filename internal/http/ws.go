package http

import (
	"log"
	"net/http"
	"sync"
	"time"

	"vascredit/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type StatusEvent struct {
	PurchaseID string `json:"purchaseId"`
	State      string `json:"state"`
	Reference  string `json:"reference,omitempty"`
	Attempt    int    `json:"attempt"`
	At         string `json:"at"`
}

// Hub fans saga state transitions out to websocket subscribers. It satisfies
// saga.Notifier; StateChanged never blocks the orchestration.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan StatusEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan StatusEvent]struct{}{}}
}

func (h *Hub) StateChanged(purchaseID string, state models.PurchaseState, reference string, attempt int) {
	ev := StatusEvent{
		PurchaseID: purchaseID,
		State:      string(state),
		Reference:  reference,
		Attempt:    attempt,
		At:         time.Now().UTC().Format(time.RFC3339),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[purchaseID] {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than stall the saga.
		}
	}
}

func (h *Hub) subscribe(purchaseID string) (chan StatusEvent, func()) {
	ch := make(chan StatusEvent, 16)
	h.mu.Lock()
	if h.subs[purchaseID] == nil {
		h.subs[purchaseID] = map[chan StatusEvent]struct{}{}
	}
	h.subs[purchaseID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[purchaseID], ch)
		if len(h.subs[purchaseID]) == 0 {
			delete(h.subs, purchaseID)
		}
		h.mu.Unlock()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamEvents upgrades to a websocket and pushes state transitions for one
// purchase until it reaches a terminal state or the client goes away.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")
	if h.Hub == nil {
		writeError(w, http.StatusNotImplemented, "status stream disabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, cancel := h.Hub.subscribe(purchaseID)
	defer cancel()

	// Snapshot first so late subscribers see the current state.
	if p, err := h.Journal.Get(r.Context(), purchaseID); err == nil {
		snapshot := StatusEvent{
			PurchaseID: p.ID,
			State:      string(p.State),
			Reference:  p.Reference,
			Attempt:    p.Attempts,
			At:         p.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}
		if p.State.Terminal() {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("ws write failed purchase=%s: %v", purchaseID, err)
				return
			}
			if models.PurchaseState(ev.State).Terminal() {
				return
			}
		}
	}
}
