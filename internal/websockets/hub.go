package websockets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bellyrush/marketplace/internal/events"
	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/service"
)

// Hub keeps the connected clients indexed by subject and role and pushes
// order events to the subjects an order concerns.
type Hub struct {
	clients map[*Client]bool

	register chan *Client

	unregister chan *Client

	subjects map[service.Subject]map[*Client]bool

	roles map[models.Role]map[*Client]bool

	log *zap.Logger

	done chan struct{}

	mu sync.Mutex
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		subjects:   make(map[service.Subject]map[*Client]bool),
		roles:      make(map[models.Role]map[*Client]bool),
		log:        log,
		done:       make(chan struct{}),
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if _, ok := h.subjects[client.subject]; !ok {
		h.subjects[client.subject] = make(map[*Client]bool)
	}
	h.subjects[client.subject][client] = true

	if _, ok := h.roles[client.subject.Role]; !ok {
		h.roles[client.subject.Role] = make(map[*Client]bool)
	}
	h.roles[client.subject.Role][client] = true
}

// remove must be called with mu held
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	if set, ok := h.subjects[client.subject]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.subjects, client.subject)
		}
	}
	if set, ok := h.roles[client.subject.Role]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.roles, client.subject.Role)
		}
	}
}

// Connected returns how many connections the subject has open
func (h *Hub) Connected(sub service.Subject) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subjects[sub])
}

// recipients collects the clients an event is delivered to: the buyer, the
// vendor and the assigned rider, every admin, and every rider while a ready
// order waits for pickup.
func (h *Hub) recipients(e events.Event) map[*Client]bool {
	out := make(map[*Client]bool)
	addAll := func(set map[*Client]bool) {
		for c := range set {
			out[c] = true
		}
	}

	addAll(h.subjects[service.Subject{ID: e.BuyerID, Role: models.RoleBuyer}])
	addAll(h.subjects[service.Subject{ID: e.VendorID, Role: models.RoleVendor}])
	if e.DeliveryID != "" {
		addAll(h.subjects[service.Subject{ID: e.DeliveryID, Role: models.RoleDelivery}])
	} else if e.Status == models.OrderStatusReady {
		addAll(h.roles[models.RoleDelivery])
	}
	addAll(h.roles[models.RoleAdmin])
	return out
}

// Publish implements events.Publisher. Slow clients whose buffer is full
// are dropped rather than blocking the caller.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	message, err := json.Marshal(Message{Type: MessageType(e.Type), Data: data})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.recipients(e) {
		select {
		case client.send <- message:
		default:
			h.log.Warn("dropping slow websocket client",
				zap.String("subject", client.subject.ID),
				zap.String("role", string(client.subject.Role)))
			h.remove(client)
		}
	}
	return nil
}

// Run serves registrations until ctx is done, then closes every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return
		}
	}
}
