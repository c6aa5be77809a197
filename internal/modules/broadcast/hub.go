// README: Websocket hub pushing broadcast events to connected drivers.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"ridebid/internal/logger"
	"ridebid/internal/notify"
)

type hubMessage struct {
	driverID string
	data     any
}

// Hub maintains the set of connected driver sockets and routes per-driver
// messages to them. It satisfies Pusher.
type Hub struct {
	clients    map[string]*Client
	broadcast  chan hubMessage
	register   chan *Client
	unregister chan *Client
	log        logger.Logger
	mu         sync.RWMutex
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan hubMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// Run is the hub's main loop; stop it by cancelling ctx.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			// A reconnect replaces the previous socket for the same driver.
			if prev, ok := h.clients[client.DriverID]; ok {
				close(prev.send)
			}
			h.clients[client.DriverID] = client
			h.mu.Unlock()
			h.log.Infof("driver %s connected (%d online)", client.DriverID, h.Count())

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.DriverID]; ok && current == client {
				delete(h.clients, client.DriverID)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Infof("driver %s disconnected (%d online)", client.DriverID, h.Count())

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg hubMessage) {
	h.mu.RLock()
	client, ok := h.clients[msg.driverID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	data, err := json.Marshal(msg.data)
	if err != nil {
		h.log.Errorf("marshal hub message: %v", err)
		return
	}

	select {
	case client.send <- data:
	default:
		// Slow consumer; drop the socket rather than block the hub.
		h.mu.Lock()
		if current, ok := h.clients[msg.driverID]; ok && current == client {
			delete(h.clients, msg.driverID)
			close(client.send)
		}
		h.mu.Unlock()
		h.log.Warnf("driver %s send buffer full, disconnecting", msg.driverID)
	}
}

// Push queues a per-driver message. Drivers without a live socket simply miss
// the push; they will see the same state on their next poll.
func (h *Hub) Push(driverID string, data any) {
	h.broadcast <- hubMessage{driverID: driverID, data: data}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HubGateway adapts the hub to the notify.Gateway interface so outcome events
// reach connected drivers over the same socket as broadcast events.
type HubGateway struct {
	hub *Hub
}

func NewHubGateway(hub *Hub) *HubGateway {
	return &HubGateway{hub: hub}
}

func (g *HubGateway) Publish(_ context.Context, ev notify.Event) error {
	g.hub.Push(ev.DriverID, ev)
	return nil
}
