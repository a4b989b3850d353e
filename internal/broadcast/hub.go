// Package broadcast fans scoring output out to WebSocket subscribers and,
// optionally, a Redis pub/sub channel.
package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"ethpulse/internal/observability"
)

// Channel names clients may subscribe to.
const (
	ChannelNetworkHealth = "network_health"
	ChannelGasPrices     = "gas_prices"
	ChannelBlockMetrics  = "block_metrics"
	ChannelMEVActivity   = "mev_activity"
	ChannelMempoolStats  = "mempool_stats"
)

var validChannels = map[string]bool{
	ChannelNetworkHealth: true,
	ChannelGasPrices:     true,
	ChannelBlockMetrics:  true,
	ChannelMEVActivity:   true,
	ChannelMempoolStats:  true,
}

// envelope is the wire format sent to subscribers.
type envelope struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Channels  []string    `json:"channels,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp"`
}

func newEnvelope(typ string) envelope {
	return envelope{Type: typ, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// update carries one published message through the hub.
type update struct {
	channel string
	payload []byte
}

// Hub maintains the set of active clients and routes channel updates to the
// clients subscribed to them.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan update
	register   chan *Client
	unregister chan *Client

	metrics *observability.Metrics
	logger  *log.Logger
}

// NewHub creates a hub. Run must be called before clients attach.
func NewHub(metrics *observability.Metrics, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan update, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		metrics:    metrics,
		logger:     logger,
	}
}

// Run processes hub events until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.setClientGauge()
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setClientGauge()

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.setClientGauge()

		case u := <-h.broadcast:
			for client := range h.clients {
				if !client.subscribed(u.channel) {
					continue
				}
				select {
				case client.send <- u.payload:
					if h.metrics != nil {
						h.metrics.MessagesPublished.Inc()
					}
				default:
					// Slow client: drop it rather than block the hub.
					close(client.send)
					delete(h.clients, client)
					if h.metrics != nil {
						h.metrics.MessagesDropped.Inc()
					}
				}
			}
			h.setClientGauge()
		}
	}
}

// Publish sends data to all clients subscribed to channel.
func (h *Hub) Publish(channel string, data interface{}) error {
	env := newEnvelope("update")
	env.Channel = channel
	env.Data = data

	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- update{channel: channel, payload: payload}:
	default:
		h.logger.Println("[broadcast] hub queue full, dropping update")
		if h.metrics != nil {
			h.metrics.MessagesDropped.Inc()
		}
	}
	return nil
}

func (h *Hub) setClientGauge() {
	if h.metrics != nil {
		h.metrics.WSClientsConnected.Set(float64(len(h.clients)))
	}
}
