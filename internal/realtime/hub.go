package realtime

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ReactionHandler processes a reaction sent by an identified connection.
type ReactionHandler func(ctx context.Context, userID, messageID, emoji string)

// Relay forwards broadcasts to every server instance, including this one.
type Relay interface {
	Publish(ctx context.Context, payload []byte) error
}

// Observer is told the connection count whenever it changes.
type Observer interface {
	ConnectionsChanged(n int)
}

// Hub owns the set of connected clients. All registry changes happen on the
// goroutine running Run.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	clients map[*Client]struct{}
	count   atomic.Int64

	relay     Relay
	relayDown atomic.Bool
	onReact   ReactionHandler
	observer  Observer
	logger    *zap.Logger

	eventRate  rate.Limit
	eventBurst int
}

type HubOption func(*Hub)

func WithRelay(r Relay) HubOption {
	return func(h *Hub) { h.relay = r }
}

func WithObserver(o Observer) HubOption {
	return func(h *Hub) { h.observer = o }
}

// WithEventRate limits inbound events per connection.
func WithEventRate(perSecond float64, burst int) HubOption {
	return func(h *Hub) {
		if perSecond > 0 {
			h.eventRate = rate.Limit(perSecond)
		}
		if burst > 0 {
			h.eventBurst = burst
		}
	}
}

func NewHub(logger *zap.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		logger:     logger,
		eventRate:  5,
		eventBurst: 10,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetReactionHandler installs the callback for inbound reactions. It must be
// called before Run.
func (h *Hub) SetReactionHandler(fn ReactionHandler) {
	h.onReact = fn
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return nil
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.changed()
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
			}
		case payload := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					h.logger.Warn("dropping slow websocket client", zap.String("user_id", c.userID))
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.changed()
}

func (h *Hub) changed() {
	n := len(h.clients)
	h.count.Store(int64(n))
	if h.observer != nil {
		h.observer.ConnectionsChanged(n)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// DropRelay sends later broadcasts straight to local clients. Call it once
// the relay subscription has stopped.
func (h *Hub) DropRelay() {
	h.relayDown.Store(true)
}

// PublishReaction announces a new reaction. With a relay configured the event
// reaches local clients through the relay subscription.
func (h *Hub) PublishReaction(ctx context.Context, messageID, emoji, userID string) error {
	payload, err := encode(EventMessageReaction, ReactionEvent{MessageID: messageID, Emoji: emoji, UserID: userID})
	if err != nil {
		return fmt.Errorf("encode reaction: %w", err)
	}
	if h.relay != nil && !h.relayDown.Load() {
		return h.relay.Publish(ctx, payload)
	}
	h.Deliver(payload)
	return nil
}

// Deliver queues payload for every local client.
func (h *Hub) Deliver(payload []byte) {
	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
