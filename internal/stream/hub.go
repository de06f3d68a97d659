// Package stream fans live session snapshots out to dashboard clients
// over websockets, with optional Redis pub/sub bridging between
// replicas.
package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

const snapshotChannel = "fitsession:snapshot:broadcast"

// Client is one connected dashboard. Slow clients drop frames rather
// than stall the broadcaster.
type Client struct {
	Send chan []byte
}

// Hub tracks connected dashboard clients.
type Hub struct {
	redis   *redis.Client
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *log.Logger
}

// NewHub constructs a hub. A nil Redis client keeps broadcasts local to
// this process. Cancelling ctx stops the Redis subscriber.
func NewHub(ctx context.Context, redisClient *redis.Client, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(log.Writer(), "[stream] ", log.LstdFlags)
	}
	h := &Hub{
		redis:   redisClient,
		clients: map[*Client]struct{}{},
		logger:  logger,
	}
	if redisClient != nil {
		go h.subscribeRedis(ctx)
	}
	return h
}

// Register adds a dashboard client.
func (h *Hub) Register() *Client {
	client := &Client{Send: make(chan []byte, 64)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	return client
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers payload to every local client and publishes it to
// Redis for other replicas.
func (h *Hub) Broadcast(payload []byte) {
	h.deliver(payload)

	if h.redis != nil {
		if err := h.redis.Publish(context.Background(), snapshotChannel, payload).Err(); err != nil {
			h.logger.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) deliver(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, snapshotChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.deliver([]byte(msg.Payload))
		}
	}
}
