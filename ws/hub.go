// Package ws carries live traffic: a topic-based fanout hub and the
// websocket transport feeding it.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub is the in-process fanout primitive: publish delivers a payload to
// every client currently subscribed to the topic, in publish order,
// without blocking the publisher. There is no replay: a client that
// subscribes later never sees earlier payloads.
//
// Hub satisfies the Broadcaster interfaces of both chat and presence.
type Hub struct {
	logger *slog.Logger

	mu     sync.RWMutex
	topics map[string]map[*Client]bool
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		topics: make(map[string]map[*Client]bool),
	}
}

// Publish marshals the payload once and queues it on every subscriber.
// Clients whose outbound buffer is full miss this payload; delivery is
// best-effort by contract.
func (h *Hub) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Could not marshal payload", "topic", topic, "error", err.Error())
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.topics[topic] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("Dropping payload for slow client", "topic", topic, "session_id", client.sessionID)
		}
	}
}

// Subscribe adds the client to a topic.
func (h *Hub) Subscribe(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]bool)
	}
	h.topics[topic][c] = true
	c.subscriptions[topic] = true
}

// Unsubscribe removes the client from a topic.
func (h *Hub) Unsubscribe(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(topic, c)
}

// Remove detaches the client from every topic. Called when the
// connection closes.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range c.subscriptions {
		h.drop(topic, c)
	}
}

// drop removes one subscription. Callers hold the write lock.
func (h *Hub) drop(topic string, c *Client) {
	delete(c.subscriptions, topic)
	clients, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.topics, topic)
	}
}
