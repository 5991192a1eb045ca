package realtime

import (
	"log/slog"
	"sync"
	"time"

	"workfolio/cmd/internal/credential"
)

// Observer counts pushed events.
type Observer interface {
	EventPushed(namespace, typ string)
}

// Hub files connected clients under namespace + refresh credential hash.
type Hub struct {
	log      *slog.Logger
	observer Observer
	now      func() time.Time

	mu     sync.Mutex
	topics map[string]map[string]*Client
	byConn map[string]string
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubObserver reports pushed events.
func WithHubObserver(o Observer) HubOption {
	return func(h *Hub) { h.observer = o }
}

// NewHub constructs an empty Hub.
func NewHub(log *slog.Logger, opts ...HubOption) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		topics: make(map[string]map[string]*Client),
		byConn: make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func topicKey(ns credential.Namespace, hash string) string {
	return string(ns) + ":" + hash
}

// Subscribe files c under the namespace's refresh hash.
func (h *Hub) Subscribe(ns credential.Namespace, hash string, c *Client) {
	if h == nil || c == nil || c.SessionID == "" || hash == "" {
		return
	}
	key := topicKey(ns, hash)

	h.mu.Lock()
	if prev, ok := h.byConn[c.SessionID]; ok {
		h.removeLocked(prev, c.SessionID)
	}
	members, ok := h.topics[key]
	if !ok {
		members = make(map[string]*Client)
		h.topics[key] = members
	}
	members[c.SessionID] = c
	h.byConn[c.SessionID] = key
	h.mu.Unlock()

	h.log.Debug("realtime.subscribe", "namespace", ns, "session_id", c.SessionID)
}

// Unsubscribe removes the connection and signals its shutdown.
func (h *Hub) Unsubscribe(sessionID string) {
	if h == nil || sessionID == "" {
		return
	}

	h.mu.Lock()
	var c *Client
	if key, ok := h.byConn[sessionID]; ok {
		c = h.topics[key][sessionID]
		h.removeLocked(key, sessionID)
	}
	h.mu.Unlock()

	// Close after removal so publishers never hold a closing client.
	if c != nil {
		c.Close()
	}
}

func (h *Hub) removeLocked(key, sessionID string) {
	if members, ok := h.topics[key]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.topics, key)
		}
	}
	delete(h.byConn, sessionID)
}

// Renewed refiles subscribers of oldHash under newHash and tells them credentials changed.
func (h *Hub) Renewed(ns credential.Namespace, oldHash, newHash string) {
	if h == nil || oldHash == "" {
		return
	}
	if newHash == "" {
		newHash = oldHash
	}
	oldKey, newKey := topicKey(ns, oldHash), topicKey(ns, newHash)

	h.mu.Lock()
	members := h.topics[oldKey]
	targets := make([]*Client, 0, len(members))
	for _, c := range members {
		targets = append(targets, c)
	}
	if oldKey != newKey && len(members) > 0 {
		delete(h.topics, oldKey)
		dst, ok := h.topics[newKey]
		if !ok {
			dst = make(map[string]*Client, len(members))
			h.topics[newKey] = dst
		}
		for id, c := range members {
			dst[id] = c
			h.byConn[id] = newKey
		}
	}
	h.mu.Unlock()

	h.push(ns, targets, TypeRenewed)
}

// Terminated tells subscribers of hash that the session ended and drops them.
func (h *Hub) Terminated(ns credential.Namespace, hash string) {
	if h == nil || hash == "" {
		return
	}
	key := topicKey(ns, hash)

	h.mu.Lock()
	members := h.topics[key]
	targets := make([]*Client, 0, len(members))
	for id, c := range members {
		targets = append(targets, c)
		delete(h.byConn, id)
	}
	delete(h.topics, key)
	h.mu.Unlock()

	h.push(ns, targets, TypeTerminated)
}

// Subscribers returns the number of connections filed under hash.
func (h *Hub) Subscribers(ns credential.Namespace, hash string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topicKey(ns, hash)])
}

func (h *Hub) push(ns credential.Namespace, targets []*Client, typ string) {
	if len(targets) == 0 {
		return
	}
	m := newMessage(typ, nil, h.now())
	delivered := 0
	for _, c := range targets {
		if c.offer(m) {
			delivered++
			if h.observer != nil {
				h.observer.EventPushed(string(ns), typ)
			}
		}
	}
	h.log.Info("realtime.push", "namespace", ns, "type", typ, "targets", len(targets), "delivered", delivered)
}
