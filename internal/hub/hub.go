// Package hub holds the process-local registry of live websocket
// connections. The hub is an explicit value owned by the server and injected
// into every handler; tests substitute fake clients freely.
package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/yourorg/teamhub/services/realtime-service/internal/metrics"
	"github.com/yourorg/teamhub/services/realtime-service/internal/protocol"
)

// ScopeKind is the broadcast grouping unit.
type ScopeKind string

const (
	ScopeProjectChat   ScopeKind = "project_chat"
	ScopeDirectMessage ScopeKind = "direct_message"
	ScopeInbox         ScopeKind = "inbox"
)

type Scope struct {
	Kind ScopeKind
	ID   string
}

// Client is one live connection. Enqueue must not block; it returns an error
// when the connection is closed or its send buffer is full, and the hub
// prunes the client in response.
type Client interface {
	UserID() string
	Enqueue(protocol.Envelope) error
}

// RelayFunc publishes an envelope to other instances. Optional; set by the
// bridge when a bus is configured.
type RelayFunc func(scope Scope, env protocol.Envelope)

type Hub struct {
	mu      sync.RWMutex
	byScope map[Scope]map[Client]struct{}
	byUser  map[string]map[Client]struct{}
	scopeOf map[Client]Scope

	relay RelayFunc
	log   *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Hub {
	return &Hub{
		byScope: make(map[Scope]map[Client]struct{}),
		byUser:  make(map[string]map[Client]struct{}),
		scopeOf: make(map[Client]Scope),
		log:     log,
	}
}

// SetRelay installs the cross-instance publisher. Must be called before the
// server starts accepting connections.
func (h *Hub) SetRelay(relay RelayFunc) { h.relay = relay }

func (h *Hub) Connect(scope Scope, c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byScope[scope]; !ok {
		h.byScope[scope] = make(map[Client]struct{})
	}
	h.byScope[scope][c] = struct{}{}
	uid := c.UserID()
	if _, ok := h.byUser[uid]; !ok {
		h.byUser[uid] = make(map[Client]struct{})
	}
	h.byUser[uid][c] = struct{}{}
	h.scopeOf[c] = scope
}

func (h *Hub) Disconnect(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

// remove drops the client from every index. Caller holds the write lock.
func (h *Hub) remove(c Client) {
	scope, ok := h.scopeOf[c]
	if !ok {
		return
	}
	delete(h.scopeOf, c)
	if set, ok := h.byScope[scope]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byScope, scope)
		}
	}
	uid := c.UserID()
	if set, ok := h.byUser[uid]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, uid)
		}
	}
}

// Broadcast delivers the envelope to every live connection in the scope,
// personalizing message-family frames per recipient via env.SenderID. Fire
// and forget: a failed delivery prunes the connection, nothing is retried and
// no error reaches the caller. The envelope is also relayed to other
// instances when a relay is installed.
func (h *Hub) Broadcast(scope Scope, env protocol.Envelope) {
	h.deliver(scope, env, "")
	if h.relay != nil && scope.Kind != ScopeInbox {
		h.relay(scope, env)
	}
}

// BroadcastExcept behaves like Broadcast but skips every connection owned by
// excludeUserID. Used for ephemeral events so typists never see their own
// indicator echoed back.
func (h *Hub) BroadcastExcept(scope Scope, env protocol.Envelope, excludeUserID string) {
	h.deliver(scope, env, excludeUserID)
	if h.relay != nil && scope.Kind != ScopeInbox {
		h.relay(scope, env)
	}
}

// DeliverLocal is the bridge's entry point: local delivery only, never
// re-published to the bus, so relayed envelopes cannot loop.
func (h *Hub) DeliverLocal(scope Scope, env protocol.Envelope) {
	exclude := ""
	if env.Type.Ephemeral() {
		exclude = env.UserID
	}
	h.deliver(scope, env, exclude)
}

func (h *Hub) deliver(scope Scope, env protocol.Envelope, excludeUserID string) {
	h.mu.RLock()
	targets := make([]Client, 0, len(h.byScope[scope]))
	for c := range h.byScope[scope] {
		if excludeUserID != "" && c.UserID() == excludeUserID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var dead []Client
	for _, c := range targets {
		if err := c.Enqueue(env.Personalize(c.UserID())); err != nil {
			h.log.Warnw("dropping connection after failed delivery",
				"user_id", c.UserID(), "scope_kind", scope.Kind, "scope_id", scope.ID, "err", err)
			dead = append(dead, c)
			continue
		}
		metrics.EnvelopesDelivered.WithLabelValues(string(env.Type)).Inc()
	}
	if len(dead) > 0 {
		h.mu.Lock()
		for _, c := range dead {
			h.remove(c)
			metrics.ConnectionsPruned.Inc()
		}
		h.mu.Unlock()
	}
}

// ConnectionsFor reports how many live connections a user holds.
func (h *Hub) ConnectionsFor(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// InboxScope keys inbox connections by (org, user) so bridge events address
// exactly one member's connections.
func InboxScope(orgID, userID string) Scope {
	return Scope{Kind: ScopeInbox, ID: orgID + ":" + userID}
}
