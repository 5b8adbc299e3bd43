package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/teamhub/services/realtime-service/internal/protocol"
)

type fakeClient struct {
	userID string
	fail   bool

	mu  sync.Mutex
	got []protocol.Envelope
}

func (c *fakeClient) UserID() string { return c.userID }

func (c *fakeClient) Enqueue(env protocol.Envelope) error {
	if c.fail {
		return errors.New("dead transport")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, env)
	return nil
}

func (c *fakeClient) envelopes() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.got...)
}

func newTestHub() *Hub {
	return New(zap.NewNop().Sugar())
}

func TestBroadcastReachesScopeMembersOnly(t *testing.T) {
	h := newTestHub()
	scopeA := Scope{Kind: ScopeProjectChat, ID: "p1"}
	scopeB := Scope{Kind: ScopeProjectChat, ID: "p2"}

	a := &fakeClient{userID: "u1"}
	b := &fakeClient{userID: "u2"}
	outside := &fakeClient{userID: "u3"}
	h.Connect(scopeA, a)
	h.Connect(scopeA, b)
	h.Connect(scopeB, outside)

	h.Broadcast(scopeA, protocol.Envelope{Type: protocol.EventMessage, SenderID: "u1"})

	require.Len(t, a.envelopes(), 1)
	require.Len(t, b.envelopes(), 1)
	require.Empty(t, outside.envelopes())
}

func TestBroadcastExceptSkipsEveryConnectionOfUser(t *testing.T) {
	h := newTestHub()
	scope := Scope{Kind: ScopeDirectMessage, ID: "d1"}

	phone := &fakeClient{userID: "u1"}
	laptop := &fakeClient{userID: "u1"}
	other := &fakeClient{userID: "u2"}
	h.Connect(scope, phone)
	h.Connect(scope, laptop)
	h.Connect(scope, other)

	typing := true
	h.BroadcastExcept(scope, protocol.Envelope{Type: protocol.EventTyping, UserID: "u1", IsTyping: &typing}, "u1")

	require.Empty(t, phone.envelopes())
	require.Empty(t, laptop.envelopes())
	require.Len(t, other.envelopes(), 1)
}

func TestBroadcastPersonalizesOwnership(t *testing.T) {
	h := newTestHub()
	scope := Scope{Kind: ScopeProjectChat, ID: "p1"}

	senderTab := &fakeClient{userID: "alice"}
	senderPhone := &fakeClient{userID: "alice"}
	receiver := &fakeClient{userID: "bob"}
	h.Connect(scope, senderTab)
	h.Connect(scope, senderPhone)
	h.Connect(scope, receiver)

	h.Broadcast(scope, protocol.Envelope{Type: protocol.EventMessage, SenderID: "alice"})

	for _, c := range []*fakeClient{senderTab, senderPhone} {
		envs := c.envelopes()
		require.Len(t, envs, 1)
		require.NotNil(t, envs[0].IsOwnMessage)
		require.True(t, *envs[0].IsOwnMessage)
	}
	envs := receiver.envelopes()
	require.Len(t, envs, 1)
	require.NotNil(t, envs[0].IsOwnMessage)
	require.False(t, *envs[0].IsOwnMessage)
	require.Equal(t, "alice", envs[0].SenderID)
}

func TestFailedDeliveryPrunesConnection(t *testing.T) {
	h := newTestHub()
	scope := Scope{Kind: ScopeProjectChat, ID: "p1"}

	dead := &fakeClient{userID: "u1", fail: true}
	live := &fakeClient{userID: "u2"}
	h.Connect(scope, dead)
	h.Connect(scope, live)

	h.Broadcast(scope, protocol.Envelope{Type: protocol.EventMessage, SenderID: "u2"})

	require.Equal(t, 0, h.ConnectionsFor("u1"))
	require.Equal(t, 1, h.ConnectionsFor("u2"))
	require.Len(t, live.envelopes(), 1)

	// pruned client is gone from the scope set too
	dead.fail = false
	h.Broadcast(scope, protocol.Envelope{Type: protocol.EventMessage, SenderID: "u2"})
	require.Empty(t, dead.envelopes())
}

func TestDisconnectRemovesFromAllIndexes(t *testing.T) {
	h := newTestHub()
	scope := Scope{Kind: ScopeInbox, ID: "org1:u1"}
	c := &fakeClient{userID: "u1"}
	h.Connect(scope, c)
	h.Disconnect(c)

	require.Equal(t, 0, h.ConnectionsFor("u1"))
	h.Broadcast(scope, protocol.Envelope{Type: protocol.EventInboxNew})
	require.Empty(t, c.envelopes())
}

func TestRelayFiresForChatScopesNotInbox(t *testing.T) {
	h := newTestHub()
	var relayed []Scope
	h.SetRelay(func(scope Scope, env protocol.Envelope) {
		relayed = append(relayed, scope)
	})

	chatScope := Scope{Kind: ScopeProjectChat, ID: "p1"}
	inboxScope := Scope{Kind: ScopeInbox, ID: "org1:u1"}
	h.Broadcast(chatScope, protocol.Envelope{Type: protocol.EventMessage})
	h.Broadcast(inboxScope, protocol.Envelope{Type: protocol.EventInboxNew})

	require.Equal(t, []Scope{chatScope}, relayed)
}

func TestDeliverLocalNeverRelays(t *testing.T) {
	h := newTestHub()
	relayCalls := 0
	h.SetRelay(func(Scope, protocol.Envelope) { relayCalls++ })

	scope := Scope{Kind: ScopeProjectChat, ID: "p1"}
	c := &fakeClient{userID: "u1"}
	h.Connect(scope, c)

	h.DeliverLocal(scope, protocol.Envelope{Type: protocol.EventMessage, SenderID: "u2"})

	require.Zero(t, relayCalls)
	require.Len(t, c.envelopes(), 1)
}

func TestDeliverLocalExcludesTypistOwnConnections(t *testing.T) {
	h := newTestHub()
	scope := Scope{Kind: ScopeDirectMessage, ID: "d1"}
	typist := &fakeClient{userID: "u1"}
	other := &fakeClient{userID: "u2"}
	h.Connect(scope, typist)
	h.Connect(scope, other)

	typing := true
	h.DeliverLocal(scope, protocol.Envelope{Type: protocol.EventTyping, UserID: "u1", IsTyping: &typing})

	require.Empty(t, typist.envelopes())
	require.Len(t, other.envelopes(), 1)
}
