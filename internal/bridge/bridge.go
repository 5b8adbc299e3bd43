// Package bridge connects background producers to the processes holding live
// connections. Producers publish one event per persisted notification; a
// single subscriber per process relays matching events into the local hub.
// Delivery is at-most-once and best-effort: the persisted inbox is the system
// of record, the bridge is only the low-latency path.
package bridge

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourorg/teamhub/services/realtime-service/internal/hub"
	"github.com/yourorg/teamhub/services/realtime-service/internal/metrics"
	"github.com/yourorg/teamhub/services/realtime-service/internal/protocol"
	"github.com/yourorg/teamhub/services/realtime-service/internal/store"
)

const (
	NotifyChannel = "notify:events"
	RelayChannel  = "broadcast:events"
)

// Event is the transient envelope producers publish after the durable write.
// Never persisted; consumed at most once per subscribing process.
type Event struct {
	OrgID   string          `json:"org_id"`
	UserID  string          `json:"user_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// relayEvent carries a chat/DM envelope between instances. Origin lets the
// publishing instance skip its own echo.
type relayEvent struct {
	Origin    string            `json:"origin"`
	ScopeKind hub.ScopeKind     `json:"scope_kind"`
	ScopeID   string            `json:"scope_id"`
	Envelope  protocol.Envelope `json:"envelope"`
}

// Publisher is the produce side. A nil redis client degrades every publish to
// a silent no-op; publish failures are logged and swallowed because the
// durable write already succeeded.
type Publisher struct {
	rdb        *redis.Client
	instanceID string
	log        *zap.SugaredLogger
}

func NewPublisher(rdb *redis.Client, instanceID string, log *zap.SugaredLogger) *Publisher {
	return &Publisher{rdb: rdb, instanceID: instanceID, log: log}
}

func (p *Publisher) NotifyUser(ctx context.Context, ev Event) {
	if p.rdb == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		p.log.Warnw("notify event marshal failed", "err", err)
		return
	}
	if err := p.rdb.Publish(ctx, NotifyChannel, b).Err(); err != nil {
		p.log.Warnw("notify publish failed", "user_id", ev.UserID, "err", err)
	}
}

// Relay is installed as the hub's cross-instance hook.
func (p *Publisher) Relay(scope hub.Scope, env protocol.Envelope) {
	if p.rdb == nil {
		return
	}
	b, err := json.Marshal(relayEvent{
		Origin:    p.instanceID,
		ScopeKind: scope.Kind,
		ScopeID:   scope.ID,
		Envelope:  env,
	})
	if err != nil {
		p.log.Warnw("relay event marshal failed", "err", err)
		return
	}
	if err := p.rdb.Publish(context.Background(), RelayChannel, b).Err(); err != nil {
		p.log.Warnw("relay publish failed", "scope_id", scope.ID, "err", err)
	}
}

// LocalSink is the slice of the hub the subscriber forwards into.
type LocalSink interface {
	DeliverLocal(scope hub.Scope, env protocol.Envelope)
}

// Subscriber is the consume side: exactly one per transport-holding process.
type Subscriber struct {
	rdb        *redis.Client
	sink       LocalSink
	notifs     store.NotificationStore
	instanceID string
	log        *zap.SugaredLogger
}

func NewSubscriber(rdb *redis.Client, sink LocalSink, notifs store.NotificationStore, instanceID string, log *zap.SugaredLogger) *Subscriber {
	return &Subscriber{rdb: rdb, sink: sink, notifs: notifs, instanceID: instanceID, log: log}
}

// Run consumes bus events until the context is cancelled. With no bus
// configured it degrades to a no-op; a decode or forward failure is logged
// and the loop continues.
func (s *Subscriber) Run(ctx context.Context) {
	if s.rdb == nil {
		s.log.Warn("no bus configured, notification bridge disabled")
		return
	}
	sub := s.rdb.Subscribe(ctx, NotifyChannel, RelayChannel)
	defer sub.Close()

	ch := sub.Channel()
	s.log.Infow("notification bridge subscribed", "channels", []string{NotifyChannel, RelayChannel})
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch msg.Channel {
			case NotifyChannel:
				s.handleNotify(ctx, []byte(msg.Payload))
			case RelayChannel:
				s.handleRelay([]byte(msg.Payload))
			}
		}
	}
}

func (s *Subscriber) handleNotify(ctx context.Context, data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Warnw("bad notify event", "err", err)
		return
	}
	env, err := protocol.InboxEnvelope(ev.Type, ev.Payload)
	if err != nil {
		s.log.Warnw("bad notify event", "type", ev.Type, "err", err)
		return
	}
	scope := hub.InboxScope(ev.OrgID, ev.UserID)
	s.sink.DeliverLocal(scope, env)
	metrics.BridgeEvents.WithLabelValues(NotifyChannel).Inc()
	s.pushUnreadCount(ctx, scope, ev.OrgID, ev.UserID)
}

func (s *Subscriber) handleRelay(data []byte) {
	var ev relayEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Warnw("bad relay event", "err", err)
		return
	}
	if ev.Origin == s.instanceID {
		return
	}
	s.sink.DeliverLocal(hub.Scope{Kind: ev.ScopeKind, ID: ev.ScopeID}, ev.Envelope)
	metrics.BridgeEvents.WithLabelValues(RelayChannel).Inc()
}

func (s *Subscriber) pushUnreadCount(ctx context.Context, scope hub.Scope, orgID, userID string) {
	if s.notifs == nil {
		return
	}
	n, err := s.notifs.CountUnread(ctx, orgID, userID)
	if err != nil {
		s.log.Warnw("unread count lookup failed", "user_id", userID, "err", err)
		return
	}
	count := int(n)
	s.sink.DeliverLocal(scope, protocol.Envelope{
		Type:  protocol.EventUnreadCount,
		Count: &count,
	})
}

// ConnectRedis dials redis; a failed ping returns nil so the bridge degrades
// to a no-op instead of blocking boot.
func ConnectRedis(ctx context.Context, addr, password string, db int, log *zap.SugaredLogger) *redis.Client {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warnw("redis unreachable, bus and typing store disabled", "addr", addr, "err", err)
		return nil
	}
	return rdb
}
