// Package typing manages the ephemeral typing indicators. Rows live in a
// TTL-capable store and vanish on their own; expiry is advisory, nothing
// sweeps.
package typing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourorg/teamhub/services/realtime-service/internal/chat"
	"github.com/yourorg/teamhub/services/realtime-service/internal/hub"
	"github.com/yourorg/teamhub/services/realtime-service/internal/models"
	"github.com/yourorg/teamhub/services/realtime-service/internal/protocol"
)

// TTL bounds how long an indicator survives without an explicit stop.
const TTL = 5 * time.Second

// Store upserts and deletes indicator rows keyed by (chat type, chat, user).
type Store interface {
	Upsert(ctx context.Context, chatType models.ChatType, refID, userID string, ttl time.Duration) error
	Delete(ctx context.Context, chatType models.ChatType, refID, userID string) error
}

// Broadcaster is the slice of the hub the manager needs: typing frames
// exclude the originator's own connections instead of being personalized.
type Broadcaster interface {
	BroadcastExcept(scope hub.Scope, env protocol.Envelope, excludeUserID string)
}

type Manager struct {
	store Store
	hub   Broadcaster
	log   *zap.SugaredLogger
}

func NewManager(store Store, b Broadcaster, log *zap.SugaredLogger) *Manager {
	return &Manager{store: store, hub: b, log: log}
}

func (m *Manager) Start(ctx context.Context, chatType models.ChatType, refID, userID string) error {
	if err := m.store.Upsert(ctx, chatType, refID, userID, TTL); err != nil {
		return err
	}
	m.broadcast(chatType, refID, userID, true)
	return nil
}

func (m *Manager) Stop(ctx context.Context, chatType models.ChatType, refID, userID string) error {
	if err := m.store.Delete(ctx, chatType, refID, userID); err != nil {
		return err
	}
	m.broadcast(chatType, refID, userID, false)
	return nil
}

func (m *Manager) broadcast(chatType models.ChatType, refID, userID string, isTyping bool) {
	m.hub.BroadcastExcept(chat.ScopeFor(chatType, refID), protocol.Envelope{
		Type:     protocol.EventTyping,
		UserID:   userID,
		IsTyping: &isTyping,
	}, userID)
}

// RedisStore keeps indicators under typing:<chat_type>:<ref>:<user> with the
// store's native per-key expiry. Last write wins under races. A nil client
// degrades to a no-op; the local broadcast path keeps working.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "typing"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(chatType models.ChatType, refID, userID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, chatType, refID, userID)
}

func (s *RedisStore) Upsert(ctx context.Context, chatType models.ChatType, refID, userID string, ttl time.Duration) error {
	if s.rdb == nil {
		return nil
	}
	startedAt := time.Now().UTC().Format(time.RFC3339Nano)
	return s.rdb.Set(ctx, s.key(chatType, refID, userID), startedAt, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, chatType models.ChatType, refID, userID string) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, s.key(chatType, refID, userID)).Err()
}
