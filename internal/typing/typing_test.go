package typing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/teamhub/services/realtime-service/internal/hub"
	"github.com/yourorg/teamhub/services/realtime-service/internal/models"
	"github.com/yourorg/teamhub/services/realtime-service/internal/protocol"
)

type fakeTypingStore struct {
	upserts []string
	deletes []string
	ttls    []time.Duration
	err     error
}

func (s *fakeTypingStore) Upsert(_ context.Context, chatType models.ChatType, refID, userID string, ttl time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.upserts = append(s.upserts, string(chatType)+":"+refID+":"+userID)
	s.ttls = append(s.ttls, ttl)
	return nil
}

func (s *fakeTypingStore) Delete(_ context.Context, chatType models.ChatType, refID, userID string) error {
	if s.err != nil {
		return s.err
	}
	s.deletes = append(s.deletes, string(chatType)+":"+refID+":"+userID)
	return nil
}

type recordingHub struct {
	scopes   []hub.Scope
	envs     []protocol.Envelope
	excluded []string
}

func (r *recordingHub) BroadcastExcept(scope hub.Scope, env protocol.Envelope, excludeUserID string) {
	r.scopes = append(r.scopes, scope)
	r.envs = append(r.envs, env)
	r.excluded = append(r.excluded, excludeUserID)
}

func TestStartUpsertsWithTTLAndExcludesOriginator(t *testing.T) {
	st := &fakeTypingStore{}
	rec := &recordingHub{}
	m := NewManager(st, rec, zap.NewNop().Sugar())

	require.NoError(t, m.Start(context.Background(), models.ChatDirect, "d1", "alice"))

	require.Equal(t, []string{"direct:d1:alice"}, st.upserts)
	require.Equal(t, []time.Duration{TTL}, st.ttls)

	require.Len(t, rec.envs, 1)
	require.Equal(t, protocol.EventTyping, rec.envs[0].Type)
	require.Equal(t, "alice", rec.envs[0].UserID)
	require.NotNil(t, rec.envs[0].IsTyping)
	require.True(t, *rec.envs[0].IsTyping)
	require.Equal(t, "alice", rec.excluded[0])
	require.Equal(t, hub.Scope{Kind: hub.ScopeDirectMessage, ID: "d1"}, rec.scopes[0])
}

func TestStopDeletesAndBroadcastsFalse(t *testing.T) {
	st := &fakeTypingStore{}
	rec := &recordingHub{}
	m := NewManager(st, rec, zap.NewNop().Sugar())

	require.NoError(t, m.Stop(context.Background(), models.ChatProject, "p1", "alice"))

	require.Equal(t, []string{"project:p1:alice"}, st.deletes)
	require.Len(t, rec.envs, 1)
	require.False(t, *rec.envs[0].IsTyping)
	require.Equal(t, hub.Scope{Kind: hub.ScopeProjectChat, ID: "p1"}, rec.scopes[0])
}

func TestStoreFailureSuppressesBroadcast(t *testing.T) {
	st := &fakeTypingStore{err: errors.New("store down")}
	rec := &recordingHub{}
	m := NewManager(st, rec, zap.NewNop().Sugar())

	require.Error(t, m.Start(context.Background(), models.ChatDirect, "d1", "alice"))
	require.Error(t, m.Stop(context.Background(), models.ChatDirect, "d1", "alice"))
	require.Empty(t, rec.envs)
}
