package ws

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourorg/teamhub/services/realtime-service/internal/apperr"
	"github.com/yourorg/teamhub/services/realtime-service/internal/protocol"
)

func TestEnqueueOrderAndBufferLimit(t *testing.T) {
	c := NewClient(nil, "u1", 2)

	require.NoError(t, c.Enqueue(protocol.Envelope{Type: protocol.EventMessage, MessageID: "m1"}))
	require.NoError(t, c.Enqueue(protocol.Envelope{Type: protocol.EventMessage, MessageID: "m2"}))
	// buffer full counts as a failed delivery so the hub prunes us
	require.ErrorIs(t, c.Enqueue(protocol.Envelope{Type: protocol.EventMessage, MessageID: "m3"}), ErrBufferFull)

	first := <-c.send
	second := <-c.send
	require.Equal(t, "m1", first.MessageID)
	require.Equal(t, "m2", second.MessageID)
}

func TestEnqueueAfterClose(t *testing.T) {
	c := NewClient(nil, "u1", 4)
	c.Close()
	require.ErrorIs(t, c.Enqueue(protocol.Envelope{Type: protocol.EventMessage}), ErrClientClosed)
	// double close is safe
	c.Close()
}

func TestClientMessageMapping(t *testing.T) {
	require.Equal(t, "edit window has expired", clientMessage(apperr.Validation("edit window has expired")))
	require.Equal(t, "forbidden", clientMessage(apperr.ErrForbidden))
	require.Equal(t, "message not found", clientMessage(apperr.ErrNotFound))
	require.Equal(t, "internal error", clientMessage(errors.New("mongo timeout")))
}
