package messaging

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	t.Run("tokenizes content into action and parameters", func(t *testing.T) {
		msg, err := NewMessage("agent1", "agent2", "move 3 4", "")
		require.NoError(t, err)

		assert.Equal(t, "move", msg.Action())
		assert.Equal(t, []string{"3", "4"}, msg.Parameters())
		assert.Equal(t, "agent1", msg.Sender())
		assert.Equal(t, "agent2", msg.Receiver())
		assert.Empty(t, msg.ConversationID())
	})

	t.Run("collapses repeated whitespace", func(t *testing.T) {
		msg, err := NewMessage("agent1", "agent2", "  offer\t10   apples \n", "c1")
		require.NoError(t, err)

		assert.Equal(t, "offer", msg.Action())
		assert.Equal(t, []string{"10", "apples"}, msg.Parameters())
		assert.Equal(t, "c1", msg.ConversationID())
	})

	t.Run("action without parameters", func(t *testing.T) {
		msg, err := NewMessage("agent1", "agent2", "ping", "")
		require.NoError(t, err)

		assert.Equal(t, "ping", msg.Action())
		assert.Empty(t, msg.Parameters())
		assert.Equal(t, "ping", msg.Content())
	})

	t.Run("rejects malformed arguments", func(t *testing.T) {
		tests := []struct {
			name     string
			sender   string
			receiver string
			content  string
			want     error
		}{
			{"blank sender", "", "agent2", "ping", ErrBlankSender},
			{"blank receiver", "agent1", " ", "ping", ErrBlankReceiver},
			{"empty content", "agent1", "agent2", "   ", ErrEmptyAction},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := NewMessage(tt.sender, tt.receiver, tt.content, "")
				assert.ErrorIs(t, err, tt.want)
			})
		}
	})
}

func TestConstructorsAgree(t *testing.T) {
	fromText, err := NewMessage("a", "b", "bid 5 red", "conv")
	require.NoError(t, err)
	fromParams, err := NewMessageWithParams("a", "b", "bid", []string{"5", "red"}, "conv")
	require.NoError(t, err)
	assert.Equal(t, fromText, fromParams)

	noParamsText, err := NewMessage("a", "b", "stop", "")
	require.NoError(t, err)
	noParams, err := NewMessageWithParams("a", "b", "stop", nil, "")
	require.NoError(t, err)
	assert.Equal(t, noParamsText, noParams)
}

func TestMessageIsImmutable(t *testing.T) {
	params := []string{"1", "2"}
	msg, err := NewMessageWithParams("a", "b", "move", params, "")
	require.NoError(t, err)

	params[0] = "changed"
	assert.Equal(t, []string{"1", "2"}, msg.Parameters())

	got := msg.Parameters()
	got[1] = "changed"
	p, ok := msg.Parameter(1)
	assert.True(t, ok)
	assert.Equal(t, "2", p)

	_, ok = msg.Parameter(2)
	assert.False(t, ok)
}

func TestMessageString(t *testing.T) {
	msg, err := NewMessage("agent1", "agent2", "move 3 4", "")
	require.NoError(t, err)
	assert.Equal(t, "[agent1 -> agent2] move:[3, 4]", msg.String())
	assert.Equal(t, "move 3 4", msg.Content())
}

func TestNewConversationID(t *testing.T) {
	id := NewConversationID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewConversationID())
}
