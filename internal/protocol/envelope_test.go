package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.UnixMilli(1700000000000)

func TestNewAckEchoesCommand(t *testing.T) {
	cmd := &Envelope{
		Kind:    KindCommand,
		Type:    "room.join",
		Cid:     "c-42",
		Channel: RoomChannel("uno", 1),
		Game:    "uno",
	}

	ack, err := NewAck(cmd, map[string]int{"roomId": 1}, now)
	require.NoError(t, err)

	assert.Equal(t, KindAck, ack.Kind)
	assert.Equal(t, "room.join", ack.Type)
	assert.Equal(t, "c-42", ack.Cid)
	assert.Equal(t, "room:uno:1", ack.Channel)
	assert.Equal(t, now.UnixMilli(), ack.Timestamp)
	assert.NotEmpty(t, ack.MessageID)
}

func TestNewErrorWithoutCommand(t *testing.T) {
	env := NewError(nil, CodeInternalError, "boom", now)

	assert.Equal(t, KindError, env.Kind)
	assert.Empty(t, env.Cid)
	assert.JSONEq(t, `{"code":"INTERNAL_ERROR","message":"boom"}`, string(env.Data))
}

func TestNewEvent(t *testing.T) {
	env, err := NewEvent(MatchChannel("uno", 1001), "uno", "game_action", map[string]string{"action": "draw"}, now)
	require.NoError(t, err)

	assert.Equal(t, KindEvent, env.Kind)
	assert.Equal(t, "game_action", env.Type)
	assert.Equal(t, "match:uno:1001", env.Channel)
	assert.Equal(t, "uno", env.Game)
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "room:uno:7", RoomChannel("uno", 7))
	assert.Equal(t, "match:uno:1001", MatchChannel("uno", 1001))
}
