package session

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techox/unotable/internal/protocol"
)

type fakeConn struct {
	id     string
	sent   []*protocol.Envelope
	closed bool
	fail   bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(env *protocol.Envelope) error {
	if c.fail {
		return errors.New("broken pipe")
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.Nop())
}

func TestRegisterSupersedes(t *testing.T) {
	r := newTestRegistry()
	c1 := &fakeConn{}
	c2 := &fakeConn{}

	assert.False(t, r.Register(100, c1))
	assert.False(t, r.Register(100, c1), "same connection again is a no-op")

	assert.True(t, r.Register(100, c2), "new connection takes over")
	assert.True(t, c1.closed)

	conn, ok := r.UserConn(100)
	require.True(t, ok)
	assert.Same(t, c2, conn.(*fakeConn))
}

func TestSupersededConnUnregistersNothing(t *testing.T) {
	r := newTestRegistry()
	c1 := &fakeConn{}
	c2 := &fakeConn{}

	r.Register(100, c1)
	r.Register(100, c2)

	// The stale connection's close handler fires after the takeover.
	_, _, ok := r.Unregister(c1)
	assert.False(t, ok)

	conn, ok := r.UserConn(100)
	require.True(t, ok)
	assert.Same(t, c2, conn.(*fakeConn))
}

func TestUnregisterReleasesRoom(t *testing.T) {
	r := newTestRegistry()
	c := &fakeConn{}
	r.Register(100, c)
	r.JoinRoom(100, 7)

	uid, roomID, ok := r.Unregister(c)
	require.True(t, ok)
	assert.Equal(t, int64(100), uid)
	assert.Equal(t, int64(7), roomID)
	assert.Empty(t, r.RoomMembers(7))

	_, ok = r.CurrentRoom(100)
	assert.False(t, ok)
}

func TestJoinRoomReleasesPrevious(t *testing.T) {
	r := newTestRegistry()
	r.Register(100, &fakeConn{})

	assert.Zero(t, r.JoinRoom(100, 7))
	assert.Equal(t, int64(7), r.JoinRoom(100, 8), "previous room is reported")

	assert.Empty(t, r.RoomMembers(7))
	assert.Equal(t, []int64{100}, r.RoomMembers(8))

	room, ok := r.CurrentRoom(100)
	require.True(t, ok)
	assert.Equal(t, int64(8), room)
}

func TestSendToUser(t *testing.T) {
	r := newTestRegistry()
	c := &fakeConn{}
	r.Register(100, c)

	env := &protocol.Envelope{Kind: protocol.KindEvent, Type: "ping"}
	r.SendToUser(100, env)
	require.Len(t, c.sent, 1)

	r.SendToUser(999, env) // unknown user is silently ignored
}

func TestFailedSendCleansUp(t *testing.T) {
	r := newTestRegistry()
	c := &fakeConn{fail: true}
	r.Register(100, c)
	r.JoinRoom(100, 7)

	r.SendToUser(100, &protocol.Envelope{Kind: protocol.KindEvent})

	assert.True(t, c.closed)
	_, ok := r.UserConn(100)
	assert.False(t, ok, "stale connection is unregistered")
	assert.Empty(t, r.RoomMembers(7), "room membership released")
}

func TestBroadcastRoom(t *testing.T) {
	r := newTestRegistry()
	c1, c2, c3 := &fakeConn{}, &fakeConn{}, &fakeConn{}
	r.Register(1, c1)
	r.Register(2, c2)
	r.Register(3, c3)
	r.JoinRoom(1, 7)
	r.JoinRoom(2, 7)
	r.JoinRoom(3, 8)

	env := &protocol.Envelope{Kind: protocol.KindEvent, Type: "room.member_joined"}
	r.BroadcastRoom(7, env)
	assert.Len(t, c1.sent, 1)
	assert.Len(t, c2.sent, 1)
	assert.Empty(t, c3.sent, "other rooms are untouched")

	r.BroadcastRoomExcept(7, 1, env)
	assert.Len(t, c1.sent, 1)
	assert.Len(t, c2.sent, 2)
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	r := newTestRegistry()
	good := &fakeConn{}
	bad := &fakeConn{fail: true}
	r.Register(1, good)
	r.Register(2, bad)
	r.JoinRoom(1, 7)
	r.JoinRoom(2, 7)

	r.BroadcastRoom(7, &protocol.Envelope{Kind: protocol.KindEvent})

	assert.Len(t, good.sent, 1, "healthy recipients still receive")
	assert.True(t, bad.closed)
	assert.Equal(t, []int64{1}, r.RoomMembers(7))
}
