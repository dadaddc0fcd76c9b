package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techox/unotable/internal/protocol"
	"github.com/techox/unotable/internal/store"
	"github.com/techox/unotable/internal/uno"
)

// seatTwo puts alice (owner of room 1) and bob into the room and returns
// their connections.
func seatTwo(t *testing.T, h *harness) (alice, bob *testConn) {
	t.Helper()
	alice = newTestConn("alice-conn")
	bob = newTestConn("bob-conn")
	h.authAs(t, alice, "alice:1")
	h.authAs(t, bob, "bob:2")
	h.joinRoom(t, alice, 1)
	h.joinRoom(t, bob, 1)
	alice.clear()
	bob.clear()
	return alice, bob
}

func startMatch(t *testing.T, h *harness, owner *testConn) MatchStartedData {
	t.Helper()
	h.handle(owner, cmd(CmdMatchStart, nil))
	ack := owner.lastOfType(t, protocol.KindAck, CmdMatchStart)
	var started MatchStartedData
	decodeData(t, ack, &started)
	return started
}

func TestJoinRoomNotFound(t *testing.T) {
	h := newHarness(t)
	conn := newTestConn("c1")
	h.authAs(t, conn, "alice:1")

	h.handle(conn, cmd(CmdRoomJoin, JoinRoomData{RoomID: 404}))

	assert.Equal(t, protocol.CodeRoomNotFound, errorCode(t, conn.last(t)))
}

func TestJoinRoomAnnouncesToExistingMembers(t *testing.T) {
	h := newHarness(t)
	alice := newTestConn("alice-conn")
	bob := newTestConn("bob-conn")
	h.authAs(t, alice, "alice:1")
	h.authAs(t, bob, "bob:2")

	h.joinRoom(t, alice, 1)
	h.handle(bob, cmd(CmdRoomJoin, JoinRoomData{RoomID: 1}))

	evt := alice.lastOfType(t, protocol.KindEvent, EvtRoomUserEvent)
	var data RoomUserEventData
	decodeData(t, evt, &data)
	assert.Equal(t, int64(2), data.UserID)
	assert.Equal(t, "joined", data.Event)
	require.Len(t, data.Members, 2)
	assert.Equal(t, protocol.RoomChannel("uno", 1), evt.Channel)
}

func TestJoinRoomIdempotent(t *testing.T) {
	h := newHarness(t)
	alice, _ := seatTwo(t, h)

	h.handle(alice, cmd(CmdRoomJoin, JoinRoomData{RoomID: 1}))

	ack := alice.lastOfType(t, protocol.KindAck, CmdRoomJoin)
	var data RoomStateData
	decodeData(t, ack, &data)
	require.Len(t, data.Members, 2, "rejoin re-syncs without duplicating the member")
}

func TestJoinRoomFull(t *testing.T) {
	h := newHarness(t)
	h.directory.Put(Room{ID: 9, Name: "duel", OwnerID: 1, MaxPlayers: 2})

	for _, token := range []string{"a:1", "b:2"} {
		conn := newTestConn(token)
		h.authAs(t, conn, token)
		h.joinRoom(t, conn, 9)
	}

	late := newTestConn("late")
	h.authAs(t, late, "c:3")
	h.handle(late, cmd(CmdRoomJoin, JoinRoomData{RoomID: 9}))

	assert.Equal(t, protocol.CodeRoomFull, errorCode(t, late.last(t)))
}

func TestJoinRoomFullKeepsCurrentRoom(t *testing.T) {
	h := newHarness(t)
	h.directory.Put(Room{ID: 9, Name: "duel", OwnerID: 1, MaxPlayers: 2})

	for _, token := range []string{"a:1", "b:2"} {
		conn := newTestConn(token)
		h.authAs(t, conn, token)
		h.joinRoom(t, conn, 9)
	}

	late := newTestConn("late")
	h.authAs(t, late, "c:3")
	h.joinRoom(t, late, 1)

	h.handle(late, cmd(CmdRoomJoin, JoinRoomData{RoomID: 9}))

	assert.Equal(t, protocol.CodeRoomFull, errorCode(t, late.last(t)))
	require.Len(t, h.store.Members(1), 1, "rejected join must not drop the old room")
	current, ok := h.registry.CurrentRoom(3)
	require.True(t, ok)
	assert.Equal(t, int64(1), current)
}

func TestJoinRoomLeavesPreviousRoom(t *testing.T) {
	h := newHarness(t)
	h.directory.Put(Room{ID: 2, Name: "side", OwnerID: 5, MaxPlayers: 4})
	conn := newTestConn("c1")
	h.authAs(t, conn, "bob:2")
	h.joinRoom(t, conn, 1)

	h.joinRoom(t, conn, 2)

	assert.Empty(t, h.store.Members(1))
	require.Len(t, h.store.Members(2), 1)
	current, ok := h.registry.CurrentRoom(2)
	require.True(t, ok)
	assert.Equal(t, int64(2), current)
}

func TestLeaveRoomNotInRoom(t *testing.T) {
	h := newHarness(t)
	conn := newTestConn("c1")
	h.authAs(t, conn, "bob:2")

	h.handle(conn, cmd(CmdRoomLeave, nil))

	assert.Equal(t, protocol.CodeNotInRoom, errorCode(t, conn.last(t)))
}

func TestReadyBroadcastsRoomUpdate(t *testing.T) {
	h := newHarness(t)
	alice, bob := seatTwo(t, h)

	h.handle(bob, cmd(CmdRoomReady, nil))

	evt := alice.lastOfType(t, protocol.KindEvent, EvtRoomUpdated)
	var data RoomStateData
	decodeData(t, evt, &data)
	require.Len(t, data.Members, 2)
	for _, m := range data.Members {
		if m.UserID == 2 {
			assert.True(t, m.Ready)
		}
	}
}

func TestStartMatchRequiresOwner(t *testing.T) {
	h := newHarness(t)
	_, bob := seatTwo(t, h)

	h.handle(bob, cmd(CmdMatchStart, nil))

	assert.Equal(t, protocol.CodeNotRoomOwner, errorCode(t, bob.last(t)))
}

func TestStartMatchRequiresTwoPlayers(t *testing.T) {
	h := newHarness(t)
	alice := newTestConn("alice-conn")
	h.authAs(t, alice, "alice:1")
	h.joinRoom(t, alice, 1)

	h.handle(alice, cmd(CmdMatchStart, nil))

	assert.Equal(t, protocol.CodeNotEnoughPlayers, errorCode(t, alice.last(t)))
}

func TestStartMatchDealsAndBroadcasts(t *testing.T) {
	h := newHarness(t)
	alice, bob := seatTwo(t, h)

	started := startMatch(t, h, alice)
	assert.Greater(t, started.MatchID, int64(1000))
	assert.Equal(t, int64(1), started.RoomID)

	room, err := h.directory.Room(1)
	require.NoError(t, err)
	assert.Equal(t, RoomStatusPlaying, room.Status)

	sess, ok := h.store.FindByRoom(1)
	require.True(t, ok)
	assert.Equal(t, started.MatchID, sess.MatchID)
	assert.Equal(t, store.StatusPlaying, sess.Status)

	for _, conn := range []*testConn{alice, bob} {
		evt := conn.lastOfType(t, protocol.KindEvent, EvtGameStarted)
		var data GameEventData
		decodeData(t, evt, &data)
		assert.Equal(t, started.MatchID, data.MatchID)
		assert.True(t, data.State.Started)
		assert.Equal(t, protocol.MatchChannel("uno", started.MatchID), evt.Channel)
	}
}

func TestStartMatchTwiceRejected(t *testing.T) {
	h := newHarness(t)
	alice, _ := seatTwo(t, h)
	startMatch(t, h, alice)

	h.handle(alice, cmd(CmdMatchStart, nil))

	assert.Equal(t, protocol.CodeMatchInProgress, errorCode(t, alice.last(t)))
}

func TestGameEventsHideOtherHands(t *testing.T) {
	h := newHarness(t)
	alice, bob := seatTwo(t, h)
	startMatch(t, h, alice)

	checks := []struct {
		conn   *testConn
		userID int64
	}{
		{alice, 1},
		{bob, 2},
	}
	for _, c := range checks {
		evt := c.conn.lastOfType(t, protocol.KindEvent, EvtGameStarted)
		var data GameEventData
		decodeData(t, evt, &data)

		require.Len(t, data.State.Players, 2)
		for _, p := range data.State.Players {
			assert.Equal(t, 7, p.CardCount)
			if p.UserID == c.userID {
				assert.Len(t, p.Hand, 7, "viewer sees their own hand")
			} else {
				assert.Empty(t, p.Hand, "other hands stay hidden")
			}
		}
	}
}

func TestDrawFlow(t *testing.T) {
	h := newHarness(t)
	alice, bob := seatTwo(t, h)
	startMatch(t, h, alice)
	alice.clear()
	bob.clear()

	state, err := h.service.GameState(1)
	require.NoError(t, err)

	actor := alice
	observer := bob
	if state.State.CurrentPlayerID == 2 {
		actor, observer = bob, alice
	}
	actorID := state.State.CurrentPlayerID

	h.handle(actor, cmd(CmdMatchDraw, nil))

	ack := actor.lastOfType(t, protocol.KindAck, CmdMatchDraw)
	var drawAck DrawAckData
	decodeData(t, ack, &drawAck)
	assert.NotEmpty(t, drawAck.Drawn, "actor learns the drawn cards")
	assert.NotEqual(t, actorID, drawAck.State.CurrentPlayerID, "turn passed")

	evt := observer.lastOfType(t, protocol.KindEvent, EvtGameAction)
	var data GameEventData
	decodeData(t, evt, &data)
	assert.Equal(t, "draw", data.Action)
	assert.Equal(t, actorID, data.ActorID)
	for _, p := range data.State.Players {
		if p.UserID == actorID {
			assert.Empty(t, p.Hand, "observer never sees the drawn cards")
		}
	}
}

func TestPlayOutOfTurn(t *testing.T) {
	h := newHarness(t)
	alice, bob := seatTwo(t, h)
	startMatch(t, h, alice)

	state, err := h.service.GameState(1)
	require.NoError(t, err)

	offTurn := alice
	if state.State.CurrentPlayerID == 1 {
		offTurn = bob
	}

	h.handle(offTurn, cmd(CmdMatchPlay, PlayCardData{Card: "R-5"}))

	assert.Equal(t, protocol.CodeNotYourTurn, errorCode(t, offTurn.last(t)))
}

func TestMatchCommandsWithoutMatch(t *testing.T) {
	h := newHarness(t)
	alice, _ := seatTwo(t, h)

	h.handle(alice, cmd(CmdMatchDraw, nil))

	assert.Equal(t, protocol.CodeMatchNotFound, errorCode(t, alice.last(t)))
}

func TestOwnerLeaveDisbandsRoom(t *testing.T) {
	h := newHarness(t)
	alice, bob := seatTwo(t, h)

	h.handle(alice, cmd(CmdRoomLeave, nil))

	bob.lastOfType(t, protocol.KindEvent, EvtRoomDisbanding)
	bob.lastOfType(t, protocol.KindEvent, EvtRoomKicked)
	assert.Empty(t, h.store.Members(1))
	_, ok := h.registry.CurrentRoom(2)
	assert.False(t, ok)
}

func TestMemberLeaveKeepsRoom(t *testing.T) {
	h := newHarness(t)
	alice, bob := seatTwo(t, h)

	h.handle(bob, cmd(CmdRoomLeave, nil))

	evt := alice.lastOfType(t, protocol.KindEvent, EvtRoomUserEvent)
	var data RoomUserEventData
	decodeData(t, evt, &data)
	assert.Equal(t, "left", data.Event)
	require.Len(t, h.store.Members(1), 1)
}

func TestDisbandRequiresOwner(t *testing.T) {
	h := newHarness(t)
	_, bob := seatTwo(t, h)

	h.handle(bob, cmd(CmdRoomDisband, JoinRoomData{RoomID: 1}))

	assert.Equal(t, protocol.CodeNotRoomOwner, errorCode(t, bob.last(t)))
}

func TestDisbandRejectedMidMatch(t *testing.T) {
	h := newHarness(t)
	alice, _ := seatTwo(t, h)
	startMatch(t, h, alice)

	h.handle(alice, cmd(CmdRoomDisband, JoinRoomData{RoomID: 1}))

	assert.Equal(t, protocol.CodeMatchInProgress, errorCode(t, alice.last(t)))
}

func TestDisbandAbortsLiveSession(t *testing.T) {
	h := newHarness(t)
	alice, _ := seatTwo(t, h)
	started := startMatch(t, h, alice)

	// Owner leaving tears the room down even mid-match.
	h.handle(alice, cmd(CmdRoomLeave, nil))

	sess, ok := h.store.Get(started.MatchID)
	require.True(t, ok)
	assert.Equal(t, store.StatusAborted, sess.Status)

	room, err := h.directory.Room(1)
	require.NoError(t, err)
	assert.Equal(t, RoomStatusWaiting, room.Status)
}

func TestSyncState(t *testing.T) {
	h := newHarness(t)
	alice, _ := seatTwo(t, h)
	started := startMatch(t, h, alice)

	h.handle(alice, cmd(CmdSyncState, nil))

	ack := alice.lastOfType(t, protocol.KindAck, CmdSyncState)
	var data SyncStateData
	decodeData(t, ack, &data)
	assert.Equal(t, int64(1), data.Room.ID)
	require.Len(t, data.Members, 2)
	require.NotNil(t, data.Match)
	assert.Equal(t, started.MatchID, data.Match.MatchID)
	for _, p := range data.Match.State.Players {
		if p.UserID == 1 {
			assert.Len(t, p.Hand, 7)
		}
	}
}

func TestGetGameState(t *testing.T) {
	h := newHarness(t)
	alice, _ := seatTwo(t, h)
	started := startMatch(t, h, alice)

	h.handle(alice, cmd(CmdGetGameState, nil))

	ack := alice.lastOfType(t, protocol.KindAck, CmdGetGameState)
	var data GameEventData
	decodeData(t, ack, &data)
	assert.Equal(t, started.MatchID, data.MatchID)
	assert.True(t, data.State.Started)
}

func TestDeckCatalogOverride(t *testing.T) {
	h := newHarness(t)
	h.service.SetDeckCatalog([]uno.CatalogEntry{
		{ID: "red_5", Count: 20},
		{ID: "green_7", Count: 20},
	})
	alice, _ := seatTwo(t, h)

	startMatch(t, h, alice)

	state, err := h.service.GameState(1)
	require.NoError(t, err)
	for _, p := range state.State.Players {
		if p.UserID != 1 {
			continue
		}
		for _, card := range p.Hand {
			assert.Contains(t, []string{"R-5", "G-7"}, card.ID)
		}
	}
}
