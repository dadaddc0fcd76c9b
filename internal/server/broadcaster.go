package server

import (
	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/techox/unotable/internal/protocol"
	"github.com/techox/unotable/internal/session"
	"github.com/techox/unotable/internal/store"
	"github.com/techox/unotable/internal/uno"
)

// GameEventData is the payload of every match event. State is the
// per-viewer projection, recomputed for each recipient so nobody ever sees
// another hand.
type GameEventData struct {
	MatchID  int64                  `json:"matchId"`
	RoomID   int64                  `json:"roomId"`
	Action   string                 `json:"action,omitempty"`
	ActorID  int64                  `json:"actorId,omitempty"`
	WinnerID int64                  `json:"winnerId,omitempty"`
	Aborted  bool                   `json:"aborted,omitempty"`
	State    uno.View               `json:"state"`
	Extra    map[string]interface{} `json:"extra,omitempty"`
}

// Broadcaster fans events out through the session registry. All sends are
// best-effort and per-recipient; a dead connection never stalls the rest.
type Broadcaster struct {
	logger   zerolog.Logger
	clock    quartz.Clock
	registry *session.Registry
}

func NewBroadcaster(registry *session.Registry, clock quartz.Clock, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:   logger.With().Str("component", "broadcaster").Logger(),
		clock:    clock,
		registry: registry,
	}
}

// RoomUserEvent announces a member joining or leaving to the whole room
func (b *Broadcaster) RoomUserEvent(game string, roomID, userID int64, event string, members []store.Member) {
	env, err := protocol.NewEvent(protocol.RoomChannel(game, roomID), game, EvtRoomUserEvent, RoomUserEventData{
		RoomID:  roomID,
		UserID:  userID,
		Event:   event,
		Members: members,
	}, b.clock.Now())
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to build room event")
		return
	}
	b.registry.BroadcastRoom(roomID, env)
}

// RoomUpdated pushes the current member list after a ready/seat change
func (b *Broadcaster) RoomUpdated(game string, room Room, members []store.Member) {
	env, err := protocol.NewEvent(protocol.RoomChannel(game, room.ID), game, EvtRoomUpdated, RoomStateData{
		Room:    room,
		Members: members,
	}, b.clock.Now())
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to build room event")
		return
	}
	b.registry.BroadcastRoom(room.ID, env)
}

// RoomDisbanding warns members before the room is torn down
func (b *Broadcaster) RoomDisbanding(game string, roomID int64, reason string) {
	env, err := protocol.NewEvent(protocol.RoomChannel(game, roomID), game, EvtRoomDisbanding, RoomClosingData{
		RoomID: roomID,
		Reason: reason,
	}, b.clock.Now())
	if err != nil {
		return
	}
	b.registry.BroadcastRoom(roomID, env)
}

// RoomKicked tells one member they are being removed, just before removal
func (b *Broadcaster) RoomKicked(game string, roomID, userID int64, reason string) {
	env, err := protocol.NewEvent(protocol.RoomChannel(game, roomID), game, EvtRoomKicked, RoomClosingData{
		RoomID: roomID,
		Reason: reason,
	}, b.clock.Now())
	if err != nil {
		return
	}
	b.registry.SendToUser(userID, env)
}

// RoomDisbanded is the final room event
func (b *Broadcaster) RoomDisbanded(game string, roomID int64) {
	env, err := protocol.NewEvent(protocol.RoomChannel(game, roomID), game, EvtRoomDisbanded, RoomClosingData{
		RoomID: roomID,
	}, b.clock.Now())
	if err != nil {
		return
	}
	b.registry.BroadcastRoom(roomID, env)
}

// GameStarted pushes the opening projection to every room member
func (b *Broadcaster) GameStarted(game string, roomID, matchID int64, state *uno.State) {
	b.perViewer(game, roomID, matchID, EvtGameStarted, state, GameEventData{
		MatchID: matchID,
		RoomID:  roomID,
	})
}

// GameAction pushes the post-move projection after any accepted command
func (b *Broadcaster) GameAction(game string, roomID, matchID int64, state *uno.State, action string, actorID int64, extra map[string]interface{}) {
	b.perViewer(game, roomID, matchID, EvtGameAction, state, GameEventData{
		MatchID: matchID,
		RoomID:  roomID,
		Action:  action,
		ActorID: actorID,
		Extra:   extra,
	})
}

// GameFinished announces the result
func (b *Broadcaster) GameFinished(game string, roomID, matchID int64, state *uno.State, winnerID int64, aborted bool) {
	b.perViewer(game, roomID, matchID, EvtGameFinished, state, GameEventData{
		MatchID:  matchID,
		RoomID:   roomID,
		WinnerID: winnerID,
		Aborted:  aborted,
	})
}

// perViewer recomputes the projection per recipient and sends individually
func (b *Broadcaster) perViewer(game string, roomID, matchID int64, eventType string, state *uno.State, base GameEventData) {
	channel := protocol.MatchChannel(game, matchID)
	now := b.clock.Now()

	for _, userID := range b.registry.RoomMembers(roomID) {
		data := base
		data.State = uno.PublicView(state, userID)

		env, err := protocol.NewEvent(channel, game, eventType, data, now)
		if err != nil {
			b.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to build match event")
			continue
		}
		b.registry.SendToUser(userID, env)
	}
}
