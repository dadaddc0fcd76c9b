package server

import (
	"errors"
	"sync/atomic"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/techox/unotable/internal/protocol"
	"github.com/techox/unotable/internal/session"
	"github.com/techox/unotable/internal/store"
	"github.com/techox/unotable/internal/uno"
)

// CommandError pairs a protocol error code with a human-readable reason.
// The router passes these through to err envelopes verbatim.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string { return e.Message }

func cmdErr(code, message string) *CommandError {
	return &CommandError{Code: code, Message: message}
}

// GameService orchestrates rooms and matches: presence changes, match
// lifecycle and rule transitions, with events fanned out after every
// accepted command. Per-match serialization happens inside the store.
type GameService struct {
	logger      zerolog.Logger
	clock       quartz.Clock
	store       *store.Store
	registry    *session.Registry
	rooms       RoomDirectory
	broadcaster *Broadcaster

	deck        []string // catalog deck override; nil uses the house deck
	nextMatchID atomic.Int64
}

func NewGameService(st *store.Store, registry *session.Registry, rooms RoomDirectory, broadcaster *Broadcaster, clock quartz.Clock, logger zerolog.Logger) *GameService {
	s := &GameService{
		logger:      logger.With().Str("component", "game_service").Logger(),
		clock:       clock,
		store:       st,
		registry:    registry,
		rooms:       rooms,
		broadcaster: broadcaster,
	}
	// Ids start high enough that clients with float-backed numbers never
	// collide with small externally visible sequences.
	s.nextMatchID.Store(1000)
	return s
}

// SetDeckCatalog replaces the house deck with an externally supplied one
func (s *GameService) SetDeckCatalog(entries []uno.CatalogEntry) {
	s.deck = uno.DeckFromCatalog(entries)
}

func (s *GameService) buildDeck() []string {
	var deck []string
	if s.deck != nil {
		deck = append([]string(nil), s.deck...)
	} else {
		deck = uno.NewDeck()
	}
	uno.Shuffle(deck)
	return deck
}

// JoinRoom subscribes a user to a room, leaving any previous room once the
// new membership is secured. Joining a room you are already in just re-syncs
// the member list.
func (s *GameService) JoinRoom(userID, roomID int64) (*RoomStateData, error) {
	room, err := s.rooms.Room(roomID)
	if err != nil {
		return nil, cmdErr(protocol.CodeRoomNotFound, "room not found")
	}

	// The store enforces capacity under its own lock; a full room never
	// disturbs the caller's existing membership.
	_, joined, err := s.store.JoinRoom(roomID, userID, room.MaxPlayers)
	if err != nil {
		return nil, cmdErr(protocol.CodeRoomFull, "room is full")
	}
	if joined {
		if prev, ok := s.registry.CurrentRoom(userID); ok && prev != roomID {
			s.leaveCurrentRoom(userID)
		}
	}

	s.registry.JoinRoom(userID, roomID)

	members := s.store.Members(roomID)
	if joined {
		s.broadcaster.RoomUserEvent(room.Game, roomID, userID, "joined", members)
	}
	return &RoomStateData{Room: *room, Members: members}, nil
}

// LeaveRoom releases membership. The owner leaving disbands the whole room.
func (s *GameService) LeaveRoom(userID int64) (int64, error) {
	roomID, ok := s.registry.CurrentRoom(userID)
	if !ok {
		return 0, cmdErr(protocol.CodeNotInRoom, "not in a room")
	}

	room, err := s.rooms.Room(roomID)
	if err == nil && room.OwnerID == userID {
		s.disband(room, "owner left")
		return roomID, nil
	}

	s.leaveCurrentRoom(userID)
	return roomID, nil
}

// leaveCurrentRoom removes presence and announces the departure
func (s *GameService) leaveCurrentRoom(userID int64) {
	roomID := s.registry.LeaveRoom(userID)
	if roomID == 0 {
		return
	}
	s.store.LeaveRoom(roomID, userID)

	game := "uno"
	if room, err := s.rooms.Room(roomID); err == nil {
		game = room.Game
	}
	s.broadcaster.RoomUserEvent(game, roomID, userID, "left", s.store.Members(roomID))
}

// Disband tears a room down on the owner's explicit request. Only legal
// while the room is waiting.
func (s *GameService) Disband(userID, roomID int64) error {
	room, err := s.rooms.Room(roomID)
	if err != nil {
		return cmdErr(protocol.CodeRoomNotFound, "room not found")
	}
	if room.OwnerID != userID {
		return cmdErr(protocol.CodeNotRoomOwner, "only the owner can disband the room")
	}
	if room.Status != RoomStatusWaiting {
		return cmdErr(protocol.CodeMatchInProgress, "cannot disband while a match is in progress")
	}

	s.disband(room, "disbanded by owner")
	return nil
}

// disband kicks everyone, clears presence and aborts any live match.
// Events go out before memberships are torn down so they still deliver.
func (s *GameService) disband(room *Room, reason string) {
	s.broadcaster.RoomDisbanding(room.Game, room.ID, reason)

	members := s.registry.RoomMembers(room.ID)
	for _, uid := range members {
		s.broadcaster.RoomKicked(room.Game, room.ID, uid, reason)
	}
	s.broadcaster.RoomDisbanded(room.Game, room.ID)

	for _, uid := range members {
		s.registry.LeaveRoom(uid)
	}
	s.store.ClearRoom(room.ID)

	if sess, ok := s.store.FindByRoom(room.ID); ok && sess.Status == store.StatusPlaying {
		s.store.Finish(sess.MatchID, 0, true)
	}
	_ = s.rooms.SetStatus(room.ID, RoomStatusWaiting)

	s.logger.Info().Int64("room_id", room.ID).Str("reason", reason).Msg("room disbanded")
}

// SetReady flips the caller's ready flag and re-syncs the room
func (s *GameService) SetReady(userID int64, ready bool) (*RoomStateData, error) {
	roomID, ok := s.registry.CurrentRoom(userID)
	if !ok {
		return nil, cmdErr(protocol.CodeNotInRoom, "not in a room")
	}
	room, err := s.rooms.Room(roomID)
	if err != nil {
		return nil, cmdErr(protocol.CodeRoomNotFound, "room not found")
	}
	if err := s.store.SetReady(roomID, userID, ready); err != nil {
		return nil, cmdErr(protocol.CodeNotInRoom, "not a member of this room")
	}

	members := s.store.Members(roomID)
	s.broadcaster.RoomUpdated(room.Game, *room, members)
	return &RoomStateData{Room: *room, Members: members}, nil
}

// StartMatch deals a new match for the caller's room. Owner only, at least
// two members, room must be waiting.
func (s *GameService) StartMatch(userID int64) (*MatchStartedData, error) {
	roomID, ok := s.registry.CurrentRoom(userID)
	if !ok {
		return nil, cmdErr(protocol.CodeNotInRoom, "not in a room")
	}
	room, err := s.rooms.Room(roomID)
	if err != nil {
		return nil, cmdErr(protocol.CodeRoomNotFound, "room not found")
	}
	if room.OwnerID != userID {
		return nil, cmdErr(protocol.CodeNotRoomOwner, "only the owner can start the match")
	}
	if room.Status != RoomStatusWaiting {
		return nil, cmdErr(protocol.CodeMatchInProgress, "a match is already in progress")
	}

	members := s.store.Members(roomID)
	if len(members) < 2 {
		return nil, cmdErr(protocol.CodeNotEnoughPlayers, "need at least 2 players")
	}

	userIDs := make([]int64, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
	}

	state := uno.Deal(userIDs, s.buildDeck())
	matchID := s.nextMatchID.Add(1)
	s.store.Create(matchID, room.Game, roomID, state, len(userIDs))
	_ = s.rooms.SetStatus(roomID, RoomStatusPlaying)

	s.logger.Info().
		Int64("match_id", matchID).
		Int64("room_id", roomID).
		Int("players", len(userIDs)).
		Msg("match started")

	s.broadcaster.GameStarted(room.Game, roomID, matchID, state)
	return &MatchStartedData{MatchID: matchID, RoomID: roomID}, nil
}

// sessionFor resolves the caller's live match session
func (s *GameService) sessionFor(userID int64) (*store.Session, error) {
	roomID, ok := s.registry.CurrentRoom(userID)
	if !ok {
		return nil, cmdErr(protocol.CodeNotInRoom, "not in a room")
	}
	sess, ok := s.store.FindByRoom(roomID)
	if !ok {
		return nil, cmdErr(protocol.CodeMatchNotFound, "no match for this room")
	}
	return sess, nil
}

// transition runs a rule transition under the per-match lock and commits
// the successor state. Returns the committed state.
func (s *GameService) transition(sess *store.Session, fn func(state *uno.State) (*uno.State, error)) (*uno.State, error) {
	var committed *uno.State
	err := s.store.WithSession(sess.MatchID, func(ss *store.Session) error {
		if ss.Status != store.StatusPlaying {
			return uno.ErrGameFinished
		}
		next, err := fn(ss.State)
		if err != nil {
			return err
		}
		ss.Commit(next, s.clock.Now())
		committed = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// finishIfOver handles the terminal bookkeeping after a committed state
func (s *GameService) finishIfOver(sess *store.Session, state *uno.State) {
	if !state.Finished {
		return
	}
	s.store.Finish(sess.MatchID, state.WinnerID, state.Aborted)
	_ = s.rooms.SetStatus(sess.RoomID, RoomStatusWaiting)
	s.broadcaster.GameFinished(sess.Game, sess.RoomID, sess.MatchID, state, state.WinnerID, state.Aborted)
}

// Play plays a card for the caller and fans out the new state
func (s *GameService) Play(userID int64, card, color string) (*uno.View, error) {
	sess, err := s.sessionFor(userID)
	if err != nil {
		return nil, err
	}

	state, err := s.transition(sess, func(st *uno.State) (*uno.State, error) {
		return uno.Play(st, userID, card, color)
	})
	if err != nil {
		return nil, err
	}

	s.broadcaster.GameAction(sess.Game, sess.RoomID, sess.MatchID, state, "play", userID, map[string]interface{}{
		"card": card,
	})
	s.finishIfOver(sess, state)

	view := uno.PublicView(state, userID)
	return &view, nil
}

// Draw draws max(1, pending) cards for the caller and passes the turn.
// The drawn cards go only to the actor; everyone else sees counts.
func (s *GameService) Draw(userID int64) (*DrawAckData, error) {
	sess, err := s.sessionFor(userID)
	if err != nil {
		return nil, err
	}

	var drawn []string
	state, err := s.transition(sess, func(st *uno.State) (*uno.State, error) {
		res, err := uno.DrawAndPass(st, userID)
		if err != nil {
			return nil, err
		}
		drawn = res.Drawn
		return res.State, nil
	})
	if err != nil {
		return nil, err
	}

	s.broadcaster.GameAction(sess.Game, sess.RoomID, sess.MatchID, state, "draw", userID, map[string]interface{}{
		"count": len(drawn),
	})
	s.finishIfOver(sess, state)

	return &DrawAckData{Drawn: drawn, State: uno.PublicView(state, userID)}, nil
}

// CallUno records the caller's declaration
func (s *GameService) CallUno(userID int64) (*uno.View, error) {
	sess, err := s.sessionFor(userID)
	if err != nil {
		return nil, err
	}

	state, err := s.transition(sess, func(st *uno.State) (*uno.State, error) {
		return uno.CallUno(st, userID)
	})
	if err != nil {
		return nil, err
	}

	s.broadcaster.GameAction(sess.Game, sess.RoomID, sess.MatchID, state, "call_uno", userID, nil)
	view := uno.PublicView(state, userID)
	return &view, nil
}

// ChallengeWildDraw4 resolves a challenge against the last Wild Draw 4
func (s *GameService) ChallengeWildDraw4(userID int64) (*uno.ChallengeResult, error) {
	sess, err := s.sessionFor(userID)
	if err != nil {
		return nil, err
	}

	var result uno.ChallengeResult
	state, err := s.transition(sess, func(st *uno.State) (*uno.State, error) {
		res, err := uno.ChallengeWildDraw4(st, userID)
		if err != nil {
			return nil, err
		}
		result = res
		return res.State, nil
	})
	if err != nil {
		return nil, err
	}

	s.broadcaster.GameAction(sess.Game, sess.RoomID, sess.MatchID, state, "challenge_wild_draw4", userID, map[string]interface{}{
		"successful":   result.Successful,
		"challengedId": result.ChallengedID,
		"penaltyCards": result.PenaltyCards,
		"reason":       result.Reason,
	})
	return &result, nil
}

// PenalizeForgetUno applies the forgotten-declaration penalty to a target
func (s *GameService) PenalizeForgetUno(userID, targetID int64) (*uno.PenaltyResult, error) {
	sess, err := s.sessionFor(userID)
	if err != nil {
		return nil, err
	}

	var result uno.PenaltyResult
	state, err := s.transition(sess, func(st *uno.State) (*uno.State, error) {
		res, err := uno.PenalizeForgetUno(st, targetID)
		if err != nil {
			return nil, err
		}
		result = res
		return res.State, nil
	})
	if err != nil {
		return nil, err
	}

	s.broadcaster.GameAction(sess.Game, sess.RoomID, sess.MatchID, state, "penalize_forget_uno", userID, map[string]interface{}{
		"penalizedId":  result.PenalizedID,
		"penaltyCards": result.PenaltyCards,
	})
	return &result, nil
}

// GameState re-sends the caller's current projection without mutating
func (s *GameService) GameState(userID int64) (*GameEventData, error) {
	sess, err := s.sessionFor(userID)
	if err != nil {
		return nil, err
	}

	var view uno.View
	err = s.store.WithSession(sess.MatchID, func(ss *store.Session) error {
		view = uno.PublicView(ss.State, userID)
		return nil
	})
	if err != nil {
		return nil, cmdErr(protocol.CodeMatchNotFound, "no match for this room")
	}

	return &GameEventData{MatchID: sess.MatchID, RoomID: sess.RoomID, State: view}, nil
}

// SyncState re-sends room membership plus the match projection if one is
// live. Never mutates anything.
func (s *GameService) SyncState(userID int64) (*SyncStateData, error) {
	roomID, ok := s.registry.CurrentRoom(userID)
	if !ok {
		return nil, cmdErr(protocol.CodeNotInRoom, "not in a room")
	}
	room, err := s.rooms.Room(roomID)
	if err != nil {
		return nil, cmdErr(protocol.CodeRoomNotFound, "room not found")
	}

	data := &SyncStateData{
		Room:    *room,
		Members: s.store.Members(roomID),
	}
	if game, err := s.GameState(userID); err == nil {
		data.Match = game
	}
	return data, nil
}

// HandleDisconnect releases a closed connection's room membership. Match
// mutations already committed stand; the seat simply goes quiet.
func (s *GameService) HandleDisconnect(userID, roomID int64) {
	if roomID == 0 {
		return
	}
	s.store.LeaveRoom(roomID, userID)

	game := "uno"
	if room, err := s.rooms.Room(roomID); err == nil {
		game = room.Game
	}
	s.broadcaster.RoomUserEvent(game, roomID, userID, "left", s.store.Members(roomID))
	s.logger.Debug().Int64("user_id", userID).Int64("room_id", roomID).Msg("released room membership on disconnect")
}

// IsCommandError reports whether err carries a protocol code already
func IsCommandError(err error) (*CommandError, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
