package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/techox/unotable/internal/protocol"
)

// Conn is the transport-side handle the registry fans envelopes out to.
// Implementations must be comparable (the registry keys reverse lookups on
// the value) and safe to call from multiple goroutines.
type Conn interface {
	ID() string
	Send(env *protocol.Envelope) error
	Close() error
}

// Registry maps users to connections and rooms. One active connection per
// user: a newer connection supersedes and closes the old one. All sends are
// best-effort; a failed send unregisters the stale connection instead of
// surfacing the error.
type Registry struct {
	logger zerolog.Logger

	mu          sync.RWMutex
	userConns   map[int64]Conn
	connUsers   map[Conn]int64
	userRooms   map[int64]int64
	roomMembers map[int64]map[int64]struct{}
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger:      logger.With().Str("component", "session_registry").Logger(),
		userConns:   make(map[int64]Conn),
		connUsers:   make(map[Conn]int64),
		userRooms:   make(map[int64]int64),
		roomMembers: make(map[int64]map[int64]struct{}),
	}
}

// Register binds a connection to a user. Re-registering the same open
// connection is a no-op signal so callers still acknowledge. A different
// connection for an already-bound user closes the previous one and takes
// over, reported via superseded.
func (r *Registry) Register(userID int64, conn Conn) (superseded bool) {
	r.mu.Lock()
	prev, had := r.userConns[userID]
	if had && prev == conn {
		r.mu.Unlock()
		return false
	}
	if had {
		delete(r.connUsers, prev)
	}
	r.userConns[userID] = conn
	r.connUsers[conn] = userID
	r.mu.Unlock()

	if had {
		_ = prev.Close()
		r.logger.Info().
			Int64("user_id", userID).
			Str("old_conn", prev.ID()).
			Str("new_conn", conn.ID()).
			Msg("superseded previous connection")
	}
	return had
}

// Unregister drops a connection's bindings and releases its room
// membership. Returns the user and room it occupied, if any. A connection
// that was superseded no longer owns the user and unbinds nothing.
func (r *Registry) Unregister(conn Conn) (userID, roomID int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.connUsers[conn]
	if !ok {
		return 0, 0, false
	}
	delete(r.connUsers, conn)
	if r.userConns[userID] == conn {
		delete(r.userConns, userID)
	}

	roomID = r.leaveRoomLocked(userID)
	return userID, roomID, true
}

// User returns the user bound to a connection
func (r *Registry) User(conn Conn) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uid, ok := r.connUsers[conn]
	return uid, ok
}

// UserConn returns the active connection for a user
func (r *Registry) UserConn(userID int64) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.userConns[userID]
	return c, ok
}

// JoinRoom subscribes a user to a room, releasing any previous membership
// first. Returns the room left, zero if none.
func (r *Registry) JoinRoom(userID, roomID int64) (previous int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous = r.leaveRoomLocked(userID)
	r.userRooms[userID] = roomID
	members := r.roomMembers[roomID]
	if members == nil {
		members = make(map[int64]struct{})
		r.roomMembers[roomID] = members
	}
	members[userID] = struct{}{}
	return previous
}

// LeaveRoom releases a user's room membership, returning the room left
func (r *Registry) LeaveRoom(userID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveRoomLocked(userID)
}

func (r *Registry) leaveRoomLocked(userID int64) int64 {
	roomID, ok := r.userRooms[userID]
	if !ok {
		return 0
	}
	delete(r.userRooms, userID)
	if members := r.roomMembers[roomID]; members != nil {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}
	return roomID
}

// CurrentRoom returns the room a user occupies
func (r *Registry) CurrentRoom(userID int64) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.userRooms[userID]
	return roomID, ok
}

// RoomMembers returns the user ids subscribed to a room
func (r *Registry) RoomMembers(roomID int64) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.roomMembers[roomID]
	out := make([]int64, 0, len(members))
	for uid := range members {
		out = append(out, uid)
	}
	return out
}

// SendToUser delivers an envelope to the user's active connection.
// Best-effort: a failed or missing connection is cleaned up, not reported.
func (r *Registry) SendToUser(userID int64, env *protocol.Envelope) {
	r.mu.RLock()
	conn, ok := r.userConns[userID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := conn.Send(env); err != nil {
		r.logger.Debug().Int64("user_id", userID).Err(err).Msg("dropping stale connection after failed send")
		r.dropConn(conn)
	}
}

// BroadcastRoom delivers an envelope to every member of a room
func (r *Registry) BroadcastRoom(roomID int64, env *protocol.Envelope) {
	r.broadcast(roomID, -1, env)
}

// BroadcastRoomExcept delivers an envelope to every member but one
func (r *Registry) BroadcastRoomExcept(roomID, exceptUserID int64, env *protocol.Envelope) {
	r.broadcast(roomID, exceptUserID, env)
}

func (r *Registry) broadcast(roomID, exceptUserID int64, env *protocol.Envelope) {
	r.mu.RLock()
	var failed []Conn
	for uid := range r.roomMembers[roomID] {
		if uid == exceptUserID {
			continue
		}
		conn, ok := r.userConns[uid]
		if !ok {
			continue
		}
		if err := conn.Send(env); err != nil {
			r.logger.Debug().Int64("user_id", uid).Err(err).Msg("dropping stale connection after failed send")
			failed = append(failed, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range failed {
		r.dropConn(conn)
	}
}

// dropConn unregisters and closes a stale connection
func (r *Registry) dropConn(conn Conn) {
	_, _, _ = r.Unregister(conn)
	_ = conn.Close()
}
