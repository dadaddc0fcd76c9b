package store

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/techox/unotable/internal/uno"
)

var (
	ErrSessionNotFound = errors.New("match session not found")
	ErrRoomNotFound    = errors.New("room presence not found")
	ErrMemberNotFound  = errors.New("member not in room")
	ErrRoomFull        = errors.New("room is full")
)

// Session status values
const (
	StatusPlaying  = "playing"
	StatusFinished = "finished"
	StatusAborted  = "aborted"
)

// Session is the management wrapper around one match's authoritative state.
// The embedded mutex linearizes rule transitions per match id and guards the
// status and timestamp fields against the background scans; callers go
// through Store.WithSession and never hold the lock across I/O.
type Session struct {
	MatchID     int64
	Game        string
	RoomID      int64
	State       *uno.State
	Status      string
	PlayerCount int
	WinnerID    int64
	CreatedAt   time.Time
	LastAccess  time.Time
	LastAction  time.Time
	TurnCount   int

	mu sync.Mutex
}

// Commit replaces the match state after an accepted move
func (s *Session) Commit(state *uno.State, now time.Time) {
	s.State = state
	s.LastAction = now
	s.TurnCount++
}

// Member is one user's presence within a room
type Member struct {
	UserID       int64     `json:"userId"`
	Ready        bool      `json:"ready"`
	Seat         int       `json:"seat"`
	Team         int       `json:"team"`
	JoinedAt     time.Time `json:"joinedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// Config bounds the store. Zero values fall back to defaults.
type Config struct {
	MaxSessions         int           // concurrent match cap
	MemoryBudgetBytes   int64         // estimated footprint cap across sessions
	SessionTTL          time.Duration // idle sessions older than this are swept
	SweepInterval       time.Duration
	MemoryCheckInterval time.Duration
	HeapPressureBytes   uint64 // emergency eviction threshold on live heap
}

func (c Config) withDefaults() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 1000
	}
	if c.MemoryBudgetBytes <= 0 {
		c.MemoryBudgetBytes = 64 << 20
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 2 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.MemoryCheckInterval <= 0 {
		c.MemoryCheckInterval = time.Minute
	}
	if c.HeapPressureBytes == 0 {
		c.HeapPressureBytes = 512 << 20
	}
	return c
}

// Eviction batch sizes. Going over the session cap sheds exactly the
// overage; the memory budget sheds a small batch at create time and heap
// pressure a larger one.
const (
	evictBatchMemory = 20
	evictBatchPanic  = 50
)

// Stats is a point-in-time snapshot for the admin surface
type Stats struct {
	Sessions       int   `json:"sessions"`
	Playing        int   `json:"playing"`
	Finished       int   `json:"finished"`
	Rooms          int   `json:"rooms"`
	EstimatedBytes int64 `json:"estimatedBytes"`
	Evictions      int64 `json:"evictions"`
}

// Store holds match sessions and room presence in memory, bounded by
// session count and an estimated memory budget with LRU eviction.
type Store struct {
	logger zerolog.Logger
	clock  quartz.Clock
	cfg    Config

	mu             sync.RWMutex
	sessions       map[int64]*Session
	rooms          map[int64]map[int64]*Member
	estimatedBytes int64
	evictions      int64
}

// New constructs a store. Pass quartz.NewReal() outside of tests.
func New(cfg Config, clock quartz.Clock, logger zerolog.Logger) *Store {
	return &Store{
		logger:   logger.With().Str("component", "store").Logger(),
		clock:    clock,
		cfg:      cfg.withDefaults(),
		sessions: make(map[int64]*Session),
		rooms:    make(map[int64]map[int64]*Member),
	}
}

// estimateBytes is the per-session footprint estimate, categorized by game
// code. Deliberately coarse; the budget is a shedding signal, not an
// accounting system.
func estimateBytes(game string) int64 {
	switch game {
	case "uno":
		return 1500
	default:
		return 2000
	}
}

// Create registers a new match session, evicting the least-recently-accessed
// sessions first when the count or memory budget would be exceeded. Capacity
// pressure is resolved internally and never surfaced as a caller error.
func (st *Store) Create(matchID int64, game string, roomID int64, state *uno.State, playerCount int) *Session {
	now := st.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	if over := len(st.sessions) - st.cfg.MaxSessions + 1; over > 0 {
		st.evictOldestLocked(over, "session count")
	}
	if st.estimatedBytes+estimateBytes(game) > st.cfg.MemoryBudgetBytes {
		st.evictOldestLocked(evictBatchMemory, "memory budget")
	}

	sess := &Session{
		MatchID:     matchID,
		Game:        game,
		RoomID:      roomID,
		State:       state,
		Status:      StatusPlaying,
		PlayerCount: playerCount,
		CreatedAt:   now,
		LastAccess:  now,
		LastAction:  now,
	}
	st.sessions[matchID] = sess
	st.estimatedBytes += estimateBytes(game)

	st.logger.Info().
		Int64("match_id", matchID).
		Str("game", game).
		Int64("room_id", roomID).
		Int("players", playerCount).
		Msg("match session created")
	return sess
}

// Get returns the session and bumps its last-access time
func (st *Store) Get(matchID int64) (*Session, bool) {
	st.mu.RLock()
	sess, ok := st.sessions[matchID]
	st.mu.RUnlock()
	if ok {
		sess.mu.Lock()
		sess.LastAccess = st.clock.Now()
		sess.mu.Unlock()
	}
	return sess, ok
}

// FindByRoom returns the most recently created session for a room
func (st *Store) FindByRoom(roomID int64) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var best *Session
	for _, sess := range st.sessions {
		if sess.RoomID != roomID {
			continue
		}
		if best == nil || sess.CreatedAt.After(best.CreatedAt) {
			best = sess
		}
	}
	return best, best != nil
}

// WithSession runs fn holding the session's per-match lock, serializing all
// transitions against the same match id. fn must not call back into the
// store for the same session.
func (st *Store) WithSession(matchID int64, fn func(s *Session) error) error {
	st.mu.RLock()
	sess, ok := st.sessions[matchID]
	st.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.LastAccess = st.clock.Now()
	return fn(sess)
}

// Finish marks the session finished (or aborted) without removing it, so
// late viewers still see the result until the sweep claims it.
func (st *Store) Finish(matchID int64, winnerID int64, aborted bool) {
	st.mu.RLock()
	sess, ok := st.sessions[matchID]
	st.mu.RUnlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	if aborted {
		sess.Status = StatusAborted
	} else {
		sess.Status = StatusFinished
	}
	sess.WinnerID = winnerID
	sess.LastAction = st.clock.Now()
	sess.mu.Unlock()

	st.logger.Info().
		Int64("match_id", matchID).
		Int64("winner_id", winnerID).
		Bool("aborted", aborted).
		Msg("match finished")
}

// Remove deletes a session outright
func (st *Store) Remove(matchID int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.removeLocked(matchID)
}

func (st *Store) removeLocked(matchID int64) {
	sess, ok := st.sessions[matchID]
	if !ok {
		return
	}
	delete(st.sessions, matchID)
	st.estimatedBytes -= estimateBytes(sess.Game)
}

// evictOldestLocked sheds up to n sessions in last-access order
func (st *Store) evictOldestLocked(n int, reason string) {
	type candidate struct {
		matchID    int64
		lastAccess time.Time
	}
	candidates := make([]candidate, 0, len(st.sessions))
	for id, sess := range st.sessions {
		sess.mu.Lock()
		lastAccess := sess.LastAccess
		sess.mu.Unlock()
		candidates = append(candidates, candidate{id, lastAccess})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccess.Before(candidates[j].lastAccess)
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	for _, c := range candidates[:n] {
		st.removeLocked(c.matchID)
		st.evictions++
	}
	if n > 0 {
		st.logger.Warn().
			Int("evicted", n).
			Str("reason", reason).
			Int("remaining", len(st.sessions)).
			Msg("evicted least recently accessed sessions")
	}
}

// JoinRoom records presence, assigning the lowest free seat. Rejoining just
// refreshes activity and reports joined=false. A positive limit caps the
// number of distinct members; the capacity check and the insert happen under
// the same lock so concurrent joins cannot overfill a room.
func (st *Store) JoinRoom(roomID, userID int64, limit int) (m *Member, joined bool, err error) {
	now := st.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	room := st.rooms[roomID]
	if m, ok := room[userID]; ok {
		m.LastActiveAt = now
		return m, false, nil
	}
	if limit > 0 && len(room) >= limit {
		return nil, false, ErrRoomFull
	}
	if room == nil {
		room = make(map[int64]*Member)
		st.rooms[roomID] = room
	}

	taken := make(map[int]bool, len(room))
	for _, m := range room {
		taken[m.Seat] = true
	}
	seat := 0
	for taken[seat] {
		seat++
	}

	m = &Member{UserID: userID, Seat: seat, JoinedAt: now, LastActiveAt: now}
	room[userID] = m
	return m, true, nil
}

// LeaveRoom removes presence; reports whether the room is now empty
func (st *Store) LeaveRoom(roomID, userID int64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	room, ok := st.rooms[roomID]
	if !ok {
		return false
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(st.rooms, roomID)
		return true
	}
	return false
}

// SetReady flips a member's ready flag
func (st *Store) SetReady(roomID, userID int64, ready bool) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	room, ok := st.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	m, ok := room[userID]
	if !ok {
		return ErrMemberNotFound
	}
	m.Ready = ready
	m.LastActiveAt = st.clock.Now()
	return nil
}

// Members returns a snapshot of room presence in seat order
func (st *Store) Members(roomID int64) []Member {
	st.mu.RLock()
	defer st.mu.RUnlock()

	room := st.rooms[roomID]
	out := make([]Member, 0, len(room))
	for _, m := range room {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

// ClearRoom drops the whole presence record, used on disband
func (st *Store) ClearRoom(roomID int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.rooms, roomID)
}

// Stats returns a snapshot for the admin surface
func (st *Store) Stats() Stats {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s := Stats{
		Sessions:       len(st.sessions),
		Rooms:          len(st.rooms),
		EstimatedBytes: st.estimatedBytes,
		Evictions:      st.evictions,
	}
	for _, sess := range st.sessions {
		sess.mu.Lock()
		playing := sess.Status == StatusPlaying
		sess.mu.Unlock()
		if playing {
			s.Playing++
		} else {
			s.Finished++
		}
	}
	return s
}

// Run drives the two background timers until the context is cancelled: the
// idle-session sweep and the heap-pressure check. Failures are logged, never
// fatal.
func (st *Store) Run(ctx context.Context) error {
	sweep := st.clock.TickerFunc(ctx, st.cfg.SweepInterval, func() error {
		st.sweepIdle()
		return nil
	}, "idle_sweep")

	memcheck := st.clock.TickerFunc(ctx, st.cfg.MemoryCheckInterval, func() error {
		st.checkMemoryPressure()
		return nil
	}, "memory_check")

	<-ctx.Done()
	_ = sweep.Wait()
	_ = memcheck.Wait()
	return ctx.Err()
}

// sweepIdle removes sessions and room presence idle past the TTL
func (st *Store) sweepIdle() {
	now := st.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, sess := range st.sessions {
		sess.mu.Lock()
		idle := now.Sub(sess.LastAccess) > st.cfg.SessionTTL
		sess.mu.Unlock()
		if idle {
			st.removeLocked(id)
			removed++
		}
	}
	for id, room := range st.rooms {
		for uid, m := range room {
			if now.Sub(m.LastActiveAt) > st.cfg.SessionTTL {
				delete(room, uid)
			}
		}
		if len(room) == 0 {
			delete(st.rooms, id)
		}
	}
	if removed > 0 {
		st.logger.Info().Int("removed", removed).Msg("swept idle match sessions")
	}
}

// checkMemoryPressure triggers emergency eviction when the live heap
// crosses the configured threshold
func (st *Store) checkMemoryPressure() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapAlloc < st.cfg.HeapPressureBytes {
		return
	}

	st.logger.Warn().
		Uint64("heap_alloc", m.HeapAlloc).
		Uint64("threshold", st.cfg.HeapPressureBytes).
		Msg("heap pressure, shedding oldest sessions")

	st.mu.Lock()
	st.evictOldestLocked(evictBatchPanic, "heap pressure")
	st.mu.Unlock()
}
