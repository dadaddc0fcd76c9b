package uno

// PlayerState is one seat's hand and declaration flag within a match
type PlayerState struct {
	UserID    int64
	Hand      []string // wire codes; order is irrelevant to rules but stable for UI
	CalledUno bool
}

// State is the authoritative per-match aggregate. All mutation goes through
// the transition functions in engine.go, which copy the state first; a State
// handed out by the store must never be written to directly.
type State struct {
	Players     []PlayerState
	DrawPile    []string // top of the pile is the last element
	DiscardPile []string // top of the pile is the last element
	CurrentIdx  int
	Direction   int    // +1 clockwise, -1 counter-clockwise
	PendingDraw int    // accumulated Draw-Two / Wild-Draw-Four penalty
	ForcedColor string // single-letter color code set by a wild play, "" when unset
	Started     bool
	Finished    bool
	Aborted     bool // finished with no winner (deck exhausted)
	WinnerID    int64
}

// CurrentPlayer returns the seat to move
func (s *State) CurrentPlayer() *PlayerState {
	return &s.Players[s.CurrentIdx]
}

// Player returns the seat for a user id, or nil
func (s *State) Player(userID int64) *PlayerState {
	for i := range s.Players {
		if s.Players[i].UserID == userID {
			return &s.Players[i]
		}
	}
	return nil
}

// nextIndex advances the turn pointer by step seats in the current direction
func (s *State) nextIndex(step int) int {
	n := len(s.Players)
	i := s.CurrentIdx
	for k := 0; k < step; k++ {
		i = (i + s.Direction + n) % n
	}
	return i
}

// discardTop returns the top of the discard pile, or ""
func (s *State) discardTop() string {
	if len(s.DiscardPile) == 0 {
		return ""
	}
	return s.DiscardPile[len(s.DiscardPile)-1]
}

// CardCount returns the total number of cards across piles and hands.
// Constant for the lifetime of a match.
func (s *State) CardCount() int {
	n := len(s.DrawPile) + len(s.DiscardPile)
	for i := range s.Players {
		n += len(s.Players[i].Hand)
	}
	return n
}

// Clone deep-copies the state so transitions never mutate a caller's copy
func (s *State) Clone() *State {
	c := &State{
		Players:     make([]PlayerState, len(s.Players)),
		DrawPile:    append([]string(nil), s.DrawPile...),
		DiscardPile: append([]string(nil), s.DiscardPile...),
		CurrentIdx:  s.CurrentIdx,
		Direction:   s.Direction,
		PendingDraw: s.PendingDraw,
		ForcedColor: s.ForcedColor,
		Started:     s.Started,
		Finished:    s.Finished,
		Aborted:     s.Aborted,
		WinnerID:    s.WinnerID,
	}
	for i := range s.Players {
		c.Players[i] = PlayerState{
			UserID:    s.Players[i].UserID,
			Hand:      append([]string(nil), s.Players[i].Hand...),
			CalledUno: s.Players[i].CalledUno,
		}
	}
	return c
}
