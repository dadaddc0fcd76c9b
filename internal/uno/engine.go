package uno

import "errors"

// Rule violations. The router maps these to typed error responses; none of
// them leave a partially applied state behind.
var (
	ErrGameFinished       = errors.New("game finished")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrCardNotInHand      = errors.New("no such card in hand")
	ErrCardNotPlayable    = errors.New("card cannot be played")
	ErrPlayerNotFound     = errors.New("player not in match")
	ErrNotChallengeable   = errors.New("can only challenge a Wild Draw 4")
	ErrUnoNotEligible     = errors.New("can only call uno with exactly 1 card")
	ErrPenaltyNotEligible = errors.New("player is not eligible for uno penalty")
)

const initialHandSize = 7

// NewGame deals a fresh match from a shuffled house deck
func NewGame(userIDs []int64) *State {
	deck := NewDeck()
	Shuffle(deck)
	return Deal(userIDs, deck)
}

// Deal builds the initial state from an already shuffled deck: seven cards
// per seat dealt round-robin from the tail, the first non-wild card flipped
// onto the discard pile, its effect applied before the first turn, and the
// remainder pushed into the draw pile.
func Deal(userIDs []int64, deck []string) *State {
	s := &State{Direction: 1}
	for _, uid := range userIDs {
		s.Players = append(s.Players, PlayerState{UserID: uid})
	}

	deck = append([]string(nil), deck...)
	for r := 0; r < initialHandSize; r++ {
		for i := range s.Players {
			s.Players[i].Hand = append(s.Players[i].Hand, deck[len(deck)-1])
			deck = deck[:len(deck)-1]
		}
	}

	// Flip the first non-wild card. Skipped wilds go back to the bottom so
	// the card multiset stays intact.
	var first string
	for {
		first = deck[len(deck)-1]
		deck = deck[:len(deck)-1]
		if card, err := ParseCard(first); err == nil && !card.Rank.IsWild() {
			break
		}
		deck = append([]string{first}, deck...)
	}
	s.DiscardPile = append(s.DiscardPile, first)

	flipped, _ := ParseCard(first)
	switch flipped.Rank {
	case Reverse:
		if len(s.Players) > 2 {
			s.Direction = -1
		}
	case Skip:
		s.CurrentIdx = s.nextIndex(1)
	case DrawTwo:
		s.PendingDraw += 2
	}

	s.DrawPile = append(s.DrawPile, deck...)
	s.Started = true
	return s
}

// CanPlay reports whether the card is legal against the current state.
// With a pending draw outstanding only a stacking DrawTwo (on a DrawTwo
// top) or any WildDraw4 is legal; wilds are otherwise always legal; a
// forced color restricts non-wilds to that color; failing that the card
// must match the discard top's color or rank.
func CanPlay(s *State, cardCode string) bool {
	card, err := ParseCard(cardCode)
	if err != nil {
		return false
	}
	top, err := ParseCard(s.discardTop())
	if err != nil {
		return false
	}

	if s.PendingDraw > 0 {
		if card.Rank == DrawTwo && top.Rank == DrawTwo {
			return true
		}
		return card.Rank == WildDraw4
	}

	if card.Rank.IsWild() {
		return true
	}

	if s.ForcedColor != "" {
		return card.Color.Code() == s.ForcedColor
	}

	return card.Color == top.Color || card.Rank == top.Rank
}

// canPlayAgainst checks legality of a card against an arbitrary target,
// used to reconstruct the position a Wild Draw 4 was played from.
func canPlayAgainst(cardCode, targetCode, forcedColor string) bool {
	card, err := ParseCard(cardCode)
	if err != nil {
		return false
	}
	target, err := ParseCard(targetCode)
	if err != nil {
		return false
	}

	if card.Rank.IsWild() {
		return true
	}
	if forcedColor != "" {
		return card.Color.Code() == parseColorCode(forcedColor)
	}
	return card.Color == target.Color || card.Rank == target.Rank
}

// Play plays a card from the acting player's hand and applies its effect,
// returning the successor state. The input state is never mutated.
func Play(s *State, userID int64, cardCode, chooseColor string) (*State, error) {
	if s.Finished {
		return nil, ErrGameFinished
	}
	if s.CurrentPlayer().UserID != userID {
		return nil, ErrNotYourTurn
	}

	next := s.Clone()
	p := next.CurrentPlayer()

	idx := -1
	for i, c := range p.Hand {
		if c == cardCode {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrCardNotInHand
	}
	if !CanPlay(next, cardCode) {
		return nil, ErrCardNotPlayable
	}

	p.Hand = append(p.Hand[:idx], p.Hand[idx+1:]...)
	next.DiscardPile = append(next.DiscardPile, cardCode)
	next.ForcedColor = ""

	card, _ := ParseCard(cardCode)
	switch card.Rank {
	case Reverse:
		next.Direction = -next.Direction
		if len(next.Players) == 2 {
			// heads-up Reverse acts as a Skip
			next.CurrentIdx = next.nextIndex(2)
		} else {
			next.CurrentIdx = next.nextIndex(1)
		}
	case Skip:
		next.CurrentIdx = next.nextIndex(2)
	case DrawTwo:
		next.PendingDraw += 2
		next.CurrentIdx = next.nextIndex(1)
	case Wild:
		next.ForcedColor = parseColorCode(chooseColor)
		next.CurrentIdx = next.nextIndex(1)
	case WildDraw4:
		next.PendingDraw += 4
		next.ForcedColor = parseColorCode(chooseColor)
		next.CurrentIdx = next.nextIndex(1)
	default:
		next.CurrentIdx = next.nextIndex(1)
	}

	// Playing down to a single card counts as the declaration.
	if len(p.Hand) == 1 {
		p.CalledUno = true
	}

	if len(p.Hand) == 0 {
		next.Finished = true
		next.WinnerID = p.UserID
	}

	return next, nil
}

// DrawResult reports a completed draw-and-pass, including the drawn cards
// so the caller can reveal them to the acting player only.
type DrawResult struct {
	State *State
	Drawn []string
}

// DrawAndPass draws max(1, pendingDraw) cards for the acting player,
// clears the pending penalty and forced color, and advances one seat. If
// both piles exhaust mid-draw the match is aborted with no winner.
func DrawAndPass(s *State, userID int64) (DrawResult, error) {
	if s.Finished {
		return DrawResult{}, ErrGameFinished
	}
	if s.CurrentPlayer().UserID != userID {
		return DrawResult{}, ErrNotYourTurn
	}

	next := s.Clone()
	p := next.CurrentPlayer()

	need := next.PendingDraw
	if need < 1 {
		need = 1
	}
	drawn := next.draw(p, need)
	if len(drawn) < need {
		next.Finished = true
		next.Aborted = true
	}

	next.PendingDraw = 0
	next.ForcedColor = ""
	next.CurrentIdx = next.nextIndex(1)

	return DrawResult{State: next, Drawn: drawn}, nil
}

// CallUno records the declaration for a player holding exactly one card
func CallUno(s *State, userID int64) (*State, error) {
	if s.Finished {
		return nil, ErrGameFinished
	}
	next := s.Clone()
	p := next.Player(userID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	if len(p.Hand) != 1 {
		return nil, ErrUnoNotEligible
	}
	p.CalledUno = true
	return next, nil
}

// ChallengeResult reports the outcome of a Wild Draw 4 challenge
type ChallengeResult struct {
	State        *State
	Successful   bool
	ChallengerID int64
	ChallengedID int64
	PenaltyCards int
	Reason       string
}

// ChallengeWildDraw4 resolves a challenge against the Wild Draw 4 on top of
// the discard pile. If the previous actor held another card playable
// against the pre-wild discard top the challenge succeeds and they draw 4,
// waiving the challenger's pending draw; otherwise the challenger draws 6.
func ChallengeWildDraw4(s *State, challengerID int64) (ChallengeResult, error) {
	if s.Finished {
		return ChallengeResult{}, ErrGameFinished
	}

	next := s.Clone()
	challenger := next.Player(challengerID)
	if challenger == nil {
		return ChallengeResult{}, ErrPlayerNotFound
	}

	top, err := ParseCard(next.discardTop())
	if err != nil || top.Rank != WildDraw4 {
		return ChallengeResult{}, ErrNotChallengeable
	}

	challengedIdx := (next.CurrentIdx - next.Direction + len(next.Players)) % len(next.Players)
	challenged := &next.Players[challengedIdx]

	hadPlayable := false
	if len(next.DiscardPile) > 1 {
		preWildTop := next.DiscardPile[len(next.DiscardPile)-2]
		for _, c := range challenged.Hand {
			if canPlayAgainst(c, preWildTop, next.ForcedColor) {
				hadPlayable = true
				break
			}
		}
	}

	result := ChallengeResult{
		State:        next,
		ChallengerID: challengerID,
		ChallengedID: challenged.UserID,
	}

	if hadPlayable {
		next.draw(challenged, 4)
		result.Successful = true
		result.PenaltyCards = 4
		result.Reason = "challenged player held another playable card"
	} else {
		next.draw(challenger, 6)
		result.PenaltyCards = 6
		result.Reason = "the Wild Draw 4 was legally played"
	}

	// The pending penalty is resolved either way.
	next.PendingDraw = 0
	return result, nil
}

// PenaltyResult reports a forgotten-declaration penalty
type PenaltyResult struct {
	State        *State
	PenalizedID  int64
	PenaltyCards int
}

// PenalizeForgetUno gives two penalty cards to a player who is down to one
// card without having declared
func PenalizeForgetUno(s *State, penalizedID int64) (PenaltyResult, error) {
	if s.Finished {
		return PenaltyResult{}, ErrGameFinished
	}

	next := s.Clone()
	p := next.Player(penalizedID)
	if p == nil {
		return PenaltyResult{}, ErrPlayerNotFound
	}
	if len(p.Hand) != 1 || p.CalledUno {
		return PenaltyResult{}, ErrPenaltyNotEligible
	}

	next.draw(p, 2)
	return PenaltyResult{State: next, PenalizedID: penalizedID, PenaltyCards: 2}, nil
}

// MustDraw reports whether the seat to move faces a pending penalty with no
// card to stack
func MustDraw(s *State, userID int64) bool {
	if s.PendingDraw == 0 {
		return false
	}
	p := s.CurrentPlayer()
	if p.UserID != userID {
		return false
	}
	for _, c := range p.Hand {
		if CanPlay(s, c) {
			return false
		}
	}
	return true
}

// PlayableCards returns the subset of the seat-to-move's hand that is
// currently legal. Empty for anyone else.
func PlayableCards(s *State, userID int64) []string {
	p := s.CurrentPlayer()
	if p.UserID != userID {
		return nil
	}
	var playable []string
	for _, c := range p.Hand {
		if CanPlay(s, c) {
			playable = append(playable, c)
		}
	}
	return playable
}

// draw moves up to n cards from the draw pile into the player's hand,
// reshuffling the discard pile (minus its top) on demand. Returns the
// cards actually drawn, which may be short when everything is exhausted.
func (s *State) draw(p *PlayerState, n int) []string {
	drawn := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if len(s.DrawPile) == 0 {
			s.reshuffleDiscard()
		}
		if len(s.DrawPile) == 0 {
			break
		}
		top := s.DrawPile[len(s.DrawPile)-1]
		s.DrawPile = s.DrawPile[:len(s.DrawPile)-1]
		p.Hand = append(p.Hand, top)
		drawn = append(drawn, top)
	}
	return drawn
}

// reshuffleDiscard folds everything below the discard top back into the
// draw pile
func (s *State) reshuffleDiscard() {
	if len(s.DiscardPile) <= 1 {
		return
	}
	top := s.DiscardPile[len(s.DiscardPile)-1]
	rest := append([]string(nil), s.DiscardPile[:len(s.DiscardPile)-1]...)
	Shuffle(rest)
	s.DrawPile = append(s.DrawPile, rest...)
	s.DiscardPile = []string{top}
}
