package uno

// PlayerView is one seat as any viewer sees it. Hand is populated only for
// the viewer's own seat; everyone else gets the count.
type PlayerView struct {
	UserID    int64    `json:"userId"`
	CardCount int      `json:"cardCount"`
	CalledUno bool     `json:"calledUno"`
	Hand      []Object `json:"hand,omitempty"`
}

// View is the state of a match projected for a single viewer. Hidden
// information (other hands, pile contents) never appears in it.
type View struct {
	Players         []PlayerView `json:"players"`
	DiscardTop      *Object      `json:"discardTop,omitempty"`
	CurrentColor    string       `json:"currentColor,omitempty"`
	CurrentPlayerID int64        `json:"currentPlayerId"`
	Direction       int          `json:"direction"`
	DrawPileCount   int          `json:"drawPileCount"`
	PendingDraw     int          `json:"pendingDraw"`
	PlayableCards   []string     `json:"playableCards,omitempty"`
	MustDraw        bool         `json:"mustDraw"`
	Started         bool         `json:"started"`
	Finished        bool         `json:"finished"`
	Aborted         bool         `json:"aborted,omitempty"`
	WinnerID        int64        `json:"winnerId,omitempty"`
}

// PublicView projects the state for one viewer. Spectators (a viewer id
// matching no seat) see everything except hands.
func PublicView(s *State, viewerID int64) View {
	v := View{
		CurrentPlayerID: s.CurrentPlayer().UserID,
		Direction:       s.Direction,
		DrawPileCount:   len(s.DrawPile),
		PendingDraw:     s.PendingDraw,
		Started:         s.Started,
		Finished:        s.Finished,
		Aborted:         s.Aborted,
		WinnerID:        s.WinnerID,
	}

	for i := range s.Players {
		p := &s.Players[i]
		pv := PlayerView{
			UserID:    p.UserID,
			CardCount: len(p.Hand),
			CalledUno: p.CalledUno,
		}
		if p.UserID == viewerID {
			pv.Hand = make([]Object, 0, len(p.Hand))
			for _, c := range p.Hand {
				pv.Hand = append(pv.Hand, CodeObject(c))
			}
		}
		v.Players = append(v.Players, pv)
	}

	if top := s.discardTop(); top != "" {
		obj := CodeObject(top)
		v.DiscardTop = &obj
	}

	// Current color is the forced color if a wild set one, else the top's own
	if s.ForcedColor != "" {
		v.CurrentColor = s.ForcedColor
	} else if v.DiscardTop != nil {
		if card, err := ParseCard(v.DiscardTop.ID); err == nil && !card.Rank.IsWild() {
			v.CurrentColor = card.Color.Code()
		}
	}

	if !s.Finished {
		v.PlayableCards = PlayableCards(s, viewerID)
		v.MustDraw = MustDraw(s, viewerID)
	}

	return v
}
