package uno

import (
	"fmt"
	"strings"
)

// Color represents a card color
type Color int

const (
	Red Color = iota
	Green
	Blue
	Yellow
	Black // wild cards carry no color of their own
)

// Code returns the single-letter wire code for a color
func (c Color) Code() string {
	switch c {
	case Red:
		return "R"
	case Green:
		return "G"
	case Blue:
		return "B"
	case Yellow:
		return "Y"
	default:
		return "W"
	}
}

// String returns the lowercase name used in client-facing card objects
func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case Yellow:
		return "yellow"
	default:
		return "black"
	}
}

// Colors lists the four chromatic colors in deck order
var Colors = []Color{Red, Green, Blue, Yellow}

// Rank represents a card rank
type Rank int

const (
	Zero Rank = iota
	One
	Two
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Skip
	Reverse
	DrawTwo
	Wild
	WildDraw4
	UnknownRank
)

// Code returns the wire code for a rank
func (r Rank) Code() string {
	switch {
	case r >= Zero && r <= Nine:
		return fmt.Sprintf("%d", int(r))
	}
	switch r {
	case Skip:
		return "SKIP"
	case Reverse:
		return "REV"
	case DrawTwo:
		return "D2"
	case Wild:
		return "WILD"
	case WildDraw4:
		return "D4"
	default:
		return "?"
	}
}

// String returns the lowercase name used in client-facing card objects
func (r Rank) String() string {
	switch {
	case r >= Zero && r <= Nine:
		return fmt.Sprintf("%d", int(r))
	}
	switch r {
	case Skip:
		return "skip"
	case Reverse:
		return "reverse"
	case DrawTwo:
		return "draw2"
	case Wild:
		return "wild"
	case WildDraw4:
		return "wilddraw4"
	default:
		return "unknown"
	}
}

// IsWild returns true for the two colorless ranks
func (r Rank) IsWild() bool {
	return r == Wild || r == WildDraw4
}

// Card represents a single UNO card. Cards have no identity beyond value
// equality; a deck holds many cards of equal value.
type Card struct {
	Color Color
	Rank  Rank
}

// UnknownCard is the sentinel a malformed catalog entry degrades to.
var UnknownCard = Card{Color: Black, Rank: UnknownRank}

// Code returns the two-part wire code, e.g. "R-5" or "W-D4"
func (c Card) Code() string {
	return c.Color.Code() + "-" + c.Rank.Code()
}

func (c Card) String() string { return c.Code() }

// Kind classifies the card for client display: number, action or wild
func (c Card) Kind() string {
	switch {
	case c.Rank >= Zero && c.Rank <= Nine:
		return "number"
	case c.Rank == Skip || c.Rank == Reverse || c.Rank == DrawTwo:
		return "action"
	case c.Rank.IsWild():
		return "wild"
	default:
		return "unknown"
	}
}

// Object is the JSON shape clients receive for a single card
type Object struct {
	ID    string `json:"id"`
	Color string `json:"color"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

// Object returns the client-facing representation of the card
func (c Card) Object() Object {
	if c.Rank == UnknownRank {
		return Object{ID: c.Code(), Color: "unknown", Value: "unknown", Type: "unknown"}
	}
	return Object{ID: c.Code(), Color: c.Color.String(), Value: c.Rank.String(), Type: c.Kind()}
}

// CodeObject parses a wire code and returns its client representation.
// Unparseable codes yield an "unknown" object rather than an error so a
// single bad card never breaks a whole view.
func CodeObject(code string) Object {
	card, err := ParseCard(code)
	if err != nil {
		return Object{ID: code, Color: "unknown", Value: "unknown", Type: "unknown"}
	}
	return card.Object()
}

// ParseCard parses a two-part wire code such as "G-REV"
func ParseCard(code string) (Card, error) {
	parts := strings.SplitN(code, "-", 2)
	if len(parts) != 2 {
		return Card{}, fmt.Errorf("bad card code: %q", code)
	}

	var color Color
	switch strings.ToUpper(parts[0]) {
	case "R":
		color = Red
	case "G":
		color = Green
	case "B":
		color = Blue
	case "Y":
		color = Yellow
	default:
		color = Black
	}

	var rank Rank
	switch strings.ToUpper(parts[1]) {
	case "0":
		rank = Zero
	case "1":
		rank = One
	case "2":
		rank = Two
	case "3":
		rank = Three
	case "4":
		rank = Four
	case "5":
		rank = Five
	case "6":
		rank = Six
	case "7":
		rank = Seven
	case "8":
		rank = Eight
	case "9":
		rank = Nine
	case "SKIP":
		rank = Skip
	case "REV":
		rank = Reverse
	case "D2":
		rank = DrawTwo
	case "WILD":
		rank = Wild
	case "D4":
		rank = WildDraw4
	default:
		return Card{}, fmt.Errorf("bad card rank: %q", parts[1])
	}

	return Card{Color: color, Rank: rank}, nil
}

// parseColorCode normalizes a wild color choice to a single letter code.
// Accepts "R" or "red" forms; anything else is treated as no choice.
func parseColorCode(choice string) string {
	switch strings.ToUpper(choice) {
	case "R", "RED":
		return "R"
	case "G", "GREEN":
		return "G"
	case "B", "BLUE":
		return "B"
	case "Y", "YELLOW":
		return "Y"
	default:
		return ""
	}
}
