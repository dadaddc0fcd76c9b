package uno

import (
	crand "crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// IntSource supplies bounded random ints. The default implementation draws
// from crypto/rand; tests inject a randutil-seeded rand for reproducible
// deals. The method matches math/rand/v2 so a *rand.Rand satisfies it.
type IntSource interface {
	IntN(n int) int
}

type cryptoSource struct{}

func (cryptoSource) IntN(n int) int {
	v, err := crand.Int(crand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("failed to read random bytes: " + err.Error())
	}
	return int(v.Int64())
}

// NewDeck builds the fixed 108-card house deck: per color one 0, two each
// of 1-9, two Skip, two Reverse, two DrawTwo, plus four Wild and four
// WildDraw4. Returned unshuffled, as wire codes.
func NewDeck() []string {
	deck := make([]string, 0, 108)
	for _, color := range Colors {
		deck = append(deck, Card{color, Zero}.Code())
		for k := 0; k < 2; k++ {
			for rank := One; rank <= DrawTwo; rank++ {
				deck = append(deck, Card{color, rank}.Code())
			}
		}
	}
	for k := 0; k < 4; k++ {
		deck = append(deck, Card{Black, Wild}.Code())
	}
	for k := 0; k < 4; k++ {
		deck = append(deck, Card{Black, WildDraw4}.Code())
	}
	return deck
}

// CatalogEntry is one record of an externally supplied card catalog
type CatalogEntry struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// DeckFromCatalog converts catalog entries into a deck of wire codes.
// Unrecognized ids degrade to the unknown sentinel instead of failing the
// whole load. A zero count defaults to one.
func DeckFromCatalog(entries []CatalogEntry) []string {
	deck := make([]string, 0, len(entries))
	for _, e := range entries {
		count := e.Count
		if count <= 0 {
			count = 1
		}
		code := catalogIDToCode(e.ID)
		for i := 0; i < count; i++ {
			deck = append(deck, code)
		}
	}
	return deck
}

// catalogIDToCode translates catalog ids like "green_reverse" or "wild_draw4"
// into wire codes
func catalogIDToCode(id string) string {
	switch id {
	case "wild":
		return Card{Black, Wild}.Code()
	case "wild_draw4":
		return Card{Black, WildDraw4}.Code()
	}

	parts := strings.SplitN(id, "_", 2)
	if len(parts) != 2 {
		return UnknownCard.Code()
	}

	var color string
	switch strings.ToLower(parts[0]) {
	case "red":
		color = "R"
	case "green":
		color = "G"
	case "blue":
		color = "B"
	case "yellow":
		color = "Y"
	default:
		return UnknownCard.Code()
	}

	var value string
	switch strings.ToLower(parts[1]) {
	case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
		value = parts[1]
	case "skip":
		value = "SKIP"
	case "reverse":
		value = "REV"
	case "draw2":
		value = "D2"
	default:
		return UnknownCard.Code()
	}

	return fmt.Sprintf("%s-%s", color, value)
}

// Shuffle permutes the deck in place using a cryptographically strong
// generator. Shuffles are deliberately not seedable in production.
func Shuffle(deck []string) {
	ShuffleWith(deck, cryptoSource{})
}

// ShuffleWith performs a Fisher-Yates shuffle with the provided source
func ShuffleWith(deck []string, src IntSource) {
	for i := len(deck) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
}
