package uno

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techox/unotable/internal/randutil"
)

func TestNewDeck(t *testing.T) {
	deck := NewDeck()
	require.Len(t, deck, 108)

	counts := map[string]int{}
	for _, c := range deck {
		counts[c]++
	}

	for _, color := range Colors {
		assert.Equal(t, 1, counts[color.Code()+"-0"])
		assert.Equal(t, 2, counts[color.Code()+"-7"])
		assert.Equal(t, 2, counts[color.Code()+"-SKIP"])
		assert.Equal(t, 2, counts[color.Code()+"-REV"])
		assert.Equal(t, 2, counts[color.Code()+"-D2"])
	}
	assert.Equal(t, 4, counts["W-WILD"])
	assert.Equal(t, 4, counts["W-D4"])
}

func TestShuffleWith(t *testing.T) {
	a := NewDeck()
	b := NewDeck()
	ShuffleWith(a, randutil.New(3))
	ShuffleWith(b, randutil.New(3))
	assert.Equal(t, a, b, "same seed gives the same order")

	counts := map[string]int{}
	for _, c := range a {
		counts[c]++
	}
	want := map[string]int{}
	for _, c := range NewDeck() {
		want[c]++
	}
	assert.Equal(t, want, counts, "shuffle is a permutation")
}

func TestDeckFromCatalog(t *testing.T) {
	deck := DeckFromCatalog([]CatalogEntry{
		{ID: "red_5", Count: 2},
		{ID: "green_reverse", Count: 1},
		{ID: "wild_draw4"}, // zero count defaults to one
		{ID: "mystery_card", Count: 3},
	})

	assert.Equal(t, []string{"R-5", "R-5", "G-REV", "W-D4", "W-?", "W-?", "W-?"}, deck)
}
