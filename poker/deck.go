package poker

import (
	"errors"
	"math/rand"
)

// ErrDeckEmpty is returned by Deal and Burn when the deck has no cards left.
var ErrDeckEmpty = errors.New("poker: deck is empty")

// Deck is a shuffled 52-card sequence. It must be constructed with New,
// which shuffles with an injected randomness source so callers can seed
// it deterministically in tests.
type Deck struct {
	cards [52]Card
	next  int
}

// New builds a freshly shuffled 52-card deck. rng must not be nil; callers
// that want non-deterministic shuffles should pass rand.New(rand.NewSource(seed))
// seeded from a real entropy source themselves.
func New(rng *rand.Rand) *Deck {
	d := &Deck{}
	i := 0
	for suit := Suit(0); suit < 4; suit++ {
		for rank := Rank(0); rank < 13; rank++ {
			d.cards[i] = NewCard(rank, suit)
			i++
		}
	}
	d.shuffle(rng)
	return d
}

// shuffle performs an in-place Fisher-Yates shuffle.
func (d *Deck) shuffle(rng *rand.Rand) {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal removes and returns the top card.
func (d *Deck) Deal() (Card, error) {
	if d.next >= len(d.cards) {
		return 0, ErrDeckEmpty
	}
	c := d.cards[d.next]
	d.next++
	return c, nil
}

// DealN removes and returns n cards, one at a time.
func (d *Deck) DealN(n int) ([]Card, error) {
	cards := make([]Card, 0, n)
	for i := 0; i < n; i++ {
		c, err := d.Deal()
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// Burn removes and discards the top card, per §4.B's explicit burn operation.
func (d *Deck) Burn() error {
	_, err := d.Deal()
	return err
}

// Remaining returns the number of cards left to deal.
func (d *Deck) Remaining() int {
	return len(d.cards) - d.next
}

// Dealt returns the cards removed from the deck so far, in deal order,
// including burned cards, so a caller can check spec property 7 (hole +
// community + deck + burns must equal 52 distinct cards). Nothing in this
// module calls it yet.
func (d *Deck) Dealt() []Card {
	out := make([]Card, d.next)
	copy(out, d.cards[:d.next])
	return out
}

// State exposes the deck's full card order and deal cursor so a caller can
// persist and later reconstruct it byte-for-byte with FromState (§7 room
// snapshot recovery needs the exact remaining deck, not just a fresh shuffle).
func (d *Deck) State() (cards [52]Card, next int) {
	return d.cards, d.next
}

// FromState rebuilds a Deck previously captured with State.
func FromState(cards [52]Card, next int) *Deck {
	return &Deck{cards: cards, next: next}
}
