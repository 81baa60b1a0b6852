package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// seedStream is a splitmix64 generator; the deck permutation is a pure
// function of its base value.
type seedStream struct{ state uint64 }

func newSeedStream(base uint64) seedStream { return seedStream{state: base} }

func (s *seedStream) next() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z ^= z >> 30
	z *= 0xBF58476D1CE4E5B9
	z ^= z >> 27
	z *= 0x94D049BB133111EB
	z ^= z >> 31
	return z
}

// NewDeck returns all 52 cards in a deterministic order derived from seed.
// Identical seeds always yield identical orderings, so any hand can be
// replayed and audited from its public seed alone.
func NewDeck(seed string) []Card {
	base := binary.LittleEndian.Uint64(crypto.Keccak256([]byte(seed))[:8])
	sm := newSeedStream(base)

	deck := make([]Card, 0, 52)
	for _, su := range []byte("cdhs") {
		for rnk := 2; rnk <= 14; rnk++ {
			deck = append(deck, Card{Rank: rnk, Suit: su})
		}
	}
	for i := len(deck) - 1; i > 0; i-- {
		j := int(sm.next() % uint64(i+1))
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

// HandSeed derives the per-hand seed from the table-level tournament seed, so
// hand N is reproducible without storing its deck.
func HandSeed(tournamentSeed string, handNo int) string {
	return fmt.Sprintf("%s_hand_%d", tournamentSeed, handNo)
}
