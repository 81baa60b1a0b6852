package engine

import "fmt"

type ActionKind string

const (
	Fold  ActionKind = "fold"
	Check ActionKind = "check"
	Call  ActionKind = "call"
	Raise ActionKind = "raise"
)

// Action is the closed set of moves a seat can make. Amount is meaningful
// only for Raise and is the additional chips over the current call amount.
type Action struct {
	Kind   ActionKind `json:"action"`
	Amount int        `json:"amount,omitempty"`
}

type Street string

const (
	Preflop  Street = "preflop"
	Flop     Street = "flop"
	Turn     Street = "turn"
	River    Street = "river"
	Complete Street = "complete"
)

type Card struct {
	Rank int  // 2..14, Ace = 14
	Suit byte // 'c' 'd' 'h' 's'
}

func (c Card) String() string {
	ranks := "  23456789TJQKA"
	return fmt.Sprintf("%c%c", ranks[c.Rank], c.Suit)
}

// ParseCard parses "As", "Td", "2c" etc.
func ParseCard(s string) (Card, bool) {
	if len(s) != 2 {
		return Card{}, false
	}
	var rank int
	switch s[0] {
	case 'A':
		rank = 14
	case 'K':
		rank = 13
	case 'Q':
		rank = 12
	case 'J':
		rank = 11
	case 'T':
		rank = 10
	default:
		if s[0] >= '2' && s[0] <= '9' {
			rank = int(s[0] - '0')
		}
	}
	if rank == 0 {
		return Card{}, false
	}
	switch s[1] {
	case 'c', 'd', 'h', 's':
	default:
		return Card{}, false
	}
	return Card{Rank: rank, Suit: s[1]}, true
}

// CardStrings renders a hand or board for wire contracts and logs.
func CardStrings(cs []Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}
