package engine

import (
	poker "github.com/paulhankin/poker"
)

// Convert an engine card to the evaluation library's card.
func toPH(c Card) poker.Card {
	var s poker.Suit
	switch c.Suit {
	case 'c':
		s = poker.Club
	case 'd':
		s = poker.Diamond
	case 'h':
		s = poker.Heart
	case 's':
		s = poker.Spade
	default:
		s = poker.Club
	}
	// Our ranks: 2..14 (Ace=14). Library: 1..13 (Ace=1).
	var r poker.Rank
	if c.Rank == 14 {
		r = poker.Rank(1)
	} else {
		r = poker.Rank(c.Rank)
	}
	card, _ := poker.MakeCard(s, r)
	return card
}

// EvalScore is the library score for the best 5-card hand in cards.
// Smaller score = stronger hand.
func EvalScore(cards []Card) int16 {
	n := len(cards)
	pcs := make([]poker.Card, n)
	for i, c := range cards {
		pcs[i] = toPH(c)
	}
	switch n {
	case 7:
		var a7 [7]poker.Card
		copy(a7[:], pcs)
		return poker.Eval7(&a7)
	case 5:
		var a5 [5]poker.Card
		copy(a5[:], pcs)
		return poker.Eval5(&a5)
	case 3:
		var a3 [3]poker.Card
		copy(a3[:], pcs)
		return poker.Eval3(&a3)
	default:
		// 6 (or 4) cards: choose best 5.
		return bestOfFiveSubsets(pcs)
	}
}

func bestOfFiveSubsets(pcs []poker.Card) int16 {
	n := len(pcs)
	if n < 5 {
		var a5 [5]poker.Card
		copy(a5[:n], pcs)
		return poker.Eval5(&a5) // shouldn't happen in normal flow
	}
	best := int16(32767)
	choose := [5]int{}
	var five [5]poker.Card
	var rec func(start, k int)
	rec = func(start, k int) {
		if k == 5 {
			for i := 0; i < 5; i++ {
				five[i] = pcs[choose[i]]
			}
			score := poker.Eval5(&five)
			if score < best {
				best = score
			}
			return
		}
		for i := start; i <= n-(5-k); i++ {
			choose[k] = i
			rec(i+1, k+1)
		}
	}
	rec(0, 0)
	return best
}

// showdownWinners evaluates the live seats' 7-card hands against the board
// and returns every seat tied for the best score.
func (d *Dealer) showdownWinners(live []int) []int {
	best := int16(32767)
	scores := make(map[int]int16, len(live))
	for _, i := range live {
		all := append(append([]Card{}, d.Seats[i].Hole...), d.Board...)
		sc := EvalScore(all)
		scores[i] = sc
		if sc < best {
			best = sc
		}
	}
	var winners []int
	for _, i := range live {
		if scores[i] == best {
			winners = append(winners, i)
		}
	}
	return winners
}

// HandDesc returns the library's description of a seat's best hand, for logs.
func (d *Dealer) HandDesc(seatIdx int) string {
	all := append(append([]Card{}, d.Seats[seatIdx].Hole...), d.Board...)
	pcs := make([]poker.Card, len(all))
	for i, c := range all {
		pcs[i] = toPH(c)
	}
	desc, err := poker.Describe(pcs)
	if err != nil {
		return ""
	}
	return desc
}
