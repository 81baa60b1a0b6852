package agent

import (
	"math/rand"

	"b402-poker/server/engine"
)

// Equity estimates hero's win probability against count random opponents by
// Monte Carlo: deal the villains and the remaining board from the unseen
// cards, score everyone, count wins (ties weighted 0.5).
func Equity(rng *rand.Rand, hole, board []engine.Card, opponents, trials int) float64 {
	if len(hole) != 2 || opponents < 1 || trials < 1 {
		return 0.5
	}

	used := map[engine.Card]bool{}
	for _, c := range hole {
		used[c] = true
	}
	for _, c := range board {
		used[c] = true
	}
	avail := make([]engine.Card, 0, 52)
	for _, su := range []byte{'c', 'd', 'h', 's'} {
		for r := 2; r <= 14; r++ {
			c := engine.Card{Rank: r, Suit: su}
			if !used[c] {
				avail = append(avail, c)
			}
		}
	}

	needBoard := 5 - len(board)
	needed := needBoard + 2*opponents
	if needed > len(avail) {
		return 0.5
	}

	var win, tie, total float64
	draw := make([]engine.Card, len(avail))
	for t := 0; t < trials; t++ {
		copy(draw, avail)
		// partial Fisher-Yates: we only need the first `needed` cards
		for i := 0; i < needed; i++ {
			j := i + rng.Intn(len(draw)-i)
			draw[i], draw[j] = draw[j], draw[i]
		}

		fullBoard := append(append([]engine.Card{}, board...), draw[:needBoard]...)
		heroScore := engine.EvalScore(append(append([]engine.Card{}, hole...), fullBoard...))

		best := true
		tied := false
		for o := 0; o < opponents; o++ {
			vHole := draw[needBoard+2*o : needBoard+2*o+2]
			vScore := engine.EvalScore(append(append([]engine.Card{}, vHole...), fullBoard...))
			if vScore < heroScore { // lower is better
				best = false
				break
			}
			if vScore == heroScore {
				tied = true
			}
		}
		total++
		if best && !tied {
			win++
		} else if best {
			tie++
		}
	}
	return (win + 0.5*tie) / total
}
