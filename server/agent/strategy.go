package agent

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"b402-poker/server/engine"
	"b402-poker/server/llm"
)

// PotOddsStrategy estimates equity by Monte Carlo and compares it against the
// pot odds, with a little randomness so play isn't fully deterministic.
type PotOddsStrategy struct {
	Rng       *rand.Rand
	Opponents int // villains assumed still live; defaults to 1
	Trials    int // MC trials per decision; defaults to 200
}

func (s *PotOddsStrategy) Decide(_ context.Context, o Observation) (ActionOut, error) {
	if s.Rng == nil {
		s.Rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	opponents := s.Opponents
	if opponents < 1 {
		opponents = 1
	}
	trials := s.Trials
	if trials < 1 {
		trials = 200
	}

	hole := parseCards(o.HoleCards)
	board := parseCards(o.Community)
	eq := Equity(s.Rng, hole, board, opponents, trials)

	if o.ToCall == 0 {
		// unopened: mostly check, bet strong hands sometimes
		if eq > 0.65 && s.Rng.Float64() < 0.5 && contains(o.Legal, "raise") {
			amt := o.MinRaise
			return ActionOut{Action: "raise", Amount: &amt}, nil
		}
		return ActionOut{Action: "check"}, nil
	}

	potOdds := float64(o.ToCall) / float64(o.Pot+o.ToCall)
	switch {
	case eq > potOdds+0.2 && s.Rng.Float64() < 0.35:
		amt := o.MinRaise
		return ActionOut{Action: "raise", Amount: &amt}, nil
	case eq >= potOdds:
		return ActionOut{Action: "call"}, nil
	case eq > potOdds-0.05 && s.Rng.Float64() < 0.3:
		// thin call to stay unpredictable
		return ActionOut{Action: "call"}, nil
	default:
		return ActionOut{Action: "fold"}, nil
	}
}

// LLMStrategy asks a chat model for the action and falls back to pot odds on
// any failure.
type LLMStrategy struct {
	Model    string
	Fallback *PotOddsStrategy
}

func (s *LLMStrategy) Decide(ctx context.Context, o Observation) (ActionOut, error) {
	system := "You are a poker player in a no-limit hold'em cash game. " +
		"Reply with JSON only: {\"action\":\"fold|check|call|raise\",\"amount\":<int or null>}. " +
		"Amount is the raise increment over the call, at least min_raise."
	user := fmt.Sprintf(
		"hand %d, %s, street %s. hole %v board %v. pot %d, to_call %d, stack %d, min_raise %d, max_raise %d. legal: %v",
		o.HandNo, o.Position, o.Street, o.HoleCards, o.Community, o.Pot, o.ToCall, o.Stack, o.MinRaise, o.MaxRaise, o.Legal,
	)

	act, amt, raw, err := llm.ChooseAction(ctx, s.Model, system, user, o.Legal, o.MinRaise, o.MaxRaise)
	if err != nil {
		log.Printf("llm decision failed (%v), falling back to pot odds; raw=%q", err, truncate(raw, 200))
		if s.Fallback != nil {
			return s.Fallback.Decide(ctx, o)
		}
		return ActionOut{}, err
	}
	return ActionOut{Action: act, Amount: amt}, nil
}

func parseCards(ss []string) []engine.Card {
	out := make([]engine.Card, 0, len(ss))
	for _, s := range ss {
		if c, ok := engine.ParseCard(s); ok {
			out = append(out, c)
		}
	}
	return out
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
