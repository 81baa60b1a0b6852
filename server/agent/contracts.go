package agent

import (
	"context"
	"fmt"

	"b402-poker/server/engine"
)

type Observation struct {
	HandNo     int      `json:"hand_no"`
	Seat       int      `json:"seat"`
	Position   string   `json:"position"`    // BTN|SB|BB|UTG|...
	Street     string   `json:"street"`      // preflop|flop|turn|river
	HoleCards  []string `json:"hole_cards"`  // e.g. ["As","Kd"]
	Community  []string `json:"community"`   // 0..5 cards
	Pot        int      `json:"pot"`
	Bet        int      `json:"bet"`       // current bet to match
	ToCall     int      `json:"to_call"`   // chips hero owes
	Stack      int      `json:"stack"`     // chips behind
	MinRaise   int      `json:"min_raise"` // minimum raise over the call
	MaxRaise   int      `json:"max_raise"` // all-in raise over the call
	Legal      []string `json:"legal_actions"`
	HistoryLen int      `json:"history_len"`
}

type ActionOut struct {
	Action  string `json:"action"`            // fold|check|call|raise
	Amount  *int   `json:"amount,omitempty"`  // required if raise
	Comment string `json:"comment,omitempty"` // <=120 chars
}

// Requester asks a (possibly remote) player for its next action. Any error,
// including timeout, means the orchestrator folds the seat.
type Requester interface {
	RequestAction(ctx context.Context, o Observation) (engine.Action, error)
}

// Strategy is the local decision side: given an observation, produce a raw
// wire action. Used by the player service and by in-process tables.
type Strategy interface {
	Decide(ctx context.Context, o Observation) (ActionOut, error)
}

// BuildObservation converts dealer state into the JSON we send the player.
func BuildObservation(d *engine.Dealer, seat int) Observation {
	s := d.Seats[seat]
	toCall := d.ToCall(seat)

	legal := []string{}
	for _, k := range d.LegalActions(seat) {
		legal = append(legal, string(k))
	}

	maxRaise := s.Stack - toCall
	if maxRaise < 0 {
		maxRaise = 0
	}

	return Observation{
		HandNo:     d.HandNo,
		Seat:       seat,
		Position:   d.Position(seat),
		Street:     string(d.Street),
		HoleCards:  engine.CardStrings(s.Hole),
		Community:  engine.CardStrings(d.Board),
		Pot:        d.Pot,
		Bet:        d.CurBet,
		ToCall:     toCall,
		Stack:      s.Stack,
		MinRaise:   d.MinRaise(),
		MaxRaise:   maxRaise,
		Legal:      legal,
		HistoryLen: len(d.ActionLog()),
	}
}

// Validate the player's action against the observation and convert it into an
// engine action.
func Validate(o Observation, a ActionOut) (engine.Action, error) {
	// if to_call==0 and player says "call", treat it as check (friendly)
	if o.ToCall == 0 && a.Action == "call" {
		a.Action = "check"
	}

	ok := false
	for _, la := range o.Legal {
		if la == a.Action {
			ok = true
			break
		}
	}
	if !ok {
		return engine.Action{}, fmt.Errorf("illegal action %q (legals: %v)", a.Action, o.Legal)
	}

	out := engine.Action{Kind: engine.ActionKind(a.Action)}
	if a.Action == "raise" {
		if a.Amount == nil {
			return engine.Action{}, fmt.Errorf("raise requires amount")
		}
		if *a.Amount < o.MinRaise {
			return engine.Action{}, fmt.Errorf("raise amount %d below minimum %d", *a.Amount, o.MinRaise)
		}
		// oversized raises simply put the seat all-in; no cap needed here
		out.Amount = *a.Amount
	}
	return out, nil
}
