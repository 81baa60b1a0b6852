package engine

import "fmt"

type Config struct {
	SeatCount  int
	StartStack int
	SmallBlind int
	BigBlind   int
}

// SeatState is owned by the Dealer for the duration of a hand. Stack persists
// across hands; everything else is reset on each deal.
type SeatState struct {
	Address          string
	Stack            int
	Hole             []Card
	CurrentBet       int
	TotalContributed int
	Folded           bool
	acted            bool // voluntary action this betting round
}

// AllIn reports whether the seat has no chips behind.
func (s *SeatState) AllIn() bool { return s.Stack == 0 }

// Dealer is the per-table hand engine: seats, pot, streets and the legal
// action set. It performs no I/O; the orchestrator drives it.
type Dealer struct {
	Cfg    Config
	Seats  []*SeatState
	Button int

	HandNo  int
	Seed    string
	deck    []Card
	Board   []Card
	Pot     int
	CurBet  int
	Street  Street
	actions []string
}

func NewDealer(cfg Config) *Dealer {
	d := &Dealer{Cfg: cfg, Button: cfg.SeatCount - 1, Street: Complete}
	for i := 0; i < cfg.SeatCount; i++ {
		d.Seats = append(d.Seats, &SeatState{
			Address: fmt.Sprintf("player_%d", i),
			Stack:   cfg.StartStack,
		})
	}
	return d
}

func (d *Dealer) draw() Card {
	if len(d.deck) == 0 {
		panic("engine: deck exhausted")
	}
	c := d.deck[0]
	d.deck = d.deck[1:]
	return c
}

// contribute moves up to amount chips from the seat's stack into the pot.
func (d *Dealer) contribute(seat *SeatState, amount int) int {
	if amount > seat.Stack {
		amount = seat.Stack
	}
	seat.Stack -= amount
	seat.CurrentBet += amount
	seat.TotalContributed += amount
	d.Pot += amount
	return amount
}

// Deal starts a new hand: advances the button, resets seat transient state,
// deals hole cards round-robin and posts the blinds.
func (d *Dealer) Deal(handNo int, seed string, addresses []string) {
	d.HandNo = handNo
	d.Seed = seed
	d.deck = NewDeck(seed)
	d.Board = nil
	d.Pot = 0
	d.CurBet = 0
	d.Street = Preflop
	d.actions = nil
	d.Button = (d.Button + 1) % d.Cfg.SeatCount

	for i, seat := range d.Seats {
		if i < len(addresses) && addresses[i] != "" {
			seat.Address = addresses[i]
		}
		seat.Hole = nil
		seat.CurrentBet = 0
		seat.TotalContributed = 0
		seat.Folded = false
		seat.acted = false
	}

	for round := 0; round < 2; round++ {
		for _, seat := range d.Seats {
			seat.Hole = append(seat.Hole, d.draw())
		}
	}

	sb := (d.Button + 1) % d.Cfg.SeatCount
	bb := (d.Button + 2) % d.Cfg.SeatCount
	d.contribute(d.Seats[sb], d.Cfg.SmallBlind)
	d.contribute(d.Seats[bb], d.Cfg.BigBlind)
	d.CurBet = d.Cfg.BigBlind
	d.actions = append(d.actions, fmt.Sprintf("SB:%d", sb), fmt.Sprintf("BB:%d", bb))
}

// ToCall is the amount the seat owes to match the current bet.
func (d *Dealer) ToCall(seatIdx int) int {
	t := d.CurBet - d.Seats[seatIdx].CurrentBet
	if t < 0 {
		t = 0
	}
	return t
}

// MinRaise is the minimum additional amount over the call for a legal raise:
// the resulting total bet must at least double the current bet.
func (d *Dealer) MinRaise() int {
	if d.CurBet == 0 {
		return d.Cfg.BigBlind
	}
	return d.CurBet
}

// LegalActions derives the legal action set for a seat. Folded seats, all-in
// seats and completed hands have none.
func (d *Dealer) LegalActions(seatIdx int) []ActionKind {
	seat := d.Seats[seatIdx]
	if seat.Folded || seat.AllIn() || d.Street == Complete {
		return nil
	}
	out := []ActionKind{Fold}
	if d.ToCall(seatIdx) == 0 {
		out = append(out, Check)
	} else {
		out = append(out, Call, Raise)
	}
	return out
}

// NeedsAction reports whether the seat still owes a decision this round.
func (d *Dealer) NeedsAction(seatIdx int) bool {
	seat := d.Seats[seatIdx]
	if seat.Folded || seat.AllIn() || d.Street == Complete {
		return false
	}
	return !seat.acted || seat.CurrentBet != d.CurBet
}

// Apply validates and applies one action. Rejected actions leave all state
// unchanged; the caller decides how to recover.
func (d *Dealer) Apply(seatIdx int, a Action) error {
	if seatIdx < 0 || seatIdx >= len(d.Seats) {
		return fmt.Errorf("no such seat %d", seatIdx)
	}
	seat := d.Seats[seatIdx]
	if d.Street == Complete {
		return fmt.Errorf("hand %d already complete", d.HandNo)
	}
	if seat.Folded {
		return fmt.Errorf("seat %d already folded", seatIdx)
	}

	switch a.Kind {
	case Fold:
		seat.Folded = true
		d.actions = append(d.actions, fmt.Sprintf("FOLD:%d", seatIdx))

	case Check:
		if d.ToCall(seatIdx) != 0 {
			return fmt.Errorf("seat %d cannot check facing a bet", seatIdx)
		}
		seat.acted = true
		d.actions = append(d.actions, fmt.Sprintf("CHECK:%d", seatIdx))

	case Call:
		moved := d.contribute(seat, d.ToCall(seatIdx))
		seat.acted = true
		d.actions = append(d.actions, fmt.Sprintf("CALL:%d:%d", seatIdx, moved))

	case Raise:
		if d.ToCall(seatIdx) == 0 {
			return fmt.Errorf("seat %d cannot raise an unopened pot", seatIdx)
		}
		if a.Amount < d.MinRaise() {
			return fmt.Errorf("raise %d below minimum %d", a.Amount, d.MinRaise())
		}
		// contribute caps at the stack, so a short raise goes all-in
		target := d.CurBet + a.Amount
		moved := d.contribute(seat, target-seat.CurrentBet)
		if seat.CurrentBet > d.CurBet {
			d.CurBet = seat.CurrentBet
			// everyone else gets the action back
			for i, other := range d.Seats {
				if i != seatIdx && !other.Folded && !other.AllIn() {
					other.acted = false
				}
			}
		}
		seat.acted = true
		d.actions = append(d.actions, fmt.Sprintf("RAISE:%d:%d", seatIdx, moved))

	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// IsRoundComplete is true when at most one live seat remains, or when every
// live seat has voluntarily acted this round and matched the current bet
// (all-in seats are exempt). Posting blinds alone never completes a round.
func (d *Dealer) IsRoundComplete() bool {
	live := 0
	for _, seat := range d.Seats {
		if !seat.Folded {
			live++
		}
	}
	if live <= 1 {
		return true
	}
	for _, seat := range d.Seats {
		if seat.Folded || seat.AllIn() {
			continue
		}
		if !seat.acted || seat.CurrentBet != d.CurBet {
			return false
		}
	}
	return true
}

// NextStreet reveals the next community cards and resets per-round betting
// state. It returns false once the hand is past the river (terminal).
func (d *Dealer) NextStreet() bool {
	switch d.Street {
	case Preflop:
		d.Board = append(d.Board, d.draw(), d.draw(), d.draw())
		d.Street = Flop
	case Flop:
		d.Board = append(d.Board, d.draw())
		d.Street = Turn
	case Turn:
		d.Board = append(d.Board, d.draw())
		d.Street = River
	default:
		d.Street = Complete
		return false
	}
	d.CurBet = 0
	for _, seat := range d.Seats {
		seat.CurrentBet = 0
		seat.acted = false
	}
	return true
}

// SettleDeltas resolves the hand: the last live seat, or the showdown
// winner(s), takes the pot (split exactly on ties, odd chips to the earliest
// winner after the button). Winnings are credited back to stacks and per-seat
// deltas (payout minus own contribution) are returned. Deltas sum to zero.
func (d *Dealer) SettleDeltas() []int {
	n := d.Cfg.SeatCount
	payouts := make([]int, n)

	var live []int
	for i, seat := range d.Seats {
		if !seat.Folded {
			live = append(live, i)
		}
	}

	switch {
	case len(live) == 1:
		payouts[live[0]] = d.Pot
	default:
		winners := d.showdownWinners(live)
		share := d.Pot / len(winners)
		rem := d.Pot % len(winners)
		isWinner := make(map[int]bool, len(winners))
		for _, w := range winners {
			isWinner[w] = true
		}
		// odd chips go to the first winner(s) clockwise from the button
		for off := 1; off <= n; off++ {
			i := (d.Button + off) % n
			if !isWinner[i] {
				continue
			}
			payouts[i] = share
			if rem > 0 {
				payouts[i]++
				rem--
			}
		}
	}

	deltas := make([]int, n)
	for i, seat := range d.Seats {
		seat.Stack += payouts[i]
		deltas[i] = payouts[i] - seat.TotalContributed
	}
	d.Street = Complete
	return deltas
}

// ActionLog returns the ordered log of everything that moved chips or ended a
// seat's participation; it is the preimage of the receipt's action commitment.
func (d *Dealer) ActionLog() []string {
	out := make([]string, len(d.actions))
	copy(out, d.actions)
	return out
}

// Position labels the seat relative to the button.
func (d *Dealer) Position(seatIdx int) string {
	n := d.Cfg.SeatCount
	rel := (seatIdx - d.Button + n) % n
	switch rel {
	case 0:
		return "BTN"
	case 1:
		return "SB"
	case 2:
		return "BB"
	case 3:
		return "UTG"
	}
	if rel == n-1 {
		return "CO"
	}
	return fmt.Sprintf("UTG+%d", rel-3)
}

// Addresses returns the current per-seat participant addresses.
func (d *Dealer) Addresses() []string {
	out := make([]string, len(d.Seats))
	for i, seat := range d.Seats {
		out[i] = seat.Address
	}
	return out
}
