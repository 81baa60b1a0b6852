package table

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"b402-poker/server/agent"
	"b402-poker/server/engine"
	"b402-poker/server/receipt"
	"b402-poker/server/settle"
	"b402-poker/server/store"
)

// Settler settles one completed hand. Both settle.Coordinator and
// settle.HTTPFacilitator satisfy it.
type Settler interface {
	SettleHand(ctx context.Context, r *receipt.HandReceipt, receiptHash string, payers, payees []settle.NetPosition) (settle.Record, error)
}

type Options struct {
	TableID   string
	Seed      string // tournament seed; per-hand seeds derive from it
	MaxHands  int
	HandDelay time.Duration
	RakeBps   int

	Engine    engine.Config
	Agents    []agent.Requester // one per seat
	Addresses []string          // on-chain identity per seat; may be empty

	Settler Settler   // nil skips settlement entirely
	Store   *store.DB // nil-safe
}

// HandResult is the outcome of one hand: either Completed (receipt built,
// settlement attempted) or Failed. The session loop proceeds either way.
type HandResult struct {
	HandNo      int
	Receipt     *receipt.HandReceipt
	ReceiptHash string
	Settlement  *settle.Record
	Err         error
}

func (r HandResult) Completed() bool { return r.Err == nil && r.Receipt != nil }

type Stats struct {
	HandsDealt      int   `json:"hands_dealt"`
	HandsCompleted  int   `json:"hands_completed"`
	HandsFailed     int   `json:"hands_failed"`
	AutoFolds       int   `json:"auto_folds"`
	SettleOK        int   `json:"settlements_ok"`
	SettleFailures  int   `json:"settlement_failures"`
	PerSeatNet      []int `json:"per_seat_net"`
	PendingReceipts int   `json:"pending_receipts"`
}

// Session drives one table: a single hand at a time, MaxHands total, never
// aborting the loop on a per-hand failure.
type Session struct {
	opts    Options
	dealer  *engine.Dealer
	running atomic.Bool

	mu    sync.Mutex
	stats Stats
}

func NewSession(opts Options) *Session {
	if opts.MaxHands <= 0 {
		opts.MaxHands = 10
	}
	if opts.HandDelay <= 0 {
		opts.HandDelay = time.Second
	}
	s := &Session{opts: opts, dealer: engine.NewDealer(opts.Engine)}
	s.stats.PerSeatNet = make([]int, opts.Engine.SeatCount)
	return s
}

// Running reports whether a loop is active; used to reject double starts.
func (s *Session) Running() bool { return s.running.Load() }

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.PerSeatNet = append([]int{}, s.stats.PerSeatNet...)
	if s.opts.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if n, err := s.opts.Store.PendingReceipts(ctx, s.opts.TableID); err == nil {
			st.PendingReceipts = n
		}
	}
	return st
}

// Run plays hands until MaxHands or the context is cancelled. A cancel is
// honored between hands; an in-flight hand always runs to its own end.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("session already running")
	}
	defer s.running.Store(false)

	log.Printf("table %s: starting session, %d hands", s.opts.TableID, s.opts.MaxHands)
	for handNo := 1; handNo <= s.opts.MaxHands; handNo++ {
		select {
		case <-ctx.Done():
			log.Printf("table %s: stopped after %d hands", s.opts.TableID, handNo-1)
			return ctx.Err()
		default:
		}

		res := s.RunHand(ctx, handNo)
		s.recordResult(res)
		if res.Err != nil {
			log.Printf("table %s hand %d failed: %v", s.opts.TableID, handNo, res.Err)
		}

		if handNo < s.opts.MaxHands {
			select {
			case <-time.After(s.opts.HandDelay):
			case <-ctx.Done():
			}
		}
	}
	log.Printf("table %s: session complete", s.opts.TableID)
	return nil
}

// RunHand plays exactly one hand to completion. Agent failures auto-fold the
// seat; a settlement failure still leaves the hand Completed.
func (s *Session) RunHand(ctx context.Context, handNo int) (res HandResult) {
	res.HandNo = handNo
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("hand %d panicked: %v", handNo, r)
		}
	}()

	d := s.dealer
	seed := engine.HandSeed(s.opts.Seed, handNo)
	d.Deal(handNo, seed, s.opts.Addresses)
	n := d.Cfg.SeatCount
	log.Printf("table %s hand %d: dealt, button=%d pot=%d", s.opts.TableID, handNo, d.Button, d.Pot)

	for d.Street != engine.Complete {
		start := (d.Button + 1) % n
		if d.Street == engine.Preflop {
			start = (d.Button + 3) % n // first to act is left of the big blind
		}
		if err := s.runBettingRound(ctx, start); err != nil {
			res.Err = err
			return res
		}
		if s.liveSeats() <= 1 {
			break
		}
		if !d.NextStreet() {
			break
		}
	}

	deltas := d.SettleDeltas()
	rec := receipt.Build(s.opts.TableID, handNo, seed, d.Addresses(), d.ActionLog(), deltas, d.Pot, s.opts.RakeBps)
	hash, err := rec.Hash()
	if err != nil {
		res.Err = fmt.Errorf("hash receipt: %w", err)
		return res
	}
	res.Receipt = rec
	res.ReceiptHash = hash

	s.persist(ctx, rec, hash, d.ActionLog())
	res.Settlement = s.settleHand(ctx, rec, hash)
	return res
}

// runBettingRound sweeps the seats in order from start until the round
// completes. Any agent error or illegal action folds that seat.
func (s *Session) runBettingRound(ctx context.Context, start int) error {
	d := s.dealer
	n := d.Cfg.SeatCount

	for sweep := 0; !d.IsRoundComplete(); sweep++ {
		if sweep > 4*n+16 {
			// can't happen with a correct completion check; fail the hand
			// loudly rather than spin
			return fmt.Errorf("betting round did not converge")
		}
		for off := 0; off < n; off++ {
			i := (start + off) % n
			if !d.NeedsAction(i) {
				continue
			}
			s.askAndApply(ctx, i)
			if d.IsRoundComplete() {
				return nil
			}
		}
	}
	return nil
}

// askAndApply requests one seat's action. Every failure path resolves to a
// fold so the round always makes forward progress.
func (s *Session) askAndApply(ctx context.Context, seat int) {
	d := s.dealer
	obs := agent.BuildObservation(d, seat)

	act, err := s.opts.Agents[seat].RequestAction(ctx, obs)
	if err != nil {
		log.Printf("table %s hand %d seat %d: agent failed (%v), auto-folding", s.opts.TableID, d.HandNo, seat, err)
		s.bumpAutoFolds()
		act = engine.Action{Kind: engine.Fold}
	}

	if err := d.Apply(seat, act); err != nil {
		log.Printf("table %s hand %d seat %d: rejected %s (%v), auto-folding", s.opts.TableID, d.HandNo, seat, act.Kind, err)
		s.bumpAutoFolds()
		if err := d.Apply(seat, engine.Action{Kind: engine.Fold}); err != nil {
			log.Printf("table %s hand %d seat %d: fold rejected too: %v", s.opts.TableID, d.HandNo, seat, err)
		}
	}
}

func (s *Session) settleHand(ctx context.Context, rec *receipt.HandReceipt, hash string) *settle.Record {
	if s.opts.Settler == nil {
		return nil
	}
	payers, payees, err := settle.ComputeNetPositions(rec.Deltas, rec.Players)
	if err != nil {
		log.Printf("table %s hand %d: net positions: %v", s.opts.TableID, rec.HandNo, err)
		s.bumpSettleFailure()
		return nil
	}

	r, err := s.opts.Settler.SettleHand(ctx, rec, hash, payers, payees)
	if err != nil {
		// the hand stays complete; settlement can be retried out-of-band
		log.Printf("table %s hand %d: settlement failed: %v", s.opts.TableID, rec.HandNo, err)
		s.bumpSettleFailure()
		return nil
	}

	if s.opts.Store != nil {
		if err := s.opts.Store.InsertSettlement(ctx, s.opts.TableID, rec.HandNo, hash, r.TxRef, r.Mode); err != nil {
			log.Printf("table %s hand %d: settlement insert: %v", s.opts.TableID, rec.HandNo, err)
		}
	}
	s.mu.Lock()
	s.stats.SettleOK++
	s.mu.Unlock()
	return &r
}

func (s *Session) persist(ctx context.Context, rec *receipt.HandReceipt, hash string, actions []string) {
	if s.opts.Store == nil {
		return
	}
	if err := s.opts.Store.InsertReceipt(ctx, rec.TableID, rec.HandNo, rec.Seed, rec.ActionsCommitment, hash, rec.Deltas, rec.RakeBps); err != nil {
		log.Printf("table %s hand %d: receipt insert: %v", s.opts.TableID, rec.HandNo, err)
	}
	if err := s.opts.Store.InsertHandActions(ctx, rec.TableID, rec.HandNo, actions); err != nil {
		log.Printf("table %s hand %d: actions insert: %v", s.opts.TableID, rec.HandNo, err)
	}
}

func (s *Session) liveSeats() int {
	live := 0
	for _, seat := range s.dealer.Seats {
		if !seat.Folded {
			live++
		}
	}
	return live
}

func (s *Session) recordResult(res HandResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.HandsDealt++
	if res.Completed() {
		s.stats.HandsCompleted++
		for i, ds := range res.Receipt.Deltas {
			if i >= len(s.stats.PerSeatNet) {
				break
			}
			var d int
			fmt.Sscanf(ds, "%d", &d)
			s.stats.PerSeatNet[i] += d
		}
	} else {
		s.stats.HandsFailed++
	}
}

func (s *Session) bumpAutoFolds() {
	s.mu.Lock()
	s.stats.AutoFolds++
	s.mu.Unlock()
}

func (s *Session) bumpSettleFailure() {
	s.mu.Lock()
	s.stats.SettleFailures++
	s.mu.Unlock()
}
