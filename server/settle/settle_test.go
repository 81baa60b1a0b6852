package settle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"b402-poker/server/receipt"
)

// fakeBackend records the order of backend calls.
type fakeBackend struct {
	mu      sync.Mutex
	events  []string
	payErr  error
	collErr error
}

func (b *fakeBackend) record(ev string) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *fakeBackend) Mode() string { return "fake" }

func (b *fakeBackend) Collect(_ context.Context, a Authorization) error {
	// a little jitter so concurrent collects interleave in practice
	time.Sleep(5 * time.Millisecond)
	b.record("collect:" + strings.ToLower(a.From.Hex()))
	return b.collErr
}

func (b *fakeBackend) Pay(_ context.Context, payees []NetPosition) error {
	b.record("pay")
	return b.payErr
}

func (b *fakeBackend) Finalize(_ context.Context, handNo int, receiptHash string) (string, error) {
	b.record("finalize")
	return "fake_tx", nil
}

var settlePlayers = []string{
	"0x1111111111111111111111111111111111111111",
	"0x2222222222222222222222222222222222222222",
	"0x3333333333333333333333333333333333333333",
}

func testReceipt(t *testing.T, handNo int) (*receipt.HandReceipt, string) {
	t.Helper()
	r := receipt.Build("t1", handNo, "seed", settlePlayers,
		[]string{"SB:1", "BB:2", "FOLD:0", "CALL:1:5"}, []int{10, -4, -6}, 100, 0)
	h, err := r.Hash()
	if err != nil {
		t.Fatal(err)
	}
	return r, h
}

func TestSettleCollectsBeforePaying(t *testing.T) {
	backend := &fakeBackend{}
	c := NewCoordinator("t1", 84532, common.Address{}, common.Address{}, nil, backend)
	r, h := testReceipt(t, 1)
	payers, payees, err := ComputeNetPositions(r.Deltas, r.Players)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := c.SettleHand(context.Background(), r, h, payers, payees)
	if err != nil {
		t.Fatal(err)
	}
	if rec.TxRef != "fake_tx" || rec.Mode != "fake" || rec.HandNo != 1 {
		t.Fatalf("bad record %+v", rec)
	}

	// every collect must come before the single pay, pay before finalize
	payIdx, finalizeIdx := -1, -1
	lastCollect := -1
	for i, ev := range backend.events {
		switch {
		case ev == "pay":
			payIdx = i
		case ev == "finalize":
			finalizeIdx = i
		case strings.HasPrefix(ev, "collect:"):
			lastCollect = i
		}
	}
	if lastCollect < 0 || payIdx < 0 || finalizeIdx < 0 {
		t.Fatalf("missing backend calls: %v", backend.events)
	}
	if lastCollect > payIdx {
		t.Fatalf("payout ran before all collections: %v", backend.events)
	}
	if payIdx > finalizeIdx {
		t.Fatalf("finalize ran before payout: %v", backend.events)
	}

	if len(c.Records()) != 1 {
		t.Fatalf("expected one settlement record")
	}
}

func TestSettleRejectsBadHashBeforeAnyTransfer(t *testing.T) {
	backend := &fakeBackend{}
	c := NewCoordinator("t1", 84532, common.Address{}, common.Address{}, nil, backend)
	r, h := testReceipt(t, 1)
	payers, payees, _ := ComputeNetPositions(r.Deltas, r.Players)

	last := byte('0')
	if h[65] == '0' {
		last = '1'
	}
	tampered := h[:65] + string(last)
	_, err := c.SettleHand(context.Background(), r, tampered, payers, payees)
	if !errors.Is(err, ErrReceiptMismatch) {
		t.Fatalf("err = %v, want ErrReceiptMismatch", err)
	}
	if len(backend.events) != 0 {
		t.Fatalf("backend touched despite hash mismatch: %v", backend.events)
	}
}

func TestSettleRejectsNonceReuse(t *testing.T) {
	backend := &fakeBackend{}
	c := NewCoordinator("t1", 84532, common.Address{}, common.Address{}, nil, backend)
	r, h := testReceipt(t, 1)
	payers, payees, _ := ComputeNetPositions(r.Deltas, r.Players)

	if _, err := c.SettleHand(context.Background(), r, h, payers, payees); err != nil {
		t.Fatal(err)
	}
	_, err := c.SettleHand(context.Background(), r, h, payers, payees)
	if !errors.Is(err, ErrNonceReused) {
		t.Fatalf("err = %v, want ErrNonceReused", err)
	}
}

func TestSettleFailureFreesNoncesForRetry(t *testing.T) {
	backend := &fakeBackend{payErr: errors.New("rpc down")}
	c := NewCoordinator("t1", 84532, common.Address{}, common.Address{}, nil, backend)
	r, h := testReceipt(t, 1)
	payers, payees, _ := ComputeNetPositions(r.Deltas, r.Players)

	if _, err := c.SettleHand(context.Background(), r, h, payers, payees); err == nil {
		t.Fatalf("expected payout failure")
	}
	if len(c.Records()) != 0 {
		t.Fatalf("failed settlement produced a record")
	}

	// retry with the backend healthy again must succeed with the same nonces
	backend.payErr = nil
	if _, err := c.SettleHand(context.Background(), r, h, payers, payees); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestSettleDistinctHandsDistinctNonces(t *testing.T) {
	backend := &fakeBackend{}
	c := NewCoordinator("t1", 84532, common.Address{}, common.Address{}, nil, backend)
	for handNo := 1; handNo <= 2; handNo++ {
		r, h := testReceipt(t, handNo)
		payers, payees, _ := ComputeNetPositions(r.Deltas, r.Players)
		if _, err := c.SettleHand(context.Background(), r, h, payers, payees); err != nil {
			t.Fatalf("hand %d: %v", handNo, err)
		}
	}
}

func TestSimBackendDeterministicReference(t *testing.T) {
	b := &SimBackend{Delay: time.Millisecond}
	_, h := testReceipt(t, 1)

	ref1, err := b.Finalize(context.Background(), 1, h)
	if err != nil {
		t.Fatal(err)
	}
	ref2, err := b.Finalize(context.Background(), 1, h)
	if err != nil {
		t.Fatal(err)
	}
	if ref1 != ref2 {
		t.Fatalf("simulated reference not deterministic: %s vs %s", ref1, ref2)
	}
	if !strings.HasPrefix(ref1, "simulated_") || len(ref1) != len("simulated_")+16 {
		t.Fatalf("unexpected reference %q", ref1)
	}
}
