package settle

import (
	"context"
	"log"
	"strings"
	"time"
)

// SimBackend is the degraded "off-chain" mode: no transfers happen, each step
// just takes a short fixed delay, and the transaction reference is derived
// deterministically from the receipt hash. Selected automatically when no
// on-chain addresses are configured, so orchestration can run unfunded.
type SimBackend struct {
	Delay time.Duration // defaults to 50ms per step
}

func (b *SimBackend) step(ctx context.Context) error {
	d := b.Delay
	if d <= 0 {
		d = 50 * time.Millisecond
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *SimBackend) Mode() string { return "offchain" }

func (b *SimBackend) Collect(ctx context.Context, a Authorization) error {
	if err := b.step(ctx); err != nil {
		return err
	}
	log.Printf("simulated debit %s from %s", a.Value, a.From.Hex())
	return nil
}

func (b *SimBackend) Pay(ctx context.Context, payees []NetPosition) error {
	if err := b.step(ctx); err != nil {
		return err
	}
	log.Printf("simulated payout to %d payees", len(payees))
	return nil
}

func (b *SimBackend) Finalize(ctx context.Context, handNo int, receiptHash string) (string, error) {
	if err := b.step(ctx); err != nil {
		return "", err
	}
	return "simulated_" + strings.TrimPrefix(receiptHash, "0x")[:16], nil
}
