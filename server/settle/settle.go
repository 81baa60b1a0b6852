package settle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"b402-poker/server/receipt"
)

var (
	// ErrReceiptMismatch means the claimed receipt hash did not match a
	// recomputation. Settlement must not proceed past it.
	ErrReceiptMismatch = errors.New("receipt hash mismatch")

	// ErrNonceReused means an authorization nonce was already consumed by an
	// earlier settlement.
	ErrNonceReused = errors.New("authorization nonce reused")
)

// Backend executes the actual transfers. Collect debits one payer, Pay
// credits all payees in one batch, Finalize emits the settlement marker and
// returns the transaction reference.
type Backend interface {
	Mode() string
	Collect(ctx context.Context, a Authorization) error
	Pay(ctx context.Context, payees []NetPosition) error
	Finalize(ctx context.Context, handNo int, receiptHash string) (string, error)
}

// Record is the immutable settlement record binding a hand to its receipt
// hash and transaction reference.
type Record struct {
	HandNo      int    `json:"handNo"`
	ReceiptHash string `json:"receiptHash"`
	TxRef       string `json:"txRef"`
	Mode        string `json:"mode"` // "onchain" | "offchain"
	Timestamp   int64  `json:"ts"`
}

// Coordinator drives one settlement at a time: verify the receipt, collect
// signed payer debits (concurrently, each debits a distinct payer), then pay
// the payees strictly after every collection has confirmed.
type Coordinator struct {
	TableID string
	ChainID int64
	Token   common.Address
	Escrow  common.Address
	Signer  Signer // nil when the backend does not need signatures
	Backend Backend

	mu         sync.Mutex
	usedNonces map[[32]byte]bool
	records    []Record
}

func NewCoordinator(tableID string, chainID int64, token, escrow common.Address, signer Signer, backend Backend) *Coordinator {
	return &Coordinator{
		TableID:    tableID,
		ChainID:    chainID,
		Token:      token,
		Escrow:     escrow,
		Signer:     signer,
		Backend:    backend,
		usedNonces: map[[32]byte]bool{},
	}
}

// SettleHand settles one receipt. On any error before Finalize no settlement
// record is produced; the caller may retry out-of-band.
func (c *Coordinator) SettleHand(ctx context.Context, r *receipt.HandReceipt, receiptHash string, payers, payees []NetPosition) (Record, error) {
	if err := receipt.Verify(r, receiptHash); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrReceiptMismatch, err)
	}

	now := time.Now()
	auths := make([]Authorization, len(payers))
	for i, p := range payers {
		if !common.IsHexAddress(p.Address) {
			return Record{}, fmt.Errorf("payer %d: bad address %q", i, p.Address)
		}
		auths[i] = NewAuthorization(c.TableID, r.HandNo, common.HexToAddress(p.Address), c.Escrow, p.Amount, now)
	}

	if err := c.reserveNonces(auths); err != nil {
		return Record{}, err
	}

	if c.Signer != nil {
		for i := range auths {
			if err := c.Signer.SignAuthorization(&auths[i], c.ChainID, c.Token); err != nil {
				c.releaseNonces(auths)
				return Record{}, fmt.Errorf("sign payer %s: %w", auths[i].From.Hex(), err)
			}
		}
	}

	// collect all payer debits; the group wait is the barrier before payout
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range auths {
		a := a
		g.Go(func() error {
			if err := c.Backend.Collect(gctx, a); err != nil {
				return fmt.Errorf("collect from %s: %w", a.From.Hex(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// nonces stay reserved only for completed settlements; a failed one
		// may be retried out-of-band with the same derived nonces
		c.releaseNonces(auths)
		return Record{}, err
	}

	if len(payees) > 0 {
		if err := c.Backend.Pay(ctx, payees); err != nil {
			c.releaseNonces(auths)
			return Record{}, fmt.Errorf("payout: %w", err)
		}
	}

	txRef, err := c.Backend.Finalize(ctx, r.HandNo, receiptHash)
	if err != nil {
		c.releaseNonces(auths)
		return Record{}, fmt.Errorf("finalize: %w", err)
	}

	rec := Record{
		HandNo:      r.HandNo,
		ReceiptHash: receiptHash,
		TxRef:       txRef,
		Mode:        c.Backend.Mode(),
		Timestamp:   time.Now().Unix(),
	}
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()

	log.Printf("settled hand %d (%s) tx=%s", r.HandNo, rec.Mode, txRef)
	return rec, nil
}

// Records returns a copy of all settlement records so far.
func (c *Coordinator) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Coordinator) reserveNonces(auths []Authorization) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range auths {
		if c.usedNonces[a.Nonce] {
			return fmt.Errorf("%w: payer %s", ErrNonceReused, a.From.Hex())
		}
	}
	for _, a := range auths {
		c.usedNonces[a.Nonce] = true
	}
	return nil
}

func (c *Coordinator) releaseNonces(auths []Authorization) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range auths {
		delete(c.usedNonces, a.Nonce)
	}
}
