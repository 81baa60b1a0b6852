package store

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema embed.FS

type DB struct{ *pgxpool.Pool }

func Open(dsn string) (*DB, error) {
	p, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close(ctx context.Context)      { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

/* -----------------------------
   Minimal write helpers.
   All are nil-safe: a nil DB turns every call into a no-op so the
   table loop runs fine without Postgres configured.
------------------------------*/

// InsertReceipt records a completed hand's receipt.
func (db *DB) InsertReceipt(ctx context.Context, tableID string, handNo int, seed, actionsRoot, receiptHash string, deltas []string, rakeBps int) error {
	if db == nil {
		return nil
	}
	_, err := db.Exec(ctx, `
        INSERT INTO hand_receipts(table_id, hand_no, rng_seed, actions_root, receipt_hash, deltas, rake_bps)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (table_id, hand_no) DO NOTHING
    `, tableID, handNo, seed, actionsRoot, receiptHash, deltas, rakeBps)
	return err
}

// InsertHandActions records the raw action log behind a receipt's commitment.
func (db *DB) InsertHandActions(ctx context.Context, tableID string, handNo int, actions []string) error {
	if db == nil {
		return nil
	}
	_, err := db.Exec(ctx, `
        INSERT INTO hand_actions(table_id, hand_no, actions)
        VALUES ($1,$2,$3)
        ON CONFLICT (table_id, hand_no) DO NOTHING
    `, tableID, handNo, actions)
	return err
}

// InsertSettlement marks a receipt as settled and stores the tx reference.
func (db *DB) InsertSettlement(ctx context.Context, tableID string, handNo int, receiptHash, txRef, mode string) error {
	if db == nil {
		return nil
	}
	_, err := db.Exec(ctx, `
        INSERT INTO settlements(table_id, hand_no, receipt_hash, tx_ref, mode)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (table_id, hand_no) DO UPDATE
          SET receipt_hash = EXCLUDED.receipt_hash,
              tx_ref = EXCLUDED.tx_ref,
              mode = EXCLUDED.mode,
              settled_at = now()
    `, tableID, handNo, receiptHash, txRef, mode)
	return err
}

// PendingReceipts counts receipts without a settlement row, i.e. hands that
// completed but whose settlement failed and is eligible for retry.
func (db *DB) PendingReceipts(ctx context.Context, tableID string) (int, error) {
	if db == nil {
		return 0, nil
	}
	var n int
	err := db.QueryRow(ctx, `
        SELECT count(*)
          FROM hand_receipts r
         WHERE r.table_id = $1
           AND NOT EXISTS (
               SELECT 1 FROM settlements s
                WHERE s.table_id = r.table_id AND s.hand_no = r.hand_no
           )
    `, tableID).Scan(&n)
	return n, err
}
