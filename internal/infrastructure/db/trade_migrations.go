package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	decodepay "github.com/nbd-wtf/ln-decodepay"
)

// backfillLnPaymentHashVersion ties this Go migration to the init SQL
// migration that created trades.ln_payment_hash_hex: rows written before
// the driver started populating that column on every ln_invoice patch
// (e.g. imported from an older store, or written directly via SQL) leave
// it blank, which breaks GetTradeByPaymentHash lookups and the
// idx_trades_ln_payment_hash_hex index.
const backfillLnPaymentHashVersion = "20260101000000"

// tradeGoMigrations returns the Go-side data migrations run once the
// schema migrations in sqlite/migration have applied.
func tradeGoMigrations() []GoMigration {
	return []GoMigration{
		{
			Version: backfillLnPaymentHashVersion,
			Run:     backfillLnPaymentHashes,
		},
	}
}

// backfillLnPaymentHashes decodes ln_invoice_bolt11 for any trade row
// that has an invoice but no recorded payment hash, and fills in
// ln_payment_hash_hex from it. Decoding failures are skipped per row
// (the hash stays blank) rather than failing the whole migration: a malformed legacy
// invoice shouldn't block every other trade's backfill.
func backfillLnPaymentHashes(ctx context.Context, dbh *sql.DB) error {
	rows, err := dbh.QueryContext(ctx, `
		SELECT trade_id, ln_invoice_bolt11 FROM trades
		WHERE ln_invoice_bolt11 != '' AND ln_payment_hash_hex = ''
	`)
	if err != nil {
		return fmt.Errorf("query trades pending payment hash backfill: %w", err)
	}

	type pending struct {
		tradeID string
		bolt11  string
	}
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.tradeID, &p.bolt11); err != nil {
			rows.Close()
			return fmt.Errorf("scan trade pending payment hash backfill: %w", err)
		}
		todo = append(todo, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate trades pending payment hash backfill: %w", err)
	}
	rows.Close()

	for _, p := range todo {
		dec, err := decodepay.Decodepay(p.bolt11)
		if err != nil {
			continue
		}
		if _, err := dbh.ExecContext(ctx,
			`UPDATE trades SET ln_payment_hash_hex = ? WHERE trade_id = ?`,
			strings.ToLower(dec.PaymentHash), p.tradeID,
		); err != nil {
			return fmt.Errorf("backfill payment hash for trade %s: %w", p.tradeID, err)
		}
	}
	return nil
}
