package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/swapbroker/swapd/internal/core/domain"
)

type tradeRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewTradeRepository(db *sql.DB) (domain.TradeRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("cannot open trade repository: db is nil")
	}
	return &tradeRepository{db: db}, nil
}

func (r *tradeRepository) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// UpsertTrade merges patch into the row for tradeID, creating it on
// first write. Locking the whole upsert with a mutex (in addition to
// the single-connection pool set by OpenDb) keeps read-modify-write of
// the row atomic without needing a SQL transaction per call.
func (r *tradeRepository) UpsertTrade(ctx context.Context, tradeID string, patch domain.TradePatch) (*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UnixMilli()
	existing, err := r.getTrade(ctx, tradeID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	t := domain.Trade{TradeID: tradeID, State: domain.StateInit, CreatedAt: now}
	if existing != nil {
		t = *existing
	}
	applyTradePatch(&t, patch)
	t.UpdatedAt = now
	if existing == nil {
		t.CreatedAt = now
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO trades (
			trade_id, role, rfq_channel, swap_channel, maker_pubkey, taker_pubkey,
			btc_sats, usdt_amount, platform_fee_bps, trade_fee_bps, trade_fee_collector,
			sol_refund_window_sec, sol_escrow_pda, sol_vault_ata, sol_refund_after_unix,
			ln_invoice_bolt11, ln_payment_hash_hex, ln_preimage_hex, state,
			created_at, updated_at, last_error
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(trade_id) DO UPDATE SET
			role=excluded.role, rfq_channel=excluded.rfq_channel, swap_channel=excluded.swap_channel,
			maker_pubkey=excluded.maker_pubkey, taker_pubkey=excluded.taker_pubkey,
			btc_sats=excluded.btc_sats, usdt_amount=excluded.usdt_amount,
			platform_fee_bps=excluded.platform_fee_bps, trade_fee_bps=excluded.trade_fee_bps,
			trade_fee_collector=excluded.trade_fee_collector, sol_refund_window_sec=excluded.sol_refund_window_sec,
			sol_escrow_pda=excluded.sol_escrow_pda, sol_vault_ata=excluded.sol_vault_ata,
			sol_refund_after_unix=excluded.sol_refund_after_unix,
			ln_invoice_bolt11=excluded.ln_invoice_bolt11, ln_payment_hash_hex=excluded.ln_payment_hash_hex,
			ln_preimage_hex=excluded.ln_preimage_hex, state=excluded.state,
			updated_at=excluded.updated_at, last_error=excluded.last_error
	`,
		t.TradeID, string(t.Role), t.RFQChannel, t.SwapChannel, t.MakerPubkey, t.TakerPubkey,
		t.BtcSats, t.UsdtAmount, t.PlatformFeeBps, t.TradeFeeBps, t.TradeFeeCollector,
		t.SolRefundWindowSec, t.SolEscrowPDA, t.SolVaultATA, t.SolRefundAfterUnix,
		t.LnInvoiceBolt11, strings.ToLower(t.LnPaymentHashHex), strings.ToLower(t.LnPreimageHex), string(t.State),
		t.CreatedAt, t.UpdatedAt, t.LastError,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert trade %s: %w", tradeID, err)
	}
	t.LnPaymentHashHex = strings.ToLower(t.LnPaymentHashHex)
	t.LnPreimageHex = strings.ToLower(t.LnPreimageHex)
	return &t, nil
}

func applyTradePatch(t *domain.Trade, p domain.TradePatch) {
	if p.Role != nil {
		t.Role = *p.Role
	}
	if p.RFQChannel != nil {
		t.RFQChannel = *p.RFQChannel
	}
	if p.SwapChannel != nil {
		t.SwapChannel = *p.SwapChannel
	}
	if p.MakerPubkey != nil {
		t.MakerPubkey = *p.MakerPubkey
	}
	if p.TakerPubkey != nil {
		t.TakerPubkey = *p.TakerPubkey
	}
	if p.BtcSats != nil {
		t.BtcSats = *p.BtcSats
	}
	if p.UsdtAmount != nil {
		t.UsdtAmount = *p.UsdtAmount
	}
	if p.PlatformFeeBps != nil {
		t.PlatformFeeBps = *p.PlatformFeeBps
	}
	if p.TradeFeeBps != nil {
		t.TradeFeeBps = *p.TradeFeeBps
	}
	if p.TradeFeeCollector != nil {
		t.TradeFeeCollector = *p.TradeFeeCollector
	}
	if p.SolRefundWindowSec != nil {
		t.SolRefundWindowSec = *p.SolRefundWindowSec
	}
	if p.SolEscrowPDA != nil {
		t.SolEscrowPDA = *p.SolEscrowPDA
	}
	if p.SolVaultATA != nil {
		t.SolVaultATA = *p.SolVaultATA
	}
	if p.SolRefundAfterUnix != nil {
		t.SolRefundAfterUnix = *p.SolRefundAfterUnix
	}
	if p.LnInvoiceBolt11 != nil {
		t.LnInvoiceBolt11 = *p.LnInvoiceBolt11
	}
	if p.LnPaymentHashHex != nil {
		t.LnPaymentHashHex = *p.LnPaymentHashHex
	}
	if p.LnPreimageHex != nil {
		t.LnPreimageHex = *p.LnPreimageHex
	}
	if p.State != nil {
		t.State = *p.State
	}
	if p.LastError != nil {
		t.LastError = *p.LastError
	}
}

func scanTrade(row interface{ Scan(...any) error }) (*domain.Trade, error) {
	var t domain.Trade
	var role, state string
	err := row.Scan(
		&t.TradeID, &role, &t.RFQChannel, &t.SwapChannel, &t.MakerPubkey, &t.TakerPubkey,
		&t.BtcSats, &t.UsdtAmount, &t.PlatformFeeBps, &t.TradeFeeBps, &t.TradeFeeCollector,
		&t.SolRefundWindowSec, &t.SolEscrowPDA, &t.SolVaultATA, &t.SolRefundAfterUnix,
		&t.LnInvoiceBolt11, &t.LnPaymentHashHex, &t.LnPreimageHex, &state,
		&t.CreatedAt, &t.UpdatedAt, &t.LastError,
	)
	if err != nil {
		return nil, err
	}
	t.Role = domain.Role(role)
	t.State = domain.State(state)
	return &t, nil
}

const tradeColumns = `trade_id, role, rfq_channel, swap_channel, maker_pubkey, taker_pubkey,
	btc_sats, usdt_amount, platform_fee_bps, trade_fee_bps, trade_fee_collector,
	sol_refund_window_sec, sol_escrow_pda, sol_vault_ata, sol_refund_after_unix,
	ln_invoice_bolt11, ln_payment_hash_hex, ln_preimage_hex, state,
	created_at, updated_at, last_error`

func (r *tradeRepository) getTrade(ctx context.Context, tradeID string) (*domain.Trade, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", tradeID, err)
	}
	return t, nil
}

func (r *tradeRepository) GetTrade(ctx context.Context, tradeID string) (*domain.Trade, error) {
	return r.getTrade(ctx, tradeID)
}

func (r *tradeRepository) GetTradeByPaymentHash(ctx context.Context, paymentHashHex string) (*domain.Trade, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE ln_payment_hash_hex = ?`, strings.ToLower(paymentHashHex))
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade by payment hash: %w", err)
	}
	return t, nil
}

func pageOrDefault(page domain.PageRequest) (limit, offset int) {
	limit = page.Limit
	if limit <= 0 {
		limit = 50
	}
	return limit, page.Offset
}

func (r *tradeRepository) ListTradesPaged(ctx context.Context, page domain.PageRequest) ([]domain.Trade, error) {
	limit, offset := pageOrDefault(page)
	rows, err := r.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades ORDER BY updated_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return scanTrades(rows)
}

func (r *tradeRepository) ListOpenClaims(ctx context.Context, page domain.PageRequest) ([]domain.Trade, error) {
	limit, offset := pageOrDefault(page)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE state = ? AND ln_preimage_hex != ''
		ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		string(domain.StateLnPaid), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list open claims: %w", err)
	}
	return scanTrades(rows)
}

func (r *tradeRepository) ListOpenRefunds(ctx context.Context, nowUnix int64, page domain.PageRequest) ([]domain.Trade, error) {
	limit, offset := pageOrDefault(page)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE state = ? AND sol_refund_after_unix <= ? AND sol_refund_after_unix != 0
		ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		string(domain.StateEscrow), nowUnix, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list open refunds: %w", err)
	}
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]domain.Trade, error) {
	defer rows.Close()
	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *tradeRepository) AppendEvent(ctx context.Context, tradeID string, kind string, payload string, ts int64) error {
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (trade_id, ts, kind, payload) VALUES (?,?,?,?)`,
		tradeID, ts, kind, payload,
	)
	if err != nil {
		return fmt.Errorf("append event for %s: %w", tradeID, err)
	}
	return nil
}

func (r *tradeRepository) ListEvents(ctx context.Context, tradeID string, page domain.PageRequest) ([]domain.TradeEvent, error) {
	limit, offset := pageOrDefault(page)
	rows, err := r.db.QueryContext(ctx,
		`SELECT trade_id, ts, kind, payload FROM events WHERE trade_id = ? ORDER BY ts ASC LIMIT ? OFFSET ?`,
		tradeID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", tradeID, err)
	}
	defer rows.Close()

	var out []domain.TradeEvent
	for rows.Next() {
		var e domain.TradeEvent
		if err := rows.Scan(&e.TradeID, &e.TS, &e.Kind, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
