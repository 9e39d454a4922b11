package portstest

import (
	"context"
	"sync"

	"github.com/swapbroker/swapd/internal/core/domain"
)

// FakeTradeRepository is an in-memory domain.TradeRepository: a plain
// map keyed by trade_id plus an append-only per-trade events slice, with
// the same undefined-leaves-untouched patch semantics the sqlite store
// implements.
type FakeTradeRepository struct {
	mu     sync.Mutex
	trades map[string]*domain.Trade
	events map[string][]domain.TradeEvent
}

func NewFakeTradeRepository() *FakeTradeRepository {
	return &FakeTradeRepository{
		trades: map[string]*domain.Trade{},
		events: map[string][]domain.TradeEvent{},
	}
}

func (r *FakeTradeRepository) UpsertTrade(ctx context.Context, tradeID string, patch domain.TradePatch) (*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.trades[tradeID]
	if !ok {
		t = &domain.Trade{TradeID: tradeID, State: domain.StateInit}
		r.trades[tradeID] = t
	}
	applyPatch(t, patch)
	copied := *t
	return &copied, nil
}

func applyPatch(t *domain.Trade, p domain.TradePatch) {
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

func (r *FakeTradeRepository) GetTrade(ctx context.Context, tradeID string) (*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trades[tradeID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *FakeTradeRepository) GetTradeByPaymentHash(ctx context.Context, paymentHashHex string) (*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.trades {
		if t.LnPaymentHashHex == paymentHashHex {
			copied := *t
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *FakeTradeRepository) ListTradesPaged(ctx context.Context, page domain.PageRequest) ([]domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Trade
	for _, t := range r.trades {
		out = append(out, *t)
	}
	return paginate(out, page), nil
}

func (r *FakeTradeRepository) ListOpenClaims(ctx context.Context, page domain.PageRequest) ([]domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Trade
	for _, t := range r.trades {
		if t.State == domain.StateLnPaid && t.LnPreimageHex != "" {
			out = append(out, *t)
		}
	}
	return paginate(out, page), nil
}

func (r *FakeTradeRepository) ListOpenRefunds(ctx context.Context, nowUnix int64, page domain.PageRequest) ([]domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Trade
	for _, t := range r.trades {
		if t.State == domain.StateEscrow && t.SolRefundAfterUnix > 0 && t.SolRefundAfterUnix <= nowUnix {
			out = append(out, *t)
		}
	}
	return paginate(out, page), nil
}

func paginate(all []domain.Trade, page domain.PageRequest) []domain.Trade {
	if page.Offset >= len(all) {
		return nil
	}
	end := len(all)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return all[page.Offset:end]
}

func (r *FakeTradeRepository) AppendEvent(ctx context.Context, tradeID string, kind string, payload string, ts int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[tradeID] = append(r.events[tradeID], domain.TradeEvent{TradeID: tradeID, TS: ts, Kind: kind, Payload: payload})
	return nil
}

func (r *FakeTradeRepository) ListEvents(ctx context.Context, tradeID string, page domain.PageRequest) ([]domain.TradeEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := append([]domain.TradeEvent(nil), r.events[tradeID]...)
	if page.Offset >= len(events) {
		return nil, nil
	}
	end := len(events)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return events[page.Offset:end], nil
}

func (r *FakeTradeRepository) Close() {}
