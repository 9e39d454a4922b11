package sweeper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swapbroker/swapd/internal/core/application/sweeper"
	"github.com/swapbroker/swapd/internal/core/application/trace"
	"github.com/swapbroker/swapd/internal/core/domain"
	"github.com/swapbroker/swapd/internal/core/ports"
	"github.com/swapbroker/swapd/internal/core/ports/portstest"
)

func stateP(s domain.State) *domain.State { return &s }
func strP(s string) *string               { return &s }
func i64P(v int64) *int64                 { return &v }

func TestSweeper_RetriesOpenClaimWhenEscrowStillUnclaimed(t *testing.T) {
	trades := portstest.NewFakeTradeRepository()
	chain := portstest.NewFakeChain("recipient-1")
	ctx := context.Background()

	_, err := trades.UpsertTrade(ctx, "trade-1", domain.TradePatch{
		State:            stateP(domain.StateLnPaid),
		LnPaymentHashHex: strP("hash-1"),
		LnPreimageHex:    strP("preimage-1"),
	})
	require.NoError(t, err)

	// escrow exists and is unclaimed
	tx, err := chain.BuildEscrowInitTx(ctx, ports.EscrowInitParams{PaymentHashHex: "hash-1"})
	require.NoError(t, err)
	_, err = chain.SendAndConfirm(ctx, tx)
	require.NoError(t, err)

	sw := sweeper.NewSweeper(sweeper.Config{}, trades, chain)
	sw.Pass(ctx)

	trade, err := trades.GetTrade(ctx, "trade-1")
	require.NoError(t, err)
	require.Equal(t, domain.StateClaimed, trade.State)
	require.Equal(t, int64(1), sw.Stats().ClaimsRetried)

	state, err := chain.ReadEscrowState(ctx, "hash-1")
	require.NoError(t, err)
	require.True(t, state.Claimed)
}

func TestSweeper_ClosesClaimWhenEscrowAlreadyGone(t *testing.T) {
	trades := portstest.NewFakeTradeRepository()
	chain := portstest.NewFakeChain("recipient-1")
	ctx := context.Background()

	_, err := trades.UpsertTrade(ctx, "trade-1", domain.TradePatch{
		State:            stateP(domain.StateLnPaid),
		LnPaymentHashHex: strP("hash-missing"),
		LnPreimageHex:    strP("preimage-1"),
	})
	require.NoError(t, err)

	sw := sweeper.NewSweeper(sweeper.Config{}, trades, chain)
	sw.Pass(ctx)

	trade, err := trades.GetTrade(ctx, "trade-1")
	require.NoError(t, err)
	require.Equal(t, domain.StateClaimed, trade.State)
	require.Equal(t, int64(1), sw.Stats().ClaimsClosed)
	require.Equal(t, int64(0), sw.Stats().ClaimsRetried)
}

func TestSweeper_ReissuesExpiredRefund(t *testing.T) {
	trades := portstest.NewFakeTradeRepository()
	chain := portstest.NewFakeChain("refund-recipient")
	ctx := context.Background()

	past := time.Now().Add(-time.Hour).Unix()
	_, err := trades.UpsertTrade(ctx, "trade-2", domain.TradePatch{
		State:              stateP(domain.StateEscrow),
		LnPaymentHashHex:   strP("hash-2"),
		SolRefundAfterUnix: i64P(past),
	})
	require.NoError(t, err)

	tx, err := chain.BuildEscrowInitTx(ctx, ports.EscrowInitParams{PaymentHashHex: "hash-2"})
	require.NoError(t, err)
	_, err = chain.SendAndConfirm(ctx, tx)
	require.NoError(t, err)

	sw := sweeper.NewSweeper(sweeper.Config{}, trades, chain)
	sw.Pass(ctx)

	trade, err := trades.GetTrade(ctx, "trade-2")
	require.NoError(t, err)
	require.Equal(t, domain.StateRefunded, trade.State)
	require.Equal(t, int64(1), sw.Stats().RefundsSent)

	state, err := chain.ReadEscrowState(ctx, "hash-2")
	require.NoError(t, err)
	require.True(t, state.Refunded)
}

func TestSweeper_SkipsRefundNotYetExpired(t *testing.T) {
	trades := portstest.NewFakeTradeRepository()
	chain := portstest.NewFakeChain("refund-recipient")
	ctx := context.Background()

	future := time.Now().Add(time.Hour).Unix()
	_, err := trades.UpsertTrade(ctx, "trade-3", domain.TradePatch{
		State:              stateP(domain.StateEscrow),
		LnPaymentHashHex:   strP("hash-3"),
		SolRefundAfterUnix: i64P(future),
	})
	require.NoError(t, err)

	sw := sweeper.NewSweeper(sweeper.Config{}, trades, chain)
	sw.Pass(ctx)

	trade, err := trades.GetTrade(ctx, "trade-3")
	require.NoError(t, err)
	require.Equal(t, domain.StateEscrow, trade.State, "refund window has not elapsed yet")
	require.Equal(t, int64(0), sw.Stats().RefundsSent)
}

func TestSweeper_PushesTraceEventOnRetriedClaim(t *testing.T) {
	trades := portstest.NewFakeTradeRepository()
	chain := portstest.NewFakeChain("recipient-1")
	ctx := context.Background()

	_, err := trades.UpsertTrade(ctx, "trade-1", domain.TradePatch{
		State:            stateP(domain.StateLnPaid),
		LnPaymentHashHex: strP("hash-1"),
		LnPreimageHex:    strP("preimage-1"),
	})
	require.NoError(t, err)

	tx, err := chain.BuildEscrowInitTx(ctx, ports.EscrowInitParams{PaymentHashHex: "hash-1"})
	require.NoError(t, err)
	_, err = chain.SendAndConfirm(ctx, tx)
	require.NoError(t, err)

	sw := sweeper.NewSweeper(sweeper.Config{}, trades, chain)
	buf := trace.NewBuffer()
	sw.SetTrace(buf)
	sw.Pass(ctx)

	events := buf.Recent()
	require.Len(t, events, 1)
	require.Equal(t, "trade-1", events[0].TradeID)
	require.Equal(t, "sol_claim", events[0].Stage)
	require.Equal(t, "retried", events[0].Kind)
}

func TestSweeper_PassIsReentrancyFenced(t *testing.T) {
	trades := portstest.NewFakeTradeRepository()
	chain := portstest.NewFakeChain("recipient-1")
	sw := sweeper.NewSweeper(sweeper.Config{}, trades, chain)

	done := make(chan struct{})
	go func() {
		sw.Pass(context.Background())
		close(done)
	}()
	sw.Pass(context.Background())
	<-done

	require.LessOrEqual(t, sw.Stats().Passes, int64(2))
}
