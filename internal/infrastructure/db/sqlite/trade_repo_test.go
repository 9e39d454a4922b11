package sqlitedb_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swapbroker/swapd/internal/core/domain"
	sqlitedb "github.com/swapbroker/swapd/internal/infrastructure/db/sqlite"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbh, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })

	_, err = dbh.Exec(`
		CREATE TABLE trades (
			trade_id TEXT PRIMARY KEY, role TEXT NOT NULL DEFAULT '',
			rfq_channel TEXT NOT NULL DEFAULT '', swap_channel TEXT NOT NULL DEFAULT '',
			maker_pubkey TEXT NOT NULL DEFAULT '', taker_pubkey TEXT NOT NULL DEFAULT '',
			btc_sats INTEGER NOT NULL DEFAULT 0, usdt_amount TEXT NOT NULL DEFAULT '',
			platform_fee_bps INTEGER NOT NULL DEFAULT 0, trade_fee_bps INTEGER NOT NULL DEFAULT 0,
			trade_fee_collector TEXT NOT NULL DEFAULT '', sol_refund_window_sec INTEGER NOT NULL DEFAULT 0,
			sol_escrow_pda TEXT NOT NULL DEFAULT '', sol_vault_ata TEXT NOT NULL DEFAULT '',
			sol_refund_after_unix INTEGER NOT NULL DEFAULT 0,
			ln_invoice_bolt11 TEXT NOT NULL DEFAULT '', ln_payment_hash_hex TEXT NOT NULL DEFAULT '',
			ln_preimage_hex TEXT NOT NULL DEFAULT '', state TEXT NOT NULL DEFAULT 'init',
			created_at INTEGER NOT NULL, updated_at INTEGER NOT NULL, last_error TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE events (trade_id TEXT NOT NULL, ts INTEGER NOT NULL, kind TEXT NOT NULL, payload TEXT NOT NULL);
	`)
	require.NoError(t, err)
	return dbh
}

func strp(s string) *string { return &s }
func i64p(i int64) *int64   { return &i }
func statep(s domain.State) *domain.State { return &s }

// R1. upsertTrade(id, {state, preimage}); upsertTrade(id, {}) leaves
// state and preimage unchanged; created_at is preserved.
func TestUpsertTrade_EmptyPatchLeavesFieldsUnchanged(t *testing.T) {
	repo, err := sqlitedb.NewTradeRepository(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	first, err := repo.UpsertTrade(ctx, "trade-1", domain.TradePatch{
		State:         statep(domain.StateLnPaid),
		LnPreimageHex: strp("aa"),
	})
	require.NoError(t, err)

	second, err := repo.UpsertTrade(ctx, "trade-1", domain.TradePatch{})
	require.NoError(t, err)

	require.Equal(t, domain.StateLnPaid, second.State)
	require.Equal(t, "aa", second.LnPreimageHex)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestUpsertTrade_NormalizesHexToLowercase(t *testing.T) {
	repo, err := sqlitedb.NewTradeRepository(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	trade, err := repo.UpsertTrade(ctx, "trade-1", domain.TradePatch{
		LnPaymentHashHex: strp("ABCDEF"),
	})
	require.NoError(t, err)
	require.Equal(t, "abcdef", trade.LnPaymentHashHex)
}

func TestGetTradeByPaymentHash(t *testing.T) {
	repo, err := sqlitedb.NewTradeRepository(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.UpsertTrade(ctx, "trade-1", domain.TradePatch{
		LnPaymentHashHex: strp("ABCDEF"),
	})
	require.NoError(t, err)

	got, err := repo.GetTradeByPaymentHash(ctx, "abcdef")
	require.NoError(t, err)
	require.Equal(t, "trade-1", got.TradeID)
}

func TestGetTrade_NotFound(t *testing.T) {
	repo, err := sqlitedb.NewTradeRepository(openTestDB(t))
	require.NoError(t, err)
	_, err = repo.GetTrade(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListOpenClaims_FiltersByStateAndPreimage(t *testing.T) {
	repo, err := sqlitedb.NewTradeRepository(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.UpsertTrade(ctx, "t-claimable", domain.TradePatch{
		State: statep(domain.StateLnPaid), LnPreimageHex: strp("aa"),
	})
	require.NoError(t, err)
	_, err = repo.UpsertTrade(ctx, "t-no-preimage", domain.TradePatch{
		State: statep(domain.StateLnPaid),
	})
	require.NoError(t, err)
	_, err = repo.UpsertTrade(ctx, "t-other-state", domain.TradePatch{
		State: statep(domain.StateEscrow), LnPreimageHex: strp("bb"),
	})
	require.NoError(t, err)

	claims, err := repo.ListOpenClaims(ctx, domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	require.Equal(t, "t-claimable", claims[0].TradeID)
}

func TestListOpenRefunds_FiltersByWindowElapsed(t *testing.T) {
	repo, err := sqlitedb.NewTradeRepository(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.UpsertTrade(ctx, "t-refundable", domain.TradePatch{
		State: statep(domain.StateEscrow), SolRefundAfterUnix: i64p(100),
	})
	require.NoError(t, err)
	_, err = repo.UpsertTrade(ctx, "t-not-yet", domain.TradePatch{
		State: statep(domain.StateEscrow), SolRefundAfterUnix: i64p(1000),
	})
	require.NoError(t, err)

	refunds, err := repo.ListOpenRefunds(ctx, 500, domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	require.Equal(t, "t-refundable", refunds[0].TradeID)
}

func TestAppendEventAndListEvents_OrderedByTS(t *testing.T) {
	repo, err := sqlitedb.NewTradeRepository(openTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, repo.AppendEvent(ctx, "trade-1", "terms", "{}", 200))
	require.NoError(t, repo.AppendEvent(ctx, "trade-1", "accept", "{}", 100))

	events, err := repo.ListEvents(ctx, "trade-1", domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "accept", events[0].Kind)
	require.Equal(t, "terms", events[1].Kind)
}
