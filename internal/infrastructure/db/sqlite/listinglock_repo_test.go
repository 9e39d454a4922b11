package sqlitedb_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swapbroker/swapd/internal/core/domain"
	sqlitedb "github.com/swapbroker/swapd/internal/infrastructure/db/sqlite"
)

func openLockTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbh, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })
	_, err = dbh.Exec(`
		CREATE TABLE listing_locks (
			listing_key TEXT PRIMARY KEY, listing_type TEXT NOT NULL DEFAULT '',
			listing_id TEXT NOT NULL DEFAULT '', trade_id TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '', note TEXT NOT NULL DEFAULT '',
			meta_json TEXT NOT NULL DEFAULT '', created_at INTEGER NOT NULL, updated_at INTEGER NOT NULL
		);
	`)
	require.NoError(t, err)
	return dbh
}

func tidp(s string) *string { return &s }

// I5. A second trade cannot attach to a listing already carrying an
// in_flight lock for a different trade.
func TestUpsertListingLock_RejectsSecondInFlightTrade(t *testing.T) {
	repo, err := sqlitedb.NewListingLockRepository(openLockTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.UpsertListingLock(ctx, "listing-1", domain.ListingLockPatch{TradeID: tidp("trade-a")})
	require.NoError(t, err)

	_, err = repo.UpsertListingLock(ctx, "listing-1", domain.ListingLockPatch{TradeID: tidp("trade-b")})
	require.ErrorIs(t, err, domain.ErrListingInFlight)
}

func TestUpsertListingLock_SameTradeIDIsIdempotent(t *testing.T) {
	repo, err := sqlitedb.NewListingLockRepository(openLockTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.UpsertListingLock(ctx, "listing-1", domain.ListingLockPatch{TradeID: tidp("trade-a")})
	require.NoError(t, err)

	lock, err := repo.UpsertListingLock(ctx, "listing-1", domain.ListingLockPatch{TradeID: tidp("trade-a")})
	require.NoError(t, err)
	require.Equal(t, "trade-a", lock.TradeID)
}

func TestUpsertListingLock_ReleaseThenReacquireByDifferentTrade(t *testing.T) {
	repo, err := sqlitedb.NewListingLockRepository(openLockTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	filled := domain.ListingLockFilled
	_, err = repo.UpsertListingLock(ctx, "listing-1", domain.ListingLockPatch{TradeID: tidp("trade-a")})
	require.NoError(t, err)
	_, err = repo.UpsertListingLock(ctx, "listing-1", domain.ListingLockPatch{State: &filled})
	require.NoError(t, err)

	lock, err := repo.UpsertListingLock(ctx, "listing-1", domain.ListingLockPatch{TradeID: tidp("trade-b")})
	require.NoError(t, err)
	require.Equal(t, "trade-b", lock.TradeID)
}

func TestGetListingLock_NotFound(t *testing.T) {
	repo, err := sqlitedb.NewListingLockRepository(openLockTestDB(t))
	require.NoError(t, err)
	_, err = repo.GetListingLock(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
