package domain

import "context"

// ListingLockState is whether a listing is currently backing a live
// trade.
type ListingLockState string

const (
	ListingLockInFlight ListingLockState = "in_flight"
	ListingLockFilled   ListingLockState = "filled"
)

// ListingLock enforces the at-most-one-active-trade-per-listing
// invariant (I5): a listing_key in state in_flight must not be reused
// to start a second trade.
type ListingLock struct {
	ListingKey  string
	ListingType string
	ListingID   string
	TradeID     string
	State       ListingLockState
	Note        string
	MetaJSON    string

	CreatedAt int64
	UpdatedAt int64
}

// ListingLockPatch carries upsertListingLock's merge semantics: nil
// means "leave as is". CreatedAt is never part of the patch — the store
// sets it once on first insert and never touches it again.
type ListingLockPatch struct {
	ListingType *string
	ListingID   *string
	TradeID     *string
	State       *ListingLockState
	Note        *string
	MetaJSON    *string
}

// ListingLockRepository is the durable store's listing-lock surface
// (part of component C4).
type ListingLockRepository interface {
	UpsertListingLock(ctx context.Context, listingKey string, patch ListingLockPatch) (*ListingLock, error)
	GetListingLock(ctx context.Context, listingKey string) (*ListingLock, error)
	ListListingLocksByTrade(ctx context.Context, tradeID string) ([]ListingLock, error)
	DeleteListingLock(ctx context.Context, listingKey string) error

	Close()
}
