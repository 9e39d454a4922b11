package ports

import "github.com/swapbroker/swapd/internal/core/domain"

// RepoManager aggregates the receipts store's per-domain repositories
// behind one handle (component C4).
type RepoManager interface {
	Trades() domain.TradeRepository
	ListingLocks() domain.ListingLockRepository
	Close()
}
