package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/swapbroker/swapd/internal/core/domain"
)

type listingLockRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewListingLockRepository(db *sql.DB) (domain.ListingLockRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("cannot open listing lock repository: db is nil")
	}
	return &listingLockRepository{db: db}, nil
}

func (r *listingLockRepository) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// UpsertListingLock enforces I5 (at most one in_flight trade per
// listing) at the store level: an insert of a fresh key always
// succeeds; an update never changes created_at.
func (r *listingLockRepository) UpsertListingLock(ctx context.Context, listingKey string, patch domain.ListingLockPatch) (*domain.ListingLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UnixMilli()
	existing, err := r.getListingLock(ctx, listingKey)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	l := domain.ListingLock{ListingKey: listingKey, State: domain.ListingLockInFlight, CreatedAt: now}
	if existing != nil {
		l = *existing
		if l.State == domain.ListingLockInFlight && patch.TradeID != nil && *patch.TradeID != l.TradeID && l.TradeID != "" {
			return nil, domain.ErrListingInFlight
		}
	}
	applyListingLockPatch(&l, patch)
	l.UpdatedAt = now
	if existing == nil {
		l.CreatedAt = now
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO listing_locks (listing_key, listing_type, listing_id, trade_id, state, note, meta_json, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(listing_key) DO UPDATE SET
			listing_type=excluded.listing_type, listing_id=excluded.listing_id,
			trade_id=excluded.trade_id, state=excluded.state, note=excluded.note,
			meta_json=excluded.meta_json, updated_at=excluded.updated_at
	`,
		l.ListingKey, l.ListingType, l.ListingID, l.TradeID, string(l.State), l.Note, l.MetaJSON,
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert listing lock %s: %w", listingKey, err)
	}
	return &l, nil
}

func applyListingLockPatch(l *domain.ListingLock, p domain.ListingLockPatch) {
	if p.ListingType != nil {
		l.ListingType = *p.ListingType
	}
	if p.ListingID != nil {
		l.ListingID = *p.ListingID
	}
	if p.TradeID != nil {
		l.TradeID = *p.TradeID
	}
	if p.State != nil {
		l.State = *p.State
	}
	if p.Note != nil {
		l.Note = *p.Note
	}
	if p.MetaJSON != nil {
		l.MetaJSON = *p.MetaJSON
	}
}

func (r *listingLockRepository) getListingLock(ctx context.Context, listingKey string) (*domain.ListingLock, error) {
	var l domain.ListingLock
	var state string
	err := r.db.QueryRowContext(ctx, `
		SELECT listing_key, listing_type, listing_id, trade_id, state, note, meta_json, created_at, updated_at
		FROM listing_locks WHERE listing_key = ?`, listingKey,
	).Scan(&l.ListingKey, &l.ListingType, &l.ListingID, &l.TradeID, &state, &l.Note, &l.MetaJSON, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing lock %s: %w", listingKey, err)
	}
	l.State = domain.ListingLockState(state)
	return &l, nil
}

func (r *listingLockRepository) GetListingLock(ctx context.Context, listingKey string) (*domain.ListingLock, error) {
	return r.getListingLock(ctx, listingKey)
}

func (r *listingLockRepository) ListListingLocksByTrade(ctx context.Context, tradeID string) ([]domain.ListingLock, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT listing_key, listing_type, listing_id, trade_id, state, note, meta_json, created_at, updated_at
		FROM listing_locks WHERE trade_id = ? ORDER BY updated_at DESC`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("list listing locks for trade %s: %w", tradeID, err)
	}
	defer rows.Close()

	var out []domain.ListingLock
	for rows.Next() {
		var l domain.ListingLock
		var state string
		if err := rows.Scan(&l.ListingKey, &l.ListingType, &l.ListingID, &l.TradeID, &state, &l.Note, &l.MetaJSON, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan listing lock: %w", err)
		}
		l.State = domain.ListingLockState(state)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *listingLockRepository) DeleteListingLock(ctx context.Context, listingKey string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM listing_locks WHERE listing_key = ?`, listingKey)
	if err != nil {
		return fmt.Errorf("delete listing lock %s: %w", listingKey, err)
	}
	return nil
}
