package domain

import "context"

// State is the lifecycle position of a Trade receipt.
type State string

const (
	StateInit        State = "init"
	StateNegotiating State = "negotiating"
	StateTerms       State = "terms"
	StateAccepted    State = "accepted"
	StateInvoice     State = "invoice"
	StateEscrow      State = "escrow"
	StateLnPaid      State = "ln_paid"
	StateClaimed     State = "claimed"
	StateRefunded    State = "refunded"
	StateCanceled    State = "canceled"
	StateError       State = "error"
)

// IsTerminal reports whether no further driver action should ever be
// taken on a trade in this state.
func (s State) IsTerminal() bool {
	switch s {
	case StateClaimed, StateRefunded, StateCanceled:
		return true
	default:
		return false
	}
}

// Role is which side of the swap the local peer occupies in a trade.
type Role string

const (
	RoleMaker Role = "maker"
	RoleTaker Role = "taker"
)

// Trade is the durable per-trade receipt persisted by the receipts
// store (component C4). Zero-valued string/int64 fields mean "not yet
// known"; UpsertTrade patch semantics (undefined clears nothing,
// explicit null clears) live in the store, not here.
type Trade struct {
	TradeID     string
	Role        Role
	RFQChannel  string
	SwapChannel string

	MakerPubkey string
	TakerPubkey string

	BtcSats            int64
	UsdtAmount         string
	PlatformFeeBps     int64
	TradeFeeBps        int64
	TradeFeeCollector  string
	SolRefundWindowSec int64

	SolEscrowPDA      string
	SolVaultATA       string
	SolRefundAfterUnix int64

	LnInvoiceBolt11  string
	LnPaymentHashHex string
	LnPreimageHex    string

	State State

	CreatedAt int64
	UpdatedAt int64
	LastError string
}

// TradeEvent is one row of the append-only per-trade events log.
type TradeEvent struct {
	TradeID string
	TS      int64
	Kind    string
	Payload string
}

// TradePatch carries upsertTrade's merge semantics explicitly: a field
// left as a nil pointer is left untouched; a non-nil pointer (including
// one pointing at a zero value) overwrites.
type TradePatch struct {
	Role        *Role
	RFQChannel  *string
	SwapChannel *string

	MakerPubkey *string
	TakerPubkey *string

	BtcSats            *int64
	UsdtAmount         *string
	PlatformFeeBps     *int64
	TradeFeeBps        *int64
	TradeFeeCollector  *string
	SolRefundWindowSec *int64

	SolEscrowPDA       *string
	SolVaultATA        *string
	SolRefundAfterUnix *int64

	LnInvoiceBolt11  *string
	LnPaymentHashHex *string
	LnPreimageHex    *string

	State     *State
	LastError *string
}

// PageRequest bounds a paged listing query.
type PageRequest struct {
	Limit  int
	Offset int
}

// TradeRepository is the durable store's trade-facing surface (part of
// component C4).
type TradeRepository interface {
	// UpsertTrade merges patch into the row for tradeID, creating it if
	// absent, and returns the resulting row.
	UpsertTrade(ctx context.Context, tradeID string, patch TradePatch) (*Trade, error)

	GetTrade(ctx context.Context, tradeID string) (*Trade, error)
	GetTradeByPaymentHash(ctx context.Context, paymentHashHex string) (*Trade, error)
	ListTradesPaged(ctx context.Context, page PageRequest) ([]Trade, error)

	// ListOpenClaims returns trades in ln_paid with a non-null preimage.
	ListOpenClaims(ctx context.Context, page PageRequest) ([]Trade, error)
	// ListOpenRefunds returns trades in escrow whose refund window has
	// elapsed as of nowUnix.
	ListOpenRefunds(ctx context.Context, nowUnix int64, page PageRequest) ([]Trade, error)

	AppendEvent(ctx context.Context, tradeID string, kind string, payload string, ts int64) error
	ListEvents(ctx context.Context, tradeID string, page PageRequest) ([]TradeEvent, error)

	Close()
}
