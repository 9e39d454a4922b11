package ports

import (
	"context"
	"time"
)

// LnDecoded is the result of decoding a bolt11 invoice.
type LnDecoded struct {
	Destination    string
	AmountSat      int64
	PaymentHashHex string
	RouteHints     []string
}

// LnClient is the Lightning node as an external, consumed-only
// collaborator: invoice creation, payment, and decoding only. Wallet
// connection lifecycle is the operator surface's concern, not the
// settlement driver's.
type LnClient interface {
	CreateInvoice(ctx context.Context, sats int64, label, description string) (bolt11 string, paymentHashHex string, err error)
	Pay(ctx context.Context, bolt11 string, feeLimitSat int64, timeout time.Duration) (preimageHex string, feeSat int64, err error)
	Decode(ctx context.Context, bolt11 string) (LnDecoded, error)
}

// Transient pay() failure categories named by the spec's interface.
var (
	ErrNoRoute             = lnErr("no_route")
	ErrPayTimeout          = lnErr("timeout")
	ErrInsufficientBalance = lnErr("insufficient_balance")
)

type lnErr string

func (e lnErr) Error() string { return string(e) }
