package ports

import "context"

// EscrowInitParams are the fields needed to build the hashlocked escrow
// init transaction.
type EscrowInitParams struct {
	PaymentHashHex     string
	Mint               string
	Amount             string
	Recipient          string
	Refund             string
	RefundAfterUnix    int64
	TradeFeeCollector  string
	CULimit            uint32
	CUPriceMicroUnits  uint64
}

// ClaimParams are the fields needed to build the claim transaction.
type ClaimParams struct {
	PaymentHashHex      string
	RecipientTokenAccount string
	PreimageHex         string
	TradeFeeCollector   string
}

// RefundParams are the fields needed to build the refund transaction.
type RefundParams struct {
	PaymentHashHex    string
	RefundTokenAccount string
}

// EscrowState is the on-chain escrow account's current state, or nil
// when none exists for the given payment hash.
type EscrowState struct {
	PaymentHashHex  string
	Claimed         bool
	Refunded        bool
	RefundAfterUnix int64
}

// Tx is an opaque chain transaction handle: constructed by a Build*
// call, consumed by SendAndConfirm or Simulate.
type Tx struct {
	Opaque []byte
}

// ChainClient is the Solana-like programmable chain as an external,
// consumed-only collaborator. Building, signing, and broadcasting
// transactions is entirely behind this interface — the settlement
// driver only ever calls it, never constructs scripts or transactions
// itself.
type ChainClient interface {
	SignerPubkey(ctx context.Context) (base58Pubkey string, err error)

	BuildEscrowInitTx(ctx context.Context, p EscrowInitParams) (Tx, error)
	BuildClaimTx(ctx context.Context, p ClaimParams) (Tx, error)
	BuildRefundTx(ctx context.Context, p RefundParams) (Tx, error)

	SendAndConfirm(ctx context.Context, tx Tx) (signature string, err error)
	Simulate(ctx context.Context, tx Tx) (result string, err error)

	ReadEscrowState(ctx context.Context, paymentHashHex string) (*EscrowState, error)
}
