package portstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/swapbroker/swapd/internal/core/ports"
)

// FakeChain is an in-memory ChainClient. Build* calls just serialize
// their params; SendAndConfirm interprets that serialized form to
// mutate an in-memory escrow-state table, which is enough to drive the
// settlement state machine's escrow/claim/refund stages end to end in
// tests without a real chain.
type FakeChain struct {
	mu     sync.Mutex
	signer string

	escrows map[string]*ports.EscrowState
	sigN    int
}

func NewFakeChain(signerBase58 string) *FakeChain {
	return &FakeChain{signer: signerBase58, escrows: map[string]*ports.EscrowState{}}
}

func (c *FakeChain) SignerPubkey(ctx context.Context) (string, error) {
	return c.signer, nil
}

func (c *FakeChain) BuildEscrowInitTx(ctx context.Context, p ports.EscrowInitParams) (ports.Tx, error) {
	return ports.Tx{Opaque: []byte("escrow_init:" + p.PaymentHashHex)}, nil
}

func (c *FakeChain) BuildClaimTx(ctx context.Context, p ports.ClaimParams) (ports.Tx, error) {
	return ports.Tx{Opaque: []byte("claim:" + p.PaymentHashHex)}, nil
}

func (c *FakeChain) BuildRefundTx(ctx context.Context, p ports.RefundParams) (ports.Tx, error) {
	return ports.Tx{Opaque: []byte("refund:" + p.PaymentHashHex)}, nil
}

func (c *FakeChain) SendAndConfirm(ctx context.Context, tx ports.Tx) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	op := string(tx.Opaque)
	switch {
	case hasPrefix(op, "escrow_init:"):
		hash := op[len("escrow_init:"):]
		c.escrows[hash] = &ports.EscrowState{PaymentHashHex: hash}
	case hasPrefix(op, "claim:"):
		hash := op[len("claim:"):]
		state, ok := c.escrows[hash]
		if !ok {
			return "", fmt.Errorf("fake chain: no escrow for %s", hash)
		}
		state.Claimed = true
	case hasPrefix(op, "refund:"):
		hash := op[len("refund:"):]
		state, ok := c.escrows[hash]
		if !ok {
			return "", fmt.Errorf("fake chain: no escrow for %s", hash)
		}
		state.Refunded = true
	default:
		return "", fmt.Errorf("fake chain: unrecognized tx %q", op)
	}

	c.sigN++
	return fmt.Sprintf("fakesig-%d", c.sigN), nil
}

func (c *FakeChain) Simulate(ctx context.Context, tx ports.Tx) (string, error) {
	return "ok", nil
}

// SetRefundAfter lets tests position an escrow's refund window without
// going through a full init/confirm round trip.
func (c *FakeChain) SetRefundAfter(paymentHashHex string, refundAfterUnix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.escrows[paymentHashHex]
	if !ok {
		state = &ports.EscrowState{PaymentHashHex: paymentHashHex}
		c.escrows[paymentHashHex] = state
	}
	state.RefundAfterUnix = refundAfterUnix
}

func (c *FakeChain) ReadEscrowState(ctx context.Context, paymentHashHex string) (*ports.EscrowState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.escrows[paymentHashHex]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
