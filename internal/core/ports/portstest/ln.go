package portstest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	decodepay "github.com/nbd-wtf/ln-decodepay"
	"github.com/swapbroker/swapd/internal/core/ports"
)

// FakeLn is an in-memory LnClient. CreateInvoice mints a deterministic
// fake bolt11 string ("fakebolt11:<hash>:<sats>") rather than a real
// invoice, but Decode uses the real nbd-wtf/ln-decodepay parser, so
// tests exercising Decode against real-looking invoices still take the
// genuine parsing path.
type FakeLn struct {
	mu sync.Mutex

	preimages  map[string][]byte // payment_hash_hex -> preimage
	payResults map[string]error  // bolt11 -> forced Pay error
	invoices   int
}

func NewFakeLn() *FakeLn {
	return &FakeLn{
		preimages:  map[string][]byte{},
		payResults: map[string]error{},
	}
}

func (l *FakeLn) CreateInvoice(ctx context.Context, sats int64, label, description string) (string, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.invoices++
	preimage := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", label, sats, l.invoices)))
	hash := sha256.Sum256(preimage[:])
	hashHex := hex.EncodeToString(hash[:])
	l.preimages[hashHex] = preimage[:]

	bolt11 := fmt.Sprintf("fakebolt11:%s:%d", hashHex, sats)
	return bolt11, hashHex, nil
}

// FailPay forces the next Pay call against bolt11 to return err.
func (l *FakeLn) FailPay(bolt11 string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payResults[bolt11] = err
}

func (l *FakeLn) Pay(ctx context.Context, bolt11 string, feeLimitSat int64, timeout time.Duration) (string, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err, forced := l.payResults[bolt11]; forced {
		delete(l.payResults, bolt11)
		return "", 0, err
	}

	const prefix = "fakebolt11:"
	if !strings.HasPrefix(bolt11, prefix) {
		return "", 0, fmt.Errorf("fake ln: not a fake bolt11: %s", bolt11)
	}
	rest := bolt11[len(prefix):]
	sep := strings.IndexByte(rest, ':')
	if sep < 0 {
		return "", 0, fmt.Errorf("fake ln: malformed fake bolt11: %s", bolt11)
	}
	hashHex := rest[:sep]
	preimage, ok := l.preimages[hashHex]
	if !ok {
		return "", 0, ports.ErrNoRoute
	}
	return hex.EncodeToString(preimage), 1, nil
}

// Decode parses bolt11 with the real decoder. It is only usable against
// real bolt11 strings, not this fake's own synthetic ones — tests that
// exercise Decode build a real (possibly unpayable) invoice string for
// that purpose.
func (l *FakeLn) Decode(ctx context.Context, bolt11 string) (ports.LnDecoded, error) {
	dec, err := decodepay.Decodepay(bolt11)
	if err != nil {
		return ports.LnDecoded{}, fmt.Errorf("fake ln decode: %w", err)
	}
	return ports.LnDecoded{
		Destination:    dec.Payee,
		AmountSat:      dec.MSatoshi / 1000,
		PaymentHashHex: dec.PaymentHash,
	}, nil
}
