// Package envelope implements the signed-envelope negotiation protocol:
// canonical serialization, content-addressed IDs, Ed25519 signing, and
// per-kind schema validation.
package envelope

import "fmt"

// Kind identifies the protocol message taxonomy.
type Kind string

const (
	KindRFQ              Kind = "rfq"
	KindQuote            Kind = "quote"
	KindQuoteAccept      Kind = "quote_accept"
	KindSvcAnnounce      Kind = "svc_announce"
	KindSwapInvite       Kind = "swap_invite"
	KindTerms            Kind = "terms"
	KindAccept           Kind = "accept"
	KindLnInvoice        Kind = "ln_invoice"
	KindSolEscrowCreated Kind = "sol_escrow_created"
	KindLnPaid           Kind = "ln_paid"
	KindSolClaimed       Kind = "sol_claimed"
	KindSolRefunded      Kind = "sol_refunded"
	KindCancel           Kind = "cancel"
)

// ProtocolVersion is the only envelope wire version this core speaks.
const ProtocolVersion = 1

// Envelope is every protocol message: a kind-tagged body plus the
// addressing and signing fields shared by all of them.
type Envelope struct {
	V       int            `json:"v"`
	Kind    Kind           `json:"kind"`
	TradeID string         `json:"trade_id"`
	Body    map[string]any `json:"body"`
	TS      int64          `json:"ts"`
	Nonce   string         `json:"nonce"`
	Signer  string         `json:"signer,omitempty"`
	Sig     string         `json:"sig,omitempty"`
}

// ID is the envelope's content address: the canonical hash of its
// unsigned projection. It is what rfq_id, quote_id and terms_hash
// reference.
func (e Envelope) ID() (string, error) {
	unsigned := e.stripSig()
	h, err := Hash(unsigned)
	if err != nil {
		return "", fmt.Errorf("envelope id: %w", err)
	}
	return h, nil
}

// IsSigned reports whether both signer and sig are populated.
func (e Envelope) IsSigned() bool {
	return e.Signer != "" && e.Sig != ""
}

func (e Envelope) stripSig() Envelope {
	e.Signer = ""
	e.Sig = ""
	return e
}

// WithoutSig returns e with signer/sig cleared, i.e. its unsigned
// projection.
func (e Envelope) WithoutSig() Envelope {
	return e.stripSig()
}

// bodyString returns a string field from Body, or "" if absent/wrong-typed.
func (e Envelope) bodyString(key string) string {
	v, ok := e.Body[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
