// Package context implements the event context builder (component C6):
// a pure fold of a bounded sidechannel event window into the
// negotiation and trade contexts the settlement driver (C7) reads from.
package context

import (
	"strings"

	"github.com/swapbroker/swapd/internal/core/ports"
	"github.com/swapbroker/swapd/pkg/envelope"
)

// QuoteRecord pairs an observed quote envelope with the bus event and
// channel it arrived on.
type QuoteRecord struct {
	Event   ports.BusEvent
	Message envelope.Envelope
	Channel string
}

// Negotiation is the first-seen set of pre-settlement envelopes for one
// trade_id, keyed by kind. Later duplicates of an already-seen kind are
// ignored — only the first observation counts.
type Negotiation struct {
	TradeID     string
	RFQ         *envelope.Envelope
	Quote       *envelope.Envelope
	QuoteAccept *envelope.Envelope
	SwapInvite  *envelope.Envelope
	SwapChannel string
}

// TradeContext is the first-seen set of settlement-stage envelopes for
// one swap:<id> channel, plus the most recent event timestamp observed
// on it.
type TradeContext struct {
	TradeID  string
	Channel  string
	Terms    *envelope.Envelope
	Accept   *envelope.Envelope
	Invoice  *envelope.Envelope
	Escrow   *envelope.Envelope
	LnPaid   *envelope.Envelope
	Claimed  *envelope.Envelope
	Refunded *envelope.Envelope
	Canceled *envelope.Envelope
	LastTS   int64
}

// IsTerminal reports whether this trade has reached a settle-or-abort
// outcome; terminal trades are excluded from further driver work.
func (t *TradeContext) IsTerminal() bool {
	return t.Claimed != nil || t.Refunded != nil || t.Canceled != nil
}

// Contexts is the fold's output.
type Contexts struct {
	MyRFQTradeIDs map[string]bool
	MyQuoteByID   map[string]QuoteRecord
	QuoteEvents   []ports.BusEvent

	Offers          []envelope.Envelope
	NonLocalAccepts []ports.BusEvent
	NonLocalInvites []ports.BusEvent
	NonLocalRFQs    []ports.BusEvent

	Negotiations map[string]*Negotiation
	Trades       map[string]*TradeContext
}

func empty() Contexts {
	return Contexts{
		MyRFQTradeIDs: make(map[string]bool),
		MyQuoteByID:   make(map[string]QuoteRecord),
		Negotiations:  make(map[string]*Negotiation),
		Trades:        make(map[string]*TradeContext),
	}
}

// Build folds a window of sidechannel events into Contexts. localPeer is
// this process's bus public key, used to classify an event's
// provenance; the fold never mutates events and is safe to call
// repeatedly with a growing window (idempotent per event: the first
// occurrence of every field wins).
func Build(events []ports.BusEvent, localPeer string) Contexts {
	c := empty()

	for _, ev := range events {
		local := ev.Message.Signer == localPeer

		switch ev.Kind {
		case envelope.KindRFQ:
			if local {
				c.MyRFQTradeIDs[ev.TradeID] = true
			} else {
				c.NonLocalRFQs = append(c.NonLocalRFQs, ev)
			}
		case envelope.KindQuote:
			if local {
				id, err := ev.Message.ID()
				if err == nil {
					if _, seen := c.MyQuoteByID[id]; !seen {
						c.MyQuoteByID[id] = QuoteRecord{Event: ev, Message: ev.Message, Channel: ev.Channel}
					}
				}
			} else {
				c.QuoteEvents = append(c.QuoteEvents, ev)
			}
		case envelope.KindSvcAnnounce:
			c.Offers = append(c.Offers, ev.Message)
		case envelope.KindQuoteAccept:
			if !local {
				c.NonLocalAccepts = append(c.NonLocalAccepts, ev)
			}
		case envelope.KindSwapInvite:
			if !local {
				c.NonLocalInvites = append(c.NonLocalInvites, ev)
			}
		}

		if ev.TradeID != "" {
			applyNegotiation(c.Negotiations, ev)
		}
		if strings.HasPrefix(ev.Channel, "swap:") {
			applyTradeContext(c.Trades, ev)
		}
	}

	return c
}

func applyNegotiation(negotiations map[string]*Negotiation, ev ports.BusEvent) {
	n, ok := negotiations[ev.TradeID]
	if !ok {
		n = &Negotiation{TradeID: ev.TradeID}
		negotiations[ev.TradeID] = n
	}
	msg := ev.Message
	switch ev.Kind {
	case envelope.KindRFQ:
		if n.RFQ == nil {
			n.RFQ = &msg
		}
	case envelope.KindQuote:
		if n.Quote == nil {
			n.Quote = &msg
		}
	case envelope.KindQuoteAccept:
		if n.QuoteAccept == nil {
			n.QuoteAccept = &msg
		}
	case envelope.KindSwapInvite:
		if n.SwapInvite == nil {
			n.SwapInvite = &msg
			n.SwapChannel = ev.Channel
		}
	}
}

func applyTradeContext(trades map[string]*TradeContext, ev ports.BusEvent) {
	t, ok := trades[ev.Channel]
	if !ok {
		t = &TradeContext{TradeID: ev.TradeID, Channel: ev.Channel}
		trades[ev.Channel] = t
	}
	if ev.TS > t.LastTS {
		t.LastTS = ev.TS
	}
	msg := ev.Message
	switch ev.Kind {
	case envelope.KindTerms:
		if t.Terms == nil {
			t.Terms = &msg
		}
	case envelope.KindAccept:
		if t.Accept == nil {
			t.Accept = &msg
		}
	case envelope.KindLnInvoice:
		if t.Invoice == nil {
			t.Invoice = &msg
		}
	case envelope.KindSolEscrowCreated:
		if t.Escrow == nil {
			t.Escrow = &msg
		}
	case envelope.KindLnPaid:
		if t.LnPaid == nil {
			t.LnPaid = &msg
		}
	case envelope.KindSolClaimed:
		if t.Claimed == nil {
			t.Claimed = &msg
		}
	case envelope.KindSolRefunded:
		if t.Refunded == nil {
			t.Refunded = &msg
		}
	case envelope.KindCancel:
		if t.Canceled == nil {
			t.Canceled = &msg
		}
	}
}
