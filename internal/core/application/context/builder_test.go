package context_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	appcontext "github.com/swapbroker/swapd/internal/core/application/context"
	"github.com/swapbroker/swapd/internal/core/ports"
	"github.com/swapbroker/swapd/pkg/envelope"
)

const localPeer = "aa11"
const remotePeer = "bb22"

func ev(seq uint64, ts int64, channel string, kind envelope.Kind, tradeID, signer string) ports.BusEvent {
	return ports.BusEvent{
		Seq: seq, TS: ts, Channel: channel, Kind: kind, TradeID: tradeID,
		Message: envelope.Envelope{V: 1, Kind: kind, TradeID: tradeID, Signer: signer, TS: ts, Body: map[string]any{}},
	}
}

func TestBuild_LocalRFQMarksMyRFQTradeIDs(t *testing.T) {
	events := []ports.BusEvent{
		ev(1, 100, "rfq:BTC-USDT", envelope.KindRFQ, "trade-1", localPeer),
	}
	c := appcontext.Build(events, localPeer)
	require.True(t, c.MyRFQTradeIDs["trade-1"])
	require.Empty(t, c.NonLocalRFQs)
}

func TestBuild_NonLocalRFQGoesToNonLocalRFQs(t *testing.T) {
	events := []ports.BusEvent{
		ev(1, 100, "rfq:BTC-USDT", envelope.KindRFQ, "trade-1", remotePeer),
	}
	c := appcontext.Build(events, localPeer)
	require.False(t, c.MyRFQTradeIDs["trade-1"])
	require.Len(t, c.NonLocalRFQs, 1)
}

func TestBuild_LocalQuoteRecordedByEnvelopeID(t *testing.T) {
	events := []ports.BusEvent{
		ev(1, 100, "rfq:BTC-USDT", envelope.KindQuote, "trade-1", localPeer),
	}
	c := appcontext.Build(events, localPeer)
	require.Len(t, c.MyQuoteByID, 1)
	require.Empty(t, c.QuoteEvents)
}

func TestBuild_NonLocalQuoteAppendsToQuoteEvents(t *testing.T) {
	events := []ports.BusEvent{
		ev(1, 100, "rfq:BTC-USDT", envelope.KindQuote, "trade-1", remotePeer),
	}
	c := appcontext.Build(events, localPeer)
	require.Empty(t, c.MyQuoteByID)
	require.Len(t, c.QuoteEvents, 1)
}

func TestBuild_AcceptsAndInvitesOnlyPartitionNonLocal(t *testing.T) {
	events := []ports.BusEvent{
		ev(1, 100, "rfq:BTC-USDT", envelope.KindQuoteAccept, "trade-1", localPeer),
		ev(2, 101, "rfq:BTC-USDT", envelope.KindQuoteAccept, "trade-2", remotePeer),
		ev(3, 102, "rfq:BTC-USDT", envelope.KindSwapInvite, "trade-3", localPeer),
		ev(4, 103, "rfq:BTC-USDT", envelope.KindSwapInvite, "trade-4", remotePeer),
	}
	c := appcontext.Build(events, localPeer)
	require.Len(t, c.NonLocalAccepts, 1)
	require.Len(t, c.NonLocalInvites, 1)
}

func TestBuild_NegotiationRecordsFirstSeenOnly(t *testing.T) {
	first := ev(1, 100, "rfq:BTC-USDT", envelope.KindRFQ, "trade-1", remotePeer)
	first.Message.Body["btc_sats"] = int64(1000)
	second := ev(2, 200, "rfq:BTC-USDT", envelope.KindRFQ, "trade-1", remotePeer)
	second.Message.Body["btc_sats"] = int64(9999)

	c := appcontext.Build([]ports.BusEvent{first, second}, localPeer)
	neg := c.Negotiations["trade-1"]
	require.NotNil(t, neg)
	require.NotNil(t, neg.RFQ)
	require.Equal(t, int64(1000), neg.RFQ.Body["btc_sats"])
}

func TestBuild_TradeContextOnlyForSwapChannels(t *testing.T) {
	events := []ports.BusEvent{
		ev(1, 100, "swap:trade-1", envelope.KindTerms, "trade-1", localPeer),
		ev(2, 200, "rfq:BTC-USDT", envelope.KindTerms, "trade-2", localPeer),
	}
	c := appcontext.Build(events, localPeer)
	require.Contains(t, c.Trades, "swap:trade-1")
	require.NotContains(t, c.Trades, "rfq:BTC-USDT")
}

func TestBuild_TradeContextTracksLastTS(t *testing.T) {
	events := []ports.BusEvent{
		ev(1, 100, "swap:trade-1", envelope.KindTerms, "trade-1", localPeer),
		ev(2, 500, "swap:trade-1", envelope.KindAccept, "trade-1", localPeer),
	}
	c := appcontext.Build(events, localPeer)
	require.Equal(t, int64(500), c.Trades["swap:trade-1"].LastTS)
}

func TestTradeContext_IsTerminalWhenClaimedRefundedOrCanceled(t *testing.T) {
	events := []ports.BusEvent{
		ev(1, 100, "swap:trade-1", envelope.KindSolClaimed, "trade-1", localPeer),
	}
	c := appcontext.Build(events, localPeer)
	require.True(t, c.Trades["swap:trade-1"].IsTerminal())
}

func TestTradeContext_NonTerminalWithOnlyTerms(t *testing.T) {
	events := []ports.BusEvent{
		ev(1, 100, "swap:trade-1", envelope.KindTerms, "trade-1", localPeer),
	}
	c := appcontext.Build(events, localPeer)
	require.False(t, c.Trades["swap:trade-1"].IsTerminal())
}

func TestBuild_SvcAnnounceGoesToOffersRegardlessOfProvenance(t *testing.T) {
	events := []ports.BusEvent{
		ev(1, 100, "offers", envelope.KindSvcAnnounce, "", localPeer),
		ev(2, 101, "offers", envelope.KindSvcAnnounce, "", remotePeer),
	}
	c := appcontext.Build(events, localPeer)
	require.Len(t, c.Offers, 2)
}
