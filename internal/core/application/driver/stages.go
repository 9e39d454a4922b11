package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	appcontext "github.com/swapbroker/swapd/internal/core/application/context"
	"github.com/swapbroker/swapd/internal/core/application/trace"
	"github.com/swapbroker/swapd/internal/core/domain"
	"github.com/swapbroker/swapd/internal/core/ports"
	"github.com/swapbroker/swapd/pkg/envelope"
)

func nowMs() int64 { return time.Now().UnixMilli() }

func getString(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

func getInt64(body map[string]any, key string) int64 {
	switch v := body[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// driveQuoteFromOffer is the maker pipeline: for each unexpired,
// unhandled non-local RFQ, try to match a local offer line and publish
// a quote referencing it.
func (d *Driver) driveQuoteFromOffer(ctx context.Context, c appcontext.Contexts, budget *actionBudget) {
	now := time.Now().Unix()
	var localOffers []envelope.Envelope
	for _, o := range c.Offers {
		if o.Signer == d.localPeer {
			localOffers = append(localOffers, o)
		}
	}
	for _, ev := range c.NonLocalRFQs {
		if budget.left <= 0 {
			return
		}
		rfq := ev.Message
		sig := rfq.Sig
		if getInt64(rfq.Body, "valid_until_unix") <= now {
			continue
		}
		if d.caches.autoQuotedRFQSig.has(sig) {
			continue
		}
		if !d.caches.stageRetryAfter.ready("quote:"+sig, nowMs()) {
			continue
		}

		offerEnv, lineIdx, line, found := matchOfferForRFQ(localOffers, rfq)
		if !found {
			continue
		}

		if !budget.spend() {
			return
		}

		offerID, _ := offerEnv.ID()
		body := map[string]any{
			"rfq_id":               mustID(rfq),
			"pair":                 getString(rfq.Body, "pair"),
			"direction":            getString(rfq.Body, "direction"),
			"app_hash":             getString(rfq.Body, "app_hash"),
			"btc_sats":             getInt64(rfq.Body, "btc_sats"),
			"usdt_amount":          getString(rfq.Body, "usdt_amount"),
			"platform_fee_bps":     getInt64(line, "max_platform_fee_bps"),
			"trade_fee_bps":        getInt64(line, "max_trade_fee_bps"),
			"trade_fee_collector":  d.cfg.TradeFeeCollector,
			"sol_refund_window_sec": clampWindow(line, rfq.Body),
			"valid_until_unix":     getInt64(rfq.Body, "valid_until_unix"),
			"offer_id":             offerID,
			"offer_line_index":     int64(lineIdx),
		}

		_, err := d.publish(ctx, ev.Channel, envelope.KindQuote, ev.TradeID, body)
		if err != nil {
			d.caches.stageRetryAfter.backoff("quote:"+sig, nowMs(), defaultCooldown.Milliseconds())
			log.WithError(err).Warn("quote-from-offer publish failed")
			continue
		}
		d.caches.autoQuotedRFQSig.markIfNew(sig, nowMs())
	}
}

func mustID(e envelope.Envelope) string {
	id, err := e.ID()
	if err != nil {
		return ""
	}
	return id
}

// matchOfferForRFQ finds a local offer line whose (btc_sats,
// usdt_amount) equals the RFQ's, whose fee ceilings are at or below the
// RFQ's, and whose refund-window range overlaps the RFQ's.
func matchOfferForRFQ(offers []envelope.Envelope, rfq envelope.Envelope) (envelope.Envelope, int, map[string]any, bool) {
	rfqSats := getInt64(rfq.Body, "btc_sats")
	rfqUSDT := getString(rfq.Body, "usdt_amount")
	rfqMaxPlatform := getInt64(rfq.Body, "max_platform_fee_bps")
	rfqMaxTrade := getInt64(rfq.Body, "max_trade_fee_bps")
	rfqMaxTotal := getInt64(rfq.Body, "max_total_fee_bps")
	rfqMinWin := getInt64(rfq.Body, "min_sol_refund_window_sec")
	rfqMaxWin := getInt64(rfq.Body, "max_sol_refund_window_sec")

	for _, offerEnv := range offers {
		rawLines, _ := offerEnv.Body["offers"].([]any)
		for i, raw := range rawLines {
			line, isMap := raw.(map[string]any)
			if !isMap {
				continue
			}
			if getInt64(line, "btc_sats") != rfqSats {
				continue
			}
			if getString(line, "usdt_amount") != rfqUSDT {
				continue
			}
			if getInt64(line, "max_platform_fee_bps") > rfqMaxPlatform {
				continue
			}
			if getInt64(line, "max_trade_fee_bps") > rfqMaxTrade {
				continue
			}
			if getInt64(line, "max_total_fee_bps") > rfqMaxTotal {
				continue
			}
			lineMin := getInt64(line, "min_sol_refund_window_sec")
			lineMax := getInt64(line, "max_sol_refund_window_sec")
			overlapMin := maxInt64(rfqMinWin, lineMin)
			overlapMax := minInt64(rfqMaxWin, lineMax)
			if overlapMin > overlapMax {
				continue
			}
			return offerEnv, i, line, true
		}
	}
	return envelope.Envelope{}, 0, nil, false
}

const seventyTwoHoursSec = 72 * 3600

func clampWindow(line map[string]any, rfqBody map[string]any) int64 {
	overlapMin := maxInt64(getInt64(rfqBody, "min_sol_refund_window_sec"), getInt64(line, "min_sol_refund_window_sec"))
	overlapMax := minInt64(getInt64(rfqBody, "max_sol_refund_window_sec"), getInt64(line, "max_sol_refund_window_sec"))
	if seventyTwoHoursSec < overlapMin {
		return overlapMin
	}
	if seventyTwoHoursSec > overlapMax {
		return overlapMax
	}
	return seventyTwoHoursSec
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// driveAcceptQuote is the taker pipeline: accept the first eligible
// quote for each RFQ we authored, then lock that trade so a second
// quote for the same RFQ is never also accepted.
func (d *Driver) driveAcceptQuote(ctx context.Context, c appcontext.Contexts, budget *actionBudget) {
	for _, ev := range c.QuoteEvents {
		if budget.left <= 0 {
			return
		}
		if !c.MyRFQTradeIDs[ev.TradeID] {
			continue
		}
		if d.caches.autoAcceptedTradeLock.locked(ev.TradeID) {
			continue
		}
		if existing, err := d.trades.GetTrade(ctx, ev.TradeID); err == nil && existing.State.IsTerminal() {
			continue
		}

		quote := ev.Message
		sig := quote.Sig
		if d.caches.autoAcceptedQuoteSig.has(sig) {
			continue
		}
		if !d.caches.stageRetryAfter.ready("accept-quote:"+sig, nowMs()) {
			continue
		}

		if !budget.spend() {
			return
		}

		body := map[string]any{
			"rfq_id":             getString(quote.Body, "rfq_id"),
			"quote_id":           mustID(quote),
			"taker_chain_pubkey": d.localChainSigner,
		}
		_, err := d.publish(ctx, ev.Channel, envelope.KindQuoteAccept, ev.TradeID, body)
		if err != nil {
			d.caches.stageRetryAfter.backoff("accept-quote:"+sig, nowMs(), defaultCooldown.Milliseconds())
			log.WithError(err).Warn("accept-quote publish failed")
			continue
		}
		d.caches.autoAcceptedQuoteSig.markIfNew(sig, nowMs())
		d.caches.autoAcceptedTradeLock.tryLock(ev.TradeID, nowMs())
	}
}

// driveInviteFromAccept is the maker pipeline: once a taker accepts a
// quote we published, invite them into the dedicated swap:<trade_id>
// channel and join it ourselves.
func (d *Driver) driveInviteFromAccept(ctx context.Context, c appcontext.Contexts, budget *actionBudget) {
	for _, ev := range c.NonLocalAccepts {
		if budget.left <= 0 {
			return
		}
		accept := ev.Message
		quoteID := getString(accept.Body, "quote_id")
		if _, ours := c.MyQuoteByID[quoteID]; !ours {
			continue
		}

		sig := accept.Sig
		if d.caches.autoInvitedAcceptSig.has(sig) {
			continue
		}
		if !d.caches.stageRetryAfter.ready("invite:"+sig, nowMs()) {
			continue
		}

		if !budget.spend() {
			return
		}

		swapChannel := "swap:" + ev.TradeID
		body := map[string]any{
			"rfq_id":       getString(accept.Body, "rfq_id"),
			"quote_id":     quoteID,
			"swap_channel": swapChannel,
			"owner_pubkey": d.localPeer,
			"invite_b64":   inviteToken(ev.TradeID),
		}
		_, err := d.publish(ctx, swapChannel, envelope.KindSwapInvite, ev.TradeID, body)
		if err != nil {
			d.caches.stageRetryAfter.backoff("invite:"+sig, nowMs(), defaultCooldown.Milliseconds())
			log.WithError(err).Warn("invite-from-accept publish failed")
			continue
		}
		if err := d.bus.Join(ctx, swapChannel); err != nil {
			log.WithError(err).Warn("join own swap channel failed")
		}
		d.caches.autoInvitedAcceptSig.markIfNew(sig, nowMs())
	}
}

func inviteToken(tradeID string) string {
	return fmt.Sprintf("invite:%s", tradeID)
}

// driveJoinInvite is the taker pipeline: join the swap:<trade_id>
// channel once invited by the maker we accepted a quote from.
func (d *Driver) driveJoinInvite(ctx context.Context, c appcontext.Contexts, budget *actionBudget) {
	for _, ev := range c.NonLocalInvites {
		if budget.left <= 0 {
			return
		}
		neg, ok := c.Negotiations[ev.TradeID]
		if !ok || neg.QuoteAccept == nil || neg.QuoteAccept.Signer != d.localPeer {
			continue
		}
		if getString(ev.Message.Body, "owner_pubkey") != ev.Message.Signer {
			continue
		}

		sig := ev.Message.Sig
		if d.caches.autoJoinedInviteSig.has(sig) {
			continue
		}

		if !budget.spend() {
			return
		}

		swapChannel := getString(ev.Message.Body, "swap_channel")
		if err := d.bus.Join(ctx, swapChannel); err != nil {
			log.WithError(err).Warn("join invite failed")
			continue
		}
		d.caches.autoJoinedInviteSig.markIfNew(sig, nowMs())
	}
}

// driveSettlement runs the per-trade state machine (§4.7.1): at most
// one stage fires per trade per tick.
func (d *Driver) driveSettlement(ctx context.Context, c appcontext.Contexts, budget *actionBudget) {
	candidates := settlementCandidates(c)

	count := 0
	for _, tc := range candidates {
		if count >= d.cfg.MaxTrades {
			return
		}
		count++
		if budget.left <= 0 {
			return
		}
		if tc.IsTerminal() {
			continue
		}

		neg := c.Negotiations[tc.TradeID]
		iAmMaker := d.isMaker(tc, neg)
		iAmTaker := d.isTaker(tc, neg, c)
		if !iAmMaker && !iAmTaker {
			continue
		}

		switch {
		case tc.Terms == nil && iAmMaker && neg != nil && neg.RFQ != nil && neg.Quote != nil && neg.QuoteAccept != nil:
			d.runStage(ctx, tc.TradeID, "terms_post", defaultCooldown, budget, func() error {
				return d.stageTermsPost(ctx, tc, neg)
			})
		case tc.Terms != nil && tc.Accept == nil && iAmTaker:
			if !d.bindingChecksPass(tc.Terms) {
				d.caches.stageRetryAfter.backoff(stageKey(tc.TradeID, "terms_accept"), nowMs(), defaultCooldown.Milliseconds())
				continue
			}
			d.runStage(ctx, tc.TradeID, "terms_accept", defaultCooldown, budget, func() error {
				return d.stageTermsAccept(ctx, tc)
			})
		case tc.Terms != nil && tc.Accept != nil && tc.Invoice == nil && iAmMaker:
			d.runStage(ctx, tc.TradeID, "ln_invoice", defaultCooldown, budget, func() error {
				return d.stageLnInvoice(ctx, tc)
			})
		case tc.Terms != nil && tc.Invoice != nil && tc.Escrow == nil && iAmMaker:
			d.runStage(ctx, tc.TradeID, "sol_escrow", defaultCooldown, budget, func() error {
				return d.stageSolEscrow(ctx, tc)
			})
		case tc.Terms != nil && tc.Invoice != nil && tc.Escrow != nil && tc.LnPaid == nil && iAmTaker:
			if !d.bindingChecksPass(tc.Terms) {
				d.caches.stageRetryAfter.backoff(stageKey(tc.TradeID, "ln_pay"), nowMs(), defaultCooldown.Milliseconds())
				continue
			}
			d.runStage(ctx, tc.TradeID, "ln_pay", defaultCooldown, budget, func() error {
				return d.stageLnPay(ctx, tc)
			})
		case tc.Terms != nil && tc.LnPaid != nil && tc.Claimed == nil && iAmTaker:
			if !d.bindingChecksPass(tc.Terms) {
				d.caches.stageRetryAfter.backoff(stageKey(tc.TradeID, "sol_claim"), nowMs(), solClaimCooldown.Milliseconds())
				continue
			}
			d.runStage(ctx, tc.TradeID, "sol_claim", solClaimCooldown, budget, func() error {
				return d.stageSolClaim(ctx, tc)
			})
		}
		if budget.left <= 0 {
			return
		}
	}
}

// settlementCandidates unions the observed swap-channel trade contexts
// with negotiations that have reached swap_invite but never had any
// envelope land on the swap channel yet, so terms_post has a trade
// context to bootstrap the very first stage from.
func settlementCandidates(c appcontext.Contexts) map[string]*appcontext.TradeContext {
	out := make(map[string]*appcontext.TradeContext, len(c.Trades))
	for ch, tc := range c.Trades {
		out[ch] = tc
	}
	for tradeID, neg := range c.Negotiations {
		if neg.SwapChannel == "" {
			continue
		}
		if _, ok := out[neg.SwapChannel]; !ok {
			out[neg.SwapChannel] = &appcontext.TradeContext{TradeID: tradeID, Channel: neg.SwapChannel}
		}
	}
	return out
}

func stageKey(tradeID, stage string) string { return tradeID + ":" + stage }

// runStage enforces the once-per-key in-flight guard, the stage-done
// cache, and the per-stage cooldown, and spends one unit of the tick's
// action budget only if the stage actually attempts its side effect.
func (d *Driver) runStage(ctx context.Context, tradeID, stage string, cooldown time.Duration, budget *actionBudget, fn func() error) {
	key := stageKey(tradeID, stage)
	if d.caches.stageDone.isDone(key) {
		return
	}
	if !d.caches.stageRetryAfter.ready(key, nowMs()) {
		return
	}
	if !d.caches.stageInFlight.tryEnter(key) {
		return
	}
	defer d.caches.stageInFlight.leave(key)

	if !budget.spend() {
		return
	}

	if err := fn(); err != nil {
		d.caches.stageRetryAfter.backoff(key, nowMs(), cooldown.Milliseconds())
		log.WithError(err).WithField("stage", stage).WithField("trade_id", tradeID).Warn("settlement stage failed")
		d.traceEvent(trace.Event{TradeID: tradeID, Stage: stage, Kind: "failed", Detail: err.Error()})
		return
	}
	d.caches.stageDone.markDone(key, nowMs())
	d.caches.stageRetryAfter.clear(key)
	d.traceEvent(trace.Event{TradeID: tradeID, Stage: stage, Kind: "done"})
}

func (d *Driver) isMaker(tc *appcontext.TradeContext, neg *appcontext.Negotiation) bool {
	if tc.Terms != nil && tc.Terms.Signer == d.localPeer {
		return true
	}
	return neg != nil && neg.Quote != nil && neg.Quote.Signer == d.localPeer
}

func (d *Driver) isTaker(tc *appcontext.TradeContext, neg *appcontext.Negotiation, c appcontext.Contexts) bool {
	if tc.Accept != nil && tc.Accept.Signer == d.localPeer {
		return true
	}
	if neg != nil && neg.QuoteAccept != nil && neg.QuoteAccept.Signer == d.localPeer {
		return true
	}
	return c.MyRFQTradeIDs[tc.TradeID]
}

func (d *Driver) bindingChecksPass(terms *envelope.Envelope) bool {
	if getString(terms.Body, "ln_payer_peer") != d.localPeer {
		return false
	}
	if getString(terms.Body, "sol_recipient") != d.localChainSigner {
		return false
	}
	return true
}

func (d *Driver) stageTermsPost(ctx context.Context, tc *appcontext.TradeContext, neg *appcontext.Negotiation) error {
	quote := neg.Quote
	window := getInt64(quote.Body, "sol_refund_window_sec")
	refundAfter := time.Now().Unix() + window

	body := map[string]any{
		"btc_sats":              getInt64(quote.Body, "btc_sats"),
		"usdt_amount":           getString(quote.Body, "usdt_amount"),
		"sol_mint":              d.cfg.SolMint,
		"sol_recipient":         getString(neg.QuoteAccept.Body, "taker_chain_pubkey"),
		"sol_refund":            d.localChainSigner,
		"ln_receiver_peer":      d.localPeer,
		"ln_payer_peer":         neg.QuoteAccept.Signer,
		"trade_fee_collector":   d.cfg.TradeFeeCollector,
		"sol_refund_after_unix": refundAfter,
		"platform_fee_bps":      getInt64(quote.Body, "platform_fee_bps"),
		"trade_fee_bps":         getInt64(quote.Body, "trade_fee_bps"),
		"terms_valid_until_unix": getInt64(quote.Body, "valid_until_unix"),
	}
	_, err := d.publish(ctx, tc.Channel, envelope.KindTerms, tc.TradeID, body)
	if err != nil {
		return err
	}
	return d.upsertTradeState(ctx, tc.TradeID, domain.StateTerms)
}

func (d *Driver) stageTermsAccept(ctx context.Context, tc *appcontext.TradeContext) error {
	termsID := mustID(*tc.Terms)
	_, err := d.publish(ctx, tc.Channel, envelope.KindAccept, tc.TradeID, map[string]any{"terms_hash": termsID})
	if err != nil {
		return err
	}
	return d.upsertTradeState(ctx, tc.TradeID, domain.StateAccepted)
}

func (d *Driver) stageLnInvoice(ctx context.Context, tc *appcontext.TradeContext) error {
	sats := getInt64(tc.Terms.Body, "btc_sats")
	label := fmt.Sprintf("swap-%s", tc.TradeID)
	invCtx, cancel := context.WithTimeout(ctx, d.cfg.ToolTimeout)
	defer cancel()
	bolt11, paymentHashHex, err := d.ln.CreateInvoice(invCtx, sats, label, "atomic swap settlement")
	if err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}

	_, err = d.publish(ctx, tc.Channel, envelope.KindLnInvoice, tc.TradeID, map[string]any{
		"bolt11": bolt11, "payment_hash_hex": paymentHashHex,
	})
	if err != nil {
		return err
	}
	pat := domain.TradePatch{LnInvoiceBolt11: &bolt11, LnPaymentHashHex: &paymentHashHex}
	_, err = d.trades.UpsertTrade(ctx, tc.TradeID, pat)
	if err != nil {
		return err
	}
	return d.upsertTradeState(ctx, tc.TradeID, domain.StateInvoice)
}

func (d *Driver) stageSolEscrow(ctx context.Context, tc *appcontext.TradeContext) error {
	paymentHash := getString(tc.Invoice.Body, "payment_hash_hex")
	amount, err := decimal.NewFromString(getString(tc.Terms.Body, "usdt_amount"))
	if err != nil {
		return fmt.Errorf("parse usdt_amount: %w", err)
	}
	platformBps := getInt64(tc.Terms.Body, "platform_fee_bps")
	tradeBps := getInt64(tc.Terms.Body, "trade_fee_bps")
	feeAmount := amount.Mul(decimal.NewFromInt(platformBps + tradeBps)).Div(decimal.NewFromInt(10000))
	netAmount := amount.Sub(feeAmount)

	buildCtx, cancel := context.WithTimeout(ctx, d.cfg.ToolTimeout)
	defer cancel()
	tx, err := d.chain.BuildEscrowInitTx(buildCtx, escrowParamsFromTerms(tc, paymentHash))
	if err != nil {
		return fmt.Errorf("build escrow init tx: %w", err)
	}
	sig, err := d.chain.SendAndConfirm(buildCtx, tx)
	if err != nil {
		return fmt.Errorf("send escrow init tx: %w", err)
	}

	escrowPDA := "escrow:" + paymentHash
	vaultATA := "vault:" + paymentHash
	_, err = d.publish(ctx, tc.Channel, envelope.KindSolEscrowCreated, tc.TradeID, map[string]any{
		"escrow_pda": escrowPDA, "vault_ata": vaultATA, "tx_sig": sig,
		"payment_hash_hex": paymentHash, "net_amount": netAmount.String(), "fee_amount": feeAmount.String(),
		"refund_after_unix": getInt64(tc.Terms.Body, "sol_refund_after_unix"),
	})
	if err != nil {
		return err
	}
	patch := domain.TradePatch{SolEscrowPDA: &escrowPDA, SolVaultATA: &vaultATA}
	if _, err := d.trades.UpsertTrade(ctx, tc.TradeID, patch); err != nil {
		return err
	}
	return d.upsertTradeState(ctx, tc.TradeID, domain.StateEscrow)
}

func escrowParamsFromTerms(tc *appcontext.TradeContext, paymentHash string) ports.EscrowInitParams {
	return ports.EscrowInitParams{
		PaymentHashHex:    paymentHash,
		Mint:              getString(tc.Terms.Body, "sol_mint"),
		Amount:            getString(tc.Terms.Body, "usdt_amount"),
		Recipient:         getString(tc.Terms.Body, "sol_recipient"),
		Refund:            getString(tc.Terms.Body, "sol_refund"),
		RefundAfterUnix:   getInt64(tc.Terms.Body, "sol_refund_after_unix"),
		TradeFeeCollector: getString(tc.Terms.Body, "trade_fee_collector"),
	}
}

func (d *Driver) stageLnPay(ctx context.Context, tc *appcontext.TradeContext) error {
	bolt11 := getString(tc.Invoice.Body, "bolt11")
	payCtx, cancel := context.WithTimeout(ctx, d.cfg.ToolTimeout)
	defer cancel()
	preimageHex, _, err := d.ln.Pay(payCtx, bolt11, d.cfg.LnFeeLimitSat, d.cfg.ToolTimeout)
	if err != nil {
		return fmt.Errorf("pay invoice: %w", err)
	}
	d.caches.tradePreimage.set(tc.TradeID, preimageHex)

	paymentHash := getString(tc.Invoice.Body, "payment_hash_hex")
	_, err = d.publish(ctx, tc.Channel, envelope.KindLnPaid, tc.TradeID, map[string]any{
		"payment_hash_hex": paymentHash, "preimage_hex": preimageHex,
	})
	if err != nil {
		return err
	}
	if _, err := d.trades.UpsertTrade(ctx, tc.TradeID, domain.TradePatch{LnPreimageHex: &preimageHex}); err != nil {
		return err
	}
	return d.upsertTradeState(ctx, tc.TradeID, domain.StateLnPaid)
}

func (d *Driver) stageSolClaim(ctx context.Context, tc *appcontext.TradeContext) error {
	paymentHash := getString(tc.Invoice.Body, "payment_hash_hex")
	preimage, cached := d.caches.tradePreimage.get(tc.TradeID)
	if !cached {
		trade, err := d.trades.GetTrade(ctx, tc.TradeID)
		if err != nil {
			return fmt.Errorf("load trade for claim: %w", err)
		}
		preimage = trade.LnPreimageHex
	}
	if preimage == "" {
		return fmt.Errorf("no preimage available for trade %s", tc.TradeID)
	}

	buildCtx, cancel := context.WithTimeout(ctx, d.cfg.ToolTimeout)
	defer cancel()
	tx, err := d.chain.BuildClaimTx(buildCtx, claimParamsFromTerms(tc, paymentHash, preimage, d.localChainSigner))
	if err != nil {
		return fmt.Errorf("build claim tx: %w", err)
	}
	sig, err := d.chain.SendAndConfirm(buildCtx, tx)
	if err != nil {
		return fmt.Errorf("send claim tx: %w", err)
	}

	_, err = d.publish(ctx, tc.Channel, envelope.KindSolClaimed, tc.TradeID, map[string]any{
		"payment_hash_hex": paymentHash, "tx_sig": sig,
	})
	if err != nil {
		return err
	}
	return d.upsertTradeState(ctx, tc.TradeID, domain.StateClaimed)
}

func claimParamsFromTerms(tc *appcontext.TradeContext, paymentHash, preimageHex, recipientTokenAccount string) ports.ClaimParams {
	return ports.ClaimParams{
		PaymentHashHex:        paymentHash,
		RecipientTokenAccount: recipientTokenAccount,
		PreimageHex:           preimageHex,
		TradeFeeCollector:     getString(tc.Terms.Body, "trade_fee_collector"),
	}
}

func (d *Driver) upsertTradeState(ctx context.Context, tradeID string, state domain.State) error {
	_, err := d.trades.UpsertTrade(ctx, tradeID, domain.TradePatch{State: &state})
	return err
}
