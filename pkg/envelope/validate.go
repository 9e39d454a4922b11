package envelope

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	maxPlatformFeeBps = 500
	maxTradeFeeBps    = 1000
	maxTotalFeeBps    = 1500

	minRefundWindowSec = 3600
	maxRefundWindowSec = 604800
)

// Result is the outcome of a validation pass. It carries no side
// effects; Reason is empty when OK is true.
type Result struct {
	OK     bool
	Reason string
}

func ok() Result                { return Result{OK: true} }
func bad(reason string) Result  { return Result{OK: false, Reason: reason} }

func badf(format string, args ...any) Result {
	return bad(fmt.Sprintf(format, args...))
}

// Validate checks presence, type, and numeric range of the fields
// required by e.Kind, plus the within-body relations between them (fee
// sums against their ceilings, refund-window min not above max). It
// performs no cross-envelope checks; those are the caller's job via the
// ValidateXxx helpers below,
// which take the referenced envelope explicitly so this package stays
// free of any notion of a store or log.
func Validate(e Envelope) Result {
	if e.V != ProtocolVersion {
		return badf("unsupported protocol version %d", e.V)
	}
	if e.TradeID == "" {
		return bad("missing trade_id")
	}
	if e.Nonce == "" {
		return bad("missing nonce")
	}
	if e.Body == nil {
		return bad("missing body")
	}

	switch e.Kind {
	case KindRFQ:
		return validateRFQ(e)
	case KindQuote:
		return validateQuote(e)
	case KindQuoteAccept:
		return validateQuoteAccept(e)
	case KindSvcAnnounce:
		return validateSvcAnnounce(e)
	case KindSwapInvite:
		return validateSwapInvite(e)
	case KindTerms:
		return validateTerms(e)
	case KindAccept:
		return validateAccept(e)
	case KindLnInvoice:
		return validateLnInvoice(e)
	case KindSolEscrowCreated:
		return validateSolEscrowCreated(e)
	case KindLnPaid:
		return validateLnPaid(e)
	case KindSolClaimed, KindSolRefunded, KindCancel:
		return ok()
	default:
		return badf("unknown kind %q", e.Kind)
	}
}

func requireString(body map[string]any, field string) (string, Result) {
	v, present := body[field]
	if !present {
		return "", badf("missing %s", field)
	}
	s, isString := v.(string)
	if !isString {
		return "", badf("%s must be a string", field)
	}
	if s == "" {
		return "", badf("%s must not be empty", field)
	}
	return s, ok()
}

func requireInt(body map[string]any, field string) (int64, Result) {
	v, present := body[field]
	if !present {
		return 0, badf("missing %s", field)
	}
	switch n := v.(type) {
	case int64:
		return n, ok()
	case int:
		return int64(n), ok()
	case float64:
		if float64(int64(n)) != n {
			return 0, badf("%s must be an integer", field)
		}
		return int64(n), ok()
	default:
		return 0, badf("%s must be a number", field)
	}
}

func optionalInt(body map[string]any, field string) (int64, bool, Result) {
	if _, present := body[field]; !present {
		return 0, false, ok()
	}
	n, res := requireInt(body, field)
	return n, true, res
}

// requireDecimalString validates a decimal string field (base-10 digits,
// optional single '.', no sign) such as usdt_amount.
func requireDecimalString(body map[string]any, field string) (decimal.Decimal, Result) {
	s, res := requireString(body, field)
	if !res.OK {
		return decimal.Decimal{}, res
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Decimal{}, badf("%s must be base-10 digits", field)
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, badf("%s is not a valid decimal: %v", field, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, badf("%s must not be negative", field)
	}
	return d, ok()
}

func validateFeeCeilings(body map[string]any) Result {
	maxPlatform, res := requireInt(body, "max_platform_fee_bps")
	if !res.OK {
		return res
	}
	maxTrade, res := requireInt(body, "max_trade_fee_bps")
	if !res.OK {
		return res
	}
	maxTotal, res := requireInt(body, "max_total_fee_bps")
	if !res.OK {
		return res
	}
	if maxPlatform < 0 || maxPlatform > maxPlatformFeeBps {
		return badf("max_platform_fee_bps out of range [0,%d]", maxPlatformFeeBps)
	}
	if maxTrade < 0 || maxTrade > maxTradeFeeBps {
		return badf("max_trade_fee_bps out of range [0,%d]", maxTradeFeeBps)
	}
	if maxTotal < 0 || maxTotal > maxTotalFeeBps {
		return badf("max_total_fee_bps out of range [0,%d]", maxTotalFeeBps)
	}
	if maxPlatform+maxTrade > maxTotal {
		return bad("max_platform_fee_bps + max_trade_fee_bps exceeds max_total_fee_bps")
	}
	return ok()
}

func validateRefundWindow(body map[string]any, minField, maxField string) Result {
	minSec, res := requireInt(body, minField)
	if !res.OK {
		return res
	}
	maxSec, res := requireInt(body, maxField)
	if !res.OK {
		return res
	}
	if minSec < minRefundWindowSec || minSec > maxRefundWindowSec {
		return badf("%s out of range [%d,%d]", minField, minRefundWindowSec, maxRefundWindowSec)
	}
	if maxSec < minRefundWindowSec || maxSec > maxRefundWindowSec {
		return badf("%s out of range [%d,%d]", maxField, minRefundWindowSec, maxRefundWindowSec)
	}
	if minSec > maxSec {
		return badf("%s must not exceed %s", minField, maxField)
	}
	return ok()
}

func validateRFQ(e Envelope) Result {
	b := e.Body
	if _, res := requireString(b, "pair"); !res.OK {
		return res
	}
	if _, res := requireString(b, "direction"); !res.OK {
		return res
	}
	if _, res := requireString(b, "app_hash"); !res.OK {
		return res
	}
	sats, res := requireInt(b, "btc_sats")
	if !res.OK {
		return res
	}
	if sats < 1 {
		return bad("btc_sats must be >= 1")
	}
	if _, res := requireDecimalString(b, "usdt_amount"); !res.OK {
		return res
	}
	if res := validateFeeCeilings(b); !res.OK {
		return res
	}
	if res := validateRefundWindow(b, "min_sol_refund_window_sec", "max_sol_refund_window_sec"); !res.OK {
		return res
	}
	if _, res := requireInt(b, "valid_until_unix"); !res.OK {
		return res
	}
	return ok()
}

func validateQuote(e Envelope) Result {
	b := e.Body
	if _, res := requireString(b, "rfq_id"); !res.OK {
		return res
	}
	if _, res := requireString(b, "pair"); !res.OK {
		return res
	}
	if _, res := requireString(b, "direction"); !res.OK {
		return res
	}
	if _, res := requireString(b, "app_hash"); !res.OK {
		return res
	}
	platform, res := requireInt(b, "platform_fee_bps")
	if !res.OK {
		return res
	}
	trade, res := requireInt(b, "trade_fee_bps")
	if !res.OK {
		return res
	}
	if platform < 0 || platform > maxPlatformFeeBps {
		return badf("platform_fee_bps out of range [0,%d]", maxPlatformFeeBps)
	}
	if trade < 0 || trade > maxTradeFeeBps {
		return badf("trade_fee_bps out of range [0,%d]", maxTradeFeeBps)
	}
	if platform+trade > maxTotalFeeBps {
		return bad("platform_fee_bps + trade_fee_bps exceeds max_total_fee_bps")
	}
	if _, res := requireString(b, "trade_fee_collector"); !res.OK {
		return res
	}
	window, res := requireInt(b, "sol_refund_window_sec")
	if !res.OK {
		return res
	}
	if window < minRefundWindowSec || window > maxRefundWindowSec {
		return badf("sol_refund_window_sec out of range [%d,%d]", minRefundWindowSec, maxRefundWindowSec)
	}
	if _, res := requireInt(b, "valid_until_unix"); !res.OK {
		return res
	}
	if _, present, res := optionalInt(b, "offer_line_index"); present && !res.OK {
		return res
	}
	return ok()
}

func validateQuoteAccept(e Envelope) Result {
	b := e.Body
	if _, res := requireString(b, "rfq_id"); !res.OK {
		return res
	}
	if _, res := requireString(b, "quote_id"); !res.OK {
		return res
	}
	return ok()
}

func validateSvcAnnounce(e Envelope) Result {
	b := e.Body
	if _, res := requireString(b, "name"); !res.OK {
		return res
	}
	offersRaw, present := b["offers"]
	if !present {
		return bad("missing offers")
	}
	offers, isSlice := offersRaw.([]any)
	if !isSlice {
		return bad("offers must be an array")
	}
	for i, o := range offers {
		offer, isMap := o.(map[string]any)
		if !isMap {
			return badf("offers[%d] must be an object", i)
		}
		sats, res := requireInt(offer, "btc_sats")
		if !res.OK {
			return badf("offers[%d]: %s", i, res.Reason)
		}
		if sats < 1 {
			return badf("offers[%d]: btc_sats must be >= 1", i)
		}
		if _, res := requireDecimalString(offer, "usdt_amount"); !res.OK {
			return badf("offers[%d]: %s", i, res.Reason)
		}
		if res := validateFeeCeilings(offer); !res.OK {
			return badf("offers[%d]: %s", i, res.Reason)
		}
		if res := validateRefundWindow(offer, "min_sol_refund_window_sec", "max_sol_refund_window_sec"); !res.OK {
			return badf("offers[%d]: %s", i, res.Reason)
		}
	}
	if _, res := requireInt(b, "valid_until_unix"); !res.OK {
		return res
	}
	return ok()
}

func validateSwapInvite(e Envelope) Result {
	b := e.Body
	if _, res := requireString(b, "rfq_id"); !res.OK {
		return res
	}
	if _, res := requireString(b, "quote_id"); !res.OK {
		return res
	}
	channel, res := requireString(b, "swap_channel")
	if !res.OK {
		return res
	}
	if !strings.HasPrefix(channel, "swap:") {
		return bad("swap_channel must start with \"swap:\"")
	}
	if _, res := requireString(b, "owner_pubkey"); !res.OK {
		return res
	}
	if _, res := requireString(b, "invite_b64"); !res.OK {
		return res
	}
	return ok()
}

func validateTerms(e Envelope) Result {
	b := e.Body
	sats, res := requireInt(b, "btc_sats")
	if !res.OK {
		return res
	}
	if sats < 1 {
		return bad("btc_sats must be >= 1")
	}
	if _, res := requireDecimalString(b, "usdt_amount"); !res.OK {
		return res
	}
	for _, f := range []string{"sol_mint", "sol_recipient", "sol_refund", "ln_receiver_peer", "ln_payer_peer", "trade_fee_collector"} {
		if _, res := requireString(b, f); !res.OK {
			return res
		}
	}
	if _, res := requireInt(b, "sol_refund_after_unix"); !res.OK {
		return res
	}
	platform, res := requireInt(b, "platform_fee_bps")
	if !res.OK {
		return res
	}
	trade, res := requireInt(b, "trade_fee_bps")
	if !res.OK {
		return res
	}
	if platform < 0 || platform > maxPlatformFeeBps || trade < 0 || trade > maxTradeFeeBps || platform+trade > maxTotalFeeBps {
		return bad("fee bps out of allowed range")
	}
	if _, res := requireInt(b, "terms_valid_until_unix"); !res.OK {
		return res
	}
	return ok()
}

func validateAccept(e Envelope) Result {
	if _, res := requireString(e.Body, "terms_hash"); !res.OK {
		return res
	}
	return ok()
}

func isHex(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func validateLnInvoice(e Envelope) Result {
	b := e.Body
	if _, res := requireString(b, "bolt11"); !res.OK {
		return res
	}
	hash, res := requireString(b, "payment_hash_hex")
	if !res.OK {
		return res
	}
	if !isHex(hash, 64) {
		return bad("payment_hash_hex must be hex32")
	}
	return ok()
}

func validateSolEscrowCreated(e Envelope) Result {
	b := e.Body
	for _, f := range []string{"escrow_pda", "vault_ata", "tx_sig"} {
		if _, res := requireString(b, f); !res.OK {
			return res
		}
	}
	hash, res := requireString(b, "payment_hash_hex")
	if !res.OK {
		return res
	}
	if !isHex(hash, 64) {
		return bad("payment_hash_hex must be hex32")
	}
	if _, res := requireDecimalString(b, "net_amount"); !res.OK {
		return res
	}
	if _, res := requireDecimalString(b, "fee_amount"); !res.OK {
		return res
	}
	if _, res := requireInt(b, "refund_after_unix"); !res.OK {
		return res
	}
	return ok()
}

func validateLnPaid(e Envelope) Result {
	b := e.Body
	hash, res := requireString(b, "payment_hash_hex")
	if !res.OK {
		return res
	}
	if !isHex(hash, 64) {
		return bad("payment_hash_hex must be hex32")
	}
	preimage, res := requireString(b, "preimage_hex")
	if !res.OK {
		return res
	}
	if !isHex(preimage, 64) {
		return bad("preimage_hex must be hex32")
	}
	return ok()
}

// ValidateQuoteAgainstRFQ enforces I8/I9 and the pair/direction/amount
// consistency a quote must hold with the rfq it references.
func ValidateQuoteAgainstRFQ(quote, rfq Envelope) Result {
	rfqID, err := rfq.ID()
	if err != nil {
		return badf("rfq id: %v", err)
	}
	if quote.bodyString("rfq_id") != rfqID {
		return bad("quote.rfq_id does not match rfq envelope id")
	}
	if quote.bodyString("pair") != rfq.bodyString("pair") {
		return bad("quote.pair != rfq.pair")
	}
	if quote.bodyString("direction") != rfq.bodyString("direction") {
		return bad("quote.direction != rfq.direction")
	}
	if quote.bodyString("app_hash") != rfq.bodyString("app_hash") {
		return bad("quote.app_hash != rfq.app_hash")
	}

	quoteSats, _ := requireInt(quote.Body, "btc_sats")
	rfqSats, _ := requireInt(rfq.Body, "btc_sats")
	if quoteSatsPresent(quote) && quoteSats != rfqSats {
		return bad("quote.btc_sats != rfq.btc_sats")
	}
	quoteUSDT := quote.bodyString("usdt_amount")
	rfqUSDT := rfq.bodyString("usdt_amount")
	if quoteUSDT != "" && quoteUSDT != rfqUSDT {
		return bad("quote.usdt_amount != rfq.usdt_amount")
	}

	maxPlatform, _ := requireInt(rfq.Body, "max_platform_fee_bps")
	maxTrade, _ := requireInt(rfq.Body, "max_trade_fee_bps")
	maxTotal, _ := requireInt(rfq.Body, "max_total_fee_bps")
	platform, _ := requireInt(quote.Body, "platform_fee_bps")
	trade, _ := requireInt(quote.Body, "trade_fee_bps")
	if platform > maxPlatform {
		return bad("quote.platform_fee_bps exceeds rfq.max_platform_fee_bps")
	}
	if trade > maxTrade {
		return bad("quote.trade_fee_bps exceeds rfq.max_trade_fee_bps")
	}
	if platform+trade > maxTotal {
		return bad("quote fee sum exceeds rfq.max_total_fee_bps")
	}

	minWin, _ := requireInt(rfq.Body, "min_sol_refund_window_sec")
	maxWin, _ := requireInt(rfq.Body, "max_sol_refund_window_sec")
	window, _ := requireInt(quote.Body, "sol_refund_window_sec")
	if window < minWin || window > maxWin {
		return bad("quote.sol_refund_window_sec outside rfq's allowed range")
	}

	return ok()
}

func quoteSatsPresent(quote Envelope) bool {
	_, present := quote.Body["btc_sats"]
	return present
}
