// Package sweeper implements the recovery sweeper (component C8): an
// independent-cadence pass over the receipts store that re-drives
// pending claims and time-unlocked refunds without touching the
// settlement driver's in-memory caches.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/swapbroker/swapd/internal/core/application/trace"
	"github.com/swapbroker/swapd/internal/core/domain"
	"github.com/swapbroker/swapd/internal/core/ports"
)

const (
	defaultTickInterval = 30 * time.Second
	minTickInterval     = time.Second
	maxTickInterval     = 10 * time.Minute

	defaultPageLimit   = 100
	defaultToolTimeout = 25 * time.Second
)

// Config bounds the sweeper's tick behavior. Zero-valued fields are
// replaced by their defaults in NewSweeper.
type Config struct {
	TickInterval time.Duration
	PageLimit    int
	ToolTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.TickInterval < minTickInterval {
		c.TickInterval = minTickInterval
	}
	if c.TickInterval > maxTickInterval {
		c.TickInterval = maxTickInterval
	}
	if c.PageLimit <= 0 {
		c.PageLimit = defaultPageLimit
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = defaultToolTimeout
	}
	return c
}

// Stats is the sweeper's bookkeeping snapshot, refreshed at the end of
// every pass.
type Stats struct {
	Passes        int64
	ClaimsRetried int64
	ClaimsClosed  int64
	RefundsSent   int64
	LastError     string
	LastPassAt    int64
}

// Sweeper re-drives pending claims and refunds directly off the
// receipts store. It never reads the settlement driver's caches — every
// decision is made from a trade's persisted state, so a crashed and
// restarted driver loses nothing a sweeper pass can't recover.
type Sweeper struct {
	cfg    Config
	trades domain.TradeRepository
	chain  ports.ChainClient

	mu           sync.Mutex
	passInFlight bool
	stats        Stats
	trace        *trace.Buffer
}

func NewSweeper(cfg Config, trades domain.TradeRepository, chain ports.ChainClient) *Sweeper {
	return &Sweeper{cfg: cfg.withDefaults(), trades: trades, chain: chain}
}

// SetTrace attaches the shared trace ring buffer claim/refund retries
// are pushed into. Safe to leave unset.
func (s *Sweeper) SetTrace(buf *trace.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trace = buf
}

func (s *Sweeper) traceEvent(ev trace.Event) {
	s.mu.Lock()
	buf := s.trace
	s.mu.Unlock()
	if buf != nil {
		buf.Push(ev)
	}
}

func (s *Sweeper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run ticks Pass on cfg.TickInterval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Pass(ctx)
		}
	}
}

// Pass runs one sweep: reissue open claims, then reissue time-unlocked
// refunds. Fenced by passInFlight so overlapping calls (e.g. a manual
// Pass racing the Run loop's own ticker) never run concurrently.
func (s *Sweeper) Pass(ctx context.Context) {
	s.mu.Lock()
	if s.passInFlight {
		s.mu.Unlock()
		return
	}
	s.passInFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.passInFlight = false
		s.stats.Passes++
		s.stats.LastPassAt = time.Now().UnixMilli()
		s.mu.Unlock()
	}()

	if err := s.sweepClaims(ctx); err != nil {
		s.recordError(err)
	}
	if err := s.sweepRefunds(ctx); err != nil {
		s.recordError(err)
	}
}

func (s *Sweeper) recordError(err error) {
	s.mu.Lock()
	s.stats.LastError = err.Error()
	s.mu.Unlock()
	log.WithError(err).Warn("recovery sweeper pass step failed")
}

func (s *Sweeper) sweepClaims(ctx context.Context) error {
	page := domain.PageRequest{Limit: s.cfg.PageLimit}
	claims, err := s.trades.ListOpenClaims(ctx, page)
	if err != nil {
		return fmt.Errorf("list open claims: %w", err)
	}

	signerCtx, cancel := context.WithTimeout(ctx, s.cfg.ToolTimeout)
	defer cancel()
	recipient, err := s.chain.SignerPubkey(signerCtx)
	if err != nil {
		return fmt.Errorf("resolve chain signer: %w", err)
	}

	for _, trade := range claims {
		if err := s.sweepOneClaim(ctx, trade, recipient); err != nil {
			log.WithError(err).WithField("trade_id", trade.TradeID).Warn("claim sweep failed")
		}
	}
	return nil
}

// sweepOneClaim re-issues the claim transaction if the escrow still
// exists on chain and is unclaimed; if no escrow remains (already
// claimed and pruned, or never existed) the trade is simply marked
// claimed in the receipts store so ListOpenClaims stops returning it.
func (s *Sweeper) sweepOneClaim(ctx context.Context, trade domain.Trade, recipient string) error {
	readCtx, cancel := context.WithTimeout(ctx, s.cfg.ToolTimeout)
	defer cancel()
	state, err := s.chain.ReadEscrowState(readCtx, trade.LnPaymentHashHex)
	if err != nil {
		return fmt.Errorf("read escrow state: %w", err)
	}

	if state == nil || state.Claimed {
		claimedState := domain.StateClaimed
		_, err := s.trades.UpsertTrade(ctx, trade.TradeID, domain.TradePatch{State: &claimedState})
		if err != nil {
			return fmt.Errorf("mark trade claimed: %w", err)
		}
		s.mu.Lock()
		s.stats.ClaimsClosed++
		s.mu.Unlock()
		s.traceEvent(trace.Event{TradeID: trade.TradeID, Stage: "sol_claim", Kind: "closed"})
		return nil
	}

	buildCtx, cancel2 := context.WithTimeout(ctx, s.cfg.ToolTimeout)
	defer cancel2()
	tx, err := s.chain.BuildClaimTx(buildCtx, ports.ClaimParams{
		PaymentHashHex:        trade.LnPaymentHashHex,
		RecipientTokenAccount: recipient,
		PreimageHex:           trade.LnPreimageHex,
		TradeFeeCollector:     trade.TradeFeeCollector,
	})
	if err != nil {
		return fmt.Errorf("build claim tx: %w", err)
	}
	if _, err := s.chain.SendAndConfirm(buildCtx, tx); err != nil {
		return fmt.Errorf("send claim tx: %w", err)
	}

	claimedState := domain.StateClaimed
	if _, err := s.trades.UpsertTrade(ctx, trade.TradeID, domain.TradePatch{State: &claimedState}); err != nil {
		return fmt.Errorf("mark trade claimed: %w", err)
	}
	s.mu.Lock()
	s.stats.ClaimsRetried++
	s.mu.Unlock()
	s.traceEvent(trace.Event{TradeID: trade.TradeID, Stage: "sol_claim", Kind: "retried"})
	return nil
}

func (s *Sweeper) sweepRefunds(ctx context.Context) error {
	page := domain.PageRequest{Limit: s.cfg.PageLimit}
	refunds, err := s.trades.ListOpenRefunds(ctx, time.Now().Unix(), page)
	if err != nil {
		return fmt.Errorf("list open refunds: %w", err)
	}

	signerCtx, cancel := context.WithTimeout(ctx, s.cfg.ToolTimeout)
	defer cancel()
	refundTo, err := s.chain.SignerPubkey(signerCtx)
	if err != nil {
		return fmt.Errorf("resolve chain signer: %w", err)
	}

	for _, trade := range refunds {
		if err := s.sweepOneRefund(ctx, trade, refundTo); err != nil {
			log.WithError(err).WithField("trade_id", trade.TradeID).Warn("refund sweep failed")
		}
	}
	return nil
}

// sweepOneRefund is idempotent: it re-issues the refund transaction
// using the trade's persisted payment hash, regardless of how many
// prior sweep passes also attempted it, and only advances state to
// refunded once SendAndConfirm reports success.
func (s *Sweeper) sweepOneRefund(ctx context.Context, trade domain.Trade, refundTo string) error {
	readCtx, cancel := context.WithTimeout(ctx, s.cfg.ToolTimeout)
	defer cancel()
	state, err := s.chain.ReadEscrowState(readCtx, trade.LnPaymentHashHex)
	if err != nil {
		return fmt.Errorf("read escrow state: %w", err)
	}
	if state != nil && (state.Claimed || state.Refunded) {
		already := domain.StateRefunded
		if state.Claimed {
			already = domain.StateClaimed
		}
		_, err := s.trades.UpsertTrade(ctx, trade.TradeID, domain.TradePatch{State: &already})
		return err
	}

	buildCtx, cancel2 := context.WithTimeout(ctx, s.cfg.ToolTimeout)
	defer cancel2()
	tx, err := s.chain.BuildRefundTx(buildCtx, ports.RefundParams{
		PaymentHashHex:     trade.LnPaymentHashHex,
		RefundTokenAccount: refundTo,
	})
	if err != nil {
		return fmt.Errorf("build refund tx: %w", err)
	}
	if _, err := s.chain.SendAndConfirm(buildCtx, tx); err != nil {
		return fmt.Errorf("send refund tx: %w", err)
	}

	refundedState := domain.StateRefunded
	if _, err := s.trades.UpsertTrade(ctx, trade.TradeID, domain.TradePatch{State: &refundedState}); err != nil {
		return fmt.Errorf("mark trade refunded: %w", err)
	}
	s.mu.Lock()
	s.stats.RefundsSent++
	s.mu.Unlock()
	s.traceEvent(trace.Event{TradeID: trade.TradeID, Stage: "sol_refund", Kind: "sent"})
	return nil
}
