// Package driver implements the settlement driver (component C7): the
// single timer-driven loop that reads the sidechannel log, builds
// negotiation/trade contexts (C6), and drives the five auto-trading
// pipelines and the per-trade settlement state machine forward.
package driver

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	appcontext "github.com/swapbroker/swapd/internal/core/application/context"
	"github.com/swapbroker/swapd/internal/core/application/trace"
	"github.com/swapbroker/swapd/internal/core/domain"
	"github.com/swapbroker/swapd/internal/core/ports"
	"github.com/swapbroker/swapd/pkg/envelope"
)

const (
	defaultTickInterval = time.Second
	minTickInterval     = 250 * time.Millisecond
	maxTickInterval     = 10 * time.Second

	defaultActionsPerTick = 12

	defaultSubscribeTimeout = 10 * time.Second
	defaultIdentityTimeout  = 8 * time.Second
	defaultToolTimeout      = 25 * time.Second
	minToolTimeout          = 250 * time.Millisecond
	maxToolTimeout          = 120 * time.Second

	defaultEventMaxAge = 10 * time.Minute
	defaultKeepAlive   = 5 * time.Minute

	defaultCooldown     = 10 * time.Second
	solClaimCooldown    = 15 * time.Second

	defaultMaxTrades = 200

	defaultLnFeeLimitSat = 1000
)

// Config bounds the driver's tick behavior. Zero-valued fields are
// replaced by their spec-mandated defaults in NewDriver.
type Config struct {
	Channels []string

	TickInterval     time.Duration
	ActionsPerTick   int
	SubscribeTimeout time.Duration
	IdentityTimeout  time.Duration
	ToolTimeout      time.Duration
	EventMaxAge      time.Duration
	KeepAliveEvery   time.Duration
	MaxTrades        int

	// SolMint and TradeFeeCollector are this node's maker-side terms: the
	// token mint it quotes against and the address its trade fee share is
	// paid to. LnFeeLimitSat bounds LN routing fees on the taker side.
	SolMint           string
	TradeFeeCollector string
	LnFeeLimitSat     int64
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	c.TickInterval = clampDuration(c.TickInterval, minTickInterval, maxTickInterval)
	if c.ActionsPerTick <= 0 {
		c.ActionsPerTick = defaultActionsPerTick
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = defaultSubscribeTimeout
	}
	if c.IdentityTimeout <= 0 {
		c.IdentityTimeout = defaultIdentityTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = defaultToolTimeout
	}
	c.ToolTimeout = clampDuration(c.ToolTimeout, minToolTimeout, maxToolTimeout)
	if c.EventMaxAge <= 0 {
		c.EventMaxAge = defaultEventMaxAge
	}
	if c.KeepAliveEvery <= 0 {
		c.KeepAliveEvery = defaultKeepAlive
	}
	if c.MaxTrades <= 0 {
		c.MaxTrades = defaultMaxTrades
	}
	if c.LnFeeLimitSat <= 0 {
		c.LnFeeLimitSat = defaultLnFeeLimitSat
	}
	return c
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Stats is the driver's bookkeeping snapshot, refreshed at the end of
// every tick.
type Stats struct {
	Ticks       int64
	Actions     int64
	LastTickAt  int64
	LastError   string
	StartedAt   int64
}

// Driver owns the tick loop. It never constructs on-chain scripts or LN
// wire messages itself — every side effect crosses one of the three
// external ports.
type Driver struct {
	cfg        Config
	bus        ports.BusClient
	ln         ports.LnClient
	chain      ports.ChainClient
	trades     domain.TradeRepository
	signerPriv ed25519.PrivateKey

	mu            sync.Mutex
	tickInFlight  bool
	lastSeq       uint64
	window        []ports.BusEvent
	lastKeepAlive time.Time
	cancel        context.CancelFunc

	localPeer        string
	localChainSigner string

	caches caches
	stats  Stats
	trace  *trace.Buffer
}

// SetTrace attaches the shared trace ring buffer every settlement stage
// completion and failure is pushed into. Safe to leave unset; a nil trace
// buffer just means traceEvent is a no-op.
func (d *Driver) SetTrace(buf *trace.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trace = buf
}

func (d *Driver) traceEvent(ev trace.Event) {
	d.mu.Lock()
	buf := d.trace
	d.mu.Unlock()
	if buf != nil {
		buf.Push(ev)
	}
}

func NewDriver(cfg Config, bus ports.BusClient, ln ports.LnClient, chain ports.ChainClient, trades domain.TradeRepository, signerPriv ed25519.PrivateKey) *Driver {
	return &Driver{
		cfg:        cfg.withDefaults(),
		bus:        bus,
		ln:         ln,
		chain:      chain,
		trades:     trades,
		signerPriv: signerPriv,
		caches:     newCaches(),
		stats:      Stats{StartedAt: time.Now().UnixMilli()},
	}
}

func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Run starts the driver's own tick loop at cfg.TickInterval, ticking
// until ctx is canceled or Stop is called. Only one Run loop should be
// active on a Driver at a time.
func (d *Driver) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			d.Tick(runCtx)
		}
	}
}

// Stop cancels the Run loop, clears the reentrancy flag, and empties the
// in-memory event window and pipeline caches; durable receipts are left
// untouched.
func (d *Driver) Stop() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.tickInFlight = false
	d.window = nil
	d.caches = newCaches()
	d.mu.Unlock()
}

// Tick runs one full pass: keep-alive, log tail, identity resolve,
// context build, and the five pipelines, fenced by tickInFlight so
// concurrent ticks never overlap.
func (d *Driver) Tick(ctx context.Context) {
	d.mu.Lock()
	if d.tickInFlight {
		d.mu.Unlock()
		return
	}
	d.tickInFlight = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.tickInFlight = false
		d.mu.Unlock()
	}()

	budget := &actionBudget{left: d.cfg.ActionsPerTick}

	if err := d.keepAlive(ctx); err != nil {
		d.recordError(err)
	}
	if err := d.readLogTail(ctx); err != nil {
		d.recordError(err)
		d.finishTick(budget)
		return
	}
	if err := d.resolveIdentity(ctx); err != nil {
		d.recordError(err)
		d.finishTick(budget)
		return
	}

	d.mu.Lock()
	window := append([]ports.BusEvent(nil), d.window...)
	localPeer := d.localPeer
	d.mu.Unlock()

	built := appcontext.Build(window, localPeer)

	live := make(map[string]bool, len(built.Negotiations)+len(built.Trades))
	for tradeID := range built.Negotiations {
		live[tradeID] = true
	}
	for _, tc := range built.Trades {
		live[tc.TradeID] = !tc.IsTerminal()
	}
	d.caches.pruneTerminal(live)

	d.driveQuoteFromOffer(ctx, built, budget)
	d.driveAcceptQuote(ctx, built, budget)
	d.driveInviteFromAccept(ctx, built, budget)
	d.driveJoinInvite(ctx, built, budget)
	d.driveSettlement(ctx, built, budget)

	d.finishTick(budget)
}

func (d *Driver) finishTick(budget *actionBudget) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Ticks++
	d.stats.Actions += int64(d.cfg.ActionsPerTick - budget.left)
	d.stats.LastTickAt = time.Now().UnixMilli()
}

func (d *Driver) recordError(err error) {
	d.mu.Lock()
	d.stats.LastError = err.Error()
	d.mu.Unlock()
	log.WithError(err).Warn("settlement driver tick step failed")
}

func (d *Driver) keepAlive(ctx context.Context) error {
	d.mu.Lock()
	due := time.Since(d.lastKeepAlive) >= d.cfg.KeepAliveEvery
	d.mu.Unlock()
	if !due || len(d.cfg.Channels) == 0 {
		return nil
	}

	subCtx, cancel := context.WithTimeout(ctx, d.cfg.SubscribeTimeout)
	defer cancel()
	if err := d.bus.Subscribe(subCtx, d.cfg.Channels, d.cfg.SubscribeTimeout); err != nil {
		return fmt.Errorf("keep-alive subscribe: %w", err)
	}

	d.mu.Lock()
	d.lastKeepAlive = time.Now()
	d.mu.Unlock()
	return nil
}

func (d *Driver) readLogTail(ctx context.Context) error {
	d.mu.Lock()
	sinceSeq := d.lastSeq
	d.mu.Unlock()

	events, latestSeq, err := d.bus.LogRead(ctx, sinceSeq, 0)
	if err != nil {
		return fmt.Errorf("log tail read: %w", err)
	}

	cutoff := time.Now().Add(-d.cfg.EventMaxAge).UnixMilli()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = append(d.window, events...)
	d.lastSeq = latestSeq

	kept := d.window[:0]
	for _, e := range d.window {
		if e.TS >= cutoff {
			kept = append(kept, e)
		}
	}
	d.window = kept
	return nil
}

func (d *Driver) resolveIdentity(ctx context.Context) error {
	idCtx, cancel := context.WithTimeout(ctx, d.cfg.IdentityTimeout)
	defer cancel()
	peer, err := d.bus.Info(idCtx)
	if err != nil {
		return fmt.Errorf("resolve peer identity: %w", err)
	}

	chainCtx, cancel2 := context.WithTimeout(ctx, d.cfg.IdentityTimeout)
	defer cancel2()
	signer, err := d.chain.SignerPubkey(chainCtx)
	if err != nil {
		return fmt.Errorf("resolve chain signer identity: %w", err)
	}

	d.mu.Lock()
	d.localPeer = peer
	d.localChainSigner = signer
	d.mu.Unlock()
	return nil
}

// actionBudget is the per-tick external-side-effect counter shared
// across all five pipelines.
type actionBudget struct {
	left int
}

func (b *actionBudget) spend() bool {
	if b.left <= 0 {
		return false
	}
	b.left--
	return true
}

// publish signs and publishes an envelope, then appends it to the
// trade's durable event log if a trade_id is present.
func (d *Driver) publish(ctx context.Context, channel string, kind envelope.Kind, tradeID string, body map[string]any) (envelope.Envelope, error) {
	unsigned := envelope.Envelope{
		V:       envelope.ProtocolVersion,
		Kind:    kind,
		TradeID: tradeID,
		Body:    body,
		TS:      time.Now().UnixMilli(),
		Nonce:   uuid.New().String(),
	}
	signed, err := envelope.Sign(unsigned, d.signerPriv)
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("sign %s: %w", kind, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, d.cfg.ToolTimeout)
	defer cancel()
	if err := d.bus.Publish(pubCtx, channel, signed); err != nil {
		return envelope.Envelope{}, fmt.Errorf("publish %s: %w", kind, err)
	}

	if tradeID != "" && d.trades != nil {
		payload, _ := envelope.Canonical(signed)
		_ = d.trades.AppendEvent(ctx, tradeID, string(kind), string(payload), signed.TS)
	}
	return signed, nil
}
