// Package portstest provides hand-written in-memory fakes for the
// external ports, in the style of the corpus's own hand-rolled test
// doubles rather than a generated-mock framework.
package portstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/swapbroker/swapd/internal/core/ports"
	"github.com/swapbroker/swapd/pkg/envelope"
)

// FakeBus is an in-memory BusClient: publishing to a channel appends to
// a single shared, monotonically-numbered log that LogRead tails, the
// same shape a real append-only sidechannel bus exposes.
type FakeBus struct {
	mu       sync.Mutex
	peer     string
	log      []ports.BusEvent
	joined   map[string]bool
	failNext error
}

func NewFakeBus(peerPubkeyHex string) *FakeBus {
	return &FakeBus{peer: peerPubkeyHex, joined: map[string]bool{}}
}

func (b *FakeBus) Subscribe(ctx context.Context, channels []string, timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range channels {
		b.joined[c] = true
	}
	return nil
}

func (b *FakeBus) Join(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joined[channel] = true
	return nil
}

func (b *FakeBus) Leave(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.joined, channel)
	return nil
}

// FailNextPublish makes the next Publish call return err instead of
// succeeding, then clears itself.
func (b *FakeBus) FailNextPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = err
}

func (b *FakeBus) Publish(ctx context.Context, channel string, signed envelope.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext != nil {
		err := b.failNext
		b.failNext = nil
		return err
	}
	seq := uint64(len(b.log)) + 1
	b.log = append(b.log, ports.BusEvent{
		Seq:     seq,
		TS:      signed.TS,
		Channel: channel,
		Kind:    signed.Kind,
		TradeID: signed.TradeID,
		Message: signed,
	})
	return nil
}

func (b *FakeBus) LogRead(ctx context.Context, sinceSeq uint64, limit int) ([]ports.BusEvent, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []ports.BusEvent
	for _, e := range b.log {
		if e.Seq <= sinceSeq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	latest := sinceSeq
	if len(b.log) > 0 {
		latest = b.log[len(b.log)-1].Seq
	}
	return out, latest, nil
}

func (b *FakeBus) Info(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.peer == "" {
		return "", fmt.Errorf("fake bus: no peer configured")
	}
	return b.peer, nil
}

// Log exposes the raw event log for assertions in tests.
func (b *FakeBus) Log() []ports.BusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ports.BusEvent, len(b.log))
	copy(out, b.log)
	return out
}
