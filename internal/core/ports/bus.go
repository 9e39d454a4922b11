package ports

import (
	"context"
	"time"

	"github.com/swapbroker/swapd/pkg/envelope"
)

// BusEvent is one entry of the sidechannel log as observed via
// LogRead: the append-only, channel-addressed, local-tailable event
// stream the settlement driver folds into contexts (component C6).
type BusEvent struct {
	Seq     uint64
	TS      int64
	Channel string
	Kind    envelope.Kind
	TradeID string
	Message envelope.Envelope
}

// BusClient is the sidechannel bus as an external, consumed-only
// collaborator — this core never implements it, only drives it.
type BusClient interface {
	Subscribe(ctx context.Context, channels []string, timeout time.Duration) error
	Join(ctx context.Context, channel string) error
	Leave(ctx context.Context, channel string) error
	Publish(ctx context.Context, channel string, signed envelope.Envelope) error
	LogRead(ctx context.Context, sinceSeq uint64, limit int) (events []BusEvent, latestSeq uint64, err error)
	Info(ctx context.Context) (peerPubkeyHex string, err error)
}
