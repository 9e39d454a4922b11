package trace_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swapbroker/swapd/internal/core/application/trace"
)

func TestBuffer_RecentReturnsInInsertionOrder(t *testing.T) {
	b := trace.NewBuffer()
	b.Push(trace.Event{TradeID: "t1", Stage: "terms_post", Kind: "posted"})
	b.Push(trace.Event{TradeID: "t1", Stage: "terms_accept", Kind: "posted"})

	events := b.Recent()
	require.Len(t, events, 2)
	require.Equal(t, "terms_post", events[0].Stage)
	require.Equal(t, "terms_accept", events[1].Stage)
}

func TestBuffer_StampsTSWhenUnset(t *testing.T) {
	b := trace.NewBuffer()
	b.Push(trace.Event{TradeID: "t1"})
	events := b.Recent()
	require.NotZero(t, events[0].TS)
}

func TestBuffer_TruncatesSigPrefixToEightChars(t *testing.T) {
	b := trace.NewBuffer()
	b.Push(trace.Event{SigPrefix: "0123456789abcdef"})
	events := b.Recent()
	require.Equal(t, "01234567", events[0].SigPrefix)
}

func TestBuffer_ShortSigLeftUnchanged(t *testing.T) {
	b := trace.NewBuffer()
	b.Push(trace.Event{SigPrefix: "abcd"})
	events := b.Recent()
	require.Equal(t, "abcd", events[0].SigPrefix)
}

func TestBuffer_WrapsAfterCapacityAndDropsOldest(t *testing.T) {
	b := trace.NewBuffer()
	for i := 0; i < 250; i++ {
		b.Push(trace.Event{Detail: strconv.Itoa(i)})
	}
	require.Equal(t, 200, b.Len())

	events := b.Recent()
	require.Len(t, events, 200)
	// the oldest 50 pushes (0..49) were overwritten; the buffer starts at 50
	require.Equal(t, strconv.Itoa(50), events[0].Detail)
	require.Equal(t, strconv.Itoa(249), events[len(events)-1].Detail)
}
