package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	scheduler "github.com/swapbroker/swapd/internal/infrastructure/scheduler/gocron"
)

func TestScheduler_EveryRunsRepeatedly(t *testing.T) {
	svc := scheduler.NewScheduler()
	svc.Start()
	defer svc.Stop()

	ticks := make(chan struct{}, 8)
	require.NoError(t, svc.Every("probe", 50*time.Millisecond, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}))

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		require.Fail(t, "job did not fire")
	}
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		require.Fail(t, "job did not fire a second time")
	}
}

func TestScheduler_EveryReplacesSameName(t *testing.T) {
	svc := scheduler.NewScheduler()
	svc.Start()
	defer svc.Stop()

	require.NoError(t, svc.Every("job", time.Second, func() {}))
	first, ok := svc.NextRun("job")
	require.True(t, ok)

	require.NoError(t, svc.Every("job", time.Hour, func() {}))
	second, ok := svc.NextRun("job")
	require.True(t, ok)
	require.True(t, second.After(first))
}

func TestScheduler_RemoveClearsNextRun(t *testing.T) {
	svc := scheduler.NewScheduler()
	svc.Start()
	defer svc.Stop()

	require.NoError(t, svc.Every("job", time.Minute, func() {}))
	svc.Remove("job")

	_, ok := svc.NextRun("job")
	require.False(t, ok)
}

func TestScheduler_NextRunUnknownNameIsFalse(t *testing.T) {
	svc := scheduler.NewScheduler()
	_, ok := svc.NextRun("never-registered")
	require.False(t, ok)
}
