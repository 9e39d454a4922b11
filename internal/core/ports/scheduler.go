package ports

import "time"

// IntervalScheduler is the tick source the autopost scheduler (C5)
// drives named jobs through. It wraps a recurring-interval scheduler
// library (go-co-op/gocron) behind a minimal surface so the application
// layer never imports the library directly.
type IntervalScheduler interface {
	Start()
	Stop()
	Every(name string, interval time.Duration, fn func()) error
	Remove(name string)
	NextRun(name string) (time.Time, bool)
}
