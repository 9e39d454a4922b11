// Package scheduler wraps go-co-op/gocron behind ports.IntervalScheduler:
// a named-job Every(interval).Do(fn) primitive the autopost service (C5)
// drives tick sources through.
package scheduler

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/swapbroker/swapd/internal/core/ports"
)

type service struct {
	scheduler *gocron.Scheduler

	mu   sync.Mutex
	jobs map[string]*gocron.Job
}

func NewScheduler() ports.IntervalScheduler {
	return &service{
		scheduler: gocron.NewScheduler(time.UTC),
		jobs:      make(map[string]*gocron.Job),
	}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

// Every (re)schedules the named job to run fn every interval. A prior
// job under the same name is removed first so re-registering a name
// replaces rather than duplicates it.
func (s *service) Every(name string, interval time.Duration, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[name]; ok {
		s.scheduler.Remove(existing)
		delete(s.jobs, name)
	}

	seconds := int(interval.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	job, err := s.scheduler.Every(seconds).Seconds().Do(fn)
	if err != nil {
		return err
	}
	s.jobs[name] = job
	return nil
}

func (s *service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[name]
	if !ok {
		return
	}
	s.scheduler.Remove(job)
	delete(s.jobs, name)
}

func (s *service) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	return job.NextRun(), true
}
