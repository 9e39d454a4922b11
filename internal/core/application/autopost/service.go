// Package autopost implements the autopost scheduler (component C5): a
// name -> Job map driving periodic republication of offers and RFQs with
// a fixed, non-extendable expiry.
package autopost

import (
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/swapbroker/swapd/internal/core/application/trace"
	"github.com/swapbroker/swapd/internal/core/domain"
	"github.com/swapbroker/swapd/internal/core/ports"
)

const (
	minIntervalSec = 1
	maxIntervalSec = 86400
	minTTLSec      = 10
	maxTTLSec      = 604800
)

// Publisher performs the actual publish side-effect for a tool. The
// service never talks to the bus directly.
type Publisher func(tool domain.AutopostTool, args map[string]any) error

type StartRequest struct {
	Name           string
	Tool           domain.AutopostTool
	IntervalSec    int64
	TTLSec         int64
	ValidUntilUnix int64 // 0 means derive from ttl_sec
	Args           map[string]any
}

type StopResult struct {
	OK     bool
	Reason string
}

// Service owns the job map. The scheduler keeps one entry per job name
// (re-registering a name replaces it) but does not wait for a job's
// previous run to finish, so two runs of the same job can overlap if a
// publish outlasts the interval; runOnce guards the job's run bookkeeping
// with mu.
type Service struct {
	scheduler ports.IntervalScheduler
	publish   Publisher

	mu   sync.Mutex
	jobs map[string]*domain.AutopostJob

	trace *trace.Buffer
}

func NewService(scheduler ports.IntervalScheduler, publish Publisher) *Service {
	return &Service{
		scheduler: scheduler,
		publish:   publish,
		jobs:      make(map[string]*domain.AutopostJob),
	}
}

// SetTrace attaches the shared trace ring buffer every publish attempt is
// pushed into. Safe to leave unset.
func (s *Service) SetTrace(buf *trace.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trace = buf
}

func (s *Service) traceEvent(ev trace.Event) {
	s.mu.Lock()
	buf := s.trace
	s.mu.Unlock()
	if buf != nil {
		buf.Push(ev)
	}
}

func (s *Service) Start(req StartRequest) error {
	if req.Tool != domain.ToolPublishOffer && req.Tool != domain.ToolPublishRFQ {
		return fmt.Errorf("autopost: unknown tool %q", req.Tool)
	}

	s.mu.Lock()
	if _, exists := s.jobs[req.Name]; exists {
		s.mu.Unlock()
		return domain.ErrJobNameInUse
	}
	s.mu.Unlock()

	interval := clamp(req.IntervalSec, minIntervalSec, maxIntervalSec)
	if req.TTLSec < minTTLSec || req.TTLSec > maxTTLSec {
		return fmt.Errorf("autopost: ttl_sec %d out of range [%d,%d]", req.TTLSec, minTTLSec, maxTTLSec)
	}

	now := time.Now().Unix()
	validUntil := req.ValidUntilUnix
	if validUntil == 0 {
		validUntil = now + req.TTLSec
	}
	horizon := validUntil - now
	if horizon < minTTLSec || horizon > maxTTLSec {
		return domain.ErrInvalidHorizon
	}

	job := &domain.AutopostJob{
		Name:           req.Name,
		Tool:           req.Tool,
		IntervalSec:    interval,
		TTLSec:         req.TTLSec,
		ValidUntilUnix: validUntil,
		Args:           cloneArgs(req.Args),
		StartedAt:      now,
	}

	s.mu.Lock()
	s.jobs[req.Name] = job
	s.mu.Unlock()

	s.runOnce(job)

	err := s.scheduler.Every(req.Name, time.Duration(interval)*time.Second, func() {
		s.tick(req.Name)
	})
	if err != nil {
		s.mu.Lock()
		delete(s.jobs, req.Name)
		s.mu.Unlock()
		return fmt.Errorf("autopost: schedule %q: %w", req.Name, err)
	}
	return nil
}

// tick fires on every scheduled interval. If the job's fixed horizon has
// passed it self-destructs; otherwise it republishes with the frozen
// valid_until_unix, never a later one.
func (s *Service) tick(name string) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return
	}

	if time.Now().Unix() >= job.ValidUntilUnix {
		s.Stop(name)
		return
	}
	s.runOnce(job)
}

// runOnce rebuilds runArgs from the job's frozen args snapshot, strips
// any caller-supplied ttl, and stamps the job's fixed valid_until_unix
// before invoking publish. This is I4: no run ever publishes a later
// validity than the one fixed at start.
func (s *Service) runOnce(job *domain.AutopostJob) {
	runArgs := cloneArgs(job.Args)
	delete(runArgs, "ttl_sec")
	runArgs["valid_until_unix"] = job.ValidUntilUnix

	err := s.publish(job.Tool, runArgs)

	s.mu.Lock()
	cur, ok := s.jobs[job.Name]
	if !ok {
		s.mu.Unlock()
		return
	}
	cur.Runs++
	cur.LastRunAt = time.Now().Unix()
	if err != nil {
		cur.LastOK = false
		cur.LastError = err.Error()
	} else {
		cur.LastOK = true
		cur.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		log.WithError(err).WithField("job", job.Name).Warn("autopost run failed")
		s.traceEvent(trace.Event{Stage: string(job.Tool), Kind: "failed", Detail: job.Name})
		return
	}
	s.traceEvent(trace.Event{Stage: string(job.Tool), Kind: "posted", Detail: job.Name})
}

func (s *Service) Stop(name string) StopResult {
	s.mu.Lock()
	_, ok := s.jobs[name]
	if ok {
		delete(s.jobs, name)
	}
	s.mu.Unlock()

	s.scheduler.Remove(name)
	if !ok {
		return StopResult{OK: true, Reason: "not_found"}
	}
	return StopResult{OK: true}
}

// Status returns a snapshot of jobs sorted by started_at descending. An
// empty name returns every job; a non-empty name returns at most one.
func (s *Service) Status(name string) []domain.AutopostSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AutopostSnapshot
	for _, j := range s.jobs {
		if name != "" && j.Name != name {
			continue
		}
		out = append(out, domain.AutopostSnapshot{
			Name: j.Name, Tool: j.Tool, IntervalSec: j.IntervalSec, TTLSec: j.TTLSec,
			ValidUntilUnix: j.ValidUntilUnix, Args: cloneArgs(j.Args),
			Runs: j.Runs, StartedAt: j.StartedAt, LastRunAt: j.LastRunAt,
			LastOK: j.LastOK, LastError: j.LastError,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	return out
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
