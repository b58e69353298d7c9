// Package scheduler drives the recurring scrape, summary and retraining jobs
// from a single background loop.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"engine-deals/services"
	"engine-deals/utils"

	"github.com/robfig/cron/v3"
)

// Jobs is the work the scheduler runs.
type Jobs interface {
	RunScrapeCycle(ctx context.Context) (*services.CycleResult, error)
	RunDailySummary(ctx context.Context) error
	RunRetraining(ctx context.Context) (bool, error)
}

// Config sets the cadences. Summary and retrain are standard 5-field cron
// specs evaluated in the clock's location.
type Config struct {
	ScrapeInterval  time.Duration
	SummarySchedule string
	RetrainSchedule string
	Tick            time.Duration
	StopTimeout     time.Duration
}

const (
	jobScrape  = "scrape-and-score"
	jobSummary = "daily-summary"
	jobRetrain = "retrain-model"
)

type job struct {
	name     string
	schedule cron.Schedule
	run      func(ctx context.Context) error
	next     time.Time
}

// Scheduler owns one background loop that wakes every Tick and runs the
// jobs that are due, one at a time.
type Scheduler struct {
	work   Jobs
	cfg    Config
	logger *utils.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	jobs    []*job
	stop    chan struct{}
	done    chan struct{}
}

func New(work Jobs, cfg Config, logger *utils.Logger) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	return &Scheduler{work: work, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock replaces the wall clock used to decide which jobs are due.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start registers the jobs, runs one scrape cycle before returning and then
// starts the background loop. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("[scheduler] Already running")
		return nil
	}
	jobs, err := s.buildJobs()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.jobs = jobs
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	s.logger.Info("[scheduler] Started: scrape every %v, summary %q, retrain %q",
		s.cfg.ScrapeInterval, s.cfg.SummarySchedule, s.cfg.RetrainSchedule)

	s.runJob(ctx, jobs[0])

	go s.loop(ctx, stop, done)
	return nil
}

func (s *Scheduler) buildJobs() ([]*job, error) {
	summary, err := cron.ParseStandard(s.cfg.SummarySchedule)
	if err != nil {
		return nil, fmt.Errorf("scheduler: summary schedule %q: %w", s.cfg.SummarySchedule, err)
	}
	retrain, err := cron.ParseStandard(s.cfg.RetrainSchedule)
	if err != nil {
		return nil, fmt.Errorf("scheduler: retrain schedule %q: %w", s.cfg.RetrainSchedule, err)
	}
	if s.cfg.ScrapeInterval <= 0 {
		return nil, fmt.Errorf("scheduler: scrape interval must be positive, got %v", s.cfg.ScrapeInterval)
	}

	now := s.now()
	jobs := []*job{
		{name: jobScrape, schedule: cron.Every(s.cfg.ScrapeInterval), run: func(ctx context.Context) error {
			_, err := s.work.RunScrapeCycle(ctx)
			return err
		}},
		{name: jobSummary, schedule: summary, run: s.work.RunDailySummary},
		{name: jobRetrain, schedule: retrain, run: func(ctx context.Context) error {
			_, err := s.work.RunRetraining(ctx)
			return err
		}},
	}
	for _, j := range jobs {
		j.next = j.schedule.Next(now)
	}
	return jobs, nil
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			s.logger.Info("[scheduler] Context cancelled, loop exiting")
			return
		case <-ticker.C:
			s.runPending(ctx, stop)
		}
	}
}

// RunPending runs every job whose next run time has passed, in registration
// order, and returns how many ran.
func (s *Scheduler) RunPending(ctx context.Context) int {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	return s.runPending(ctx, stop)
}

// runPending stops early once stop is closed, so a loop left over from an
// earlier Start never runs jobs next to the current one.
func (s *Scheduler) runPending(ctx context.Context, stop <-chan struct{}) int {
	s.mu.Lock()
	var due []*job
	now := s.now()
	for _, j := range s.jobs {
		if !now.Before(j.next) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	ran := 0
	for _, j := range due {
		if stopped(stop) {
			break
		}
		s.runJob(ctx, j)
		ran++
	}
	return ran
}

func stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return true
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// NextRuns returns the next run time of every registered job.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.jobs))
	for _, j := range s.jobs {
		out[j.name] = j.next
	}
	return out
}

// runJob runs j to completion and schedules its next run. Errors and panics
// are logged and never escape.
func (s *Scheduler) runJob(ctx context.Context, j *job) {
	start := time.Now()
	s.logger.Info("[scheduler] Running %s", j.name)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return j.run(ctx)
	}()

	if err != nil {
		s.logger.Error("[scheduler] %s failed after %v: %v", j.name, time.Since(start).Round(time.Millisecond), err)
	} else {
		s.logger.Info("[scheduler] %s finished in %v", j.name, time.Since(start).Round(time.Millisecond))
	}

	s.mu.Lock()
	j.next = j.schedule.Next(s.now())
	s.mu.Unlock()
}

// Stop halts the loop, waits up to StopTimeout for a running job to finish
// and clears the registered jobs. A job still running after the timeout is
// left to finish on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("[scheduler] Loop did not exit within %v", s.cfg.StopTimeout)
	}

	s.mu.Lock()
	s.jobs = nil
	s.mu.Unlock()
	s.logger.Info("[scheduler] Stopped")
}
