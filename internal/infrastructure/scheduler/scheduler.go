// Package scheduler runs background jobs on interval or cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jianghu-hub/arena-hub/pkg/clock"
	"github.com/jianghu-hub/arena-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of scheduled work.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the next run time after t. The zero time disables the job.
	Next(t time.Time) time.Time

	String() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string        `json:"jobName"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Manual      bool          `json:"manual,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobRunning              = errors.New("job is already running")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Scheduler.
type Config struct {
	Logger zerolog.Logger

	// Clock provides "now" for schedule calculations.
	Clock clock.Clock

	// Tick is how often due jobs are checked (default: 1s).
	Tick time.Duration

	// MaxHistory is the number of results kept (default: 100).
	MaxHistory int
}

// Scheduler manages and executes scheduled jobs. A job never overlaps with itself.
type Scheduler struct {
	mu sync.RWMutex

	logger     zerolog.Logger
	clock      clock.Clock
	tick       time.Duration
	maxHistory int

	jobs    map[string]*scheduledJob
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	metrics *Metrics
	history []JobResult
}

type scheduledJob struct {
	job       Job
	schedule  Schedule
	nextRun   time.Time
	lastRun   time.Time
	active    bool
	runCount  int64
	failCount int64
	last      *JobResult
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 100
	}
	return &Scheduler{
		logger:     logger.Component(cfg.Logger, "scheduler"),
		clock:      cfg.Clock,
		tick:       cfg.Tick,
		maxHistory: cfg.MaxHistory,
		jobs:       make(map[string]*scheduledJob),
		metrics:    newMetrics(),
	}
}

// Register adds a job with its schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{job: job, schedule: schedule, nextRun: schedule.Next(s.clock.Now())}
	s.jobs[name] = sj

	s.logger.Info().
		Str(logger.KeyJob, name).
		Str("schedule", schedule.String()).
		Time("next_run", sj.nextRun).
		Msg("job registered")
	return nil
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue starts every due job that is not already running.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*scheduledJob
	for _, sj := range s.jobs {
		if sj.active || sj.nextRun.IsZero() || now.Before(sj.nextRun) {
			continue
		}
		sj.active = true
		sj.nextRun = sj.schedule.Next(now)
		due = append(due, sj)
	}
	s.mu.Unlock()

	for _, sj := range due {
		s.wg.Add(1)
		go func(sj *scheduledJob) {
			defer s.wg.Done()
			s.execute(ctx, sj, false)
		}(sj)
	}
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.Lock()
	sj, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if sj.active {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	sj.active = true
	s.mu.Unlock()

	result := s.execute(ctx, sj, true)
	if !result.Success {
		return &result, errors.New(result.Error)
	}
	return &result, nil
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) JobResult {
	name := sj.job.Name()
	log := s.logger.With().Str(logger.KeyJob, name).Bool("manual", manual).Logger()
	log.Info().Msg("job started")

	started := time.Now()
	err := s.safeRun(logger.WithContext(ctx, log), sj.job)
	finished := time.Now()

	result := JobResult{
		JobName:     name,
		StartedAt:   started,
		CompletedAt: finished,
		Duration:    finished.Sub(started),
		Success:     err == nil,
		Manual:      manual,
	}
	if err != nil {
		result.Error = err.Error()
	}

	s.metrics.record(name, result.Duration, result.Success)

	s.mu.Lock()
	sj.active = false
	sj.lastRun = started
	sj.runCount++
	if err != nil {
		sj.failCount++
	}
	sj.last = &result
	s.history = append(s.history, result)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Dur("duration", result.Duration).Msg("job failed")
	} else {
		log.Info().Dur("duration", result.Duration).Msg("job completed")
	}
	return result
}

// safeRun turns a panicking job into a failed run.
func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	Running     bool       `json:"running"`
	LastRun     time.Time  `json:"lastRun"`
	NextRun     time.Time  `json:"nextRun"`
	RunCount    int64      `json:"runCount"`
	FailCount   int64      `json:"failCount"`
	LastResult  *JobResult `json:"lastResult,omitempty"`
}

// ListJobs returns the registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			Running:     sj.active,
			LastRun:     sj.lastRun,
			NextRun:     sj.nextRun,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
			LastResult:  sj.last,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// History returns up to limit most recent results, oldest first.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]JobResult, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

// Metrics returns a snapshot of the execution counters.
func (s *Scheduler) Metrics() MetricsSnapshot {
	return s.metrics.snapshot()
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics tracks job executions.
type Metrics struct {
	mu sync.Mutex

	executions int64
	failures   int64
	total      time.Duration
	byJob      map[string]int64
	failByJob  map[string]int64
}

func newMetrics() *Metrics {
	return &Metrics{byJob: make(map[string]int64), failByJob: make(map[string]int64)}
}

func (m *Metrics) record(job string, d time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executions++
	m.total += d
	m.byJob[job]++
	if !success {
		m.failures++
		m.failByJob[job]++
	}
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Executions      int64            `json:"executions"`
	Failures        int64            `json:"failures"`
	AverageDuration time.Duration    `json:"averageDuration"`
	ByJob           map[string]int64 `json:"byJob"`
	FailuresByJob   map[string]int64 `json:"failuresByJob"`
}

func (m *Metrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Executions:    m.executions,
		Failures:      m.failures,
		ByJob:         make(map[string]int64, len(m.byJob)),
		FailuresByJob: make(map[string]int64, len(m.failByJob)),
	}
	if m.executions > 0 {
		snap.AverageDuration = m.total / time.Duration(m.executions)
	}
	for k, v := range m.byJob {
		snap.ByJob[k] = v
	}
	for k, v := range m.failByJob {
		snap.FailuresByJob[k] = v
	}
	return snap
}
