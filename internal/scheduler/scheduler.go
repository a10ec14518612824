// Package scheduler runs sync tasks periodically and on demand, one task at a
// time per kind.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/conference-schedule/backend/internal/logging"
)

// Sync kinds.
const (
	KindSchedule = "schedule"
	KindNews     = "news"
	KindTweets   = "tweets"
	KindStars    = "stars"
)

var (
	// ErrUnknownKind is returned for a kind that has no registered task.
	ErrUnknownKind = errors.New("unknown sync kind")
	// ErrStopped is returned when triggering a stopped scheduler.
	ErrStopped = errors.New("scheduler stopped")
)

// Task performs one sync pass. force marks a foreground request.
type Task func(ctx context.Context, force bool) error

// BackgroundPolicy reports whether periodic syncs are allowed.
type BackgroundPolicy interface {
	BackgroundSync(ctx context.Context) bool
}

type job struct {
	kind     string
	interval time.Duration
	task     Task
	entry    cron.EntryID

	// run serializes passes of this kind; later triggers queue on it.
	run sync.Mutex

	statusMu sync.RWMutex
	lastRun  time.Time
	lastErr  error
}

// Status describes a registered kind.
type Status struct {
	Kind      string     `json:"kind"`
	Interval  string     `json:"interval"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// Scheduler manages periodic sync jobs.
type Scheduler struct {
	cron   *cron.Cron
	policy BackgroundPolicy

	mu      sync.RWMutex
	jobs    map[string]*job
	ctx     context.Context
	stopped bool

	inflight sync.WaitGroup
}

// New creates a scheduler. Periodic runs consult policy before each pass;
// a nil policy allows them all.
func New(policy BackgroundPolicy) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithLogger(logger), cron.WithChain(cron.Recover(logger))),
		policy: policy,
		jobs:   make(map[string]*job),
		ctx:    context.Background(),
	}
}

// Register adds a periodic task for kind.
func (s *Scheduler) Register(kind string, interval time.Duration, task Task) error {
	if interval < time.Second {
		return fmt.Errorf("interval for %s must be at least 1s, got %s", kind, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[kind]; exists {
		return fmt.Errorf("sync kind %s already registered", kind)
	}

	j := &job{kind: kind, interval: interval, task: task}
	entryID, err := s.cron.AddFunc("@every "+interval.String(), func() {
		s.periodic(j)
	})
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", kind, err)
	}
	j.entry = entryID
	s.jobs[kind] = j

	logging.Info().Str("kind", kind).Dur("interval", interval).Msg("Scheduled sync")
	return nil
}

// Start begins periodic execution. Tasks run with ctx until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.stopped = false
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	logging.Info().Int("kinds", n).Msg("Sync scheduler started")
}

// Stop halts periodic execution and waits for running passes to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.inflight.Wait()
	logging.Info().Msg("Sync scheduler stopped")
}

// Trigger queues a foreground pass for kind and returns without waiting.
func (s *Scheduler) Trigger(kind string, force bool) error {
	j, ctx, err := s.acquire(kind)
	if err != nil {
		return err
	}

	go func() {
		defer s.inflight.Done()
		if err := s.execute(ctx, j, force); err != nil {
			logging.Warn().Err(err).Str("kind", kind).Msg("Triggered sync failed")
		}
	}()
	return nil
}

// Run executes a pass for kind and waits for it, queueing behind any pass of
// the same kind already in flight.
func (s *Scheduler) Run(ctx context.Context, kind string, force bool) error {
	j, _, err := s.acquire(kind)
	if err != nil {
		return err
	}
	defer s.inflight.Done()
	return s.execute(ctx, j, force)
}

// NextRun returns the next periodic run for kind, or nil before Start.
func (s *Scheduler) NextRun(kind string) *time.Time {
	s.mu.RLock()
	j, ok := s.jobs[kind]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	entry := s.cron.Entry(j.entry)
	if entry.Next.IsZero() {
		return nil
	}
	return &entry.Next
}

// Kinds returns the registered kinds, sorted.
func (s *Scheduler) Kinds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make([]string, 0, len(s.jobs))
	for kind := range s.jobs {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

// Statuses reports every registered kind.
func (s *Scheduler) Statuses() []Status {
	kinds := s.Kinds()
	out := make([]Status, 0, len(kinds))
	for _, kind := range kinds {
		s.mu.RLock()
		j := s.jobs[kind]
		s.mu.RUnlock()

		st := Status{Kind: kind, Interval: j.interval.String(), NextRun: s.NextRun(kind)}
		j.statusMu.RLock()
		if !j.lastRun.IsZero() {
			last := j.lastRun
			st.LastRun = &last
		}
		if j.lastErr != nil {
			st.LastError = j.lastErr.Error()
		}
		j.statusMu.RUnlock()
		out = append(out, st)
	}
	return out
}

// acquire resolves kind and counts a pass in flight. The count is taken under
// s.mu so it cannot slip past Stop; callers must call s.inflight.Done.
func (s *Scheduler) acquire(kind string) (*job, context.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return nil, nil, ErrStopped
	}
	j, ok := s.jobs[kind]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	s.inflight.Add(1)
	return j, s.ctx, nil
}

// periodic is the cron entry for a job.
func (s *Scheduler) periodic(j *job) {
	s.mu.RLock()
	ctx := s.ctx
	stopped := s.stopped
	if !stopped {
		s.inflight.Add(1)
	}
	s.mu.RUnlock()
	if stopped {
		return
	}
	defer s.inflight.Done()

	if s.policy != nil && !s.policy.BackgroundSync(ctx) {
		logging.Debug().Str("kind", j.kind).Msg("Background sync disabled, skipping periodic pass")
		return
	}

	if err := s.execute(ctx, j, false); err != nil {
		logging.Warn().Err(err).Str("kind", j.kind).Msg("Periodic sync failed")
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job, force bool) error {
	j.run.Lock()
	defer j.run.Unlock()

	started := time.Now()
	logging.Debug().Str("kind", j.kind).Bool("force", force).Msg("Sync pass starting")
	err := j.task(ctx, force)

	j.statusMu.Lock()
	j.lastRun = started
	j.lastErr = err
	j.statusMu.Unlock()

	logging.Debug().Str("kind", j.kind).Dur("took", time.Since(started)).Msg("Sync pass finished")
	return err
}

// cronLogger routes cron's own logging to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logging.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logging.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
