package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultJobTimeout bounds a single job run
const DefaultJobTimeout = 30 * time.Minute

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler runs maintenance jobs on cron schedules
type Scheduler struct {
	cron       *cron.Cron
	mu         sync.Mutex
	jobs       map[string]cron.EntryID
	jobTimeout time.Duration
}

// New creates a scheduler using the UTC clock
func New(jobTimeout time.Duration) *Scheduler {
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		jobs:       make(map[string]cron.EntryID),
		jobTimeout: jobTimeout,
	}
}

// AddJob adds a job with a standard five-field cron schedule, e.g.
// "0 3 * * *" for 03:00 every day
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(name, job); err != nil {
			log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	log.Info().Str("job", name).Str("schedule", schedule).Msg("added scheduled job")
	return nil
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		log.Info().Str("job", name).Msg("removed scheduled job")
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	log.Info().Int("jobs", len(s.ListJobs())).Msg("starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	log.Info().Msg("stopping scheduler")
	return s.cron.Stop()
}

// RunNow executes a job immediately with the job timeout
func (s *Scheduler) RunNow(name string, job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	start := time.Now()
	log.Info().Str("job", name).Msg("starting job")

	if err := job(ctx); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	log.Info().Str("job", name).Dur("duration", time.Since(start)).Msg("job completed")
	return nil
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		infos = append(infos, JobInfo{
			Name:    name,
			NextRun: entry.Next,
			LastRun: entry.Prev,
		})
	}
	return infos
}
