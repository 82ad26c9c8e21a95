// Package scheduler runs the refresh and analysis jobs on cron schedules.
package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/etfscope/pkg/logger"
)

// Job is a unit of background work.
type Job interface {
	Run() error
	Name() string
}

// Entry describes one scheduled job.
type Entry struct {
	Job      string
	Schedule string
	Next     time.Time
}

// Scheduler runs jobs on six-field cron schedules (leading seconds). A job
// that is still running when its next tick arrives is skipped.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	entries []scheduled
}

type scheduled struct {
	id       cron.EntryID
	job      string
	schedule string
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  logger.Component(log, "scheduler"),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.Entries())).Msg("Scheduler started")
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob schedules job, e.g. "0 30 22 * * MON-FRI" for 22:30 on weekdays
// or "@every 6h".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	id, err := s.cron.AddFunc(schedule, func() { _ = s.run(job) })
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = append(s.entries, scheduled{id: id, job: job.Name(), schedule: schedule})
	s.mu.Unlock()

	s.log.Info().Str("job", job.Name()).Str("schedule", schedule).Msg("Job registered")
	return nil
}

// Entries lists the scheduled jobs in registration order. Next is zero until
// the scheduler has been started.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Entry{Job: e.job, Schedule: e.schedule, Next: s.cron.Entry(e.id).Next})
	}
	return out
}

// RunNow runs job on the calling goroutine, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	return s.run(job)
}

// run executes job and logs its result under the job's name.
func (s *Scheduler) run(job Job) error {
	log := s.log.With().Str("job", job.Name()).Logger()
	log.Debug().Msg("Running job")

	started := time.Now()
	err := job.Run()
	elapsed := time.Since(started)
	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("Job failed")
		return err
	}
	log.Info().Dur("elapsed", elapsed).Msg("Job completed")
	return nil
}
