package sessions

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sweeper runs Repo.SweepExpired on a fixed interval, independent of request
// traffic. The scheduler runs in singleton mode so a slow sweep is never
// overlapped by the next tick.
type Sweeper struct {
	repo      Repo
	interval  time.Duration
	scheduler *gocron.Scheduler
	onSweep   func(removed int)
}

// NewSweeper creates a sweeper for repo. onSweep, if set, is called after every run.
func NewSweeper(repo Repo, interval time.Duration, onSweep func(removed int)) *Sweeper {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()
	return &Sweeper{
		repo:      repo,
		interval:  interval,
		scheduler: scheduler,
		onSweep:   onSweep,
	}
}

// Start schedules the sweep and returns immediately.
func (s *Sweeper) Start() error {
	if s.interval <= 0 {
		return errors.New("[Sweeper Start] interval must be positive")
	}
	if _, err := s.scheduler.Every(s.interval).Do(s.sweep); err != nil {
		return errors.Wrap(err, "[Sweeper Start] failed to schedule sweep")
	}
	s.scheduler.StartAsync()
	log.Info().Dur("interval", s.interval).Msg("session sweeper started")
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
	log.Info().Msg("session sweeper stopped")
}

// Run starts the sweeper and blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Sweeper) sweep() {
	removed := s.repo.SweepExpired()
	if removed > 0 {
		log.Debug().Int("removed", removed).Int("live", s.repo.Len()).Msg("expired sessions swept")
	}
	if s.onSweep != nil {
		s.onSweep(removed)
	}
}
