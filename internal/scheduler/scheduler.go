// Package scheduler runs the periodic feed refresh and reminder scan.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/go-faster/errors"

	appLog "cpcal/internal/log"
)

type Refresher interface {
	Refresh(ctx context.Context) error
}

type ReminderScanner interface {
	ScanReminders(ctx context.Context) (int, error)
}

type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	scanner   ReminderScanner
	cron      string
	interval  time.Duration
}

// New schedules refresh on a cron expression evaluated in loc and the
// reminder scan every interval. A nil scanner disables the scan.
func New(loc *time.Location, cronExpr string, interval time.Duration, refresher Refresher, scanner ReminderScanner) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		refresher: refresher,
		scanner:   scanner,
		cron:      cronExpr,
		interval:  interval,
	}
}

// Start registers the jobs and runs them in the background until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	appLog.Info("starting scheduler", "refresh", s.cron, "reminder_interval", s.interval.String())

	_, err := s.scheduler.Cron(s.cron).Do(func() {
		if err := s.refresher.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "schedule refresh %q", s.cron)
	}

	if s.scanner != nil && s.interval > 0 {
		_, err = s.scheduler.Every(s.interval).Do(func() {
			if _, err := s.scanner.ScanReminders(ctx); err != nil {
				appLog.Error("reminder scan failed", err)
			}
		})
		if err != nil {
			return errors.Wrap(err, "schedule reminder scan")
		}
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	appLog.Info("stopping scheduler")
	s.scheduler.Stop()
}
