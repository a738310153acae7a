// Package notify computes due contest reminders and delivers them.
package notify

import (
	"context"

	"go.uber.org/multierr"

	appLog "cpcal/internal/log"
	"cpcal/internal/metrics"
	"cpcal/internal/model"
)

// Notifier delivers a single reminder.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, r model.Reminder) error
}

// LogNotifier writes reminders to the application log.
type LogNotifier struct{}

func (LogNotifier) Name() string { return "log" }

func (LogNotifier) Notify(_ context.Context, r model.Reminder) error {
	appLog.Info(r.Subject(),
		"body", r.Body(),
		"contest_id", r.ContestID,
		"start", r.StartTime,
		"url", r.URL,
	)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Name() string { return "multi" }

// Channels returns the notifiers m fans out to.
func (m *Multi) Channels() []Notifier { return m.notifiers }

func (m *Multi) Notify(ctx context.Context, r model.Reminder) error {
	var errs error
	for _, n := range m.notifiers {
		errs = multierr.Append(errs, deliver(ctx, n, r))
	}
	return errs
}

// deliver sends r through n, counting and logging the outcome.
func deliver(ctx context.Context, n Notifier, r model.Reminder) error {
	err := n.Notify(ctx, r)
	metrics.RecordReminder(n.Name(), err)
	if err != nil {
		appLog.Error("reminder delivery failed", err, "notifier", n.Name(), "reminder_id", r.ID)
	}
	return err
}

// Fallback tries primary and uses secondary only when primary fails.
type Fallback struct {
	primary   Notifier
	secondary Notifier
}

func NewFallback(primary, secondary Notifier) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) Name() string {
	return f.primary.Name() + "|" + f.secondary.Name()
}

func (f *Fallback) Notify(ctx context.Context, r model.Reminder) error {
	err := f.primary.Notify(ctx, r)
	if err == nil {
		return nil
	}

	appLog.Warn("primary notifier failed, switching to fallback",
		"primary", f.primary.Name(),
		"secondary", f.secondary.Name(),
		"err", err,
		"reminder_id", r.ID,
	)

	if fallbackErr := f.secondary.Notify(ctx, r); fallbackErr != nil {
		return multierr.Append(err, fallbackErr)
	}

	appLog.Info("reminder delivered through fallback", "notifier", f.secondary.Name(), "reminder_id", r.ID)
	return nil
}
