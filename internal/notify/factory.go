package notify

import (
	"io"

	"go.uber.org/multierr"

	"cpcal/internal/config"
	appLog "cpcal/internal/log"
)

// Set is the configured notifier chain plus whatever must be closed on
// shutdown.
type Set struct {
	Notifier Notifier
	Names    []string
	closers  []io.Closer
}

func (s *Set) Close() error {
	var errs error
	for _, c := range s.closers {
		errs = multierr.Append(errs, c.Close())
	}
	return errs
}

// Build assembles notifiers from cfg. The log notifier is always present.
// When both kafka and telegram are configured, telegram is the fallback
// for kafka.
func Build(cfg config.NotifyConfig) (*Set, error) {
	set := &Set{}
	notifiers := []Notifier{LogNotifier{}}

	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, NewWebhookNotifier(cfg.WebhookURL))
	}

	var kafkaN, telegramN Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		k := NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		set.closers = append(set.closers, k)
		kafkaN = k
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		t, err := NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, "")
		if err != nil {
			// Telegram is optional; the remaining notifiers still work.
			appLog.Error("telegram notifier disabled", err)
		} else {
			telegramN = t
		}
	}
	switch {
	case kafkaN != nil && telegramN != nil:
		notifiers = append(notifiers, NewFallback(kafkaN, telegramN))
	case kafkaN != nil:
		notifiers = append(notifiers, kafkaN)
	case telegramN != nil:
		notifiers = append(notifiers, telegramN)
	}

	if cfg.SMTP.Host != "" && cfg.SMTP.From != "" {
		notifiers = append(notifiers, NewEmailNotifier(cfg.SMTP))
	}

	for _, n := range notifiers {
		set.Names = append(set.Names, n.Name())
	}
	set.Notifier = NewMulti(notifiers...)
	appLog.Info("reminder notifiers configured", "notifiers", set.Names)
	return set, nil
}
