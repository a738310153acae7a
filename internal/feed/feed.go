// Package feed fetches the contest calendar and returns raw events.
package feed

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"cpcal/internal/config"
	appLog "cpcal/internal/log"
	"cpcal/internal/model"
)

// Window is the [Start, End] range requested from the feed.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowAt returns [now-lookback, now+lookahead].
func WindowAt(now time.Time, lookbackDays, lookaheadDays int) Window {
	return Window{
		Start: now.AddDate(0, 0, -lookbackDays),
		End:   now.AddDate(0, 0, lookaheadDays),
	}
}

// wholeDays rounds Start down and End up to UTC midnight.
func (w Window) wholeDays() Window {
	const day = 24 * time.Hour
	end := w.End.UTC().Truncate(day)
	if end.Before(w.End) {
		end = end.Add(day)
	}
	return Window{Start: w.Start.UTC().Truncate(day), End: end}
}

// Batch is the result of one refresh.
type Batch struct {
	Events    []model.RawEvent
	Window    Window
	FromCache bool
	Outcome   string
	FetchedAt time.Time
}

// Source is a feed backend.
type Source interface {
	Kind() string
	Fetch(ctx context.Context, w Window) (Batch, error)
}

// Client fetches the configured source over a moving window.
type Client struct {
	source   Source
	lookback int
	ahead    int
	now      func() time.Time
}

// New builds the HTTP client, cache and source described by cfg.
func New(cfg config.FeedConfig) (*Client, error) {
	httpClient := NewHTTPClient(cfg, "feed_"+cfg.Kind)
	fetcher := NewFetcher(httpClient, cfg.CacheDir, cfg.Kind)

	var src Source
	switch cfg.Kind {
	case config.FeedKindGoogle:
		if cfg.CalendarID == "" {
			return nil, errors.New("feed: calendar_id is required for google feeds")
		}
		src = NewGoogleSource(fetcher, cfg)
	case config.FeedKindICS:
		if cfg.URL == "" {
			return nil, errors.New("feed: url is required for ics feeds")
		}
		src = NewICSSource(fetcher, cfg)
	default:
		return nil, errors.Errorf("feed: unknown kind %q", cfg.Kind)
	}

	return NewClient(src, cfg.LookbackDays, cfg.LookaheadDays, nil), nil
}

// NewClient wraps src. A nil now uses time.Now.
func NewClient(src Source, lookbackDays, lookaheadDays int, now func() time.Time) *Client {
	if now == nil {
		now = time.Now
	}
	return &Client{source: src, lookback: lookbackDays, ahead: lookaheadDays, now: now}
}

func (c *Client) Kind() string { return c.source.Kind() }

// Fetch retrieves events for the window around the current time.
func (c *Client) Fetch(ctx context.Context) (Batch, error) {
	w := WindowAt(c.now(), c.lookback, c.ahead)
	batch, err := c.source.Fetch(ctx, w)
	if err != nil {
		return Batch{}, errors.Wrapf(err, "fetch %s feed", c.source.Kind())
	}
	appLog.Info("feed fetched",
		"kind", c.source.Kind(),
		"events", len(batch.Events),
		"from_cache", batch.FromCache,
		"outcome", batch.Outcome,
	)
	return batch, nil
}
