// Package app holds the current contest snapshot and answers the queries
// the HTTP API needs.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"cpcal/internal/contest"
	"cpcal/internal/feed"
	appLog "cpcal/internal/log"
	"cpcal/internal/metrics"
	"cpcal/internal/model"
	"cpcal/internal/notify"
	"cpcal/internal/solution"
	"cpcal/internal/store"
)

var (
	// ErrNotLoaded means no refresh has ever succeeded.
	ErrNotLoaded = errors.New("failed to load contests")
	// ErrContestNotFound means the id is not in the current snapshot.
	ErrContestNotFound = errors.New("contest not found")
	// ErrRefreshInProgress is returned when another refresh is running.
	ErrRefreshInProgress = errors.New("refresh already in progress")
)

// Fetcher returns the raw events of one feed pull.
type Fetcher interface {
	Fetch(ctx context.Context) (feed.Batch, error)
}

// Snapshot is an immutable view of one successful refresh.
type Snapshot struct {
	Contests  []model.Contest
	FetchedAt time.Time
	FromCache bool
	Outcome   string
	byID      map[string]int
}

// Status describes the last refresh attempts.
type Status struct {
	Loaded        bool      `json:"loaded"`
	Contests      int       `json:"contests"`
	FetchedAt     time.Time `json:"fetchedAt"`
	FromCache     bool      `json:"fromCache"`
	LastAttempt   time.Time `json:"lastAttempt"`
	LastError     string    `json:"lastError,omitempty"`
	Unclassified  int       `json:"unclassified"`
	InvalidEvents int       `json:"invalidEvents"`
}

type Options struct {
	Fetcher    Fetcher
	Prefs      *store.Preferences
	Finder     *solution.Finder
	Dispatcher *notify.Dispatcher
	Location   *time.Location
	WeekStart  time.Weekday
	Now        func() time.Time
}

type Service struct {
	fetcher    Fetcher
	prefs      *store.Preferences
	finder     *solution.Finder
	dispatcher *notify.Dispatcher
	normalizer *contest.Normalizer
	loc        *time.Location
	weekStart  time.Weekday
	now        func() time.Time

	refreshMu sync.Mutex

	mu     sync.RWMutex
	snap   *Snapshot
	status Status
}

func New(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		fetcher:    opts.Fetcher,
		prefs:      opts.Prefs,
		finder:     opts.Finder,
		dispatcher: opts.Dispatcher,
		normalizer: contest.NewNormalizer(now),
		loc:        loc,
		weekStart:  opts.WeekStart,
		now:        now,
	}
}

// Preferences exposes the preference store.
func (s *Service) Preferences() *store.Preferences { return s.prefs }

// Location is the timezone used for calendar day boundaries.
func (s *Service) Location() *time.Location { return s.loc }

// Now is the service clock in Location.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

// Refresh pulls the feed, normalizes it and swaps the snapshot. On failure
// the previous snapshot is kept. Only one refresh runs at a time; a
// concurrent call returns ErrRefreshInProgress without doing anything.
func (s *Service) Refresh(ctx context.Context) error {
	if !s.refreshMu.TryLock() {
		appLog.Debug("refresh skipped, another one is running")
		return ErrRefreshInProgress
	}
	defer s.refreshMu.Unlock()

	started := s.now()
	batch, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.mu.Lock()
		s.status.LastAttempt = started
		s.status.LastError = err.Error()
		s.mu.Unlock()
		return errors.Wrap(err, "refresh contests")
	}

	results := s.normalizer.Normalize(batch.Events)
	unclassified, invalid := recordResults(results)

	contests := contest.Contests(results)
	snap := &Snapshot{
		Contests:  contests,
		FetchedAt: batch.FetchedAt,
		FromCache: batch.FromCache,
		Outcome:   batch.Outcome,
		byID:      make(map[string]int, len(contests)),
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = started
	}
	byPlatform := map[string]int{}
	for i, c := range contests {
		snap.byID[c.ID] = i
		byPlatform[c.Platform]++
	}

	s.mu.Lock()
	s.snap = snap
	s.status = Status{
		Loaded:        true,
		Contests:      len(contests),
		FetchedAt:     snap.FetchedAt,
		FromCache:     snap.FromCache,
		LastAttempt:   started,
		Unclassified:  unclassified,
		InvalidEvents: invalid,
	}
	s.mu.Unlock()

	metrics.SetContestsLoaded(byPlatform)
	metrics.LastRefresh.SetToCurrentTime()
	appLog.Info("contests refreshed",
		"contests", len(contests),
		"unclassified", unclassified,
		"invalid", invalid,
		"from_cache", batch.FromCache,
		"took", s.now().Sub(started).String(),
	)
	return nil
}

// recordResults logs and counts classification drift and invalid events.
func recordResults(results []contest.Result) (unclassified, invalid int) {
	for _, r := range results {
		if r.Classification != contest.ClassKnown {
			unclassified++
			metrics.ContestsUnclassified.WithLabelValues(string(r.Classification)).Inc()
			appLog.Debug("contest platform not in allowlist",
				"id", r.Contest.ID,
				"kind", string(r.Classification),
				"platform", r.Contest.Platform,
			)
		}
		if len(r.Issues) > 0 {
			invalid++
		}
		for _, is := range r.Issues {
			metrics.ContestIssues.WithLabelValues(is.Field).Inc()
			appLog.Warn("contest has invalid field", "id", is.EventID, "field", is.Field, "value", is.Value)
		}
	}
	return unclassified, invalid
}

// Snapshot returns the current snapshot or ErrNotLoaded.
func (s *Service) Snapshot() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, ErrNotLoaded
	}
	return s.snap, nil
}

func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Contest looks up a contest by id in the current snapshot.
func (s *Service) Contest(id string) (model.Contest, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return model.Contest{}, err
	}
	i, ok := snap.byID[id]
	if !ok {
		return model.Contest{}, errors.Wrapf(ErrContestNotFound, "id %q", id)
	}
	return snap.Contests[i], nil
}

// ScanReminders delivers due reminders for the current snapshot. It is a
// no-op until the first refresh succeeds.
func (s *Service) ScanReminders(ctx context.Context) (int, error) {
	if s.dispatcher == nil {
		return 0, nil
	}
	snap, err := s.Snapshot()
	if errors.Is(err, ErrNotLoaded) {
		appLog.Debug("reminder scan skipped, no contests loaded")
		return 0, nil
	}
	return s.dispatcher.Scan(ctx, snap.Contests)
}
