// Package store persists user preferences (bookmarks, selected platforms,
// solution links, notification settings) in a key-value backend.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-faster/errors"

	appLog "cpcal/internal/log"
	"cpcal/internal/metrics"
	"cpcal/internal/model"
)

// Storage keys. Values are JSON.
const (
	KeyBookmarks            = "bookmarkedContests"
	KeySelectedPlatforms    = "selectedPlatforms"
	KeySolutionLinks        = "solutionLinks"
	KeyNotificationSettings = "notificationSettings"
	KeySentReminders        = "sentReminders"
)

// ErrCorruptValue is returned when a stored value cannot be decoded.
var ErrCorruptValue = errors.New("corrupt stored value")

// KV is a string-keyed blob store. Get reports found=false for missing keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Preferences is the typed view over a KV. Read-modify-write operations
// are serialized within the process.
type Preferences struct {
	kv     KV
	driver string
	mu     sync.Mutex
}

func NewPreferences(kv KV, driver string) *Preferences {
	return &Preferences{kv: kv, driver: driver}
}

// Close closes the underlying backend.
func (p *Preferences) Close() error {
	return p.kv.Close()
}

// Bookmarks returns bookmarked contest ids in insertion order.
func (p *Preferences) Bookmarks(ctx context.Context) ([]string, error) {
	ids := []string{}
	if _, err := p.load(ctx, KeyBookmarks, &ids); err != nil {
		return nil, err
	}
	return dedupe(ids), nil
}

// SetBookmarks replaces the bookmark list. Duplicates are dropped.
func (p *Preferences) SetBookmarks(ctx context.Context, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.save(ctx, KeyBookmarks, dedupe(ids))
}

// ToggleBookmark adds id if absent, otherwise removes it. It returns whether
// id is bookmarked afterwards and the new list.
func (p *Preferences) ToggleBookmark(ctx context.Context, id string) (bool, []string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids, err := p.Bookmarks(ctx)
	if err != nil {
		return false, nil, err
	}

	out := make([]string, 0, len(ids)+1)
	removed := false
	for _, existing := range ids {
		if existing == id {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	if !removed {
		out = append(out, id)
	}

	if err := p.save(ctx, KeyBookmarks, out); err != nil {
		return false, nil, err
	}
	return !removed, out, nil
}

// IsBookmarked reports whether id is in the bookmark list.
func (p *Preferences) IsBookmarked(ctx context.Context, id string) (bool, error) {
	ids, err := p.Bookmarks(ctx)
	if err != nil {
		return false, err
	}
	for _, existing := range ids {
		if existing == id {
			return true, nil
		}
	}
	return false, nil
}

// SelectedPlatforms returns the platform filter; the default set is
// returned when nothing was saved.
func (p *Preferences) SelectedPlatforms(ctx context.Context, defaults []string) ([]string, error) {
	platforms := []string{}
	found, err := p.load(ctx, KeySelectedPlatforms, &platforms)
	if err != nil {
		return nil, err
	}
	if !found {
		return append([]string{}, defaults...), nil
	}
	return platforms, nil
}

func (p *Preferences) SetSelectedPlatforms(ctx context.Context, platforms []string) error {
	if platforms == nil {
		platforms = []string{}
	}
	return p.save(ctx, KeySelectedPlatforms, dedupe(platforms))
}

// SolutionLinks returns all saved links in insertion order.
func (p *Preferences) SolutionLinks(ctx context.Context) ([]model.SolutionLink, error) {
	links := []model.SolutionLink{}
	if _, err := p.load(ctx, KeySolutionLinks, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// SolutionLinksFor returns the links attached to contestID.
func (p *Preferences) SolutionLinksFor(ctx context.Context, contestID string) ([]model.SolutionLink, error) {
	links, err := p.SolutionLinks(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.SolutionLink{}
	for _, l := range links {
		if l.ContestID == contestID {
			out = append(out, l)
		}
	}
	return out, nil
}

// AddSolutionLink appends link. Links are not deduplicated.
func (p *Preferences) AddSolutionLink(ctx context.Context, link model.SolutionLink) ([]model.SolutionLink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	links, err := p.SolutionLinks(ctx)
	if err != nil {
		return nil, err
	}
	links = append(links, link)
	if err := p.save(ctx, KeySolutionLinks, links); err != nil {
		return nil, err
	}
	return links, nil
}

// NotificationSettings returns the saved settings or the defaults.
func (p *Preferences) NotificationSettings(ctx context.Context) (model.NotificationSettings, error) {
	s := model.DefaultNotificationSettings()
	if _, err := p.load(ctx, KeyNotificationSettings, &s); err != nil {
		return model.NotificationSettings{}, err
	}
	if s.SelectedContests == nil {
		s.SelectedContests = []string{}
	}
	return s, nil
}

// SaveNotificationSettings replaces the settings as a whole.
func (p *Preferences) SaveNotificationSettings(ctx context.Context, s model.NotificationSettings) error {
	if s.SelectedContests == nil {
		s.SelectedContests = []string{}
	}
	return p.save(ctx, KeyNotificationSettings, s)
}

// SentReminders maps delivered reminder ids to the contest start time.
func (p *Preferences) SentReminders(ctx context.Context) (map[string]time.Time, error) {
	sent := map[string]time.Time{}
	if _, err := p.load(ctx, KeySentReminders, &sent); err != nil {
		return nil, err
	}
	return sent, nil
}

// MarkReminderSent records id and drops entries whose contest started
// before pruneBefore.
func (p *Preferences) MarkReminderSent(ctx context.Context, id string, start, pruneBefore time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sent, err := p.SentReminders(ctx)
	if err != nil {
		if !errors.Is(err, ErrCorruptValue) {
			return err
		}
		appLog.Warn("resetting corrupt sent reminder log")
		sent = map[string]time.Time{}
	}
	for k, t := range sent {
		if t.Before(pruneBefore) {
			delete(sent, k)
		}
	}
	sent[id] = start.UTC()
	return p.save(ctx, KeySentReminders, sent)
}

// load decodes key into dst. dst is left untouched when the key is missing.
func (p *Preferences) load(ctx context.Context, key string, dst any) (bool, error) {
	data, found, err := p.kv.Get(ctx, key)
	if err != nil {
		metrics.StoreErrors.WithLabelValues(p.driver, "get").Inc()
		return false, errors.Wrapf(err, "get %s", key)
	}
	if !found || len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.StoreErrors.WithLabelValues(p.driver, "decode").Inc()
		return false, errors.Wrapf(&corruptError{key: key, err: err}, "decode %s", key)
	}
	return true, nil
}

func (p *Preferences) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	if err := p.kv.Set(ctx, key, data); err != nil {
		metrics.StoreErrors.WithLabelValues(p.driver, "set").Inc()
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

// corruptError matches ErrCorruptValue and unwraps to the decode error.
type corruptError struct {
	key string
	err error
}

func (e *corruptError) Error() string {
	return "corrupt stored value for " + e.key + ": " + e.err.Error()
}

func (e *corruptError) Unwrap() error { return e.err }

func (e *corruptError) Is(target error) bool { return target == ErrCorruptValue }

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
