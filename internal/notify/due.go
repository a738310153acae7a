package notify

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	appLog "cpcal/internal/log"
	"cpcal/internal/model"
	"cpcal/internal/store"
)

// sentRetention is how long delivered reminder ids are kept after the
// contest started.
const sentRetention = 7 * 24 * time.Hour

var reminderNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://contesttracker.app/reminders"))

// ReminderID is stable for a contest start and lead time, so a moved
// contest or a changed lead produces a new reminder.
func ReminderID(contestID string, start time.Time, leadMinutes int) string {
	name := contestID + "|" + start.UTC().Format(time.RFC3339) + "|" + strconv.Itoa(leadMinutes)
	return uuid.NewSHA1(reminderNamespace, []byte(name)).String()
}

// DueReminders returns the reminders that should fire at now, ordered by
// start time. A reminder is due once its remind time has passed while the
// contest has not started yet.
func DueReminders(
	contests []model.Contest,
	settings model.NotificationSettings,
	bookmarks []string,
	includeBookmarks bool,
	sent map[string]time.Time,
	now time.Time,
) []model.Reminder {
	lead := settings.ReminderTime
	if lead <= 0 {
		lead = model.DefaultNotificationSettings().ReminderTime
	}

	wanted := make(map[string]struct{}, len(settings.SelectedContests)+len(bookmarks))
	for _, id := range settings.SelectedContests {
		wanted[id] = struct{}{}
	}
	if includeBookmarks {
		for _, id := range bookmarks {
			wanted[id] = struct{}{}
		}
	}

	email := ""
	if settings.EmailEnabled && settings.Email != "" {
		email = settings.Email
	}

	out := []model.Reminder{}
	for _, c := range contests {
		if _, ok := wanted[c.ID]; !ok {
			continue
		}
		if c.IsPast || c.StartTime.IsZero() || !c.StartTime.After(now) {
			continue
		}
		remindAt := c.StartTime.Add(-time.Duration(lead) * time.Minute)
		if remindAt.After(now) {
			continue
		}
		id := ReminderID(c.ID, c.StartTime, lead)
		if _, done := sent[id]; done {
			continue
		}
		out = append(out, model.Reminder{
			ID:          id,
			ContestID:   c.ID,
			Title:       c.Title,
			Platform:    c.Platform,
			URL:         c.URL,
			StartTime:   c.StartTime,
			RemindAt:    remindAt,
			LeadMinutes: lead,
			Email:       email,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// ChannelKey identifies the delivery of reminder id through one channel.
func ChannelKey(id, channel string) string {
	return id + "#" + channel
}

// Dispatcher scans contests for due reminders and records deliveries.
type Dispatcher struct {
	notifier        Notifier
	prefs           *store.Preferences
	remindBookmarks bool
	now             func() time.Time

	mu       sync.Mutex
	lastScan time.Time
}

func NewDispatcher(n Notifier, prefs *store.Preferences, remindBookmarks bool, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{notifier: n, prefs: prefs, remindBookmarks: remindBookmarks, now: now}
}

// LastScan reports when Scan last completed.
func (d *Dispatcher) LastScan() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastScan
}

// Scan delivers every due reminder and returns how many were delivered.
// Reminders are only sent when the user enabled browser or email
// notifications. A failed delivery is retried on the next scan through
// the channels that failed.
func (d *Dispatcher) Scan(ctx context.Context, contests []model.Contest) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	settings, err := d.prefs.NotificationSettings(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load notification settings")
	}
	if !settings.BrowserEnabled && !settings.EmailEnabled {
		d.lastScan = now
		return 0, nil
	}

	var bookmarks []string
	if d.remindBookmarks {
		if bookmarks, err = d.prefs.Bookmarks(ctx); err != nil {
			return 0, errors.Wrap(err, "load bookmarks")
		}
	}

	sent, err := d.prefs.SentReminders(ctx)
	if err != nil {
		// A corrupt log is reset on the next write; treat it as empty.
		appLog.Warn("sent reminder log unreadable", "err", err)
		sent = map[string]time.Time{}
	}

	due := DueReminders(contests, settings, bookmarks, d.remindBookmarks, sent, now)
	pruneBefore := now.Add(-sentRetention)
	delivered := 0
	var firstErr error
	for _, r := range due {
		var (
			ok     []string
			failed bool
		)
		for _, n := range d.pendingChannels(r.ID, sent) {
			if err := deliver(ctx, n, r); err != nil {
				failed = true
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "deliver reminder %s via %s", r.ID, n.Name())
				}
				continue
			}
			ok = append(ok, ChannelKey(r.ID, n.Name()))
		}

		// A partial delivery records the channels that succeeded so the
		// next scan only retries the failed ones.
		keys := []string{r.ID}
		if failed {
			keys = ok
		}
		for _, key := range keys {
			if err := d.prefs.MarkReminderSent(ctx, key, r.StartTime, pruneBefore); err != nil {
				return delivered, errors.Wrap(err, "record sent reminder")
			}
		}
		if !failed {
			delivered++
		}
	}

	d.lastScan = now
	if len(due) > 0 {
		appLog.Info("reminder scan finished", "due", len(due), "delivered", delivered)
	}
	return delivered, firstErr
}

// pendingChannels lists the channels that have not delivered reminder id.
// A Multi notifier is split into its channels; any other notifier is a
// single channel.
func (d *Dispatcher) pendingChannels(id string, sent map[string]time.Time) []Notifier {
	channels := []Notifier{d.notifier}
	if m, ok := d.notifier.(*Multi); ok {
		channels = m.Channels()
	}
	pending := make([]Notifier, 0, len(channels))
	for _, n := range channels {
		if _, done := sent[ChannelKey(id, n.Name())]; !done {
			pending = append(pending, n)
		}
	}
	return pending
}
