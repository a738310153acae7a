package app

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"cpcal/internal/calendar"
	"cpcal/internal/contest"
	"cpcal/internal/export"
	appLog "cpcal/internal/log"
	"cpcal/internal/model"
	"cpcal/internal/solution"
)

// ErrInvalidSettings is returned for notification settings that cannot be
// saved.
var ErrInvalidSettings = errors.New("invalid notification settings")

// ListQuery selects contests for a list view. A nil Platforms uses the
// stored platform selection.
type ListQuery struct {
	Tab       contest.Tab
	Platforms []string
	Search    string
}

type ContestList struct {
	Tab       contest.Tab   `json:"tab"`
	Platforms []string      `json:"platforms"`
	Contests  []ContestItem `json:"contests"`
	Total     int           `json:"total"`
	FetchedAt time.Time     `json:"fetched_at"`
	FromCache bool          `json:"from_cache"`
}

// ContestItem is a contest with the fields a list card shows.
type ContestItem struct {
	model.Contest
	Bookmarked bool   `json:"bookmarked"`
	Countdown  string `json:"countdown"`
	Duration   string `json:"duration"`
}

type ContestDetail struct {
	ContestItem
	PlatformInfo contest.PlatformInfo `json:"platformInfo"`
	Solutions    []solution.View      `json:"solutions"`
	SearchURL    string               `json:"searchUrl"`
	// AnalysisURL is only set for past contests.
	AnalysisURL string `json:"analysisUrl,omitempty"`
}

// SolutionSearch is the result of a solution lookup for one contest.
type SolutionSearch struct {
	SearchURL  string               `json:"search_url"`
	Candidates []solution.Candidate `json:"candidates"`
}

// Contests answers a list view.
func (s *Service) Contests(ctx context.Context, q ListQuery) (ContestList, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return ContestList{}, err
	}

	platforms := q.Platforms
	if platforms == nil {
		if platforms, err = s.prefs.SelectedPlatforms(ctx, contest.DefaultSelectedPlatforms()); err != nil {
			return ContestList{}, errors.Wrap(err, "load selected platforms")
		}
	}
	bookmarks, err := s.prefs.Bookmarks(ctx)
	if err != nil {
		return ContestList{}, errors.Wrap(err, "load bookmarks")
	}

	now := s.now()
	list := contest.FilterPlatforms(snap.Contests, platforms)
	list = contest.Search(list, q.Search)
	list = contest.SelectTab(list, q.Tab, now, bookmarks)

	marked := toSet(bookmarks)
	items := make([]ContestItem, 0, len(list))
	for _, c := range list {
		items = append(items, s.item(c, marked, now))
	}

	return ContestList{
		Tab:       q.Tab,
		Platforms: platforms,
		Contests:  items,
		Total:     len(items),
		FetchedAt: snap.FetchedAt,
		FromCache: snap.FromCache,
	}, nil
}

// ContestDetail returns one contest with its bookmark state and solutions.
func (s *Service) ContestDetail(ctx context.Context, id string) (ContestDetail, error) {
	c, err := s.Contest(id)
	if err != nil {
		return ContestDetail{}, err
	}
	bookmarks, err := s.prefs.Bookmarks(ctx)
	if err != nil {
		return ContestDetail{}, errors.Wrap(err, "load bookmarks")
	}
	links, err := s.prefs.SolutionLinksFor(ctx, id)
	if err != nil {
		return ContestDetail{}, errors.Wrap(err, "load solution links")
	}

	d := ContestDetail{
		ContestItem:  s.item(c, toSet(bookmarks), s.now()),
		PlatformInfo: contest.Platform(c.Platform),
		Solutions:    solution.Decorate(links),
		SearchURL:    solution.SearchURL(c),
	}
	if c.IsPast {
		d.AnalysisURL = solution.AnalysisURL(c)
	}
	return d, nil
}

// AnalysisURL returns the AI analysis link of a contest.
func (s *Service) AnalysisURL(id string) (string, error) {
	c, err := s.Contest(id)
	if err != nil {
		return "", err
	}
	return solution.AnalysisURL(c), nil
}

func (s *Service) item(c model.Contest, bookmarks map[string]struct{}, now time.Time) ContestItem {
	_, marked := bookmarks[c.ID]
	return ContestItem{
		Contest:    c,
		Bookmarked: marked,
		Countdown:  contest.Countdown(c.StartTime, now, false),
		Duration:   contest.FormatDuration(c.Duration()),
	}
}

// Calendar builds the month grid. A nil platforms uses the stored
// selection.
func (s *Service) Calendar(ctx context.Context, year int, month time.Month, limit int, platforms []string) (calendar.Month, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return calendar.Month{}, err
	}
	if platforms == nil {
		if platforms, err = s.prefs.SelectedPlatforms(ctx, contest.DefaultSelectedPlatforms()); err != nil {
			return calendar.Month{}, errors.Wrap(err, "load selected platforms")
		}
	}
	return calendar.BuildMonth(year, month, contest.FilterPlatforms(snap.Contests, platforms), calendar.Options{
		WeekStart: s.weekStart,
		Location:  s.loc,
		Cap:       limit,
		Now:       s.now(),
	}), nil
}

// ContestICS renders the .ics export of one contest and its filename.
func (s *Service) ContestICS(id string, reminderMinutes int) (string, string, error) {
	c, err := s.Contest(id)
	if err != nil {
		return "", "", err
	}
	body, err := export.ContestICS(c, reminderOrDefault(reminderMinutes), s.now())
	if err != nil {
		return "", "", errors.Wrapf(err, "export contest %s", id)
	}
	return export.Filename(c), body, nil
}

// BookmarksICS exports every bookmarked contest still in the snapshot.
func (s *Service) BookmarksICS(ctx context.Context, reminderMinutes int) (string, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return "", err
	}
	bookmarks, err := s.prefs.Bookmarks(ctx)
	if err != nil {
		return "", errors.Wrap(err, "load bookmarks")
	}
	marked := contest.SelectTab(snap.Contests, contest.TabBookmarked, s.now(), bookmarks)
	body, skipped := export.CalendarICS(marked, reminderOrDefault(reminderMinutes), s.now())
	if skipped > 0 {
		appLog.Warn("bookmarked contests without times left out of export", "skipped", skipped)
	}
	return body, nil
}

// GoogleCalendarURL returns the "add event" link for one contest.
func (s *Service) GoogleCalendarURL(id string, reminderMinutes int) (string, error) {
	c, err := s.Contest(id)
	if err != nil {
		return "", err
	}
	if c.StartTime.IsZero() || c.EndTime.IsZero() {
		return "", errors.Wrapf(export.ErrMissingTimes, "contest %s", id)
	}
	return export.GoogleCalendarURL(c, reminderOrDefault(reminderMinutes)), nil
}

// FindSolutions returns the manual search link plus candidates discovered
// on the configured channels. Channel failures leave candidates empty.
func (s *Service) FindSolutions(ctx context.Context, id string) (SolutionSearch, error) {
	c, err := s.Contest(id)
	if err != nil {
		return SolutionSearch{}, err
	}
	res := SolutionSearch{SearchURL: solution.SearchURL(c), Candidates: []solution.Candidate{}}
	if !s.finder.Enabled() {
		return res, nil
	}
	// Find logs channel failures itself.
	if cands, err := s.finder.Find(ctx, c); err == nil {
		res.Candidates = cands
	}
	return res, nil
}

// AddSolution validates and stores a solution link.
func (s *Service) AddSolution(ctx context.Context, contestID, url string) ([]model.SolutionLink, error) {
	link, err := solution.NewLink(contestID, url)
	if err != nil {
		return nil, err
	}
	return s.prefs.AddSolutionLink(ctx, link)
}

// SaveNotificationSettings validates and replaces the settings.
func (s *Service) SaveNotificationSettings(ctx context.Context, ns model.NotificationSettings) (model.NotificationSettings, error) {
	if err := ValidateSettings(ns); err != nil {
		return model.NotificationSettings{}, err
	}
	ns.Email = strings.TrimSpace(ns.Email)
	if ns.SelectedContests == nil {
		ns.SelectedContests = []string{}
	}
	if err := s.prefs.SaveNotificationSettings(ctx, ns); err != nil {
		return model.NotificationSettings{}, errors.Wrap(err, "save notification settings")
	}
	return ns, nil
}

// ValidateSettings rejects a non-positive lead time and an enabled email
// channel without a parseable address.
func ValidateSettings(ns model.NotificationSettings) error {
	if ns.ReminderTime <= 0 {
		return errors.Wrap(ErrInvalidSettings, "reminderTime must be positive")
	}
	if ns.ReminderTime > 7*24*60 {
		return errors.Wrap(ErrInvalidSettings, "reminderTime must be at most one week")
	}
	if ns.EmailEnabled {
		if _, err := mail.ParseAddress(strings.TrimSpace(ns.Email)); err != nil {
			return errors.Wrap(ErrInvalidSettings, "email is not a valid address")
		}
	}
	return nil
}

func reminderOrDefault(m int) int {
	if m <= 0 {
		return export.DefaultReminderMinutes
	}
	return m
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
