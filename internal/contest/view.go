package contest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cpcal/internal/model"
)

// Tab selects a list view.
type Tab string

const (
	TabUpcoming   Tab = "upcoming"
	TabPast       Tab = "past"
	TabAll        Tab = "all"
	TabBookmarked Tab = "bookmarked"
)

// RecentWindow bounds the "past" tab: only contests that ended within it
// are listed.
const RecentWindow = 7 * 24 * time.Hour

// ParseTab maps a query value to a Tab. Unknown values mean TabUpcoming.
func ParseTab(s string) Tab {
	switch Tab(strings.ToLower(strings.TrimSpace(s))) {
	case TabPast, "recent":
		return TabPast
	case TabAll:
		return TabAll
	case TabBookmarked:
		return TabBookmarked
	default:
		return TabUpcoming
	}
}

// FilterPlatforms keeps contests whose platform is in selected. An empty
// selection keeps everything.
func FilterPlatforms(contests []model.Contest, selected []string) []model.Contest {
	if len(selected) == 0 {
		return contests
	}
	set := make(map[string]struct{}, len(selected))
	for _, p := range selected {
		set[p] = struct{}{}
	}
	out := make([]model.Contest, 0, len(contests))
	for _, c := range contests {
		if _, ok := set[c.Platform]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Search keeps contests whose title or platform contains query,
// case-insensitively. A blank query keeps everything.
func Search(contests []model.Contest, query string) []model.Contest {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return contests
	}
	out := make([]model.Contest, 0, len(contests))
	for _, c := range contests {
		if strings.Contains(strings.ToLower(c.Title), q) || strings.Contains(strings.ToLower(c.Platform), q) {
			out = append(out, c)
		}
	}
	return out
}

// SelectTab returns the contests for tab, sorted for display. Upcoming is
// ordered by start ascending, past by start descending. bookmarks is only
// consulted for TabBookmarked.
func SelectTab(contests []model.Contest, tab Tab, now time.Time, bookmarks []string) []model.Contest {
	out := make([]model.Contest, 0, len(contests))
	switch tab {
	case TabUpcoming:
		for _, c := range contests {
			if !c.IsPast {
				out = append(out, c)
			}
		}
		sortByStart(out, false)
	case TabPast:
		cutoff := now.Add(-RecentWindow)
		for _, c := range contests {
			if c.IsPast && !c.EndTime.Before(cutoff) {
				out = append(out, c)
			}
		}
		sortByStart(out, true)
	case TabBookmarked:
		set := make(map[string]struct{}, len(bookmarks))
		for _, id := range bookmarks {
			set[id] = struct{}{}
		}
		for _, c := range contests {
			if _, ok := set[c.ID]; ok {
				out = append(out, c)
			}
		}
		sortByStart(out, false)
	default:
		out = append(out, contests...)
		sortByStart(out, false)
	}
	return out
}

func sortByStart(cs []model.Contest, desc bool) {
	sort.SliceStable(cs, func(i, j int) bool {
		if desc {
			return cs[i].StartTime.After(cs[j].StartTime)
		}
		return cs[i].StartTime.Before(cs[j].StartTime)
	})
}

// Countdown formats the time left until start, e.g. "2d 3h 4m 5s" or
// "3h 4m 5s". It returns "Started!" once start is not in the future.
// compact drops the seconds (and the minutes when a day count is shown).
func Countdown(start, now time.Time, compact bool) string {
	left := start.Sub(now)
	if left <= 0 {
		return "Started!"
	}

	days := int(left / (24 * time.Hour))
	hours := int(left % (24 * time.Hour) / time.Hour)
	minutes := int(left % time.Hour / time.Minute)
	seconds := int(left % time.Minute / time.Second)

	if days > 0 {
		if compact {
			return fmt.Sprintf("%dd %dh", days, hours)
		}
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if compact {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

// FormatDuration renders a contest length as "Hh Mm".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%dh %dm", int(d/time.Hour), int(d%time.Hour/time.Minute))
}
