// Package calendar lays contests out on a month grid.
package calendar

import (
	"sort"
	"strings"
	"time"

	"cpcal/internal/model"
)

const (
	// GridDays is the fixed number of cells in a month view (6 weeks).
	GridDays = 42
	// DefaultCap is the number of contests rendered per cell before the
	// overflow counter kicks in.
	DefaultCap = 3
)

// Options controls BuildMonth.
type Options struct {
	WeekStart time.Weekday
	// Location defines day boundaries. Nil means time.Local.
	Location *time.Location
	// Cap limits contests listed per cell; <= 0 means DefaultCap.
	Cap int
	// Now marks the "today" cell. Zero means time.Now().
	Now time.Time
}

// Cell is one day of the grid.
type Cell struct {
	Date     string          `json:"date"` // YYYY-MM-DD in the grid location
	Day      int             `json:"day"`
	InMonth  bool            `json:"inMonth"`
	IsToday  bool            `json:"isToday"`
	Contests []model.Contest `json:"contests"`
	Total    int             `json:"total"`
	// More is how many contests were cut by the cap ("+N more").
	More int `json:"more"`
}

// Month is a 6x7 grid for one month.
type Month struct {
	Year      int        `json:"year"`
	Month     time.Month `json:"month"`
	Title     string     `json:"title"`
	WeekStart string     `json:"weekStart"`
	Weekdays  []string   `json:"weekdays"`
	Cells     []Cell     `json:"cells"`
}

// ParseWeekStart maps "monday" to time.Monday; everything else is Sunday.
func ParseWeekStart(s string) time.Weekday {
	if strings.EqualFold(strings.TrimSpace(s), "monday") {
		return time.Monday
	}
	return time.Sunday
}

// MonthGrid returns the 42 days shown for month: leading days from the
// previous month so the first row starts on weekStart, the month itself,
// then days of the following month.
func MonthGrid(year int, month time.Month, weekStart time.Weekday, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.Local
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	lead := (int(first.Weekday()) - int(weekStart) + 7) % 7

	days := make([]time.Time, 0, GridDays)
	for i := 0; i < GridDays; i++ {
		days = append(days, time.Date(year, month, 1-lead+i, 0, 0, 0, 0, loc))
	}
	return days
}

// DayBounds returns [00:00:00.000, 23:59:59.999] of day in its location.
func DayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	loc := day.Location()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), time.Date(y, m, d, 23, 59, 59, 999_000_000, loc)
}

// Overlaps reports whether c belongs to the cell of day: it starts that
// day, ends that day, or spans the whole day.
func Overlaps(c model.Contest, day time.Time) bool {
	start, end := DayBounds(day)
	startsToday := !c.StartTime.Before(start) && !c.StartTime.After(end)
	endsToday := !c.EndTime.Before(start) && !c.EndTime.After(end)
	spans := c.StartTime.Before(start) && c.EndTime.After(end)
	return startsToday || endsToday || spans
}

// ContestsForDay returns the contests overlapping day, in input order.
func ContestsForDay(day time.Time, contests []model.Contest) []model.Contest {
	var out []model.Contest
	for _, c := range contests {
		if Overlaps(c, day) {
			out = append(out, c)
		}
	}
	return out
}

// BuildMonth buckets contests into the grid for year/month.
func BuildMonth(year int, month time.Month, contests []model.Contest, opts Options) Month {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	limit := opts.Cap
	if limit <= 0 {
		limit = DefaultCap
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	sorted := make([]model.Contest, len(contests))
	copy(sorted, contests)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	days := MonthGrid(year, month, opts.WeekStart, loc)
	cells := make([]Cell, 0, len(days))
	for _, day := range days {
		matched := ContestsForDay(day, sorted)
		shown := matched
		if len(shown) > limit {
			shown = shown[:limit]
		}
		if shown == nil {
			shown = []model.Contest{}
		}
		cells = append(cells, Cell{
			Date:     day.Format("2006-01-02"),
			Day:      day.Day(),
			InMonth:  day.Month() == month,
			IsToday:  sameDay(day, now),
			Contests: shown,
			Total:    len(matched),
			More:     len(matched) - len(shown),
		})
	}

	return Month{
		Year:      year,
		Month:     month,
		Title:     time.Date(year, month, 1, 0, 0, 0, 0, loc).Format("January 2006"),
		WeekStart: strings.ToLower(opts.WeekStart.String()),
		Weekdays:  weekdayNames(opts.WeekStart),
		Cells:     cells,
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func weekdayNames(start time.Weekday) []string {
	out := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		out = append(out, time.Weekday((int(start) + i) % 7).String()[:3])
	}
	return out
}
