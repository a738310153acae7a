package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpcal/internal/calendar"
	"cpcal/internal/model"
)

func TestMonthGrid_SundayStart(t *testing.T) {
	// March 2024 starts on a Friday.
	days := calendar.MonthGrid(2024, time.March, time.Sunday, time.UTC)

	require.Len(t, days, calendar.GridDays)
	assert.Equal(t, time.Date(2024, time.February, 25, 0, 0, 0, 0, time.UTC), days[0])
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), days[5])
	assert.Equal(t, time.Date(2024, time.April, 6, 0, 0, 0, 0, time.UTC), days[41])
	for i := 0; i < calendar.GridDays; i += 7 {
		assert.Equal(t, time.Sunday, days[i].Weekday())
	}
}

func TestMonthGrid_MondayStartAndFirstIsStart(t *testing.T) {
	// April 2024 starts on a Monday: no leading days.
	days := calendar.MonthGrid(2024, time.April, time.Monday, time.UTC)
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), days[0])
	assert.Equal(t, time.Date(2024, time.May, 12, 0, 0, 0, 0, time.UTC), days[41])
}

func TestMonthGrid_ConsecutiveDaysAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	days := calendar.MonthGrid(2024, time.March, time.Sunday, loc)
	for i := 1; i < len(days); i++ {
		assert.Equal(t, 0, days[i].Hour())
		y, m, d := days[i-1].Date()
		assert.Equal(t, time.Date(y, m, d+1, 0, 0, 0, 0, loc), days[i])
	}
}

func TestOverlaps(t *testing.T) {
	day := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	at := func(d, h, m int) time.Time { return time.Date(2024, time.March, d, h, m, 0, 0, time.UTC) }

	inside := model.Contest{StartTime: at(10, 14, 0), EndTime: at(10, 16, 0)}
	startsBefore := model.Contest{StartTime: at(9, 22, 0), EndTime: at(10, 1, 0)}
	endsAfter := model.Contest{StartTime: at(10, 23, 0), EndTime: at(11, 2, 0)}
	spans := model.Contest{StartTime: at(9, 12, 0), EndTime: at(11, 12, 0)}
	otherDay := model.Contest{StartTime: at(11, 0, 0), EndTime: at(11, 2, 0)}
	endsAtMidnight := model.Contest{StartTime: at(9, 22, 0), EndTime: at(10, 0, 0)}

	assert.True(t, calendar.Overlaps(inside, day))
	assert.True(t, calendar.Overlaps(startsBefore, day))
	assert.True(t, calendar.Overlaps(endsAfter, day))
	assert.True(t, calendar.Overlaps(spans, day))
	assert.False(t, calendar.Overlaps(otherDay, day))
	assert.True(t, calendar.Overlaps(endsAtMidnight, day))
}

func TestBuildMonth_TwoDayContestInBothCells(t *testing.T) {
	at := func(d, h int) time.Time { return time.Date(2024, time.March, d, h, 0, 0, 0, time.UTC) }
	contests := []model.Contest{
		{ID: "overnight", StartTime: at(15, 20), EndTime: at(16, 2)},
		{ID: "single", StartTime: at(20, 10), EndTime: at(20, 12)},
	}

	month := calendar.BuildMonth(2024, time.March, contests, calendar.Options{
		WeekStart: time.Sunday,
		Location:  time.UTC,
		Now:       at(1, 0),
	})

	byDate := map[string]calendar.Cell{}
	for _, c := range month.Cells {
		byDate[c.Date] = c
	}

	cellIDs := func(date string) []string {
		var out []string
		for _, c := range byDate[date].Contests {
			out = append(out, c.ID)
		}
		return out
	}

	assert.Equal(t, []string{"overnight"}, cellIDs("2024-03-15"))
	assert.Equal(t, []string{"overnight"}, cellIDs("2024-03-16"))
	assert.Nil(t, cellIDs("2024-03-17"))
	assert.Equal(t, []string{"single"}, cellIDs("2024-03-20"))
	assert.Nil(t, cellIDs("2024-03-19"))
	assert.Nil(t, cellIDs("2024-03-21"))

	assert.True(t, byDate["2024-03-01"].IsToday)
	assert.True(t, byDate["2024-03-01"].InMonth)
	assert.False(t, byDate["2024-02-25"].InMonth)
	assert.Equal(t, "March 2024", month.Title)
	assert.Equal(t, []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}, month.Weekdays)
}

func TestBuildMonth_CapAndOverflow(t *testing.T) {
	base := time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC)
	var contests []model.Contest
	for i := 0; i < 5; i++ {
		contests = append(contests, model.Contest{
			ID:        string(rune('a' + i)),
			StartTime: base.Add(time.Duration(4-i) * time.Hour),
			EndTime:   base.Add(time.Duration(4-i)*time.Hour + 30*time.Minute),
		})
	}

	month := calendar.BuildMonth(2024, time.March, contests, calendar.Options{Location: time.UTC, Cap: 2})

	var cell calendar.Cell
	for _, c := range month.Cells {
		if c.Date == "2024-03-05" {
			cell = c
		}
	}
	assert.Equal(t, 5, cell.Total)
	assert.Equal(t, 3, cell.More)
	require.Len(t, cell.Contests, 2)
	// Sorted by start: "e" starts first.
	assert.Equal(t, "e", cell.Contests[0].ID)
	assert.Equal(t, "d", cell.Contests[1].ID)
}

func TestParseWeekStart(t *testing.T) {
	assert.Equal(t, time.Monday, calendar.ParseWeekStart("Monday"))
	assert.Equal(t, time.Sunday, calendar.ParseWeekStart("sunday"))
	assert.Equal(t, time.Sunday, calendar.ParseWeekStart("whatever"))
}
