package export_test

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpcal/internal/export"
	"cpcal/internal/model"
)

func sampleContest() model.Contest {
	return model.Contest{
		ID:          "abc",
		Title:       "Weekly Contest 400",
		Platform:    "LeetCode",
		StartTime:   time.Date(2024, 6, 2, 2, 30, 0, 0, time.UTC),
		EndTime:     time.Date(2024, 6, 2, 4, 0, 0, 0, time.UTC),
		URL:         "https://leetcode.com/contest/",
		Description: "Good luck",
	}
}

func TestContestICS(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	out, err := export.ContestICS(sampleContest(), 30, now)
	require.NoError(t, err)

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"PRODID:-//Contest Tracker//EN",
		"METHOD:PUBLISH",
		"CALSCALE:GREGORIAN",
		"BEGIN:VEVENT",
		"UID:contest-abc@contesttracker.app",
		"DTSTART:20240602T023000Z",
		"DTEND:20240602T040000Z",
		"SUMMARY:Weekly Contest 400",
		"STATUS:CONFIRMED",
		"BEGIN:VALARM",
		"ACTION:DISPLAY",
		"TRIGGER:-PT30M",
		"END:VALARM",
		"END:VCALENDAR",
	} {
		assert.Contains(t, out, want)
	}
}

func TestContestICS_MissingTimes(t *testing.T) {
	c := sampleContest()
	c.EndTime = time.Time{}
	_, err := export.ContestICS(c, 60, time.Now())
	require.ErrorIs(t, err, export.ErrMissingTimes)
}

func TestCalendarICS_SkipsIncomplete(t *testing.T) {
	a := sampleContest()
	b := sampleContest()
	b.ID = "def"
	broken := sampleContest()
	broken.ID = "broken"
	broken.StartTime = time.Time{}

	out, skipped := export.CalendarICS([]model.Contest{a, broken, b}, 0, time.Now())
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
	assert.Contains(t, out, "TRIGGER:-PT60M")
}

func TestDetails_HTMLIsFlattened(t *testing.T) {
	c := sampleContest()
	c.Description = `<p>Rated for <b>Div. 2</b></p><ul><li>6 problems</li><li>2 hours</li></ul><a href="https://x.io/r">rules</a>`
	c.HasHTMLDescription = true

	assert.Equal(t,
		"LeetCode Contest\nRated for Div. 2\n\n- 6 problems\n- 2 hours\nrules (https://x.io/r)\n\nURL: https://leetcode.com/contest/",
		export.Details(c))
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "line one\nline two", export.HTMLToText("line one<br>line two"))
	assert.Equal(t, "https://a.b", export.HTMLToText(`<a href="https://a.b">https://a.b</a>`))
	assert.Equal(t, "x", export.HTMLToText("<script>alert(1)</script>x"))
}

func TestFilename(t *testing.T) {
	c := sampleContest()
	assert.Equal(t, "LeetCode-weekly-contest-400.ics", export.Filename(c))

	c.Platform = "Codeforces"
	c.Title = "Codeforces Round #950 (Div. 3)"
	assert.Equal(t, "Codeforces-codeforces-round--950--div--3-.ics", export.Filename(c))

	c.Platform = `Team "Cup"/2024`
	c.Title = "Final"
	name := export.Filename(c)
	assert.Equal(t, "Team--Cup--2024-final.ics", name)
	assert.NotContains(t, name, `"`)
	assert.NotContains(t, name, "/")
}

func TestGoogleCalendarURL(t *testing.T) {
	raw := export.GoogleCalendarURL(sampleContest(), 15)

	assert.True(t, strings.HasPrefix(raw, "https://www.google.com/calendar/render?action=TEMPLATE&text=Weekly%20Contest%20400&"))
	assert.Contains(t, raw, "&dates=20240602T023000Z/20240602T040000Z")
	assert.True(t, strings.HasSuffix(raw, "&reminders=popup,15"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "Weekly Contest 400", q.Get("text"))
	assert.Equal(t, "LeetCode Contest\nGood luck\n\nURL: https://leetcode.com/contest/", q.Get("details"))
	assert.Equal(t, "https://leetcode.com/contest/", q.Get("location"))
}
