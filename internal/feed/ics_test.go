package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpcal/internal/config"
	"cpcal/internal/feed"
)

const contestsICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//cpcal test//EN
BEGIN:VEVENT
UID:single-1
DTSTAMP:20240101T000000Z
DTSTART:20240610T143000Z
DTEND:20240610T160000Z
SUMMARY:[Codeforces] Round 950
LOCATION:https://codeforces.com/contests
END:VEVENT
BEGIN:VEVENT
UID:weekly
DTSTAMP:20240101T000000Z
DTSTART:20240601T023000Z
DTEND:20240601T040000Z
RRULE:FREQ=WEEKLY;COUNT=10
EXDATE:20240608T023000Z
SUMMARY:[LeetCode] Weekly Contest
URL:https://leetcode.com/contest/
END:VEVENT
BEGIN:VEVENT
UID:weekly
DTSTAMP:20240101T000000Z
RECURRENCE-ID:20240615T023000Z
DTSTART:20240615T033000Z
DTEND:20240615T050000Z
SUMMARY:[LeetCode] Weekly Contest (moved)
URL:https://leetcode.com/contest/
END:VEVENT
BEGIN:VEVENT
UID:old
DTSTAMP:20240101T000000Z
DTSTART:20230101T000000Z
DTEND:20230101T010000Z
SUMMARY:[AtCoder] Old
END:VEVENT
END:VCALENDAR
`

func TestICSSource_ExpandsWithinWindow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(strings.ReplaceAll(contestsICS, "\n", "\r\n")))
	}))
	defer server.Close()

	cfg := testFeedConfig(t, server.URL+"/contests.ics")
	cfg.Kind = config.FeedKindICS
	cfg.TimeZone = "UTC"

	fetcher := feed.NewFetcher(feed.NewHTTPClient(cfg, "ics_test"), cfg.CacheDir, cfg.Kind)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	client := feed.NewClient(feed.NewICSSource(fetcher, cfg), 0, 29, func() time.Time { return now })
	assert.Equal(t, config.FeedKindICS, client.Kind())

	batch, err := client.Fetch(context.Background())
	require.NoError(t, err)

	var got []string
	for _, ev := range batch.Events {
		got = append(got, ev.ID)
	}
	assert.Equal(t, []string{
		"single-1",
		"weekly_20240601T023000Z",
		"weekly_20240615T023000Z",
		"weekly_20240622T023000Z",
		"weekly_20240629T023000Z",
	}, got)

	single := batch.Events[0]
	assert.Equal(t, "[Codeforces] Round 950", single.Summary)
	assert.Equal(t, "https://codeforces.com/contests", single.Location)
	assert.True(t, single.Start.Equal(time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC)))

	// URL property fills an empty LOCATION.
	assert.Equal(t, "https://leetcode.com/contest/", batch.Events[1].Location)

	moved := batch.Events[2]
	assert.Equal(t, "[LeetCode] Weekly Contest (moved)", moved.Summary)
	assert.True(t, moved.Start.Equal(time.Date(2024, 6, 15, 3, 30, 0, 0, time.UTC)))
	assert.True(t, moved.End.Equal(time.Date(2024, 6, 15, 5, 0, 0, 0, time.UTC)))

	last := batch.Events[4]
	assert.Equal(t, 90*time.Minute, last.End.Sub(last.Start))
}

func TestICSSource_InvalidPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testFeedConfig(t, server.URL)
	cfg.Kind = config.FeedKindICS
	fetcher := feed.NewFetcher(feed.NewHTTPClient(cfg, "ics_test"), "", cfg.Kind)

	_, err := feed.NewICSSource(fetcher, cfg).Fetch(context.Background(), feed.Window{})
	require.Error(t, err)
}

func TestWindowAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	w := feed.WindowAt(now, 7, 30)
	assert.Equal(t, time.Date(2024, 2, 23, 10, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC), w.End)
}
