package web_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cpcal/internal/app"
	"cpcal/internal/config"
	"cpcal/internal/feed"
	"cpcal/internal/model"
	"cpcal/internal/store"
	"cpcal/internal/web"
)

type stubFetcher struct {
	mu     sync.Mutex
	events []model.RawEvent
	err    error
}

func (f *stubFetcher) Fetch(context.Context) (feed.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return feed.Batch{}, f.err
	}
	return feed.Batch{Events: f.events, FetchedAt: time.Now()}, nil
}

func (f *stubFetcher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func sampleEvents() []model.RawEvent {
	now := time.Now().UTC().Truncate(time.Minute)
	return []model.RawEvent{
		{ID: "lc400", Summary: "[LeetCode] Weekly Contest 400", Location: "https://leetcode.com/contest/weekly-contest-400",
			Start: now.Add(2 * time.Hour), End: now.Add(3*time.Hour + 30*time.Minute)},
		{ID: "cf950", Summary: "[Codeforces] Round #950 (Div. 3)", Location: "https://codeforces.com/contest/1980",
			Start: now.Add(-26 * time.Hour), End: now.Add(-24 * time.Hour)},
		{ID: "ac355", Summary: "[AtCoder] ABC 355", Start: now.Add(48 * time.Hour), End: now.Add(50 * time.Hour)},
		{ID: "broken", Summary: "Broken listing", StartRaw: "??"},
	}
}

type testServer struct {
	*httptest.Server
	svc *app.Service
}

func newTestServer(t *testing.T, cfg *config.Config, f *stubFetcher, refresh bool) *testServer {
	t.Helper()
	return newTestServerAt(t, cfg, f, refresh, nil)
}

// newTestServerAt is newTestServer with a fixed service clock.
func newTestServerAt(t *testing.T, cfg *config.Config, f *stubFetcher, refresh bool, now func() time.Time) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
		cfg.RateLimit = config.RateLimitConfig{}
	}
	svc := app.New(app.Options{
		Fetcher:  f,
		Prefs:    store.NewPreferences(store.NewMemory(), "memory"),
		Location: time.UTC,
		Now:      now,
	})
	if refresh {
		require.NoError(t, svc.Refresh(context.Background()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(web.NewServer(ctx, cfg, svc).Handler())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, svc: svc}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, &stubFetcher{}, false)
	resp, body := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestContests_NotLoaded(t *testing.T) {
	ts := newTestServer(t, nil, &stubFetcher{err: errors.New("down")}, false)

	resp, body := ts.do(t, http.MethodGet, "/api/contests", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "failed to load contests", decode(t, body)["error"])

	resp, body = ts.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "failed to load contests", decode(t, body)["error"])
}

func TestContests_List(t *testing.T) {
	ts := newTestServer(t, nil, &stubFetcher{events: sampleEvents()}, true)

	resp, body := ts.do(t, http.MethodGet, "/api/contests?tab=upcoming", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, body)
	contests := out["contests"].([]any)
	require.Len(t, contests, 1, "default selection excludes AtCoder")
	first := contests[0].(map[string]any)
	assert.Equal(t, "lc400", first["id"])
	assert.Equal(t, "Weekly Contest 400", first["title"])
	assert.Equal(t, false, first["bookmarked"])
	assert.Equal(t, "1h 30m", first["duration"])

	_, body = ts.do(t, http.MethodGet, "/api/contests?tab=all&platform=all", "")
	assert.Len(t, decode(t, body)["contests"].([]any), 4)

	_, body = ts.do(t, http.MethodGet, "/api/contests?tab=past&platform=Codeforces", "")
	past := decode(t, body)["contests"].([]any)
	require.Len(t, past, 1)
	assert.Equal(t, "cf950", past[0].(map[string]any)["id"])

	_, body = ts.do(t, http.MethodGet, "/api/contests?tab=all&platform=all&q=abc", "")
	found := decode(t, body)["contests"].([]any)
	require.Len(t, found, 1)
	assert.Equal(t, "ac355", found[0].(map[string]any)["id"])
}

func TestContest_DetailAndExports(t *testing.T) {
	ts := newTestServer(t, nil, &stubFetcher{events: sampleEvents()}, true)

	resp, body := ts.do(t, http.MethodGet, "/api/contests/lc400", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	d := decode(t, body)
	assert.Equal(t, "lc400", d["id"])
	assert.Equal(t, "LeetCode", d["platformInfo"].(map[string]any)["name"])

	resp, _ = ts.do(t, http.MethodGet, "/api/contests/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/api/contests/lc400/ics?reminder=15", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="LeetCode-weekly-contest-400.ics"`, resp.Header.Get("Content-Disposition"))
	assert.Contains(t, string(body), "UID:contest-lc400@contesttracker.app")
	assert.Contains(t, string(body), "TRIGGER:-PT15M")

	resp, _ = ts.do(t, http.MethodGet, "/api/contests/broken/ics", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/api/contests/lc400/google-calendar?reminder=30", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	u := decode(t, body)["url"].(string)
	assert.True(t, strings.HasPrefix(u, "https://www.google.com/calendar/render?action=TEMPLATE&text=Weekly%20Contest%20400"))
	assert.True(t, strings.HasSuffix(u, "&reminders=popup,30"))

	resp, body = ts.do(t, http.MethodGet, "/api/contests/lc400/solutions/search", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	search := decode(t, body)
	assert.Contains(t, search["search_url"], "https://www.youtube.com/results?search_query=LeetCode%20Weekly%20Contest%20400")
	assert.Empty(t, search["candidates"])

	resp, body = ts.do(t, http.MethodGet, "/api/contests/cf950/analysis", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(decode(t, body)["url"].(string), "https://chatgpt.com/?q=Analyze%20the%20Codeforces%20Round"))

	resp, _ = ts.do(t, http.MethodGet, "/api/contests/missing/analysis", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCalendar(t *testing.T) {
	ts := newTestServer(t, nil, &stubFetcher{events: sampleEvents()}, true)

	resp, body := ts.do(t, http.MethodGet, "/api/calendar?year=2024&month=6&cap=2&platform=all", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := decode(t, body)
	assert.Len(t, m["cells"].([]any), 42)
	assert.Equal(t, "June 2024", m["title"])

	resp, _ = ts.do(t, http.MethodGet, "/api/calendar?year=2024&month=13", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCalendar_DefaultsToServiceClock(t *testing.T) {
	clock := time.Date(2023, 2, 28, 23, 30, 0, 0, time.UTC)
	ts := newTestServerAt(t, nil, &stubFetcher{events: sampleEvents()}, true, func() time.Time { return clock })

	resp, body := ts.do(t, http.MethodGet, "/api/calendar?platform=all", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := decode(t, body)
	assert.Equal(t, "February 2023", m["title"])

	var today []string
	for _, c := range m["cells"].([]any) {
		cell := c.(map[string]any)
		if cell["isToday"] == true {
			today = append(today, cell["date"].(string))
		}
	}
	assert.Equal(t, []string{"2023-02-28"}, today)
}

func TestPlatformPreferences(t *testing.T) {
	ts := newTestServer(t, nil, &stubFetcher{events: sampleEvents()}, true)

	_, body := ts.do(t, http.MethodGet, "/api/platforms", "")
	assert.Len(t, decode(t, body)["platforms"].([]any), 4)

	_, body = ts.do(t, http.MethodGet, "/api/preferences/platforms", "")
	assert.Equal(t, []any{"Codeforces", "CodeChef", "LeetCode"}, decode(t, body)["platforms"])

	resp, _ := ts.do(t, http.MethodPut, "/api/preferences/platforms", `{"platforms":["AtCoder"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = ts.do(t, http.MethodGet, "/api/contests?tab=upcoming", "")
	contests := decode(t, body)["contests"].([]any)
	require.Len(t, contests, 1)
	assert.Equal(t, "ac355", contests[0].(map[string]any)["id"])

	resp, _ = ts.do(t, http.MethodPut, "/api/preferences/platforms", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookmarks(t *testing.T) {
	ts := newTestServer(t, nil, &stubFetcher{events: sampleEvents()}, true)

	_, body := ts.do(t, http.MethodGet, "/api/bookmarks", "")
	assert.Equal(t, []any{}, decode(t, body)["bookmarks"])

	resp, body := ts.do(t, http.MethodPost, "/api/bookmarks/lc400/toggle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, true, out["bookmarked"])
	assert.Equal(t, []any{"lc400"}, out["bookmarks"])

	_, body = ts.do(t, http.MethodPost, "/api/bookmarks/lc400/toggle", "")
	out = decode(t, body)
	assert.Equal(t, false, out["bookmarked"])
	assert.Equal(t, []any{}, out["bookmarks"])

	resp, body = ts.do(t, http.MethodPut, "/api/bookmarks", `{"bookmarks":["cf950","lc400","cf950"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"cf950", "lc400"}, decode(t, body)["bookmarks"])

	_, body = ts.do(t, http.MethodGet, "/api/contests?tab=bookmarked&platform=all", "")
	assert.Len(t, decode(t, body)["contests"].([]any), 2)

	resp, body = ts.do(t, http.MethodGet, "/api/bookmarks/ics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, strings.Count(string(body), "BEGIN:VEVENT"))
	assert.Contains(t, string(body), "TRIGGER:-PT60M")
}

func TestSolutions(t *testing.T) {
	ts := newTestServer(t, nil, &stubFetcher{events: sampleEvents()}, true)

	resp, body := ts.do(t, http.MethodPost, "/api/solutions", `{"contestId":"lc400","youtubeUrl":"https://vimeo.com/1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid YouTube URL", decode(t, body)["error"])

	resp, _ = ts.do(t, http.MethodPost, "/api/solutions", `{"youtubeUrl":"https://youtu.be/abc"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/solutions", `{"contestId":"lc400","youtubeUrl":"https://youtu.be/abc"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodPost, "/api/solutions", `{"contestId":"lc400","youtubeUrl":"https://youtu.be/abc"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, body = ts.do(t, http.MethodGet, "/api/solutions?contestId=lc400", "")
	sols := decode(t, body)["solutions"].([]any)
	require.Len(t, sols, 2, "duplicates are kept")
	assert.Equal(t, "abc", sols[0].(map[string]any)["videoId"])

	_, body = ts.do(t, http.MethodGet, "/api/contests/lc400", "")
	assert.Len(t, decode(t, body)["solutions"].([]any), 2)
}

func TestNotificationSettings(t *testing.T) {
	ts := newTestServer(t, nil, &stubFetcher{}, false)

	_, body := ts.do(t, http.MethodGet, "/api/notifications/settings", "")
	def := decode(t, body)
	assert.Equal(t, false, def["browserEnabled"])
	assert.Equal(t, float64(60), def["reminderTime"])
	assert.Equal(t, []any{}, def["selectedContests"])

	resp, _ := ts.do(t, http.MethodPut, "/api/notifications/settings", `{"reminderTime":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPut, "/api/notifications/settings",
		`{"browserEnabled":true,"reminderTime":15,"email":"me@example.com","emailEnabled":true,"selectedContests":["lc400"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = ts.do(t, http.MethodGet, "/api/notifications/settings", "")
	got := decode(t, body)
	assert.Equal(t, float64(15), got["reminderTime"])
	assert.Equal(t, []any{"lc400"}, got["selectedContests"])
}

func TestRefresh(t *testing.T) {
	f := &stubFetcher{events: sampleEvents()}
	ts := newTestServer(t, nil, f, false)

	resp, body := ts.do(t, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode(t, body)
	assert.Equal(t, true, st["loaded"])
	assert.Equal(t, float64(4), st["contests"])

	f.fail(errors.New("upstream 502"))
	resp, body = ts.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "failed to refresh contests", decode(t, body)["error"])

	resp, _ = ts.do(t, http.MethodGet, "/api/contests?tab=all&platform=all", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "previous snapshot is still served")
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.RateLimit = config.RateLimitConfig{}
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", PasswordHash: string(hash)}
	ts := newTestServer(t, cfg, &stubFetcher{}, false)

	resp, _ := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health stays public")

	resp, _ = ts.do(t, http.MethodGet, "/api/platforms", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	for _, tc := range []struct {
		user, pass string
		want       int
	}{
		{"admin", "s3cret", http.StatusOK},
		{"admin", "wrong", http.StatusUnauthorized},
		{"root", "s3cret", http.StatusUnauthorized},
	} {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/platforms", nil)
		require.NoError(t, err)
		req.SetBasicAuth(tc.user, tc.pass)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tc.want, resp.StatusCode, tc.user+"/"+tc.pass)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimit = config.RateLimitConfig{Requests: 2, Window: time.Minute}
	ts := newTestServer(t, cfg, &stubFetcher{}, false)

	for i := 0; i < 2; i++ {
		resp, _ := ts.do(t, http.MethodGet, "/api/platforms", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := ts.do(t, http.MethodGet, "/api/platforms", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decode(t, body)["error"])

	resp, _ = ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health is not rate limited")
}
