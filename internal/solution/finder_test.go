package solution_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpcal/internal/config"
	"cpcal/internal/model"
	"cpcal/internal/solution"
)

const channelAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <title>CP Channel</title>
  <entry>
    <id>yt:video:vid1</id>
    <yt:videoId>vid1</yt:videoId>
    <title>Codeforces Round #950 Div. 3 Problem A Solution</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=vid1"/>
    <author><name>CP Channel</name></author>
    <published>2024-06-04T10:00:00+00:00</published>
  </entry>
  <entry>
    <id>yt:video:vid2</id>
    <yt:videoId>vid2</yt:videoId>
    <title>My desk setup tour</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=vid2"/>
    <author><name>CP Channel</name></author>
    <published>2024-06-04T12:00:00+00:00</published>
  </entry>
</feed>`

func newChannelServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channel.xml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(channelAtom))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFinder_Find(t *testing.T) {
	server := newChannelServer(t)

	finder := solution.NewFinder(config.SolutionsConfig{
		Channels:      []string{server.URL + "/channel.xml", server.URL + "/gone.xml"},
		MaxCandidates: 3,
		Timeout:       2 * time.Second,
	})
	require.True(t, finder.Enabled())

	c := model.Contest{
		Title:     "Codeforces Round #950 (Div. 3)",
		Platform:  "Codeforces",
		StartTime: time.Date(2024, 6, 3, 14, 35, 0, 0, time.UTC),
	}
	cands, err := finder.Find(context.Background(), c)
	require.NoError(t, err, "one failing channel is tolerated")

	require.Len(t, cands, 1)
	assert.Equal(t, "vid1", cands[0].VideoID)
	assert.Equal(t, "CP Channel", cands[0].Channel)
	assert.Equal(t, "https://img.youtube.com/vi/vid1/mqdefault.jpg", cands[0].Thumbnail)
	assert.Equal(t, "950 Div. 3", cands[0].Data.Round)
}

func TestFinder_AllChannelsFail(t *testing.T) {
	server := newChannelServer(t)

	finder := solution.NewFinder(config.SolutionsConfig{
		Channels: []string{server.URL + "/a.xml", server.URL + "/b.xml"},
		Timeout:  2 * time.Second,
	})
	_, err := finder.Find(context.Background(), model.Contest{Title: "x", Platform: "AtCoder"})
	require.Error(t, err)
}

func TestFinder_Disabled(t *testing.T) {
	finder := solution.NewFinder(config.SolutionsConfig{})
	assert.False(t, finder.Enabled())

	cands, err := finder.Find(context.Background(), model.Contest{})
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestChannelFeedURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/feeds/videos.xml?channel_id=UC123", solution.ChannelFeedURL("UC123"))
	assert.Equal(t, "http://local/feed.xml", solution.ChannelFeedURL("http://local/feed.xml"))
}
