package solution

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/mmcdole/gofeed"
	"go.uber.org/multierr"

	"cpcal/internal/config"
	appLog "cpcal/internal/log"
	"cpcal/internal/model"
)

const channelFeedBase = "https://www.youtube.com/feeds/videos.xml?channel_id="

// Candidate is a video that may be a solution for a contest.
type Candidate struct {
	VideoID     string    `json:"videoId"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Channel     string    `json:"channel"`
	PublishedAt time.Time `json:"publishedAt"`
	Thumbnail   string    `json:"thumbnailUrl"`
	Data        TitleData `json:"data"`
	Score       float64   `json:"score"`
}

// Finder scans YouTube channel feeds for videos about a contest.
type Finder struct {
	parser   *gofeed.Parser
	channels []string
	limit    int
}

func NewFinder(cfg config.SolutionsConfig) *Finder {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: cfg.Timeout}
	parser.UserAgent = "cpcal/1.0"

	limit := cfg.MaxCandidates
	if limit <= 0 {
		limit = 5
	}
	return &Finder{parser: parser, channels: cfg.Channels, limit: limit}
}

// Enabled reports whether any channel is configured.
func (f *Finder) Enabled() bool {
	return f != nil && len(f.channels) > 0
}

// ChannelFeedURL maps a channel id to its Atom feed. Full URLs are kept.
func ChannelFeedURL(channel string) string {
	if strings.HasPrefix(channel, "http://") || strings.HasPrefix(channel, "https://") {
		return channel
	}
	return channelFeedBase + channel
}

// Find fetches every channel concurrently and returns the best candidates.
// Failing channels are logged; an error is returned only when all fail.
func (f *Finder) Find(ctx context.Context, c model.Contest) ([]Candidate, error) {
	if !f.Enabled() {
		return []Candidate{}, nil
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		all    []Candidate
		errs   error
		failed int
	)
	for _, ch := range f.channels {
		wg.Add(1)
		go func(ch string) {
			defer wg.Done()
			items, err := f.fetchChannel(ctx, ch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				errs = multierr.Append(errs, err)
				return
			}
			all = append(all, items...)
		}(ch)
	}
	wg.Wait()

	if failed > 0 {
		appLog.Error("solution channel fetch failed", errs, "failed", failed, "channels", len(f.channels))
		if failed == len(f.channels) {
			return nil, errs
		}
	}

	return Rank(all, c, f.limit), nil
}

func (f *Finder) fetchChannel(ctx context.Context, channel string) ([]Candidate, error) {
	feedURL := ChannelFeedURL(channel)
	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "parse channel feed %s", channel)
	}

	out := make([]Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		id, ok := VideoID(item.Link)
		if !ok {
			id = ytExtension(item, "videoId")
		}
		if id == "" {
			continue
		}
		cand := Candidate{
			VideoID:   id,
			Title:     item.Title,
			URL:       item.Link,
			Channel:   parsed.Title,
			Thumbnail: Thumbnail(id),
			Data:      ExtractTitleData(item.Title),
		}
		if item.Author != nil && item.Author.Name != "" {
			cand.Channel = item.Author.Name
		}
		if item.PublishedParsed != nil {
			cand.PublishedAt = *item.PublishedParsed
		}
		out = append(out, cand)
	}
	return out, nil
}

func ytExtension(item *gofeed.Item, name string) string {
	yt, ok := item.Extensions["yt"]
	if !ok {
		return ""
	}
	if exts := yt[name]; len(exts) > 0 {
		return exts[0].Value
	}
	return ""
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Rank scores candidates against c, drops unrelated ones and videos
// published before the contest started, and returns at most limit.
//
// Score: platform match +3, round number match +2, title token overlap up
// to +5, published within 3 days of the start +2 (within 14 days +1).
func Rank(cands []Candidate, c model.Contest, limit int) []Candidate {
	contestTokens := tokens(c.Title)
	roundNum := ""
	if m := titleRoundPattern.FindStringSubmatch(c.Title); m != nil {
		roundNum = m[1]
	}

	out := make([]Candidate, 0, len(cands))
	seen := map[string]struct{}{}
	for _, cand := range cands {
		if _, dup := seen[cand.VideoID]; dup {
			continue
		}
		if !cand.PublishedAt.IsZero() && !c.StartTime.IsZero() && cand.PublishedAt.Before(c.StartTime) {
			continue
		}

		score := 0.0
		platformMatch := c.Platform != "" && (strings.EqualFold(cand.Data.Platform, c.Platform) ||
			strings.Contains(strings.ToLower(cand.Title), strings.ToLower(c.Platform)))
		if platformMatch {
			score += 3
		}
		if roundNum != "" && strings.HasPrefix(cand.Data.Round, roundNum+" ") {
			score += 2
		}

		overlap := 0.0
		if len(contestTokens) > 0 {
			videoTokens := tokens(cand.Title)
			hits := 0
			for tok := range contestTokens {
				if _, ok := videoTokens[tok]; ok {
					hits++
				}
			}
			overlap = float64(hits) / float64(len(contestTokens))
		}
		score += 5 * overlap

		if !cand.PublishedAt.IsZero() && !c.StartTime.IsZero() {
			switch age := cand.PublishedAt.Sub(c.StartTime); {
			case age <= 3*24*time.Hour:
				score += 2
			case age <= 14*24*time.Hour:
				score++
			}
		}

		if !platformMatch && overlap < 0.5 {
			continue
		}
		cand.Score = score
		seen[cand.VideoID] = struct{}{}
		out = append(out, cand)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func tokens(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(s), -1) {
		out[tok] = struct{}{}
	}
	return out
}
