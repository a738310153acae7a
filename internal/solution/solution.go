// Package solution validates user-submitted solution videos and finds
// candidate videos for a contest.
package solution

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/go-faster/errors"

	"cpcal/internal/model"
)

var (
	// ErrInvalidSolutionURL is returned for links that are not YouTube URLs.
	ErrInvalidSolutionURL = errors.New("invalid YouTube URL")
	ErrMissingContestID   = errors.New("contest id is required")
)

var (
	youtubeURLPattern = regexp.MustCompile(`(?i)^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.*$`)
	watchIDPattern    = regexp.MustCompile(`youtube\.com/watch\?v=([^&]+)`)
	shortIDPattern    = regexp.MustCompile(`youtu\.be/([^?]+)`)

	titlePlatformPattern = regexp.MustCompile(`(?i)(Codeforces|CodeChef|LeetCode|AtCoder)`)
	titleRoundPattern    = regexp.MustCompile(`(?i)Round #(\d+)`)
	titleDivPattern      = regexp.MustCompile(`(?i)Div\. (\d+)`)
	titleProblemPattern  = regexp.MustCompile(`(?i)Problem ([A-Z])`)
)

// ValidURL reports whether s looks like a YouTube link.
func ValidURL(s string) bool {
	return youtubeURLPattern.MatchString(strings.TrimSpace(s))
}

// NewLink validates and builds a solution link.
func NewLink(contestID, youtubeURL string) (model.SolutionLink, error) {
	contestID = strings.TrimSpace(contestID)
	youtubeURL = strings.TrimSpace(youtubeURL)
	if contestID == "" {
		return model.SolutionLink{}, ErrMissingContestID
	}
	if !ValidURL(youtubeURL) {
		return model.SolutionLink{}, ErrInvalidSolutionURL
	}
	return model.SolutionLink{ContestID: contestID, YoutubeURL: youtubeURL}, nil
}

// VideoID extracts the id from youtube.com/watch?v= and youtu.be/ links.
func VideoID(u string) (string, bool) {
	if m := watchIDPattern.FindStringSubmatch(u); m != nil {
		return m[1], true
	}
	if m := shortIDPattern.FindStringSubmatch(u); m != nil {
		return m[1], true
	}
	return "", false
}

// Thumbnail returns the medium-quality thumbnail URL of a video.
func Thumbnail(videoID string) string {
	return "https://img.youtube.com/vi/" + videoID + "/mqdefault.jpg"
}

// SearchQuery is "{platform} {title} {YYYY-MM-DD} solution editorial"
// with the UTC start date.
func SearchQuery(c model.Contest) string {
	return c.Platform + " " + c.Title + " " + c.StartTime.UTC().Format("2006-01-02") + " solution editorial"
}

// SearchURL is a YouTube results page for SearchQuery.
func SearchURL(c model.Contest) string {
	return "https://www.youtube.com/results?search_query=" +
		strings.ReplaceAll(url.QueryEscape(SearchQuery(c)), "+", "%20")
}

// TitleData is structured information found in a video title such as
// "Codeforces Round #789 Div. 2 Problem A Solution".
type TitleData struct {
	Platform string `json:"platform,omitempty"`
	// Round is "{n} Div. {d}" and only set when both parts are present.
	Round   string `json:"round,omitempty"`
	Problem string `json:"problem,omitempty"`
}

func ExtractTitleData(title string) TitleData {
	var d TitleData
	if m := titlePlatformPattern.FindStringSubmatch(title); m != nil {
		d.Platform = m[1]
	}
	round := titleRoundPattern.FindStringSubmatch(title)
	div := titleDivPattern.FindStringSubmatch(title)
	if round != nil && div != nil {
		d.Round = round[1] + " Div. " + div[1]
	}
	if m := titleProblemPattern.FindStringSubmatch(title); m != nil {
		d.Problem = m[1]
	}
	return d
}

// View is a solution link decorated for display.
type View struct {
	model.SolutionLink
	VideoID   string `json:"videoId,omitempty"`
	Thumbnail string `json:"thumbnailUrl,omitempty"`
}

// Decorate adds video id and thumbnail to links where they can be derived.
func Decorate(links []model.SolutionLink) []View {
	out := make([]View, 0, len(links))
	for _, l := range links {
		v := View{SolutionLink: l}
		if id, ok := VideoID(l.YoutubeURL); ok {
			v.VideoID = id
			v.Thumbnail = Thumbnail(id)
		}
		out = append(out, v)
	}
	return out
}
