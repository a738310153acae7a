// Package contest turns raw feed events into Contest records and answers
// the list-view questions (filtering, search, tabs, countdowns).
package contest

import (
	"regexp"
	"strings"
	"time"

	"cpcal/internal/model"
)

// Classification describes how the platform of an event was determined.
type Classification string

const (
	// ClassKnown: the bracket tag matched the allowlist.
	ClassKnown Classification = "known"
	// ClassUnlisted: a bracket tag was present but matched nothing; the raw
	// tag text is used as the platform.
	ClassUnlisted Classification = "unlisted"
	// ClassUntagged: the summary had no bracket tag; platform is "Other".
	ClassUntagged Classification = "untagged"
)

// allowlist is checked in order; the first platform whose name is contained
// in the tag wins.
var allowlist = []string{
	model.PlatformCodeforces,
	model.PlatformCodeChef,
	model.PlatformLeetCode,
	model.PlatformAtCoder,
}

var (
	tagPattern  = regexp.MustCompile(`\[(.*?)\]`)
	tagStrip    = regexp.MustCompile(`\[.*?\]\s*`)
	htmlPattern = regexp.MustCompile(`(?i)<[a-z][\s\S]*>`)
)

// Issue is a non-fatal problem found while normalizing one event.
type Issue struct {
	EventID string
	Field   string
	Value   string
}

// Result is the outcome of normalizing a single event.
type Result struct {
	Contest        model.Contest
	Classification Classification
	Issues         []Issue
}

// Normalizer maps raw feed events into contests. The zero value is not
// usable; construct with NewNormalizer.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer returns a Normalizer using now as its clock. A nil clock
// means time.Now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize converts events in order, evaluating "now" once for the whole
// batch so every contest sees the same cut-off.
func (n *Normalizer) Normalize(events []model.RawEvent) []Result {
	now := n.now()
	out := make([]Result, 0, len(events))
	for _, ev := range events {
		out = append(out, NormalizeAt(ev, now))
	}
	return out
}

// Contests extracts the contest records from results.
func Contests(results []Result) []model.Contest {
	out := make([]model.Contest, 0, len(results))
	for _, r := range results {
		out = append(out, r.Contest)
	}
	return out
}

// NormalizeAt converts a single raw event using now as the past/future
// cut-off. Missing or malformed times are kept as zero values and reported
// as issues; the contest is still produced. A contest without an end time
// is never past.
func NormalizeAt(ev model.RawEvent, now time.Time) Result {
	platform, class := ClassifyPlatform(ev.Summary)

	c := model.Contest{
		ID:                 ev.ID,
		Title:              CleanTitle(ev.Summary),
		Platform:           platform,
		StartTime:          ev.Start,
		EndTime:            ev.End,
		URL:                ev.Location,
		Description:        ev.Description,
		IsPast:             !ev.End.IsZero() && ev.End.Before(now),
		HasHTMLDescription: HasHTML(ev.Description),
	}

	var issues []Issue
	if ev.Start.IsZero() {
		issues = append(issues, Issue{EventID: ev.ID, Field: "start", Value: ev.StartRaw})
	}
	if ev.End.IsZero() {
		issues = append(issues, Issue{EventID: ev.ID, Field: "end", Value: ev.EndRaw})
	}
	if !ev.Start.IsZero() && !ev.End.IsZero() && ev.End.Before(ev.Start) {
		issues = append(issues, Issue{EventID: ev.ID, Field: "end_before_start", Value: ev.EndRaw})
	}

	return Result{Contest: c, Classification: class, Issues: issues}
}

// ClassifyPlatform extracts the first bracketed tag of summary and maps it
// to a platform name.
func ClassifyPlatform(summary string) (string, Classification) {
	m := tagPattern.FindStringSubmatch(summary)
	if m == nil {
		return model.PlatformOther, ClassUntagged
	}
	tag := m[1]
	for _, p := range allowlist {
		if strings.Contains(tag, p) {
			return p, ClassKnown
		}
	}
	return tag, ClassUnlisted
}

// CleanTitle removes the first bracketed tag (and the whitespace after it)
// from summary.
func CleanTitle(summary string) string {
	loc := tagStrip.FindStringIndex(summary)
	if loc == nil {
		return strings.TrimSpace(summary)
	}
	return strings.TrimSpace(summary[:loc[0]] + summary[loc[1]:])
}

// HasHTML reports whether s contains something that looks like an HTML tag.
func HasHTML(s string) bool {
	if s == "" {
		return false
	}
	return htmlPattern.MatchString(s)
}
