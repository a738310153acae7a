package model

import (
	"strconv"
	"time"
)

// Platform names recognized by the normalizer. Anything else is either the
// raw bracket tag text or PlatformOther.
const (
	PlatformCodeforces = "Codeforces"
	PlatformCodeChef   = "CodeChef"
	PlatformLeetCode   = "LeetCode"
	PlatformAtCoder    = "AtCoder"
	PlatformOther      = "Other"
)

// RawEvent is a single feed item before normalization. Both feed sources
// (Google Calendar JSON and iCalendar) produce this shape.
//
// Start/End are zero when the feed value was missing or malformed; the
// normalizer does not reject such items.
type RawEvent struct {
	ID          string
	Summary     string
	Location    string
	Description string

	Start time.Time
	End   time.Time

	// StartRaw / EndRaw keep the feed text for diagnostics.
	StartRaw string
	EndRaw   string
}

// Contest is a normalized contest record.
type Contest struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Platform           string    `json:"platform"`
	StartTime          time.Time `json:"startTime"`
	EndTime            time.Time `json:"endTime"`
	URL                string    `json:"url"`
	Description        string    `json:"description"`
	IsPast             bool      `json:"isPast"`
	HasHTMLDescription bool      `json:"hasHtmlDescription"`
}

// Duration returns EndTime - StartTime.
func (c Contest) Duration() time.Duration {
	return c.EndTime.Sub(c.StartTime)
}

// SolutionLink attaches a video link to a contest. Several links per
// contest are allowed.
type SolutionLink struct {
	ContestID  string `json:"contestId"`
	YoutubeURL string `json:"youtubeUrl"`
}

// NotificationSettings is stored and replaced as a whole.
type NotificationSettings struct {
	BrowserEnabled   bool     `json:"browserEnabled"`
	ReminderTime     int      `json:"reminderTime"` // minutes before start
	Email            string   `json:"email"`
	EmailEnabled     bool     `json:"emailEnabled"`
	SelectedContests []string `json:"selectedContests"`
}

// DefaultNotificationSettings is returned when nothing has been saved yet.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		BrowserEnabled:   false,
		ReminderTime:     60,
		Email:            "",
		EmailEnabled:     false,
		SelectedContests: []string{},
	}
}

// Reminder is a single due notification for a contest.
type Reminder struct {
	ID          string    `json:"id"`
	ContestID   string    `json:"contestId"`
	Title       string    `json:"title"`
	Platform    string    `json:"platform"`
	URL         string    `json:"url"`
	StartTime   time.Time `json:"startTime"`
	RemindAt    time.Time `json:"remindAt"`
	LeadMinutes int       `json:"leadMinutes"`
	Email       string    `json:"email,omitempty"`
}

// Subject is the notification headline.
func (r Reminder) Subject() string {
	return "Contest Reminder: " + r.Title
}

// Body is the notification text.
func (r Reminder) Body() string {
	return "The contest starts in " + strconv.Itoa(r.LeadMinutes) + " minutes on " + r.Platform
}
