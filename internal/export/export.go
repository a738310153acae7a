// Package export renders contests as iCalendar files and Google Calendar
// links.
package export

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/go-faster/errors"

	"cpcal/internal/model"
)

const (
	ProdID    = "-//Contest Tracker//EN"
	uidDomain = "contesttracker.app"

	googleCalendarBase = "https://www.google.com/calendar/render"
	compactUTC         = "20060102T150405Z"
)

// DefaultReminderMinutes is used when no reminder lead is given.
const DefaultReminderMinutes = 60

// ErrMissingTimes is returned for contests without a start or end time.
var ErrMissingTimes = errors.New("contest has no valid start/end time")

var filenameUnsafe = regexp.MustCompile(`(?i)[^a-z0-9]`)

// UID returns the iCalendar UID of a contest.
func UID(c model.Contest) string {
	return "contest-" + c.ID + "@" + uidDomain
}

// Details is the event body shared by .ics and Google Calendar exports.
func Details(c model.Contest) string {
	desc := c.Description
	if c.HasHTMLDescription {
		desc = HTMLToText(desc)
	}
	return c.Platform + " Contest\n" + desc + "\n\nURL: " + c.URL
}

// ContestICS renders a single-event calendar with a display alarm
// reminderMinutes before start.
func ContestICS(c model.Contest, reminderMinutes int, now time.Time) (string, error) {
	if c.StartTime.IsZero() || c.EndTime.IsZero() {
		return "", ErrMissingTimes
	}
	cal := newCalendar()
	addEvent(cal, c, reminderMinutes, now)
	return cal.Serialize(), nil
}

// CalendarICS renders one VEVENT per contest. Contests without valid
// times are skipped; the number of skipped contests is returned.
func CalendarICS(contests []model.Contest, reminderMinutes int, now time.Time) (string, int) {
	cal := newCalendar()
	skipped := 0
	for _, c := range contests {
		if c.StartTime.IsZero() || c.EndTime.IsZero() {
			skipped++
			continue
		}
		addEvent(cal, c, reminderMinutes, now)
	}
	return cal.Serialize(), skipped
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(ProdID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)
	return cal
}

func addEvent(cal *ical.Calendar, c model.Contest, reminderMinutes int, now time.Time) {
	if reminderMinutes <= 0 {
		reminderMinutes = DefaultReminderMinutes
	}

	ev := cal.AddEvent(UID(c))
	ev.SetDtStampTime(now.UTC())
	ev.SetStartAt(c.StartTime.UTC())
	ev.SetEndAt(c.EndTime.UTC())
	ev.SetSummary(c.Title)
	ev.SetDescription(Details(c))
	ev.SetLocation(c.URL)
	ev.SetProperty(ical.ComponentProperty("URL"), c.URL)
	ev.SetStatus(ical.ObjectStatusConfirmed)
	ev.SetProperty(ical.ComponentPropertySequence, "0")

	alarm := ev.AddAlarm()
	alarm.SetAction(ical.ActionDisplay)
	alarm.SetProperty(ical.ComponentPropertyDescription, "Reminder for "+c.Title)
	alarm.SetProperty(ical.ComponentProperty("TRIGGER"), "-PT"+strconv.Itoa(reminderMinutes)+"M")
}

// Filename is the download name: "{platform}-{title}.ics" where every
// non-alphanumeric character becomes "-" and the title is lowercased.
// Unlisted platforms are raw feed text, so they are sanitized too.
func Filename(c model.Contest) string {
	return filenameUnsafe.ReplaceAllString(c.Platform, "-") + "-" +
		strings.ToLower(filenameUnsafe.ReplaceAllString(c.Title, "-")) + ".ics"
}

// GoogleCalendarURL builds an "add event" link with a popup reminder.
func GoogleCalendarURL(c model.Contest, reminderMinutes int) string {
	if reminderMinutes <= 0 {
		reminderMinutes = DefaultReminderMinutes
	}
	dates := c.StartTime.UTC().Format(compactUTC) + "/" + c.EndTime.UTC().Format(compactUTC)

	var b strings.Builder
	b.WriteString(googleCalendarBase)
	b.WriteString("?action=TEMPLATE")
	b.WriteString("&text=" + encodeComponent(c.Title))
	b.WriteString("&details=" + encodeComponent(Details(c)))
	b.WriteString("&location=" + encodeComponent(c.URL))
	b.WriteString("&dates=" + dates)
	b.WriteString("&reminders=popup," + strconv.Itoa(reminderMinutes))
	return b.String()
}

// encodeComponent percent-encodes s for a query value, using %20 for spaces.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
