package feed

import (
	"bytes"
	"context"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/go-faster/errors"

	"cpcal/internal/config"
	appLog "cpcal/internal/log"
)

// icsEvent is a VEVENT as read from an iCalendar payload, before
// recurrence expansion.
type icsEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	URL         string

	Start    time.Time
	End      time.Time
	StartRaw string
	EndRaw   string
	AllDay   bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID
	IsOverride bool
}

// ICSSource reads contests from an iCalendar subscription.
type ICSSource struct {
	fetcher *Fetcher
	cfg     config.FeedConfig
	loc     *time.Location
}

func NewICSSource(fetcher *Fetcher, cfg config.FeedConfig) *ICSSource {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	return &ICSSource{fetcher: fetcher, cfg: cfg, loc: loc}
}

func (s *ICSSource) Kind() string { return config.FeedKindICS }

func (s *ICSSource) Fetch(ctx context.Context, w Window) (Batch, error) {
	resp, err := s.fetcher.Fetch(ctx, Request{ID: "ics:" + s.cfg.URL, URL: s.cfg.URL})
	if err != nil {
		return Batch{}, err
	}

	events, err := parseICS(resp.Body, s.loc)
	if err != nil {
		return Batch{}, err
	}

	res := expandEvents(events, w, s.loc, 0)
	if len(res.Truncated) > 0 {
		appLog.Warn("ics recurrence expansion truncated", "uids", res.Truncated)
	}

	return Batch{
		Events:    res.Events,
		Window:    w,
		FromCache: resp.FromCache,
		Outcome:   resp.Outcome,
		FetchedAt: resp.FetchedAt,
	}, nil
}

// parseICS reads all VEVENTs of an iCalendar payload. Floating times and
// dates without TZID are read in loc. Events without UID are skipped.
func parseICS(body []byte, loc *time.Location) ([]icsEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "parse ics")
	}

	events := make([]icsEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp, loc)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "reason", perr.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (icsEvent, error) {
	var out icsEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty("URL"); p != nil {
		out.URL = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		out.StartRaw = p.Value
		out.AllDay = isDateValue(p)
		out.Start = propertyTime(p, loc)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		out.EndRaw = p.Value
		out.End = propertyTime(p, loc)
	}
	if out.End.IsZero() && !out.Start.IsZero() && out.AllDay {
		out.End = out.Start.AddDate(0, 0, 1)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, paramLocation(p, loc)); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, paramLocation(p, loc)); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// paramLocation resolves the TZID parameter of p, falling back to loc.
func paramLocation(p *ical.IANAProperty, loc *time.Location) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(tzs[0]); err == nil {
			return l
		}
	}
	return loc
}

// propertyTime parses a DTSTART/DTEND property; zero on failure.
func propertyTime(p *ical.IANAProperty, loc *time.Location) time.Time {
	t, err := parseICSTime(p.Value, paramLocation(p, loc))
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseICSTime parses DATE, local DATE-TIME and UTC DATE-TIME values.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
