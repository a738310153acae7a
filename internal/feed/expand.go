package feed

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "cpcal/internal/log"
	"cpcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

type expandResult struct {
	Events []model.RawEvent
	// Truncated lists UIDs that hit the occurrence cap.
	Truncated []string
}

// expandEvents turns parsed VEVENTs into one RawEvent per occurrence that
// overlaps w. RRULE, EXDATE and RECURRENCE-ID overrides are honored. Output
// keeps the order of the base events in the payload.
func expandEvents(events []icsEvent, w Window, loc *time.Location, maxPerEvent int) expandResult {
	var res expandResult
	if maxPerEvent <= 0 {
		maxPerEvent = defaultMaxOccurrencesPerEvent
	}
	if loc == nil {
		loc = time.UTC
	}

	overridesByUID := make(map[string][]icsEvent)
	for _, ev := range events {
		if ev.IsOverride {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		}
	}

	res.Events = make([]model.RawEvent, 0, len(events))
	for _, ev := range events {
		if ev.IsOverride {
			continue
		}
		ov := overridesByUID[ev.UID]

		if ev.RawRRule == "" || ev.Start.IsZero() {
			// Zero-time events pass through so the normalizer can report them.
			if ev.Start.IsZero() || overlaps(ev.Start, ev.End, w) {
				res.Events = append(res.Events, toRawEvent(ev, ev.UID))
			}
			continue
		}

		occ, hitCap := expandRecurring(ev, ov, w, maxPerEvent)
		if hitCap {
			res.Truncated = append(res.Truncated, ev.UID)
		}
		res.Events = append(res.Events, occ...)
	}

	return res
}

func expandRecurring(ev icsEvent, overrides []icsEvent, w Window, maxPerEvent int) ([]model.RawEvent, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	if dur < 0 {
		dur = 0
	}

	// Widen the lower bound by the duration so occurrences already running
	// at the window start are kept.
	starts := set.Between(w.Start.Add(-dur).In(ev.Start.Location()), w.End.In(ev.Start.Location()), true)
	hitCap := false
	if len(starts) > maxPerEvent {
		starts = starts[:maxPerEvent]
		hitCap = true
	}

	out := make([]model.RawEvent, 0, len(starts))
	for _, start := range starts {
		occ := ev
		occ.Start = start
		occ.End = start.Add(dur)

		if o, ok := findOverride(overrides, start); ok {
			occ = o
		}
		out = append(out, toRawEvent(occ, occurrenceID(ev.UID, start)))
	}
	return out, hitCap
}

func findOverride(overrides []icsEvent, start time.Time) (icsEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return icsEvent{}, false
}

// occurrenceID mirrors Google's single-event ids: "<uid>_<utc start>".
func occurrenceID(uid string, start time.Time) string {
	return uid + "_" + start.UTC().Format("20060102T150405Z")
}

func toRawEvent(ev icsEvent, id string) model.RawEvent {
	location := ev.Location
	if location == "" {
		location = ev.URL
	}
	return model.RawEvent{
		ID:          id,
		Summary:     ev.Summary,
		Location:    location,
		Description: ev.Description,
		Start:       ev.Start,
		End:         ev.End,
		StartRaw:    ev.StartRaw,
		EndRaw:      ev.EndRaw,
	}
}

func overlaps(start, end time.Time, w Window) bool {
	if end.IsZero() {
		end = start
	}
	return !end.Before(w.Start) && !start.After(w.End)
}
