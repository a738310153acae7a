package feed

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"cpcal/internal/config"
	appLog "cpcal/internal/log"
	"cpcal/internal/model"
)

// APIError is the "error" object of a Calendar API response.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return "calendar api error " + strconv.Itoa(e.Code) + ": " + e.Message
}

// GooglePage is one decoded events.list response.
type GooglePage struct {
	Events        []model.RawEvent
	TimeZone      string
	NextPageToken string
}

// GoogleSource reads a public Google Calendar through the v3 events API.
type GoogleSource struct {
	fetcher *Fetcher
	cfg     config.FeedConfig
	loc     *time.Location
}

func NewGoogleSource(fetcher *Fetcher, cfg config.FeedConfig) *GoogleSource {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	return &GoogleSource{fetcher: fetcher, cfg: cfg, loc: loc}
}

func (g *GoogleSource) Kind() string { return config.FeedKindGoogle }

// Request builds the events.list call for window. The window is widened
// to whole UTC days so the query, and with it the cached validators,
// stays the same for every refresh of a day.
func (g *GoogleSource) Request(w Window) Request {
	w = w.wholeDays()
	base := strings.TrimRight(g.cfg.URL, "/")
	q := url.Values{}
	q.Set("calendarId", g.cfg.CalendarID)
	q.Set("singleEvents", "true")
	q.Set("eventTypes", "default")
	q.Set("timeZone", g.cfg.TimeZone)
	q.Set("maxResults", strconv.Itoa(g.cfg.MaxResults))
	q.Set("timeMin", windowString(w.Start))
	q.Set("timeMax", windowString(w.End))
	if g.cfg.APIKey != "" {
		q.Set("key", g.cfg.APIKey)
	}
	return Request{
		ID:    "google:" + g.cfg.CalendarID,
		URL:   base + "/calendars/" + url.PathEscape(g.cfg.CalendarID) + "/events",
		Query: q,
	}
}

func (g *GoogleSource) Fetch(ctx context.Context, w Window) (Batch, error) {
	resp, err := g.fetcher.Fetch(ctx, g.Request(w))
	if err != nil {
		return Batch{}, err
	}

	page, err := DecodeGoogleEvents(resp.Body, g.loc)
	if err != nil {
		return Batch{}, err
	}
	if page.NextPageToken != "" {
		appLog.Warn("calendar response truncated; raise feed.max_results", "max_results", g.cfg.MaxResults)
	}

	return Batch{
		Events:    page.Events,
		Window:    w,
		FromCache: resp.FromCache,
		Outcome:   resp.Outcome,
		FetchedAt: resp.FetchedAt,
	}, nil
}

// DecodeGoogleEvents decodes an events.list body. All-day "date" values are
// read as midnight in loc. Missing or malformed times yield zero values
// with the raw text kept on the event. Cancelled items are dropped.
func DecodeGoogleEvents(body []byte, loc *time.Location) (GooglePage, error) {
	var page GooglePage
	if loc == nil {
		loc = time.UTC
	}

	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				ev, cancelled, err := decodeGoogleItem(d, loc)
				if err != nil {
					return err
				}
				if !cancelled {
					page.Events = append(page.Events, ev)
				}
				return nil
			})
		case "timeZone":
			s, err := optString(d)
			page.TimeZone = s
			return err
		case "nextPageToken":
			s, err := optString(d)
			page.NextPageToken = s
			return err
		case "error":
			apiErr, err := decodeGoogleError(d)
			if err != nil {
				return err
			}
			return apiErr
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return GooglePage{}, errors.Wrap(err, "decode calendar events")
	}
	if page.Events == nil {
		page.Events = []model.RawEvent{}
	}
	return page, nil
}

func decodeGoogleItem(d *jx.Decoder, loc *time.Location) (model.RawEvent, bool, error) {
	var (
		ev        model.RawEvent
		cancelled bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			ev.ID, err = optString(d)
		case "summary":
			ev.Summary, err = optString(d)
		case "description":
			ev.Description, err = optString(d)
		case "location":
			ev.Location, err = optString(d)
		case "status":
			var status string
			status, err = optString(d)
			cancelled = status == "cancelled"
		case "start":
			ev.Start, ev.StartRaw, err = decodeGoogleTime(d, loc)
		case "end":
			ev.End, ev.EndRaw, err = decodeGoogleTime(d, loc)
		default:
			err = d.Skip()
		}
		return err
	})
	return ev, cancelled, err
}

// decodeGoogleTime reads {"dateTime": ..., "date": ..., "timeZone": ...}.
func decodeGoogleTime(d *jx.Decoder, loc *time.Location) (time.Time, string, error) {
	if d.Next() == jx.Null {
		return time.Time{}, "", d.Null()
	}

	var dateTime, date string
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "dateTime":
			dateTime, err = optString(d)
		case "date":
			date, err = optString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return time.Time{}, "", err
	}

	if dateTime != "" {
		t, perr := time.Parse(time.RFC3339, dateTime)
		if perr != nil {
			return time.Time{}, dateTime, nil
		}
		return t, dateTime, nil
	}
	if date != "" {
		t, perr := time.ParseInLocation("2006-01-02", date, loc)
		if perr != nil {
			return time.Time{}, date, nil
		}
		return t, date, nil
	}
	return time.Time{}, "", nil
}

func decodeGoogleError(d *jx.Decoder) (*APIError, error) {
	apiErr := &APIError{}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			apiErr.Code, err = d.Int()
		case "message":
			apiErr.Message, err = optString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return apiErr, err
}

func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
