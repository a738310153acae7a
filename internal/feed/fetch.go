package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"

	appLog "cpcal/internal/log"
	"cpcal/internal/metrics"
)

// ErrNotModifiedWithoutCache is returned when the server answers 304 but
// there is no cached body to serve.
var ErrNotModifiedWithoutCache = errors.New("received 304 Not Modified but no cached body available")

// Fetch outcomes, also used as metric labels.
const (
	OutcomeOK            = "ok"
	OutcomeNotModified   = "not_modified"
	OutcomeCacheFallback = "cache_fallback"
	OutcomeError         = "error"
)

// Request is one GET against a feed endpoint.
type Request struct {
	// ID keys the disk cache. It must not change between refreshes even
	// when the query does (e.g. a moving time window).
	ID    string
	URL   string
	Query url.Values
}

// Response is the body served for a Request, fresh or cached.
type Response struct {
	Body []byte
	// FromCache is true for 304 responses and fallbacks.
	FromCache bool
	// Outcome is one of the Outcome* constants.
	Outcome string
	// FetchedAt is when Body was last received from the network.
	FetchedAt time.Time
}

// cacheEntry holds HTTP cache metadata for a single feed.
type cacheEntry struct {
	// RequestHash identifies the exact URL+query the validators belong to.
	// The URL itself is not stored because it may carry an API key.
	RequestHash  string    `json:"request_hash"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher fetches feeds with HTTP caching (ETag / Last-Modified) and a
// disk-backed copy of the last good body, which is served when the
// endpoint fails.
type Fetcher struct {
	client   *resty.Client
	cacheDir string
	kind     string
}

// NewFetcher returns a Fetcher. An empty cacheDir disables the disk cache.
func NewFetcher(client *resty.Client, cacheDir, kind string) *Fetcher {
	return &Fetcher{client: client, cacheDir: cacheDir, kind: kind}
}

// Fetch performs req, honoring cached validators.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Response, error) {
	if req.URL == "" {
		return Response{}, errors.New("feed URL is empty")
	}
	started := time.Now()

	fullURL := req.URL
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}
	reqHash := hashString(fullURL)

	var (
		cachePath  string
		meta       cacheEntry
		cachedBody []byte
	)
	if f.cacheDir != "" {
		cachePath = filepath.Join(f.cacheDir, hashString(req.ID)[:16])
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			appLog.Error("feed cache dir create failed", err, "path", cachePath)
			cachePath = ""
		} else {
			meta, _ = loadCacheMeta(cachePath)
			cachedBody, _ = os.ReadFile(filepath.Join(cachePath, "body"))
		}
	}

	r := f.client.R().SetContext(ctx).SetQueryParamsFromValues(req.Query)
	if len(cachedBody) > 0 && meta.RequestHash == reqHash {
		if meta.ETag != "" {
			r.SetHeader("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			r.SetHeader("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("feed fetch start", "id", req.ID, "url", redactURL(req.URL))

	fallback := func(cause error) (Response, error) {
		if len(cachedBody) > 0 {
			appLog.Error("feed fetch failed, using cached body", cause, "id", req.ID, "url", redactURL(req.URL))
			metrics.RecordFeedFetch(f.kind, OutcomeCacheFallback, time.Since(started))
			return Response{Body: cachedBody, FromCache: true, Outcome: OutcomeCacheFallback, FetchedAt: meta.UpdatedAt}, nil
		}
		metrics.RecordFeedFetch(f.kind, OutcomeError, time.Since(started))
		return Response{}, cause
	}

	resp, err := r.Get(req.URL)
	if err != nil {
		return fallback(errors.Wrap(err, "feed request"))
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		body := resp.Body()
		now := time.Now().UTC()
		if cachePath != "" {
			newMeta := cacheEntry{
				RequestHash:  reqHash,
				ETag:         resp.Header().Get("ETag"),
				LastModified: resp.Header().Get("Last-Modified"),
				UpdatedAt:    now,
			}
			if err := saveCache(cachePath, newMeta, body); err != nil {
				appLog.Error("feed cache save failed", err, "id", req.ID)
			}
		}
		appLog.Info("feed fetch success", "id", req.ID, "url", redactURL(req.URL), "status", resp.StatusCode(), "bytes", len(body))
		metrics.RecordFeedFetch(f.kind, OutcomeOK, time.Since(started))
		return Response{Body: body, Outcome: OutcomeOK, FetchedAt: now}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			metrics.RecordFeedFetch(f.kind, OutcomeError, time.Since(started))
			return Response{}, ErrNotModifiedWithoutCache
		}
		appLog.Info("feed not modified; using cache", "id", req.ID)
		metrics.RecordFeedFetch(f.kind, OutcomeNotModified, time.Since(started))
		return Response{Body: cachedBody, FromCache: true, Outcome: OutcomeNotModified, FetchedAt: meta.UpdatedAt}, nil

	default:
		return fallback(&StatusError{StatusCode: resp.StatusCode()})
	}
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return errors.Wrap(err, "write body")
	}

	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal meta")
	}
	if err := os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600); err != nil {
		return errors.Wrap(err, "write meta")
	}
	return nil
}
