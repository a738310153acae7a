package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"cpcal/internal/app"
	"cpcal/internal/calendar"
	"cpcal/internal/contest"
	"cpcal/internal/model"
	"cpcal/internal/solution"
)

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// handleRefresh runs a refresh synchronously. A refresh that is already
// running is reported as 202.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Refresh(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.svc.Status())
	case errors.Is(err, app.ErrRefreshInProgress):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "in_progress"})
	default:
		if _, snapErr := s.svc.Snapshot(); snapErr != nil {
			s.fail(w, r, snapErr, "failed to load contests")
			return
		}
		s.fail(w, r, err, "failed to refresh contests")
	}
}

// GET /api/contests?tab=upcoming|past|all|bookmarked&platform=A,B&q=text
func (s *Server) handleContests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.svc.Contests(r.Context(), app.ListQuery{
		Tab:       contest.ParseTab(q.Get("tab")),
		Platforms: parsePlatforms(r),
		Search:    q.Get("q"),
	})
	if err != nil {
		s.fail(w, r, err, "failed to list contests")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleContest(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.ContestDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, "failed to load contest")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleContestICS(w http.ResponseWriter, r *http.Request) {
	reminder := parseIntDefault(r.URL.Query().Get("reminder"), 0)
	name, body, err := s.svc.ContestICS(chi.URLParam(r, "id"), reminder)
	if err != nil {
		s.fail(w, r, err, "failed to export contest")
		return
	}
	writeCalendar(w, name, body)
}

func (s *Server) handleGoogleCalendar(w http.ResponseWriter, r *http.Request) {
	reminder := parseIntDefault(r.URL.Query().Get("reminder"), 0)
	u, err := s.svc.GoogleCalendarURL(chi.URLParam(r, "id"), reminder)
	if err != nil {
		s.fail(w, r, err, "failed to build calendar link")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

func (s *Server) handleSolutionSearch(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.FindSolutions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, "failed to search solutions")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.AnalysisURL(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, "failed to build analysis link")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

// GET /api/calendar?year=2024&month=6&cap=3&platform=A,B
//
// year/month default to the current month in the configured timezone.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := s.svc.Now()
	year := parseIntDefault(q.Get("year"), now.Year())
	month := parseIntDefault(q.Get("month"), int(now.Month()))
	if month < 1 || month > 12 || year < 1970 || year > 9999 {
		writeError(w, http.StatusBadRequest, "invalid year or month")
		return
	}
	limit := parseIntDefault(q.Get("cap"), calendar.DefaultCap)

	m, err := s.svc.Calendar(r.Context(), year, time.Month(month), limit, parsePlatforms(r))
	if err != nil {
		s.fail(w, r, err, "failed to build calendar")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handlePlatforms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"platforms": contest.Platforms()})
}

type platformsBody struct {
	Platforms []string `json:"platforms"`
}

func (s *Server) handleGetPlatformPrefs(w http.ResponseWriter, r *http.Request) {
	selected, err := s.svc.Preferences().SelectedPlatforms(r.Context(), contest.DefaultSelectedPlatforms())
	if err != nil {
		s.fail(w, r, err, "failed to load platforms")
		return
	}
	writeJSON(w, http.StatusOK, platformsBody{Platforms: selected})
}

func (s *Server) handlePutPlatformPrefs(w http.ResponseWriter, r *http.Request) {
	var body platformsBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Platforms == nil {
		body.Platforms = []string{}
	}
	if err := s.svc.Preferences().SetSelectedPlatforms(r.Context(), body.Platforms); err != nil {
		s.fail(w, r, err, "failed to save platforms")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type bookmarksBody struct {
	Bookmarks []string `json:"bookmarks"`
}

func (s *Server) handleGetBookmarks(w http.ResponseWriter, r *http.Request) {
	ids, err := s.svc.Preferences().Bookmarks(r.Context())
	if err != nil {
		s.fail(w, r, err, "failed to load bookmarks")
		return
	}
	writeJSON(w, http.StatusOK, bookmarksBody{Bookmarks: ids})
}

func (s *Server) handlePutBookmarks(w http.ResponseWriter, r *http.Request) {
	var body bookmarksBody
	if !decodeJSON(w, r, &body) {
		return
	}
	prefs := s.svc.Preferences()
	if err := prefs.SetBookmarks(r.Context(), body.Bookmarks); err != nil {
		s.fail(w, r, err, "failed to save bookmarks")
		return
	}
	s.handleGetBookmarks(w, r)
}

func (s *Server) handleToggleBookmark(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "contest id is required")
		return
	}
	marked, ids, err := s.svc.Preferences().ToggleBookmark(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "failed to toggle bookmark")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookmarked": marked, "bookmarks": ids})
}

func (s *Server) handleBookmarksICS(w http.ResponseWriter, r *http.Request) {
	reminder := parseIntDefault(r.URL.Query().Get("reminder"), 0)
	body, err := s.svc.BookmarksICS(r.Context(), reminder)
	if err != nil {
		s.fail(w, r, err, "failed to export bookmarks")
		return
	}
	writeCalendar(w, "bookmarked-contests.ics", body)
}

// GET /api/solutions?contestId=... lists links for one contest, or all
// links when contestId is empty.
func (s *Server) handleGetSolutions(w http.ResponseWriter, r *http.Request) {
	prefs := s.svc.Preferences()
	var (
		links []model.SolutionLink
		err   error
	)
	if id := r.URL.Query().Get("contestId"); id != "" {
		links, err = prefs.SolutionLinksFor(r.Context(), id)
	} else {
		links, err = prefs.SolutionLinks(r.Context())
	}
	if err != nil {
		s.fail(w, r, err, "failed to load solutions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"solutions": solution.Decorate(links)})
}

func (s *Server) handleAddSolution(w http.ResponseWriter, r *http.Request) {
	var body model.SolutionLink
	if !decodeJSON(w, r, &body) {
		return
	}
	links, err := s.svc.AddSolution(r.Context(), body.ContestID, body.YoutubeURL)
	if err != nil {
		s.fail(w, r, err, "failed to save solution")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"solutions": links})
}

func (s *Server) handleGetNotificationSettings(w http.ResponseWriter, r *http.Request) {
	ns, err := s.svc.Preferences().NotificationSettings(r.Context())
	if err != nil {
		s.fail(w, r, err, "failed to load notification settings")
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

func (s *Server) handlePutNotificationSettings(w http.ResponseWriter, r *http.Request) {
	var body model.NotificationSettings
	if !decodeJSON(w, r, &body) {
		return
	}
	saved, err := s.svc.SaveNotificationSettings(r.Context(), body)
	if err != nil {
		s.fail(w, r, err, "failed to save notification settings")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func writeCalendar(w http.ResponseWriter, filename, body string) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
