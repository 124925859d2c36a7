package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/wikihist/wikihist/internal/ingest"
	"github.com/wikihist/wikihist/internal/search"
	"github.com/wikihist/wikihist/internal/storage"
	"github.com/wikihist/wikihist/internal/wiki"
)

const (
	defaultPerPage    = 25
	maxPerPage        = 200
	dashboardCacheKey = "dashboard"
	dashboardCacheTTL = time.Minute
)

// Server exposes the browse, search and ingestion surface as JSON.
type Server struct {
	db        *storage.DB
	index     *search.Index
	populator *ingest.Populator
	log       *logrus.Logger
	cache     *gocache.Cache
}

// NewServer creates the API server. index may be nil, which disables
// the search endpoint.
func NewServer(db *storage.DB, index *search.Index, populator *ingest.Populator, log *logrus.Logger) *Server {
	return &Server{
		db:        db,
		index:     index,
		populator: populator,
		log:       log,
		cache:     gocache.New(dashboardCacheTTL, 5*time.Minute),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/articles", s.handleArticles)
		r.Get("/articles/{title}/revisions", s.handleArticleRevisions)
		r.Get("/users", s.handleUsers)
		r.Get("/users/{username}", s.handleUserDetail)
		r.Get("/search", s.handleSearch)
		r.Get("/dashboard", s.handleDashboard)
		r.Post("/populate", s.handlePopulate)
		r.Get("/schedule", s.handleScheduleList)
		r.Post("/schedule", s.handleScheduleChange)
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("encoding response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func pagination(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	articles, err := storage.FetchArticles(s.db, perPage, page)
	if err != nil {
		s.log.WithError(err).Error("listing articles")
		s.writeError(w, http.StatusInternalServerError, "listing articles failed")
		return
	}
	total, err := storage.CountArticles(s.db)
	if err != nil {
		s.log.WithError(err).Error("counting articles")
		s.writeError(w, http.StatusInternalServerError, "listing articles failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"articles": articles,
		"page":     page,
		"per_page": perPage,
		"total":    total,
	})
}

func (s *Server) handleArticleRevisions(w http.ResponseWriter, r *http.Request) {
	title := pathParam(r, "title")
	page, perPage := pagination(r)

	article, err := storage.GetArticleByTitle(s.db, title)
	if err != nil {
		s.log.WithError(err).Error("looking up article")
		s.writeError(w, http.StatusInternalServerError, "loading revisions failed")
		return
	}
	if article == nil {
		s.writeError(w, http.StatusNotFound, "article not found")
		return
	}

	revisions, total, err := storage.FetchArticleRevisions(s.db, title, perPage, page)
	if err != nil {
		s.log.WithError(err).Error("listing revisions")
		s.writeError(w, http.StatusInternalServerError, "loading revisions failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"title":     title,
		"revisions": revisions,
		"page":      page,
		"per_page":  perPage,
		"total":     total,
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	q := r.URL.Query()

	activeDays, _ := strconv.Atoi(q.Get("active_days"))
	filter := storage.UserFilter{
		ArticleTitle:     q.Get("article"),
		BotsOnly:         q.Get("bots") == "1",
		IPsOnly:          q.Get("ips") == "1",
		BlockedOnly:      q.Get("blocked") == "1",
		ActiveWithinDays: activeDays,
		Sort:             q.Get("sort"),
	}

	users, err := storage.FetchUsers(s.db, filter, perPage, page)
	if err != nil {
		s.log.WithError(err).Error("listing users")
		s.writeError(w, http.StatusInternalServerError, "listing users failed")
		return
	}
	total, err := storage.CountUsers(s.db, filter)
	if err != nil {
		s.log.WithError(err).Error("counting users")
		s.writeError(w, http.StatusInternalServerError, "listing users failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"users":    users,
		"page":     page,
		"per_page": perPage,
		"total":    total,
	})
}

func (s *Server) handleUserDetail(w http.ResponseWriter, r *http.Request) {
	username := pathParam(r, "username")
	page, perPage := pagination(r)

	user, err := storage.GetUserByUsername(s.db, username)
	if err != nil {
		s.log.WithError(err).Error("looking up user")
		s.writeError(w, http.StatusInternalServerError, "loading user failed")
		return
	}
	if user == nil {
		s.writeError(w, http.StatusNotFound, "user not found")
		return
	}

	revisions, total, err := storage.FetchUserRevisions(s.db, username, perPage, page)
	if err != nil {
		s.log.WithError(err).Error("listing user revisions")
		s.writeError(w, http.StatusInternalServerError, "loading user failed")
		return
	}
	stats, err := storage.GetUserStats(s.db, user.ID)
	if err != nil {
		s.log.WithError(err).Error("computing user stats")
		s.writeError(w, http.StatusInternalServerError, "loading user failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": map[string]interface{}{
			"username":   user.Username,
			"is_ip":      user.IsIP,
			"is_bot":     user.IsBot,
			"is_blocked": user.IsBlocked,
		},
		"stats": map[string]interface{}{
			"edited_articles": stats.EditedArticles,
			"first_edit":      stats.FirstEdit,
			"last_edit":       stats.LastEdit,
		},
		"revisions": revisions,
		"page":      page,
		"per_page":  perPage,
		"total":     total,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.writeError(w, http.StatusServiceUnavailable, "search index not configured")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"results": []search.Result{}})
		return
	}

	results, err := s.index.Search(query, 50)
	if err != nil {
		s.log.WithError(err).Error("search failed")
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": results,
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.cache.Get(dashboardCacheKey); ok {
		s.writeJSON(w, http.StatusOK, cached)
		return
	}

	stats, err := storage.GetDashboardStats(s.db, 10)
	if err != nil {
		s.log.WithError(err).Error("computing dashboard stats")
		s.writeError(w, http.StatusInternalServerError, "dashboard failed")
		return
	}

	s.cache.Set(dashboardCacheKey, stats, gocache.DefaultExpiration)
	s.writeJSON(w, http.StatusOK, stats)
}

type populateRequest struct {
	Title string `json:"title"`
}

func (s *Server) handlePopulate(w http.ResponseWriter, r *http.Request) {
	var req populateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	title, stats, err := s.populator.Populate(r.Context(), req.Title)
	switch {
	case errors.Is(err, wiki.ErrInvalidTitle):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, wiki.ErrFetchFailed):
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		s.log.WithError(err).Errorf("populating %q", title)
		s.writeError(w, http.StatusInternalServerError, "population failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"title":              title,
		"revisions_inserted": stats.RevisionsInserted,
		"revisions_ignored":  stats.RevisionsIgnored,
		"revisions_skipped":  stats.RevisionsSkipped,
		"lookups_made":       stats.LookupsMade,
		"lookups_skipped":    stats.LookupsSkipped,
	})
}

func (s *Server) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	scheduled, err := storage.ListScheduledArticles(s.db)
	if err != nil {
		s.log.WithError(err).Error("listing schedule")
		s.writeError(w, http.StatusInternalServerError, "listing schedule failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"scheduled": scheduled})
}

type scheduleRequest struct {
	Action        string `json:"action"` // add, remove, toggle
	Title         string `json:"title"`
	IntervalHours int    `json:"interval_hours"`
}

func (s *Server) handleScheduleChange(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "add":
		title, err := wiki.CleanTitle(req.Title)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		interval := req.IntervalHours
		if interval <= 0 {
			interval = 24
		}
		if err := storage.UpsertScheduledArticle(s.db, title, interval); err != nil {
			s.log.WithError(err).Error("adding schedule entry")
			s.writeError(w, http.StatusInternalServerError, "schedule update failed")
			return
		}
	case "remove":
		if err := storage.DeleteScheduledArticle(s.db, req.Title); err != nil {
			s.log.WithError(err).Error("removing schedule entry")
			s.writeError(w, http.StatusInternalServerError, "schedule update failed")
			return
		}
	case "toggle":
		if err := storage.ToggleScheduledArticle(s.db, req.Title); err != nil {
			s.log.WithError(err).Error("toggling schedule entry")
			s.writeError(w, http.StatusInternalServerError, "schedule update failed")
			return
		}
	default:
		s.writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
