package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"

	"auto_reddit_speakout_poster/ledger"
	"auto_reddit_speakout_poster/logging"
	"auto_reddit_speakout_poster/publisher"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	cookieName   = "dash_session"
	cookieMaxAge = 30 * 24 * time.Hour
)

// Publisher is the workflow the dashboard triggers.
type Publisher interface {
	Run(ctx context.Context, opts publisher.RunOptions) ledger.RunRecord
	EnsureComment(ctx context.Context) publisher.RepairResult
}

// Options configures the dashboard. An empty DashboardSecret leaves every
// route open.
type Options struct {
	DashboardSecret string
	Subreddit       string
	Gatherer        prometheus.Gatherer
}

type Server struct {
	pub      Publisher
	ledger   ledger.Ledger
	opts     Options
	sessions *sessionStore
	pages    *template.Template
	logger   logging.Logger

	// runMu keeps manual runs from overlapping each other.
	runMu sync.Mutex
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	now      func() time.Time
}

func newStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]time.Time), now: time.Now}
}

func (s *sessionStore) create() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.sessions[id] = s.now().Add(cookieMaxAge)
	return id
}

func (s *sessionStore) valid(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.sessions[id]
	if !ok {
		return false
	}
	if s.now().After(exp) {
		delete(s.sessions, id)
		return false
	}
	return true
}

func (s *sessionStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func New(pub Publisher, l ledger.Ledger, opts Options, logger logging.Logger) (*Server, error) {
	if pub == nil || l == nil {
		return nil, errors.New("publisher and ledger required")
	}
	pages, err := template.New("").Funcs(template.FuncMap{
		"when": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05 UTC") },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		pub:      pub,
		ledger:   l,
		opts:     opts,
		sessions: newStore(),
		pages:    pages,
		logger:   logger,
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.Handle("GET /{$}", s.requirePage(http.HandlerFunc(s.handleDashboard)))
	mux.Handle("GET /api/status", s.requireAPI(http.HandlerFunc(s.handleStatus)))
	mux.Handle("GET /api/history", s.requireAPI(http.HandlerFunc(s.handleHistory)))
	mux.Handle("POST /api/run", s.requireAPI(http.HandlerFunc(s.handleRun)))
	mux.Handle("POST /api/comment", s.requireAPI(http.HandlerFunc(s.handleComment)))
	return s.logMiddleware(mux)
}

// --- Auth ---

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.DashboardSecret == "" {
		return true
	}
	c, err := r.Cookie(cookieName)
	if err != nil {
		return false
	}
	return s.sessions.valid(c.Value)
}

func (s *Server) requirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeJSONStatus(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginPage struct {
	Error bool
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.opts.DashboardSecret == "" || s.authorized(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	s.render(w, http.StatusOK, "login.html", loginPage{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.opts.DashboardSecret == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	submitted := r.PostFormValue("secret")
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(s.opts.DashboardSecret)) != 1 {
		s.logger.WithField("remote", r.RemoteAddr).Warn("Rejected dashboard login")
		s.render(w, http.StatusUnauthorized, "login.html", loginPage{Error: true})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    s.sessions.create(),
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(cookieName); err == nil {
		s.sessions.delete(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// --- Handlers ---

type dashboardPage struct {
	Subreddit      string
	Latest         *ledger.RunRecord
	History        []ledger.RunRecord
	CommentPreview template.HTML
	AuthEnabled    bool
	LoadError      string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	page := dashboardPage{Subreddit: s.opts.Subreddit, AuthEnabled: s.opts.DashboardSecret != ""}
	history, err := s.ledger.ReadAll(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to read run history")
		page.LoadError = err.Error()
	}
	page.History = history
	if len(history) > 0 {
		page.Latest = &history[0]
	}
	if src := latestSourceURL(history); src != "" {
		preview, err := mdToHTML(publisher.SourceComment(src))
		if err != nil {
			s.logger.WithError(err).Warn("Failed to render comment preview")
		}
		page.CommentPreview = preview
	}
	s.render(w, http.StatusOK, "dashboard.html", page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := ledger.Latest(r.Context(), s.ledger)
	if err != nil {
		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, map[string]string{"message": "No runs recorded yet"})
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.ledger.ReadAll(r.Context())
	if err != nil {
		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if history == nil {
		history = []ledger.RunRecord{}
	}
	writeJSON(w, history)
}

type runReq struct {
	DryRun             bool `json:"dry_run"`
	SkipDuplicateCheck bool `json:"skip_duplicate_check"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.runMu.TryLock() {
		writeJSONStatus(w, http.StatusConflict, map[string]string{"error": "a run is already in progress"})
		return
	}
	defer s.runMu.Unlock()

	rec := s.pub.Run(r.Context(), publisher.RunOptions{
		DryRun:             req.DryRun,
		SkipDuplicateCheck: req.SkipDuplicateCheck,
		Source:             ledger.SourceManual,
	})
	writeJSON(w, rec)
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	if !s.runMu.TryLock() {
		writeJSONStatus(w, http.StatusConflict, map[string]string{"error": "a run is already in progress"})
		return
	}
	defer s.runMu.Unlock()

	res := s.pub.EnsureComment(r.Context())
	status := http.StatusOK
	if res.Status == publisher.RepairFailed {
		status = http.StatusBadGateway
	}
	writeJSONStatus(w, status, res)
}

// --- Helpers ---

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.WithError(err).WithField("template", name).Error("Failed to render page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// latestSourceURL is the article page of the newest record that has one.
func latestSourceURL(history []ledger.RunRecord) string {
	for _, rec := range history {
		if rec.SourceURL != "" {
			return rec.SourceURL
		}
	}
	return ""
}

func mdToHTML(md string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.WithFields(logging.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	})
}
