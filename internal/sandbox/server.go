// Package sandbox serves an in-memory stand-in for the lead generation API.
// Jobs advance one step per status request, so a client polling it sees
// the full pending, processing, completed sequence without any real work.
package sandbox

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Config tunes the sandbox.
type Config struct {
	// Secret signs issued JWTs.
	Secret []byte
	// ExtractSteps is the number of status polls an extraction job takes.
	ExtractSteps int
	// RowsPerPage is the number of businesses returned per search page.
	RowsPerPage int
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

func (c *Config) defaults() {
	if len(c.Secret) == 0 {
		c.Secret = []byte("leadgen-sandbox-secret-change-me!")
	}
	if c.ExtractSteps <= 0 {
		c.ExtractSteps = 3
	}
	if c.RowsPerPage <= 0 {
		c.RowsPerPage = 4
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = 30 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type file struct {
	body    []byte
	created time.Time
}

// Server is the sandbox API. It is safe for concurrent use.
type Server struct {
	cfg Config

	mu    sync.Mutex
	jobs  map[string]*job
	files map[string]file
	users map[string]*user // by email
}

// New returns an empty sandbox.
func New(cfg Config) *Server {
	cfg.defaults()
	return &Server{
		cfg:   cfg,
		jobs:  make(map[string]*job),
		files: make(map[string]file),
		users: make(map[string]*user),
	}
}

// PutFile stores a CSV in the sandbox output directory.
func (s *Server) PutFile(name string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = file{body: body, created: s.cfg.Now()}
}

// Handler returns the API router mounted under /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {

		r.Route("/leads", func(r chi.Router) {
			r.Post("/extract-urls", s.extractURLs)
			r.Post("/enrich-contacts", s.enrichContacts)
			r.Post("/rank-seo", s.rankSEO)
			r.Post("/rank-csv-file", s.rankCSVFile)
			r.Get("/job/{id}", s.jobStatus)
			r.Get("/download/{id}", s.download)
			r.Get("/list-files", s.listFiles)

			r.Post("/audit/upload", s.auditUpload)
			r.Post("/audit/run", s.auditRun)
			r.Get("/audit/job/{id}", s.auditJobStatus)
			r.Get("/audit/download/{id}", s.download)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Post("/login", s.login)
			r.Post("/refresh", s.refresh)
			r.Get("/me", s.me)
		})

		r.Post("/chat/ask", s.ask)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("sandbox: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

// writeDetail writes a FastAPI-style error body.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}

type fileInfo struct {
	Filename string `json:"filename"`
	Size     int    `json:"size"`
	Created  string `json:"created"`
}

func (s *Server) listFiles(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	files := make([]fileInfo, 0, len(s.files))
	for name, f := range s.files {
		if !strings.HasSuffix(name, ".csv") {
			continue
		}
		files = append(files, fileInfo{
			Filename: name,
			Size:     len(f.body),
			Created:  f.created.Format("2006-01-02T15:04:05"),
		})
	}
	s.mu.Unlock()

	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeDetail(w, http.StatusBadRequest, "Message is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answerFor(req.Message)})
}

func answerFor(msg string) string {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "painscore"), strings.Contains(m, "rank"):
		return "PainScore blends mobile and desktop performance; a higher score means a weaker site and a warmer lead."
	case strings.Contains(m, "audit"):
		return "Upload a CSV with a business name and website column, then run the audit on it."
	case strings.Contains(m, "enrich"):
		return "Enrichment visits each website and collects emails, phone numbers and social profiles."
	default:
		return "I can help with lead extraction, enrichment, SEO audits and ranking. What would you like to know?"
	}
}
