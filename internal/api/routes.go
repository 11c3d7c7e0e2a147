package api

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/apperr"
	"shaneshark.com/portfolio/internal/asr"
	"shaneshark.com/portfolio/internal/auth"
	"shaneshark.com/portfolio/internal/hot"
	"shaneshark.com/portfolio/internal/metrics"
	"shaneshark.com/portfolio/internal/qa"
	"shaneshark.com/portfolio/internal/review"
	"shaneshark.com/portfolio/internal/sandbox"
	"shaneshark.com/portfolio/internal/session"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the services behind the HTTP surface
type Server struct {
	QA          *qa.Service
	Admin       *auth.AdminService
	Sessions    *session.Manager
	Review      *review.Service
	Runner      *sandbox.Runner
	ASR         *asr.Client
	Store       Pinger
	StoreName   string
	HotInterval time.Duration
	ContextPath string
	Origins     []string

	// TrustedProxies may set X-Forwarded-For for the client address
	TrustedProxies []netip.Prefix
}

// SetupRoutes configures and returns the HTTP handler
func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()

	r.Use(metrics.MetricsMiddleware)

	r.HandleFunc(HealthPath, s.HealthHandler).Methods(http.MethodGet)
	r.Handle(MetricsPath, metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix(s.ContextPath).Subrouter()

	// Admin routes carry a session. Registered ahead of /qa/{id}.
	admin := api.PathPrefix("/qa/admin").Subrouter()
	admin.Use(s.sessionMiddleware)
	admin.HandleFunc("/login", s.AdminLoginHandler).Methods(http.MethodPost)
	admin.HandleFunc("/email/check-or-send", s.CheckEmailHandler).Methods(http.MethodPost)
	admin.HandleFunc("/email/register-or-login", s.EmailLoginHandler).Methods(http.MethodPost)
	admin.HandleFunc("/logout", s.LogoutHandler).Methods(http.MethodPost)
	admin.HandleFunc("/session", s.SessionHandler).Methods(http.MethodGet)
	admin.HandleFunc("/list", requireAdmin(s.AdminListHandler)).Methods(http.MethodGet)
	admin.HandleFunc("", requireAdmin(s.CreateQaHandler)).Methods(http.MethodPost)
	admin.HandleFunc("/{id}", requireAdmin(s.AdminGetQaHandler)).Methods(http.MethodGet)
	admin.HandleFunc("/{id}", requireAdmin(s.UpdateQaHandler)).Methods(http.MethodPut)
	admin.HandleFunc("/{id}", requireAdmin(s.DeleteQaHandler)).Methods(http.MethodDelete)

	// Public QA
	api.HandleFunc("/qa/list", s.ListQaHandler).Methods(http.MethodGet)
	api.HandleFunc("/qa/tags", s.TagsHandler).Methods(http.MethodGet)
	api.Handle("/qa/hot/sse", hot.NewHandler(s.QA, s.HotInterval)).Methods(http.MethodGet)
	api.HandleFunc("/qa/{id}", s.GetQaHandler).Methods(http.MethodGet)

	// Checkpoint review
	api.HandleFunc("/review/analyze", s.AnalyzeHandler).Methods(http.MethodPost)
	api.HandleFunc("/review/insight", s.InsightHandler).Methods(http.MethodPost)

	// Sandbox
	api.HandleFunc("/sandbox/run", s.RunCodeHandler).Methods(http.MethodPost)
	api.HandleFunc("/sandbox/languages", s.LanguagesHandler).Methods(http.MethodGet)
	api.HandleFunc("/sandbox/review", s.CodeReviewHandler).Methods(http.MethodPost)

	// Speech to text
	api.HandleFunc("/asr/transcribe", s.TranscribeHandler).Methods(http.MethodPost)

	// CORS sits outside the router so preflights for any route are answered
	return RecoverMiddleware(LoggingMiddleware(CORSMiddleware(s.Origins)(r)))
}

// HealthHandler reports store reachability
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: s.StoreName}
	if s.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Store.Ping(ctx); err != nil {
			log.Error().Err(err).Str("store", s.StoreName).Msg("Health check failed")
			resp.Status = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, Response{Code: apperr.SystemError, Data: resp, Message: "store unreachable"})
			return
		}
	}
	writeOK(w, resp)
}
