package api

import (
	"context"
	"crypto/subtle"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/charliek/devlog/internal/constants"
	"github.com/charliek/devlog/internal/domain"
)

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Host        string
	Port        int
	AuthEnabled bool
	Token       string

	// AccessLog receives request logs. nil logs to stdout.
	AccessLog io.Writer
}

// Server serves the console over HTTP
type Server struct {
	config     ServerConfig
	router     *chi.Mux
	httpServer *http.Server
	handlers   *Handlers
	mu         sync.Mutex
}

// NewServer creates a new API server
func NewServer(config ServerConfig, handlers *Handlers) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if config.AccessLog != nil {
		r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  log.New(config.AccessLog, "", log.LstdFlags),
			NoColor: true,
		}))
	} else {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(localOriginsOnly)

	s := &Server{
		config:   config,
		router:   r,
		handlers: handlers,
	}
	s.registerRoutes()

	return s
}

// localOriginsOnly allows cross-origin requests from browser viewers served
// on this machine and answers preflight requests
func localOriginsOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if isLocalhostOrigin(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isLocalhostOrigin reports whether origin is an http(s) origin on a
// loopback host, with or without a port
func isLocalhostOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if u.Path != "" || u.RawQuery != "" || u.User != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// requireToken rejects requests without the bearer token. With
// allowQuery the token may also be passed as ?token=, which browser
// EventSource clients need since they cannot set headers.
func requireToken(token string, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided, msg := bearerToken(r)
			if provided == "" && allowQuery {
				if q := r.URL.Query().Get("token"); q != "" {
					provided, msg = q, ""
				}
			}
			if msg != "" {
				unauthorized(w, msg)
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from the Authorization header. The
// message describes why no token was found.
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", "invalid authorization header format"
	}
	return token, ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error: msg,
		Code:  domain.ErrCodeUnauthorized,
	})
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", s.health)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Streams are long lived and must not inherit the request timeout
		r.Group(func(r chi.Router) {
			if s.config.AuthEnabled {
				r.Use(requireToken(s.config.Token, true))
			}
			r.Get("/logs/stream", s.handlers.StreamLogs)
		})

		r.Group(func(r chi.Router) {
			if s.config.AuthEnabled {
				r.Use(requireToken(s.config.Token, false))
			}
			r.Use(middleware.Timeout(constants.DefaultRequestTimeout))

			r.Get("/status", s.handlers.GetStatus)

			r.Get("/logs", s.handlers.GetLogs)
			r.Post("/logs", s.handlers.PostLog)
			r.Post("/logs/clear", s.handlers.ClearLogs)
			r.Get("/logs/{seq}", s.handlers.GetLog)
			r.Post("/logs/{seq}/select", s.handlers.SelectLog)

			r.Get("/sources", s.handlers.GetSources)
			r.Post("/sources/{name}/start", s.handlers.StartSource)
			r.Post("/sources/{name}/stop", s.handlers.StopSource)

			r.Post("/compile/begin", s.handlers.BeginCompile)
			r.Post("/compile/end", s.handlers.EndCompile)

			r.Post("/shutdown", s.handlers.Shutdown)
		})
	})
}

// health handles GET /health. It needs no auth and reveals only the
// session id.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		SessionID: s.handlers.current().ID(),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:        s.Addr(),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: log streams stay open for the whole session
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	server := s.httpServer
	s.mu.Unlock()

	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}
