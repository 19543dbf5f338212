package bill

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dimasfr/splitbill/internal/auth"
)

// Server handles HTTP requests for authentication and bills
type Server struct {
	auth    *auth.Service
	service *Service
	mux     *http.ServeMux
}

// authedHandler is a handler that runs with a resolved user
type authedHandler func(w http.ResponseWriter, r *http.Request, user *auth.User)

// NewServer creates a new Server with default mux
func NewServer(authService *auth.Service, service *Service) *Server {
	return NewServerWithMux(authService, service, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(authService *auth.Service, service *Service, mux *http.ServeMux) *Server {
	s := &Server{
		auth:    authService,
		service: service,
		mux:     mux,
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth resolves the bearer token into a user before the handler runs
func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, "Token tidak ditemukan.", http.StatusUnauthorized)
			return
		}

		user, err := s.auth.Authenticate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, "Token tidak valid atau telah kedaluwarsa.", http.StatusUnauthorized)
			return
		}

		next(w, r, user)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// Auth endpoints (no token required)
	s.mux.HandleFunc("POST /auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /auth/login", s.handleLogin)

	// Bill endpoints, all owner-scoped (most specific paths first)
	s.mux.HandleFunc("POST /ocr/upload", s.requireAuth(s.handleUpload))
	s.mux.HandleFunc("GET /ocr/my-bills", s.requireAuth(s.handleListBills))
	s.mux.HandleFunc("PATCH /ocr/split/{id}", s.requireAuth(s.handleUpdateSplit))
	s.mux.HandleFunc("GET /ocr/{id}", s.requireAuth(s.handleGetBill))
	s.mux.HandleFunc("DELETE /ocr/{id}", s.requireAuth(s.handleDeleteBill))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
