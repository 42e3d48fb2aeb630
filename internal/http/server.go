// Package http exposes the JSON API: account registration, couple
// lifecycle, the expense ledger, and device token management.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pairledger/internal/auth"
	"pairledger/internal/core"
)

// Registry manages couple lifecycle.
type Registry interface {
	CreateCouple(ctx context.Context, userID string) (*core.Couple, error)
	JoinCouple(ctx context.Context, userID, code string) (*core.Couple, error)
	GetCouple(ctx context.Context, userID, coupleID string) (*core.Couple, error)
}

// Ledger appends and lists expenses.
type Ledger interface {
	AddExpense(ctx context.Context, userID string, e *core.Expense) (*core.Expense, error)
	ListMonth(ctx context.Context, userID, coupleID string, ref time.Time) ([]core.Expense, error)
}

// Recalculator rebuilds a couple's balance status on demand.
type Recalculator interface {
	Recalculate(ctx context.Context, coupleID string) (*core.CoupleStatus, error)
}

// AccountStore covers registration, login, and device tokens.
type AccountStore interface {
	CreateUser(ctx context.Context, u *core.User, passwordHash string) error
	GetUser(ctx context.Context, id string) (*core.User, error)
	GetUserByEmail(ctx context.Context, email string) (*core.User, string, error)
	AddPushToken(ctx context.Context, userID, token string) error
	RemovePushToken(ctx context.Context, userID, token string) error
}

type Server struct {
	http.Server

	accounts AccountStore
	registry Registry
	ledger   Ledger
	recon    Recalculator
	jwt      *auth.JWTManager

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, accounts AccountStore, registry Registry, ledger Ledger, recon Recalculator, jwt *auth.JWTManager) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		accounts:    accounts,
		registry:    registry,
		ledger:      ledger,
		recon:       recon,
		jwt:         jwt,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/auth/register", s.wrap(s.handleRegister))
	mux.HandleFunc("POST /api/v1/auth/login", s.wrap(s.handleLogin))

	mux.HandleFunc("GET /api/v1/me", s.wrap(s.requireAuth(s.handleMe)))
	mux.HandleFunc("POST /api/v1/couples", s.wrap(s.requireAuth(s.handleCreateCouple)))
	mux.HandleFunc("POST /api/v1/couples/join", s.wrap(s.requireAuth(s.handleJoinCouple)))
	mux.HandleFunc("GET /api/v1/couples/{id}", s.wrap(s.requireAuth(s.handleGetCouple)))
	mux.HandleFunc("POST /api/v1/couples/{id}/expenses", s.wrap(s.requireAuth(s.handleAddExpense)))
	mux.HandleFunc("GET /api/v1/couples/{id}/expenses", s.wrap(s.requireAuth(s.handleListExpenses)))
	mux.HandleFunc("POST /api/v1/recalc", s.wrap(s.requireAuth(s.handleRecalc)))
	mux.HandleFunc("POST /api/v1/push/tokens", s.wrap(s.requireAuth(s.handleAddPushToken)))
	mux.HandleFunc("DELETE /api/v1/push/tokens", s.wrap(s.requireAuth(s.handleRemovePushToken)))

	return s
}

// Shutdown stops the server and its cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// wrap adds security headers, rate limiting, a request id, and request
// logging.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type requestIDKey struct{}
type userIDKey struct{}

// requireAuth validates the bearer token and stores the caller's user id
// in the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeServiceError(w, r, auth.ErrMissingToken)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeServiceError(w, r, auth.ErrMissingToken)
			return
		}

		claims, err := s.jwt.Validate(token)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, claims.UserID)
		next(w, r.WithContext(ctx))
	}
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey{}).(string)
	return id
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// extractClientIP returns the caller's address, trusting forwarding
// headers only from private networks.
func extractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	parsed := net.ParseIP(directIP)
	if parsed == nil || !isPrivate(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}
	return directIP
}

func isPrivate(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate()
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
