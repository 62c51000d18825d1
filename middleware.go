package main

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type ctxKey int

const (
	principalKey ctxKey = iota
	requestIDKey
)

// PrincipalFromContext returns the authenticated principal attached by
// Authenticate. ok is false on routes that did not pass through it.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Authenticate is the token gatekeeper. It extracts the bearer token
// from the Authorization header, verifies it, and attaches the
// resolved Principal to the request context. It performs no business
// logic. A missing or unparseable header is 401 UNAUTHENTICATED; a
// token that fails verification, for any reason, is 401 INVALID_TOKEN.
func (a *App) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Access denied. No token provided")
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Access denied. No token provided")
			return
		}
		principal, err := a.Tokens.Verify(tokenString)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"reqid":  RequestIDFromContext(r.Context()),
				"reason": err,
			}).Debug("token rejected")
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a route on an exact role match. Must run after
// Authenticate.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || principal.Role != role {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Access denied. Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID tags each request with an id for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey).(string); ok {
		return s
	}
	return ""
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Logging logs each request with method, path, status and duration.
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		logrus.WithFields(logrus.Fields{
			"reqid":  RequestIDFromContext(r.Context()),
			"method": r.Method,
			"path":   r.URL.Path,
			"status": wrapped.statusCode,
			"dur":    time.Since(start).String(),
			"ip":     r.RemoteAddr,
		}).Info("request")
	})
}

// Recover turns handler panics into a 500 instead of tearing down the
// connection, and logs the stack.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logrus.WithFields(logrus.Fields{
					"reqid": RequestIDFromContext(r.Context()),
					"panic": rec,
				}).Errorf("panic in handler\n%s", debug.Stack())
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORS middleware handles CORS headers
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// RateLimiter implements per-client-IP rate limiting for the
// credential endpoints (registration and login brute force).
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	perMin   int
	mu       sync.RWMutex
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*rate.Limiter), perMin: perMinute}
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[ip]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// Double-check after acquiring write lock
		limiter, exists = rl.limiters[ip]
		if !exists {
			limiter = rate.NewLimiter(rate.Limit(rl.perMin)/60, rl.perMin)
			rl.limiters[ip] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

// RateLimit enforces the per-IP limit on the routes it wraps.
func (a *App) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !a.rateLimiter.getLimiter(ip).Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
