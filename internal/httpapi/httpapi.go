package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"arafims/backend/internal/cache"
	"arafims/backend/internal/domain"
	"arafims/backend/internal/service"
	"arafims/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	cookieSecure  bool
	loginLimiter  cache.AttemptLimiter
	orderLimiter  cache.AttemptLimiter
	csrfSecret    []byte
	logger        *zap.Logger
}

// Options carries the transport settings. Nil limiters fall back to
// process-local ones.
type Options struct {
	AllowedOrigin string
	CookieSecure  bool
	LoginLimiter  cache.AttemptLimiter
	OrderLimiter  cache.AttemptLimiter
	Logger        *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if opts.LoginLimiter == nil {
		opts.LoginLimiter = newAttemptLimiter(5, time.Minute)
	}
	if opts.OrderLimiter == nil {
		opts.OrderLimiter = newAttemptLimiter(20, time.Minute)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: opts.AllowedOrigin,
		cookieSecure:  opts.CookieSecure,
		loginLimiter:  opts.LoginLimiter,
		orderLimiter:  opts.OrderLimiter,
		csrfSecret:    csrfSecret,
		logger:        opts.Logger,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (Unix time truncated to the hour), hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current or previous hour bucket, so a token
// stays usable for up to two hours.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

// allow consults a limiter. A limiter backend that errors lets the request
// through; the failure is logged.
func (a *API) allow(ctx context.Context, limiter cache.AttemptLimiter, key string) bool {
	ok, err := limiter.Allow(ctx, key)
	if err != nil {
		a.logger.Warn("attempt limiter unavailable", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/catalog", a.handleCatalog)
	mux.HandleFunc("/api/v1/categories", a.handlePublicCategories)
	mux.HandleFunc("/api/v1/orders", a.handleCreateOrder)
	mux.HandleFunc("/api/v1/orders/track", a.handleTrackOrder)
	mux.HandleFunc("/api/v1/my-orders", a.handleMyOrders)

	mux.HandleFunc("/api/v1/admin/products", a.requireAdmin(a.handleProducts))
	mux.HandleFunc("/api/v1/admin/products/{id}", a.requireAdmin(a.handleProduct))
	mux.HandleFunc("/api/v1/admin/categories", a.requireAdmin(a.handleCategories))
	mux.HandleFunc("/api/v1/admin/categories/{id}", a.requireAdmin(a.handleCategory))
	mux.HandleFunc("/api/v1/admin/orders", a.requireAdmin(a.handleOrders))
	mux.HandleFunc("/api/v1/admin/orders/{id}", a.requireAdmin(a.handleOrder))
	mux.HandleFunc("/api/v1/admin/orders/{id}/status", a.requireAdmin(a.handleOrderStatus))
	mux.HandleFunc("/api/v1/admin/orders/{id}/cancel", a.requireAdmin(a.handleOrderCancel))
	mux.HandleFunc("/api/v1/admin/quick-shops", a.requireAdmin(a.handleQuickShops))
	mux.HandleFunc("/api/v1/admin/quick-shops/{id}", a.requireAdmin(a.handleQuickShop))
	mux.HandleFunc("/api/v1/admin/quick-shops/{id}/close", a.requireAdmin(a.handleQuickShopClose))
	mux.HandleFunc("/api/v1/admin/dashboard", a.requireAdmin(a.handleDashboard))
	mux.HandleFunc("/api/v1/admin/tools/pack-profit", a.requireAdmin(a.handlePackProfit))

	return a.withMiddleware(mux)
}

func (a *API) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}
		if actor.Role != domain.RoleAdmin {
			a.writeError(w, http.StatusForbidden, service.ErrUnauthorized)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	writeOK(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	key := clientKey(r)
	if !a.allow(r.Context(), a.loginLimiter, key) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.logger.Info("login rejected", zap.String("username", req.Username), zap.String("client", key))
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}
	if err := a.loginLimiter.Reset(r.Context(), key); err != nil {
		a.logger.Warn("reset login limiter", zap.Error(err))
	}

	writeOK(w, http.StatusOK, map[string]any{"session": resp})
}

// handleCSRFToken returns a stateless token that mutating requests must echo
// in the X-CSRF-Token header.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// Login is called before the client holds a CSRF token.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		a.writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Order-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		if a.allowedOrigin != "*" {
			// The storefront reads its order_tokens cookie cross-origin.
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(startedAt)),
		)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// statusFor maps service and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusGone
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, service.ErrIllegalTransition),
		errors.Is(err, service.ErrProductInUse):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, service.ErrEmptyCart):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	a.writeError(w, statusFor(err), err)
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError never echoes 5xx details to the client.
func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": msg,
	})
}

func writeOK(w http.ResponseWriter, status int, payload map[string]any) {
	payload["success"] = true
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
