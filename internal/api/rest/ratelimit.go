package rest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/internal/ratelimit"
)

// RateLimitMiddleware throttles authenticated callers per principal. Emergency
// token requests draw from a separate, stricter bucket.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter ratelimit.Limiter, logger *zap.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

// Handler wraps an HTTP handler with rate limiting. It must run after the
// authenticator.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := GetPrincipal(r.Context())
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		key := ratelimit.PrefixUser + principal.ID
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/emergency/request") {
			key = ratelimit.PrefixEmergency + principal.ID
		}

		allowed, remaining, resetTime, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			m.logger.Error("Rate limit check failed", zap.String("key", key), zap.Error(err))
			WriteError(w, http.StatusServiceUnavailable, "Rate limiter unavailable", nil)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limiter.GetLimit(key)))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			retryAfter := int64(time.Until(resetTime).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			m.logger.Warn("Rate limit exceeded",
				zap.String("principal", principal.ID),
				zap.String("key", key),
				zap.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			WriteError(w, http.StatusTooManyRequests, "Too many requests", map[string]interface{}{
				"retry_after_seconds": retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
