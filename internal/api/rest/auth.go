package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/internal/audit"
	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// PrincipalContextKey is the context key for the authenticated principal
const PrincipalContextKey contextKey = "principal"

// Claims are the bearer token claims. The subject is the principal id.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// Authenticator validates HS256 bearer tokens and resolves the subject
// through the principal directory
type Authenticator struct {
	secret         []byte
	issuer         string
	directory      PrincipalDirectory
	trustedProxies []*net.IPNet
	logger         *zap.Logger
}

// AuthOption configures an Authenticator
type AuthOption func(*Authenticator)

// WithTrustedProxies makes the authenticator honor X-Forwarded-For on
// requests whose socket peer is inside one of proxies. Without it the audit
// origin is always the socket address.
func WithTrustedProxies(proxies []*net.IPNet) AuthOption {
	return func(a *Authenticator) {
		a.trustedProxies = proxies
	}
}

// ParseTrustedProxies parses CIDR blocks or bare addresses
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(secret, issuer string, directory PrincipalDirectory, logger *zap.Logger, opts ...AuthOption) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if directory == nil {
		return nil, fmt.Errorf("principal directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Authenticator{
		secret:    []byte(secret),
		issuer:    issuer,
		directory: directory,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// SignToken issues a bearer token for subject
func SignToken(secret, issuer, subject, username string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is required")
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: username,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Validate parses and validates a bearer token
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// Middleware authenticates the request and stores the principal and the
// client address in the request context
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractToken(r)
		if err != nil {
			respondUnauthorized(w, err.Error())
			return
		}

		claims, err := a.Validate(token)
		if err != nil {
			a.logger.Warn("Token validation failed",
				zap.Error(err),
				zap.String("path", r.URL.Path),
			)
			respondUnauthorized(w, "invalid token")
			return
		}

		principal, err := a.directory.Principal(r.Context(), claims.Subject)
		if err != nil {
			a.logger.Warn("Unknown token subject",
				zap.String("subject", claims.Subject),
				zap.Error(err),
			)
			respondUnauthorized(w, "unknown principal")
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
		ctx = audit.WithOrigin(ctx, clientIP(r, a.trustedProxies))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal extracts the Principal from a request context
func GetPrincipal(ctx context.Context) (*types.Principal, error) {
	principal, ok := ctx.Value(PrincipalContextKey).(*types.Principal)
	if !ok || principal == nil {
		return nil, errors.New("no principal in context")
	}
	return principal, nil
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("authorization header must use Bearer scheme")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}

// clientIP returns the socket address unless the peer is a trusted proxy.
// Behind trusted proxies it walks X-Forwarded-For from the right and returns
// the first hop that is not itself trusted, stopping at a malformed hop.
func clientIP(r *http.Request, trusted []*net.IPNet) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}
	if !isTrustedProxy(remote, trusted) {
		return remote
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if net.ParseIP(hop) == nil {
			break
		}
		if !isTrustedProxy(hop, trusted) {
			return hop
		}
		remote = hop
	}
	return remote
}

func isTrustedProxy(addr string, trusted []*net.IPNet) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// respondUnauthorized sends a 401 Unauthorized response
func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteError(w, http.StatusUnauthorized, "unauthorized", map[string]interface{}{"reason": message})
}
