package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"azdo-mcp/server/internal/observability"
)

// Authenticator verifies HS256 bearer tokens signed with a shared secret.
type Authenticator struct {
	secret []byte
	lg     *zap.Logger
}

// NewAuthenticator creates an authenticator. An empty secret disables
// authentication.
func NewAuthenticator(secret string, lg *zap.Logger) *Authenticator {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Authenticator{secret: []byte(secret), lg: lg.Named("auth")}
}

// Enabled reports whether tokens are required.
func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

// VerifyToken checks the signature and registered claims of tokenString.
func (a *Authenticator) VerifyToken(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(5*time.Second))
	if err != nil {
		return nil, errors.Wrap(err, "token verification failed")
	}
	return claims, nil
}

// Middleware rejects requests without a valid token. The token is read from
// the Authorization header, or from the access_token query parameter for
// EventSource clients that cannot set headers.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := observability.RequestID(r.Context())

		token := bearerToken(r)
		if token == "" {
			observability.LogSecurityEvent(requestID, "", "missing_token", map[string]any{
				"remote_addr": r.RemoteAddr,
			})
			writeAuthError(w, "missing_token", "Missing bearer token")
			return
		}

		claims, err := a.VerifyToken(token)
		if err != nil {
			a.lg.Warn("Rejected token", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
			observability.LogSecurityEvent(requestID, "", "invalid_token", map[string]any{
				"remote_addr": r.RemoteAddr,
				"error":       err.Error(),
			})
			writeAuthError(w, "invalid_token", "Invalid bearer token")
			return
		}

		next.ServeHTTP(w, r.WithContext(observability.WithSubject(r.Context(), claims.Subject)))
	})
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("access_token")
}

func writeAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer error="`+code+`"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
