// Package auth turns identity-provider bearer tokens into an AuthorizationContext.
// Login, session and token issuance live with the identity provider.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clinicdesk/clinicdesk/internal/platform/httpx"
	"github.com/clinicdesk/clinicdesk/internal/shared"
)

// Claims is the token body issued by the identity provider.
type Claims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens signed with the shared identity-provider secret.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier constructs a Verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}
}

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verify parses raw and returns the authorization context it asserts.
func (v *Verifier) Verify(raw string) (shared.AuthorizationContext, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return shared.AuthorizationContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return shared.AuthorizationContext{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return shared.AuthorizationContext{
		UserID: claims.Subject,
		Name:   claims.Name,
		Roles:  claims.Roles,
	}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// resulting AuthorizationContext in the request context.
func (v *Verifier) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
				return
			}
			authCtx, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				if logger != nil {
					logger.Warn("token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithAuthorization(r.Context(), authCtx)))
		})
	}
}
