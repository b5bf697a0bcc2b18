package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/garmin-mcp/internal/apperror"
)

type contextKey string

const subjectKey contextKey = "subject"

// Subject names recorded in the request context.
const (
	SubjectStaticToken = "static-token"
	SubjectAnonymous   = "anonymous"
)

// Options configure an Authenticator. Empty fields disable that credential.
type Options struct {
	StaticToken string
	TokenHash   string
	JWTSecret   string
	Disabled    bool
}

// Authenticator checks bearer credentials against every configured method.
type Authenticator struct {
	static   []byte
	hash     string
	tokens   *TokenService
	disabled bool
}

func NewAuthenticator(opts Options) (*Authenticator, error) {
	a := &Authenticator{
		hash:     opts.TokenHash,
		disabled: opts.Disabled,
	}
	if opts.StaticToken != "" {
		a.static = []byte(opts.StaticToken)
	}
	if opts.JWTSecret != "" {
		ts, err := NewTokenService(opts.JWTSecret)
		if err != nil {
			return nil, err
		}
		a.tokens = ts
	}
	return a, nil
}

// Configured reports whether any credential can ever be accepted.
func (a *Authenticator) Configured() bool {
	return a.disabled || len(a.static) > 0 || a.hash != "" || a.tokens != nil
}

// Authenticate returns the caller's subject or apperror.ErrUnauthorized.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if a.disabled {
		return SubjectAnonymous, nil
	}

	token, ok := bearerToken(r)
	if !ok {
		return "", apperror.Unauthorized("missing bearer token")
	}

	if len(a.static) > 0 && subtle.ConstantTimeCompare([]byte(token), a.static) == 1 {
		return SubjectStaticToken, nil
	}
	if a.hash != "" && verifyHashedToken(a.hash, token) == nil {
		return SubjectStaticToken, nil
	}
	if a.tokens != nil {
		if subject, err := a.tokens.Validate(token); err == nil {
			return subject, nil
		}
	}
	return "", apperror.Unauthorized("invalid bearer token")
}

// RequireBearer rejects unauthenticated requests with 401 "unauthorized" and
// stores the caller's subject in the request context otherwise.
func RequireBearer(a *Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := a.Authenticate(r)
			if err != nil {
				var appErr *apperror.AppError
				if errors.As(err, &appErr) {
					logger.Debug("rejected MCP request",
						slog.String("path", r.URL.Path),
						slog.String("reason", appErr.Message),
					)
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey).(string)
	return s, ok && s != ""
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}
