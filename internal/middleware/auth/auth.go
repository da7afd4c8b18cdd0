// Package auth identifies the user behind a request.
//
// With a secret configured requests carry an HS256 bearer token whose
// subject is the user id. Without one the server sits behind a trusted
// proxy that forwards the identity in X-User-* headers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tucano/internal/docstore"
	"tucano/internal/log"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrTokensDisabled  = errors.New("token issuing requires AUTH_JWT_SECRET")
)

// Identity headers honored in trusted-header mode.
const (
	HeaderUserID      = "X-User-Id"
	HeaderUserName    = "X-User-Name"
	HeaderUserEmail   = "X-User-Email"
	HeaderUserPicture = "X-User-Picture"
)

const DefaultTokenTTL = 24 * time.Hour

// Identity is the authenticated user's profile.
type Identity struct {
	UserID  string `json:"uid"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Claims is the token payload; the subject holds the user id.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
}

type Option func(*Authenticator)

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(a *Authenticator) { a.logger = l.WithComponent(log.ComponentAuth) }
}

// New creates an authenticator. An empty secret selects trusted-header mode.
func New(secret string, ttl time.Duration, opts ...Option) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	a := &Authenticator{
		ttl:    ttl,
		now:    time.Now,
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentAuth),
	}
	if secret != "" {
		a.secret = []byte(secret)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TokensEnabled reports whether bearer tokens are used.
func (a *Authenticator) TokensEnabled() bool { return len(a.secret) > 0 }

// IssueToken signs a token for id.
func (a *Authenticator) IssueToken(id Identity) (string, time.Time, error) {
	if !a.TokensEnabled() {
		return "", time.Time{}, ErrTokensDisabled
	}
	if !validUserID(id.UserID) {
		return "", time.Time{}, fmt.Errorf("%w: invalid user id %q", ErrUnauthenticated, id.UserID)
	}
	now := a.now()
	expires := now.Add(a.ttl)
	claims := Claims{
		Name:    id.Name,
		Email:   id.Email,
		Picture: id.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Authenticate extracts the identity from r.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	if !a.TokensEnabled() {
		return a.fromHeaders(r)
	}
	raw, ok := bearerToken(r)
	if !ok {
		return Identity{}, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}
	return a.ParseToken(raw)
}

// ParseToken validates a signed token and returns its identity.
func (a *Authenticator) ParseToken(raw string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if !validUserID(claims.Subject) {
		return Identity{}, fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}
	return Identity{
		UserID:  claims.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
		Picture: claims.Picture,
	}, nil
}

func (a *Authenticator) fromHeaders(r *http.Request) (Identity, error) {
	uid := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if uid == "" {
		return Identity{}, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, HeaderUserID)
	}
	if !validUserID(uid) {
		return Identity{}, fmt.Errorf("%w: invalid user id", ErrUnauthenticated)
	}
	return Identity{
		UserID:  uid,
		Name:    r.Header.Get(HeaderUserName),
		Email:   r.Header.Get(HeaderUserEmail),
		Picture: r.Header.Get(HeaderUserPicture),
	}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// validUserID accepts ids usable as a single store path segment.
func validUserID(uid string) bool {
	segs, err := docstore.SplitPath(uid)
	return err == nil && len(segs) == 1 && segs[0] == uid
}

// Middleware rejects unauthenticated requests through onError and stores
// the identity in the request context otherwise.
func (a *Authenticator) Middleware(onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r)
			if err != nil {
				a.logger.WarnContext(r.Context(), "Request rejected",
					log.FieldPath, r.URL.Path,
					log.FieldError, err)
				if onError != nil {
					onError(w, r, err)
				} else {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
				}
				return
			}
			ctx := WithIdentity(r.Context(), id)
			logger := log.FromContext(ctx).With(log.FieldUserID, id.UserID)
			ctx = log.WithContext(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type contextKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by the middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// UserID returns the current user id or an empty string.
func UserID(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.UserID
}
