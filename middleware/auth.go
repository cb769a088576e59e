package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDHeader carries the caller's id when no JWT secret is configured.
const UserIDHeader = "X-User-Id"

type contextKey string

const userIDKey contextKey = "userID"

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrIdentityMismatch   = errors.New("token subject does not match the claimed user")
)

// Auth resolves the calling user from an HS256 bearer token whose subject is the
// user id. With no secret every caller is trusted to name itself.
type Auth struct {
	Secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{Secret: []byte(secret)}
}

// DevMode reports whether identities are taken on trust.
func (a *Auth) DevMode() bool {
	return len(a.Secret) == 0
}

// VerifyToken checks the signature and expiry and returns the subject.
func (a *Auth) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

// Authenticate resolves the identity for a realtime connection. A claimed id,
// when given, must match the token subject.
func (a *Auth) Authenticate(token, claimedUserID string) (string, error) {
	if a.DevMode() {
		if claimedUserID == "" {
			return "", ErrMissingCredentials
		}
		return claimedUserID, nil
	}
	if token == "" {
		return "", ErrMissingCredentials
	}
	subject, err := a.VerifyToken(token)
	if err != nil {
		return "", err
	}
	if claimedUserID != "" && claimedUserID != subject {
		return "", ErrIdentityMismatch
	}
	return subject, nil
}

// Middleware rejects requests without a valid identity and stores the user id
// in the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.identify(r)
		if err != nil {
			log.Printf("❌ Unauthorized %s %s: %v", r.Method, r.URL.Path, err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"message": "authentication required",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func (a *Auth) identify(r *http.Request) (string, error) {
	if a.DevMode() {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			return "", ErrMissingCredentials
		}
		return userID, nil
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrMissingCredentials
	}
	return a.VerifyToken(strings.TrimSpace(token))
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the id stored by Middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}
