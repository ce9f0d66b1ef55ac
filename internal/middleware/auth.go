package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const ViewerCtxKey = contextKey("account_id")

// JWTAuth rejects requests without a valid bearer token and stores the
// authenticated account id in the request context.
func JWTAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountIDFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ViewerCtxKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalJWTAuth stores the viewer account id when a valid bearer token is
// present and lets the request through anonymously otherwise. Feed and
// profile listings branch on the result.
func OptionalJWTAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			// A token was supplied but is unusable; reject rather than
			// silently downgrading to anonymous.
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ViewerCtxKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminAuth guards moderation endpoints with the static ADMIN_TOKEN bearer
// credential.
func AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminToken := os.Getenv("ADMIN_TOKEN")
		if adminToken == "" {
			http.Error(w, "moderation disabled", http.StatusUnauthorized)
			return
		}

		token, err := bearerToken(r)
		if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
			http.Error(w, "invalid admin token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid Authorization header")
	}
	return parts[1], nil
}

func accountIDFromRequest(r *http.Request) (string, error) {
	jwtSecret := []byte(os.Getenv("JWT_SECRET"))

	raw, err := bearerToken(r)
	if err != nil {
		return "", err
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}

	accountID, ok := claims["account_id"].(string)
	if !ok {
		return "", errors.New("invalid account_id in token")
	}

	return accountID, nil
}

// ViewerFromContext extracts the authenticated account id, if any.
func ViewerFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ViewerCtxKey).(string)
	return id, ok
}
