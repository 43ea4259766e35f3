package middlewares

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"
	"github.com/mbolis/form-forge/httpx"
)

type ctxKey int

const userIDKey ctxKey = iota

// Authenticated guards owner endpoints: validates the bearer token and puts
// the account id claim into the request context.
func Authenticated(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chi.Chain(oauth.Authorize(secret, nil), withUserID).Handler(next)
	}
}

func withUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(oauth.ClaimsContext).(map[string]string)
		if !ok || claims["user_id"] == "" {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims["user_id"])))
	})
}

// WithUserID returns a context carrying the caller's account id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID is the account id put in context by Authenticated, or "".
func UserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// MaybeUserID resolves the caller's account id on endpoints where auth is
// optional. The token check runs against a buffered response so a missing or
// invalid token falls through to anonymous instead of failing the request.
func MaybeUserID(secret string, r *http.Request) (userID string) {
	if r.Header.Get("authorization") == "" {
		return ""
	}

	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := r.Context().Value(oauth.ClaimsContext).(map[string]string); ok {
			userID = claims["user_id"]
		}
	})
	oauth.Authorize(secret, nil)(capture).ServeHTTP(httpx.NewResponseBuffer(), r)
	return
}
