// Package identity resolves who is making a request. The identity provider
// sits in front of the server and forwards the signed-in user's id in a
// header; requests without it are anonymous.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// DefaultHeader carries the user id when none is configured.
const DefaultHeader = "X-User-ID"

type userIDCtxKey struct{}

// WithUserID returns a new context carrying the given user id.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, userIDCtxKey{}, uid)
}

// UserIDFromContext extracts the user id from the context.
// Returns "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDCtxKey{}).(string)
	return v
}

// Anonymous reports whether ctx carries no user id.
func Anonymous(ctx context.Context) bool {
	return UserIDFromContext(ctx) == ""
}

// Middleware copies the user id from header into the request context. An
// empty header name means DefaultHeader.
func Middleware(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := strings.TrimSpace(r.Header.Get(header))
			if uid != "" {
				r = r.WithContext(WithUserID(r.Context(), uid))
			}
			next.ServeHTTP(w, r)
		})
	}
}
