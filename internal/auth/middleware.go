package auth

import (
	"crypto/subtle"
	"net/http"
)

// Authenticate rejects requests without a principal and stores it in the request context.
// onError writes the rejection so callers keep their own response envelope.
func Authenticate(resolver PrincipalResolver, onError func(w http.ResponseWriter, status int, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := resolver.Resolve(r)
			if err != nil {
				onError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(onError func(w http.ResponseWriter, status int, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok || !p.IsAdmin() {
				onError(w, http.StatusForbidden, "admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireInstanceToken admits only callers presenting token in HeaderInstanceToken. It guards the raw
// record endpoints, which bypass role checks; an empty token rejects everyone.
func RequireInstanceToken(token string, onError func(w http.ResponseWriter, status int, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderInstanceToken)
			if token == "" || got == "" {
				onError(w, http.StatusUnauthorized, "instance token required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				onError(w, http.StatusForbidden, "invalid instance token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
