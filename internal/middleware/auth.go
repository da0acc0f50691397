package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rkervin/rollcall/internal/identity"
)

// RequireIdentity verifies the bearer token from the external identity
// provider and attaches the caller's identity to the request context.
func RequireIdentity(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearerToken(r)
			if tok == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			id, err := identity.Parse(tok, secret)
			if err != nil {
				unauthorized(w, "invalid identity token")
				return
			}

			ctx := identity.WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTeacher rejects callers whose identity does not carry the teacher
// role. Must run inside RequireIdentity.
func RequireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identity.IsTeacher(r.Context()) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "teacher role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStudent rejects callers whose identity does not carry the student
// role. Marking attendance is a student act; a teacher scanning their own
// board must not end up on the roll. Must run inside RequireIdentity.
func RequireStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identity.IsStudent(r.Context()) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "student role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
