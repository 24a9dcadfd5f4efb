package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type Middleware struct {
	verifier Verifier
}

func NewMiddleware(v Verifier) *Middleware {
	return &Middleware{verifier: v}
}

func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "No authorization token provided")
			return
		}

		id, err := m.verifier.Verify(r.Context(), tokenStr)
		if err != nil {
			slog.DebugContext(r.Context(), "token rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
