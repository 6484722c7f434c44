package httpapi

import (
	"context"
	"net/http"
	"strings"

	"collegehub-backend/internal/models"
	"collegehub-backend/internal/services"
)

type contextKey string

const ctxStudent contextKey = "student"

// WithAuth resolves the bearer token to a stored identity. The identity
// is reloaded on every request so role changes apply immediately.
func WithAuth(students *services.StudentService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "Authentication failed")
				return
			}
			student, err := students.Authenticate(r.Context(), tokenStr)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxStudent, student)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return token, token != ""
}

func CurrentStudent(r *http.Request) (models.Student, bool) {
	student, ok := r.Context().Value(ctxStudent).(models.Student)
	return student, ok
}

func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := map[string]bool{}
	for _, role := range roles {
		allowed[strings.ToLower(role)] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			student, ok := CurrentStudent(r)
			if !ok || !allowed[student.Role] {
				WriteError(w, http.StatusForbidden, "Not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireCapability(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			student, ok := CurrentStudent(r)
			if !ok || !services.Can(student.Role, capability) {
				WriteError(w, http.StatusForbidden, "Not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
