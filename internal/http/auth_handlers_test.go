package httpapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collegehub-backend/internal/models"
	"collegehub-backend/internal/services"
)

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv(t, nil)

	rec := e.do(http.MethodPost, "/api/auth/register", "", RegisterRequest{Name: "Ada", Email: "Ada@Example.com", Password: "secret123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := decode[RegisterResponse](t, rec)
	assert.Equal(t, "ada@example.com", registered.User.Email)
	assert.Equal(t, models.RoleStudent, registered.User.Role)
	assert.NotContains(t, rec.Body.String(), "secret123")

	e.run(t, []httpTest{
		{
			name: "duplicate email", method: http.MethodPost, path: "/api/auth/register",
			body:     RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "secret123"},
			wantCode: http.StatusConflict, wantMsg: "User already exists",
		},
		{
			name: "invalid email", method: http.MethodPost, path: "/api/auth/register",
			body:     RegisterRequest{Name: "Bob", Email: "not-an-email", Password: "secret123"},
			wantCode: http.StatusBadRequest, wantMsg: "email must be a valid email address",
		},
		{
			name: "short password", method: http.MethodPost, path: "/api/auth/register",
			body:     RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: "123"},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown role", method: http.MethodPost, path: "/api/auth/register",
			body:     RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: "secret123", Role: "dean"},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/api/auth/register",
			body: []byte("{"), wantCode: http.StatusBadRequest, wantMsg: "Invalid payload",
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/auth/login",
			body:     LoginRequest{Email: "ada@example.com", Password: "nope-nope"},
			wantCode: http.StatusUnauthorized, wantMsg: "Invalid credentials",
		},
		{
			name: "role mismatch", method: http.MethodPost, path: "/api/auth/login",
			body:     LoginRequest{Email: "ada@example.com", Password: "secret123", Role: "teacher"},
			wantCode: http.StatusForbidden, wantMsg: "Role mismatch: this account is registered as student",
		},
		{
			name: "me without token", method: http.MethodGet, path: "/api/auth/me",
			wantCode: http.StatusUnauthorized, wantMsg: "Authentication failed",
		},
		{
			name: "me with garbage token", method: http.MethodGet, path: "/api/auth/me", token: "garbage",
			wantCode: http.StatusUnauthorized,
		},
	})

	rec = e.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "ADA@example.com", Password: "secret123", Role: "Student"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[TokenResponse](t, rec)
	require.NotEmpty(t, login.Token)
	assert.Equal(t, registered.User.ID, login.User.ID)

	rec = e.do(http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, registered.User.ID, decode[models.Student](t, rec).ID)
}

func TestPermissionsEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)
	_, token := e.signup(t, "T", "t@example.com", models.RoleTeacher)

	rec := e.do(http.MethodGet, "/api/auth/permissions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	perms := decode[PermissionsResponse](t, rec)
	assert.Equal(t, models.RoleTeacher, perms.Role)
	assert.Equal(t, services.Capabilities(models.RoleTeacher), perms.Permissions)
	assert.Contains(t, perms.Permissions, services.CapCrudCurriculum)
	assert.NotContains(t, perms.Permissions, services.CapMarkAttendance)
}

func TestTokenForUnknownIdentityIsRejected(t *testing.T) {
	e := newTestEnv(t, nil)
	tokens := services.NewTokenService("secret", "collegehub-test", time.Hour, 4)
	issued, _, err := tokens.Issue("missing-id")
	require.NoError(t, err)

	rec := e.do(http.MethodGet, "/api/auth/me", issued, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
