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

func TestClubRoutePermissions(t *testing.T) {
	e := newTestEnv(t, nil)
	_, student := e.signup(t, "S", "s@example.com", "")
	_, teacher := e.signup(t, "T", "t@example.com", models.RoleTeacher)
	_, coordinator := e.signup(t, "C", "c@example.com", models.RoleCoordinator)

	e.run(t, []httpTest{
		{name: "anonymous list", method: http.MethodGet, path: "/api/clubs", wantCode: http.StatusUnauthorized},
		{name: "student list", method: http.MethodGet, path: "/api/clubs", token: student, wantCode: http.StatusOK},
		{
			name: "student create", method: http.MethodPost, path: "/api/clubs", token: student,
			body: CreateClubRequest{Type: "Sports"}, wantCode: http.StatusForbidden, wantMsg: "Not allowed",
		},
		{
			name: "coordinator create", method: http.MethodPost, path: "/api/clubs", token: coordinator,
			body: CreateClubRequest{Type: "sports", Description: "Outdoor"}, wantCode: http.StatusCreated,
		},
		{
			name: "create twice", method: http.MethodPost, path: "/api/clubs", token: coordinator,
			body: CreateClubRequest{Type: "SPORTS"}, wantCode: http.StatusConflict,
		},
		{
			name: "create unknown type", method: http.MethodPost, path: "/api/clubs", token: coordinator,
			body: CreateClubRequest{Type: "Chess"}, wantCode: http.StatusBadRequest,
		},
		{name: "teacher cannot join", method: http.MethodPut, path: "/api/clubs/Sports/join", token: teacher, wantCode: http.StatusForbidden},
		{name: "unknown type", method: http.MethodGet, path: "/api/clubs/chess", token: student, wantCode: http.StatusBadRequest},
		{name: "student cannot delete", method: http.MethodDelete, path: "/api/clubs/Sports", token: student, wantCode: http.StatusForbidden},
	})
}

// The club type is normalized before it touches either side.
func TestJoinLeaveClubNormalizesType(t *testing.T) {
	e := newTestEnv(t, nil)
	s, token := e.signup(t, "S", "s@example.com", "")

	rec := e.do(http.MethodPut, "/api/clubs/technical/join", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	joined := decode[services.MembershipResult](t, rec)
	assert.Equal(t, "Technical", joined.Club.Type)
	assert.Contains(t, joined.Club.Members, s.ID)
	assert.Equal(t, []string{"Technical"}, joined.Student.JoinedClubs)

	rec = e.do(http.MethodPut, "/api/clubs/TECHNICAL/join", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, []string{"Technical"}, decode[models.Student](t, rec).JoinedClubs)

	rec = e.do(http.MethodPut, "/api/clubs/Technical/leave", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	left := decode[services.MembershipResult](t, rec)
	assert.NotContains(t, left.Club.Members, s.ID)
	assert.Empty(t, left.Student.JoinedClubs)

	rec = e.do(http.MethodPut, "/api/clubs/Technical/leave", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubclubRoutes(t *testing.T) {
	e := newTestEnv(t, nil)
	s, student := e.signup(t, "S", "s@example.com", "")
	_, coordinator := e.signup(t, "C", "c@example.com", models.RoleCoordinator)

	rec := e.do(http.MethodPost, "/api/clubs/cultural/subclubs", coordinator, CreateSubclubRequest{Name: "Dance"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/api/clubs/Cultural/subclubs", coordinator, CreateSubclubRequest{Name: "dance"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = e.do(http.MethodPost, "/api/clubs/Cultural/subclubs", student, CreateSubclubRequest{Name: "Drama"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(http.MethodGet, "/api/clubs/Cultural/subclubs/DANCE", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Dance", decode[models.Subclub](t, rec).Name)
	rec = e.do(http.MethodGet, "/api/clubs/Cultural/subclubs/Music", student, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Joining a sub-club joins the parent club too.
	rec = e.do(http.MethodPut, "/api/clubs/Cultural/subclubs/dance/join", student, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[services.MembershipResult](t, rec)
	assert.Contains(t, result.Club.Members, s.ID)
	assert.Equal(t, []string{"Cultural"}, result.Student.JoinedClubs)
	require.Len(t, result.Student.ClubMemberships, 1)
	assert.Equal(t, []string{"Dance"}, result.Student.ClubMemberships[0].Subclubs)

	rec = e.do(http.MethodGet, "/api/clubs/Cultural/subclubs", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	subclubs := decode[[]models.Subclub](t, rec)
	require.Len(t, subclubs, 1)
	assert.Equal(t, []string{s.ID}, subclubs[0].Members)

	rec = e.do(http.MethodDelete, "/api/clubs/Cultural/subclubs/Dance/members/"+s.ID, coordinator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(http.MethodDelete, "/api/clubs/Cultural/subclubs/Dance/members/"+s.ID, coordinator, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodDelete, "/api/clubs/Cultural/subclubs/Dance", coordinator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(http.MethodGet, "/api/clubs/Cultural/subclubs/Dance", student, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// Club deletion cascades to events and member records.
func TestDeleteClubCascades(t *testing.T) {
	e := newTestEnv(t, nil)
	_, coordinator := e.signup(t, "C", "c@example.com", models.RoleCoordinator)
	tokens := make([]string, 3)
	for i, email := range []string{"a@example.com", "b@example.com", "d@example.com"} {
		_, tokens[i] = e.signup(t, "M", email, "")
		rec := e.do(http.MethodPut, "/api/clubs/Cultural/join", tokens[i], nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	when := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC).Format(time.RFC3339)
	for _, title := range []string{"Fest", "Play"} {
		rec := e.do(http.MethodPost, "/api/events", tokens[0], EventRequest{Title: title, Date: when, ClubType: "cultural"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := e.do(http.MethodDelete, "/api/clubs/CULTURAL", coordinator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(http.MethodGet, "/api/events", coordinator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Event](t, rec))
	for _, token := range tokens {
		rec = e.do(http.MethodGet, "/api/auth/me", token, nil)
		assert.NotContains(t, decode[models.Student](t, rec).JoinedClubs, "Cultural")
	}
}
