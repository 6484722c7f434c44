package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"collegehub-backend/internal/models"
	"collegehub-backend/internal/store/memory"
)

type fixture struct {
	repo       *memory.Store
	tokens     TokenService
	students   *StudentService
	clubs      *ClubService
	attendance *AttendanceService
	events     *EventService
}

func setup(t *testing.T) fixture {
	t.Helper()
	repo := memory.New()
	tokens := NewTokenService("test-secret", "collegehub-test", time.Hour, bcrypt.MinCost)
	return fixture{
		repo:       repo,
		tokens:     tokens,
		students:   NewStudentService(repo, tokens),
		clubs:      NewClubService(repo),
		attendance: NewAttendanceService(repo),
		events:     NewEventService(repo),
	}
}

func (f fixture) register(t *testing.T, name, email, role string) models.Student {
	t.Helper()
	student, err := f.students.Register(context.Background(), RegisterInput{
		Name:     name,
		Email:    email,
		Password: "secret123",
		Role:     role,
	})
	require.NoError(t, err)
	return student
}

func (f fixture) reload(t *testing.T, id string) models.Student {
	t.Helper()
	student, err := f.repo.StudentByID(context.Background(), id)
	require.NoError(t, err)
	return student
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.True(t, IsKind(err, kind), "want %s, got %v", kind, err)
}
