package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collegehub-backend/internal/db"
	"collegehub-backend/internal/migrations"
	"collegehub-backend/internal/models"
	"collegehub-backend/internal/services"
	"collegehub-backend/internal/store"
)

func TestMembershipsRoundTrip(t *testing.T) {
	in := memberships{{ClubType: "Technical", Subclubs: []string{"Robotics", "AI"}}}
	raw, err := in.Value()
	require.NoError(t, err)

	var out memberships
	require.NoError(t, out.Scan(raw))
	assert.Equal(t, in, out)

	require.NoError(t, out.Scan([]byte(`[]`)))
	assert.Empty(t, out)
	require.NoError(t, out.Scan(nil))
	assert.NotNil(t, out)
	assert.Error(t, out.Scan(42))
}

func TestNilMembershipsEncodeAsEmptyArray(t *testing.T) {
	raw, err := memberships(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}

func TestMapErrorUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_users_email"})
	assert.True(t, errors.Is(mapError(err), store.ErrDuplicate))

	other := &pgconn.PgError{Code: "23503"}
	assert.False(t, errors.Is(mapError(other), store.ErrDuplicate))
	assert.Nil(t, mapError(nil))
}

// The tests below need a disposable database in TEST_DATABASE_URL.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	database, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, migrations.Apply(ctx, database))
	return New(database)
}

func newStudent(email string) models.Student {
	return models.Student{
		ID:              uuid.NewString(),
		Name:            "Test " + email,
		Email:           email,
		PasswordHash:    "x",
		Role:            models.RoleStudent,
		JoinedClubs:     []string{},
		ClubMemberships: []models.ClubMembership{},
		CreatedAt:       time.Now().UTC(),
	}
}

func TestStudentUniqueEmailAndMemberships(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"

	student := newStudent(email)
	require.NoError(t, s.CreateStudent(ctx, student))
	err := s.CreateStudent(ctx, newStudent(email))
	assert.ErrorIs(t, err, store.ErrDuplicate)

	student.JoinedClubs = []string{"Sports"}
	student.ClubMemberships = []models.ClubMembership{{ClubType: "Sports", Subclubs: []string{"Chess"}}}
	require.NoError(t, s.UpdateStudentMemberships(ctx, student))

	got, err := s.StudentByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sports"}, got.JoinedClubs)
	assert.Equal(t, student.ClubMemberships, got.ClubMemberships)
}

func TestDuplicateInsertInsideTxKeepsTxUsable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	student := newStudent(uuid.NewString() + "@example.com")
	require.NoError(t, s.CreateStudent(ctx, student))
	subject := models.Subject{ID: uuid.NewString(), Name: "Math", StudentID: student.ID, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateSubject(ctx, subject))

	err := s.WithinTx(ctx, func(repo store.Repository) error {
		dup := subject
		dup.ID = uuid.NewString()
		if err := repo.CreateSubject(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("expected duplicate, got %v", err)
		}
		_, err := repo.SubjectByID(ctx, subject.ID)
		return err
	})
	assert.NoError(t, err)
}

func TestAttendanceUniquePerDay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	student := newStudent(uuid.NewString() + "@example.com")
	require.NoError(t, s.CreateStudent(ctx, student))
	subject := models.Subject{ID: uuid.NewString(), Name: "Physics", StudentID: student.ID, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateSubject(ctx, subject))

	day := store.DayOf(time.Now())
	rec := models.AttendanceRecord{ID: uuid.NewString(), SubjectID: subject.ID, StudentID: student.ID, Date: day, Status: models.StatusPresent, CreatedAt: day, UpdatedAt: day}
	require.NoError(t, s.InsertAttendance(ctx, rec))
	rec.ID = uuid.NewString()
	assert.ErrorIs(t, s.InsertAttendance(ctx, rec), store.ErrDuplicate)

	found, err := s.AttendanceOnDay(ctx, subject.ID, student.ID, day.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, found.Status)
}

func TestJoinRacesClubDeleteWithoutDeadlock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	clubs := services.NewClubService(s)

	ids := make([]string, 4)
	for i := range ids {
		student := newStudent(uuid.NewString() + "@example.com")
		require.NoError(t, s.CreateStudent(ctx, student))
		ids[i] = student.ID
	}

	for round := 0; round < 5; round++ {
		var wg sync.WaitGroup
		errs := make(chan error, len(ids)+1)
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := clubs.Join(ctx, id, "Sports")
				errs <- err
			}(id)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- clubs.DeleteClub(ctx, "Sports")
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			if err == nil || services.IsKind(err, services.KindNotFound) || services.IsKind(err, services.KindAlreadyMember) {
				continue
			}
			t.Fatalf("round %d: %v", round, err)
		}
	}
	_ = clubs.DeleteClub(ctx, "Sports")
}
