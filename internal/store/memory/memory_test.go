package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collegehub-backend/internal/models"
	"collegehub-backend/internal/store"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateClub(ctx, models.Club{ID: "c1", Type: "Sports"}))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(repo store.Repository) error {
		if err := repo.UpdateClubMembers(ctx, "c1", []string{"s1"}); err != nil {
			return err
		}
		if err := repo.CreateClub(ctx, models.Club{ID: "c2", Type: "Cultural"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	club, err := s.ClubByType(ctx, "sports")
	require.NoError(t, err)
	assert.Empty(t, club.Members)
	_, err = s.ClubByType(ctx, "Cultural")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRollbackKeepsWritesMadeOutsideTx(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateClub(ctx, models.Club{ID: "c1", Type: "Sports"}))

	boom := errors.New("boom")
	started := make(chan struct{})
	release := make(chan struct{})
	txErr := make(chan error, 1)
	go func() {
		txErr <- s.WithinTx(ctx, func(repo store.Repository) error {
			if err := repo.UpdateClubMembers(ctx, "c1", []string{"s1"}); err != nil {
				return err
			}
			close(started)
			<-release
			return boom
		})
	}()
	<-started

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- s.CreateSubject(ctx, models.Subject{ID: "m1", StudentID: "s2", Name: "Math"})
	}()
	select {
	case err := <-writeErr:
		t.Fatalf("write finished while a transaction was open: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.ErrorIs(t, <-txErr, boom)
	require.NoError(t, <-writeErr)

	_, err := s.SubjectByID(ctx, "m1")
	assert.NoError(t, err)
	club, err := s.ClubByType(ctx, "Sports")
	require.NoError(t, err)
	assert.Empty(t, club.Members)
}

func TestWithinTxNestedRunsInline(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := s.WithinTx(ctx, func(repo store.Repository) error {
		return repo.WithinTx(ctx, func(inner store.Repository) error {
			return inner.CreateClub(ctx, models.Club{ID: "c1", Type: "Technical"})
		})
	})
	require.NoError(t, err)
	_, err = s.ClubByType(ctx, "TECHNICAL")
	assert.NoError(t, err)
}

func TestUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateStudent(ctx, models.Student{ID: "a", Email: "e@x.test"}))
	assert.ErrorIs(t, s.CreateStudent(ctx, models.Student{ID: "b", Email: "E@X.test"}), store.ErrDuplicate)

	require.NoError(t, s.CreateClub(ctx, models.Club{ID: "c1", Type: "Sports"}))
	assert.ErrorIs(t, s.CreateClub(ctx, models.Club{ID: "c2", Type: "sports"}), store.ErrDuplicate)

	require.NoError(t, s.CreateSubclub(ctx, models.Subclub{ID: "sc1", ClubID: "c1", Name: "Football"}))
	assert.ErrorIs(t, s.CreateSubclub(ctx, models.Subclub{ID: "sc2", ClubID: "c1", Name: "football"}), store.ErrDuplicate)

	require.NoError(t, s.CreateSubject(ctx, models.Subject{ID: "m1", StudentID: "a", Name: "Math"}))
	assert.ErrorIs(t, s.CreateSubject(ctx, models.Subject{ID: "m2", StudentID: "a", Name: "Math"}), store.ErrDuplicate)
	assert.NoError(t, s.CreateSubject(ctx, models.Subject{ID: "m3", StudentID: "b", Name: "Math"}))

	day := store.DayOf(time.Now())
	require.NoError(t, s.InsertAttendance(ctx, models.AttendanceRecord{ID: "r1", SubjectID: "m1", StudentID: "a", Date: day}))
	assert.ErrorIs(t, s.InsertAttendance(ctx, models.AttendanceRecord{ID: "r2", SubjectID: "m1", StudentID: "a", Date: day}), store.ErrDuplicate)
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateClub(ctx, models.Club{ID: "c1", Type: "Sports", Members: []string{"a"}}))

	club, err := s.ClubByType(ctx, "Sports")
	require.NoError(t, err)
	club.Members[0] = "mutated"

	again, err := s.ClubByType(ctx, "Sports")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Members)
}

func TestDeleteClubDropsSubclubs(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateClub(ctx, models.Club{ID: "c1", Type: "Sports"}))
	require.NoError(t, s.CreateSubclub(ctx, models.Subclub{ID: "sc1", ClubID: "c1", Name: "Chess"}))
	require.NoError(t, s.DeleteClub(ctx, "c1"))
	assert.ErrorIs(t, s.DeleteSubclub(ctx, "sc1"), store.ErrNotFound)
}
