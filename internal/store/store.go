// Package store defines the persistence boundary. Two adapters implement
// Repository: store/postgres for production and store/memory for local
// runs and tests. The adapter is picked once at startup.
package store

import (
	"context"
	"errors"
	"time"

	"collegehub-backend/internal/models"
)

var (
	ErrNotFound  = errors.New("store: record not found")
	ErrDuplicate = errors.New("store: unique constraint violated")
)

// DocumentFilter narrows document listings. Zero values are ignored.
type DocumentFilter struct {
	Kind     string
	AddedBy  string
	Semester int
	Search   string
}

// Repository is the full set of primitives the services build on.
// Implementations must report missing rows as ErrNotFound and unique
// violations as ErrDuplicate.
type Repository interface {
	// WithinTx runs fn against a repository bound to one transaction.
	// Any error returned by fn rolls every write back.
	WithinTx(ctx context.Context, fn func(repo Repository) error) error
	Ping(ctx context.Context) error

	CreateStudent(ctx context.Context, student models.Student) error
	StudentByID(ctx context.Context, id string) (models.Student, error)
	StudentByEmail(ctx context.Context, email string) (models.Student, error)
	ListStudents(ctx context.Context, role string) ([]models.Student, error)
	UpdateStudentMemberships(ctx context.Context, student models.Student) error

	CreateClub(ctx context.Context, club models.Club) error
	ClubByType(ctx context.Context, clubType string) (models.Club, error)
	ListClubs(ctx context.Context) ([]models.Club, error)
	UpdateClubMembers(ctx context.Context, clubID string, members []string) error
	DeleteClub(ctx context.Context, clubID string) error
	CreateSubclub(ctx context.Context, subclub models.Subclub) error
	UpdateSubclubMembers(ctx context.Context, subclubID string, members []string) error
	DeleteSubclub(ctx context.Context, subclubID string) error

	CreateEvent(ctx context.Context, event models.Event) error
	EventByID(ctx context.Context, id string) (models.Event, error)
	ListEvents(ctx context.Context, clubType string) ([]models.Event, error)
	UpdateEvent(ctx context.Context, event models.Event) error
	DeleteEvent(ctx context.Context, id string) error
	DeleteEventsByClubType(ctx context.Context, clubType string) (int, error)

	CreateSubject(ctx context.Context, subject models.Subject) error
	SubjectByID(ctx context.Context, id string) (models.Subject, error)
	ListSubjects(ctx context.Context, studentID string) ([]models.Subject, error)
	DeleteSubject(ctx context.Context, id string) error

	InsertAttendance(ctx context.Context, record models.AttendanceRecord) error
	AttendanceOnDay(ctx context.Context, subjectID, studentID string, day time.Time) (models.AttendanceRecord, error)
	AttendanceByID(ctx context.Context, id string) (models.AttendanceRecord, error)
	UpdateAttendanceStatus(ctx context.Context, id, status string) error
	ListAttendance(ctx context.Context, subjectID, studentID string) ([]models.AttendanceRecord, error)
	DeleteAttendance(ctx context.Context, id string) error
	DeleteAttendanceBySubject(ctx context.Context, subjectID string) (int, error)

	CreateDocument(ctx context.Context, doc models.Document) error
	DocumentByID(ctx context.Context, kind, id string) (models.Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]models.Document, error)
	UpdateDocument(ctx context.Context, doc models.Document) error
	DeleteDocument(ctx context.Context, kind, id string) error
}

// DayOf truncates t to midnight UTC, the granularity of attendance marks.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
