package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"collegehub-backend/internal/models"
	"collegehub-backend/internal/store"
)

const maxSubjectNameLength = 120

type Percentage struct {
	Present    int `json:"present"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

type SubjectPercentage struct {
	SubjectID string `json:"subjectId"`
	Name      string `json:"name"`
	Percentage
}

type OverallAttendance struct {
	Subjects []SubjectPercentage `json:"subjects"`
	Overall  Percentage          `json:"overall"`
}

// ComputePercentage rounds 100*present/total half away from zero and is 0
// for an empty record set.
func ComputePercentage(records []models.AttendanceRecord) Percentage {
	out := Percentage{Total: len(records)}
	for _, r := range records {
		if r.Status == models.StatusPresent {
			out.Present++
		}
	}
	out.Percentage = percentOf(out.Present, out.Total)
	return out
}

func percentOf(present, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(present) / float64(total)))
}

// NormalizeStatus accepts Present/Absent in any case.
func NormalizeStatus(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "present":
		return models.StatusPresent, nil
	case "absent":
		return models.StatusAbsent, nil
	}
	return "", ErrValidation("Status must be Present or Absent")
}

type AttendanceService struct {
	repo store.Repository
	now  func() time.Time
}

func NewAttendanceService(repo store.Repository) *AttendanceService {
	return &AttendanceService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *AttendanceService) CreateSubject(ctx context.Context, studentID, rawName string) (models.Subject, error) {
	name := strings.TrimSpace(rawName)
	if name == "" {
		return models.Subject{}, ErrValidation("Subject name is required")
	}
	if len([]rune(name)) > maxSubjectNameLength {
		return models.Subject{}, ErrValidation("Subject name is too long")
	}
	subject := models.Subject{
		ID:        uuid.NewString(),
		Name:      name,
		StudentID: studentID,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateSubject(ctx, subject); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.Subject{}, ErrAlreadyExists("Subject already exists")
		}
		return models.Subject{}, WrapError(err, "create subject")
	}
	return subject, nil
}

func (s *AttendanceService) ListSubjects(ctx context.Context, studentID string) ([]models.Subject, error) {
	return s.repo.ListSubjects(ctx, studentID)
}

// DeleteSubject removes the subject and every record under it.
func (s *AttendanceService) DeleteSubject(ctx context.Context, studentID, subjectID string) error {
	return s.repo.WithinTx(ctx, func(repo store.Repository) error {
		if _, err := ownedSubject(ctx, repo, studentID, subjectID); err != nil {
			return err
		}
		if _, err := repo.DeleteAttendanceBySubject(ctx, subjectID); err != nil {
			return WrapError(err, "delete attendance")
		}
		if err := repo.DeleteSubject(ctx, subjectID); err != nil {
			return WrapError(err, "delete subject")
		}
		return nil
	})
}

// Mark records status for the day of date (today when nil). A second mark
// on the same day overwrites the first. Two concurrent first marks race
// on the unique index; the loser updates the winner's record.
func (s *AttendanceService) Mark(ctx context.Context, studentID, subjectID, rawStatus string, date *time.Time) (models.AttendanceRecord, error) {
	status, err := NormalizeStatus(rawStatus)
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	if _, err := ownedSubject(ctx, s.repo, studentID, subjectID); err != nil {
		return models.AttendanceRecord{}, err
	}
	when := s.now()
	if date != nil && !date.IsZero() {
		when = *date
	}
	day := store.DayOf(when)

	existing, err := s.repo.AttendanceOnDay(ctx, subjectID, studentID, day)
	if err == nil {
		return s.overwrite(ctx, existing, status)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.AttendanceRecord{}, WrapError(err, "find attendance")
	}

	now := s.now()
	record := models.AttendanceRecord{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		StudentID: studentID,
		Date:      day,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.repo.InsertAttendance(ctx, record)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return models.AttendanceRecord{}, WrapError(err, "insert attendance")
	}
	existing, err = s.repo.AttendanceOnDay(ctx, subjectID, studentID, day)
	if err != nil {
		return models.AttendanceRecord{}, ErrConflict("Attendance already marked for this day")
	}
	return s.overwrite(ctx, existing, status)
}

func (s *AttendanceService) overwrite(ctx context.Context, record models.AttendanceRecord, status string) (models.AttendanceRecord, error) {
	if record.Status == status {
		return record, nil
	}
	if err := s.repo.UpdateAttendanceStatus(ctx, record.ID, status); err != nil {
		return models.AttendanceRecord{}, WrapError(err, "update attendance")
	}
	record.Status = status
	record.UpdatedAt = s.now()
	return record, nil
}

func (s *AttendanceService) ListRecords(ctx context.Context, studentID, subjectID string) ([]models.AttendanceRecord, error) {
	if _, err := ownedSubject(ctx, s.repo, studentID, subjectID); err != nil {
		return nil, err
	}
	return s.repo.ListAttendance(ctx, subjectID, studentID)
}

func (s *AttendanceService) Percentage(ctx context.Context, studentID, subjectID string) (Percentage, error) {
	records, err := s.ListRecords(ctx, studentID, subjectID)
	if err != nil {
		return Percentage{}, err
	}
	return ComputePercentage(records), nil
}

// Overall reports every subject of the student plus an aggregate over all
// their records.
func (s *AttendanceService) Overall(ctx context.Context, studentID string) (OverallAttendance, error) {
	subjects, err := s.repo.ListSubjects(ctx, studentID)
	if err != nil {
		return OverallAttendance{}, WrapError(err, "list subjects")
	}
	out := OverallAttendance{Subjects: make([]SubjectPercentage, 0, len(subjects))}
	for _, subject := range subjects {
		records, err := s.repo.ListAttendance(ctx, subject.ID, studentID)
		if err != nil {
			return OverallAttendance{}, WrapError(err, "list attendance")
		}
		p := ComputePercentage(records)
		out.Subjects = append(out.Subjects, SubjectPercentage{SubjectID: subject.ID, Name: subject.Name, Percentage: p})
		out.Overall.Present += p.Present
		out.Overall.Total += p.Total
	}
	out.Overall.Percentage = percentOf(out.Overall.Present, out.Overall.Total)
	return out, nil
}

func (s *AttendanceService) DeleteRecord(ctx context.Context, studentID, recordID string) error {
	record, err := s.repo.AttendanceByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound("Attendance record not found")
		}
		return WrapError(err, "load attendance")
	}
	if record.StudentID != studentID {
		return ErrForbidden("You can only delete your own attendance records")
	}
	if err := s.repo.DeleteAttendance(ctx, recordID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound("Attendance record not found")
		}
		return WrapError(err, "delete attendance")
	}
	return nil
}

func ownedSubject(ctx context.Context, repo store.Repository, studentID, subjectID string) (models.Subject, error) {
	subject, err := repo.SubjectByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Subject{}, ErrNotFound("Subject not found")
		}
		return models.Subject{}, WrapError(err, "load subject")
	}
	if subject.StudentID != studentID {
		return models.Subject{}, ErrForbidden("This subject belongs to another student")
	}
	return subject, nil
}
