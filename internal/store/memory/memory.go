// Package memory is a non-persistent Repository used for local runs
// (STORE_DRIVER=memory) and tests. It honours the same uniqueness rules
// as the postgres schema.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"collegehub-backend/internal/models"
	"collegehub-backend/internal/store"
)

type dataset struct {
	students   map[string]models.Student
	clubs      map[string]models.Club
	subclubs   map[string]models.Subclub
	events     map[string]models.Event
	subjects   map[string]models.Subject
	attendance map[string]models.AttendanceRecord
	documents  map[string]models.Document
}

func newDataset() *dataset {
	return &dataset{
		students:   map[string]models.Student{},
		clubs:      map[string]models.Club{},
		subclubs:   map[string]models.Subclub{},
		events:     map[string]models.Event{},
		subjects:   map[string]models.Subject{},
		attendance: map[string]models.AttendanceRecord{},
		documents:  map[string]models.Document{},
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.students {
		c.students[k] = copyStudent(v)
	}
	for k, v := range d.clubs {
		v.Members = copyStrings(v.Members)
		c.clubs[k] = v
	}
	for k, v := range d.subclubs {
		v.Members = copyStrings(v.Members)
		c.subclubs[k] = v
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	for k, v := range d.subjects {
		c.subjects[k] = v
	}
	for k, v := range d.attendance {
		c.attendance[k] = v
	}
	for k, v := range d.documents {
		c.documents[k] = v
	}
	return c
}

type state struct {
	mu   sync.RWMutex
	txMu sync.RWMutex
	data *dataset
}

// Store is the Repository handle. Transactions hold txMu exclusively and
// every call made outside one takes it shared, so a rollback to the
// snapshot only ever discards the transaction's own writes.
type Store struct {
	*state
	inTx bool
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{state: &state{data: newDataset()}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(repo store.Repository) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(&Store{state: s.state, inTx: true}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// lock takes the write lock and returns its release.
func (s *Store) lock() func() {
	if !s.inTx {
		s.txMu.RLock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !s.inTx {
			s.txMu.RUnlock()
		}
	}
}

func (s *Store) rlock() func() {
	if !s.inTx {
		s.txMu.RLock()
	}
	s.mu.RLock()
	return func() {
		s.mu.RUnlock()
		if !s.inTx {
			s.txMu.RUnlock()
		}
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// students

func (s *Store) CreateStudent(ctx context.Context, student models.Student) error {
	defer s.lock()()
	for _, existing := range s.data.students {
		if strings.EqualFold(existing.Email, student.Email) {
			return store.ErrDuplicate
		}
	}
	s.data.students[student.ID] = copyStudent(student)
	return nil
}

func (s *Store) StudentByID(ctx context.Context, id string) (models.Student, error) {
	defer s.rlock()()
	student, ok := s.data.students[id]
	if !ok {
		return models.Student{}, store.ErrNotFound
	}
	return copyStudent(student), nil
}

func (s *Store) StudentByEmail(ctx context.Context, email string) (models.Student, error) {
	defer s.rlock()()
	for _, student := range s.data.students {
		if strings.EqualFold(student.Email, email) {
			return copyStudent(student), nil
		}
	}
	return models.Student{}, store.ErrNotFound
}

func (s *Store) ListStudents(ctx context.Context, role string) ([]models.Student, error) {
	defer s.rlock()()
	items := make([]models.Student, 0, len(s.data.students))
	for _, student := range s.data.students {
		if role != "" && student.Role != role {
			continue
		}
		items = append(items, copyStudent(student))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].Email < items[j].Email
	})
	return items, nil
}

func (s *Store) UpdateStudentMemberships(ctx context.Context, student models.Student) error {
	defer s.lock()()
	existing, ok := s.data.students[student.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.JoinedClubs = copyStrings(student.JoinedClubs)
	existing.ClubMemberships = copyMemberships(student.ClubMemberships)
	s.data.students[student.ID] = existing
	return nil
}

// clubs

func (s *Store) CreateClub(ctx context.Context, club models.Club) error {
	defer s.lock()()
	for _, existing := range s.data.clubs {
		if strings.EqualFold(existing.Type, club.Type) {
			return store.ErrDuplicate
		}
	}
	club.Members = copyStrings(club.Members)
	club.Subclubs = nil
	s.data.clubs[club.ID] = club
	return nil
}

func (s *Store) ClubByType(ctx context.Context, clubType string) (models.Club, error) {
	defer s.rlock()()
	for _, club := range s.data.clubs {
		if strings.EqualFold(club.Type, clubType) {
			return s.assembleClub(club), nil
		}
	}
	return models.Club{}, store.ErrNotFound
}

func (s *Store) ListClubs(ctx context.Context) ([]models.Club, error) {
	defer s.rlock()()
	items := make([]models.Club, 0, len(s.data.clubs))
	for _, club := range s.data.clubs {
		items = append(items, s.assembleClub(club))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Type < items[j].Type })
	return items, nil
}

func (s *Store) assembleClub(club models.Club) models.Club {
	club.Members = copyStrings(club.Members)
	club.Subclubs = []models.Subclub{}
	for _, sc := range s.data.subclubs {
		if sc.ClubID == club.ID {
			sc.Members = copyStrings(sc.Members)
			club.Subclubs = append(club.Subclubs, sc)
		}
	}
	sort.Slice(club.Subclubs, func(i, j int) bool {
		if !club.Subclubs[i].CreatedAt.Equal(club.Subclubs[j].CreatedAt) {
			return club.Subclubs[i].CreatedAt.Before(club.Subclubs[j].CreatedAt)
		}
		return club.Subclubs[i].Name < club.Subclubs[j].Name
	})
	return club
}

func (s *Store) UpdateClubMembers(ctx context.Context, clubID string, members []string) error {
	defer s.lock()()
	club, ok := s.data.clubs[clubID]
	if !ok {
		return store.ErrNotFound
	}
	club.Members = copyStrings(members)
	club.UpdatedAt = time.Now().UTC()
	s.data.clubs[clubID] = club
	return nil
}

func (s *Store) DeleteClub(ctx context.Context, clubID string) error {
	defer s.lock()()
	if _, ok := s.data.clubs[clubID]; !ok {
		return store.ErrNotFound
	}
	delete(s.data.clubs, clubID)
	for id, sc := range s.data.subclubs {
		if sc.ClubID == clubID {
			delete(s.data.subclubs, id)
		}
	}
	return nil
}

func (s *Store) CreateSubclub(ctx context.Context, subclub models.Subclub) error {
	defer s.lock()()
	if _, ok := s.data.clubs[subclub.ClubID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range s.data.subclubs {
		if existing.ClubID == subclub.ClubID && strings.EqualFold(existing.Name, subclub.Name) {
			return store.ErrDuplicate
		}
	}
	subclub.Members = copyStrings(subclub.Members)
	s.data.subclubs[subclub.ID] = subclub
	return nil
}

func (s *Store) UpdateSubclubMembers(ctx context.Context, subclubID string, members []string) error {
	defer s.lock()()
	sc, ok := s.data.subclubs[subclubID]
	if !ok {
		return store.ErrNotFound
	}
	sc.Members = copyStrings(members)
	s.data.subclubs[subclubID] = sc
	return nil
}

func (s *Store) DeleteSubclub(ctx context.Context, subclubID string) error {
	defer s.lock()()
	if _, ok := s.data.subclubs[subclubID]; !ok {
		return store.ErrNotFound
	}
	delete(s.data.subclubs, subclubID)
	return nil
}

// events

func (s *Store) CreateEvent(ctx context.Context, event models.Event) error {
	defer s.lock()()
	s.data.events[event.ID] = event
	return nil
}

func (s *Store) EventByID(ctx context.Context, id string) (models.Event, error) {
	defer s.rlock()()
	event, ok := s.data.events[id]
	if !ok {
		return models.Event{}, store.ErrNotFound
	}
	return event, nil
}

func (s *Store) ListEvents(ctx context.Context, clubType string) ([]models.Event, error) {
	defer s.rlock()()
	items := make([]models.Event, 0, len(s.data.events))
	for _, event := range s.data.events {
		if clubType != "" && !strings.EqualFold(event.ClubType, clubType) {
			continue
		}
		items = append(items, event)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.Before(items[j].Date)
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) UpdateEvent(ctx context.Context, event models.Event) error {
	defer s.lock()()
	if _, ok := s.data.events[event.ID]; !ok {
		return store.ErrNotFound
	}
	s.data.events[event.ID] = event
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	defer s.lock()()
	if _, ok := s.data.events[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.data.events, id)
	return nil
}

func (s *Store) DeleteEventsByClubType(ctx context.Context, clubType string) (int, error) {
	defer s.lock()()
	removed := 0
	for id, event := range s.data.events {
		if strings.EqualFold(event.ClubType, clubType) {
			delete(s.data.events, id)
			removed++
		}
	}
	return removed, nil
}

// subjects

func (s *Store) CreateSubject(ctx context.Context, subject models.Subject) error {
	defer s.lock()()
	for _, existing := range s.data.subjects {
		if existing.StudentID == subject.StudentID && strings.EqualFold(existing.Name, subject.Name) {
			return store.ErrDuplicate
		}
	}
	s.data.subjects[subject.ID] = subject
	return nil
}

func (s *Store) SubjectByID(ctx context.Context, id string) (models.Subject, error) {
	defer s.rlock()()
	subject, ok := s.data.subjects[id]
	if !ok {
		return models.Subject{}, store.ErrNotFound
	}
	return subject, nil
}

func (s *Store) ListSubjects(ctx context.Context, studentID string) ([]models.Subject, error) {
	defer s.rlock()()
	items := []models.Subject{}
	for _, subject := range s.data.subjects {
		if subject.StudentID == studentID {
			items = append(items, subject)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *Store) DeleteSubject(ctx context.Context, id string) error {
	defer s.lock()()
	if _, ok := s.data.subjects[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.data.subjects, id)
	return nil
}

// attendance

func (s *Store) InsertAttendance(ctx context.Context, record models.AttendanceRecord) error {
	defer s.lock()()
	for _, existing := range s.data.attendance {
		if existing.SubjectID == record.SubjectID && existing.StudentID == record.StudentID && existing.Date.Equal(record.Date) {
			return store.ErrDuplicate
		}
	}
	s.data.attendance[record.ID] = record
	return nil
}

func (s *Store) AttendanceOnDay(ctx context.Context, subjectID, studentID string, day time.Time) (models.AttendanceRecord, error) {
	defer s.rlock()()
	day = store.DayOf(day)
	for _, record := range s.data.attendance {
		if record.SubjectID == subjectID && record.StudentID == studentID && record.Date.Equal(day) {
			return record, nil
		}
	}
	return models.AttendanceRecord{}, store.ErrNotFound
}

func (s *Store) AttendanceByID(ctx context.Context, id string) (models.AttendanceRecord, error) {
	defer s.rlock()()
	record, ok := s.data.attendance[id]
	if !ok {
		return models.AttendanceRecord{}, store.ErrNotFound
	}
	return record, nil
}

func (s *Store) UpdateAttendanceStatus(ctx context.Context, id, status string) error {
	defer s.lock()()
	record, ok := s.data.attendance[id]
	if !ok {
		return store.ErrNotFound
	}
	record.Status = status
	record.UpdatedAt = time.Now().UTC()
	s.data.attendance[id] = record
	return nil
}

func (s *Store) ListAttendance(ctx context.Context, subjectID, studentID string) ([]models.AttendanceRecord, error) {
	defer s.rlock()()
	items := []models.AttendanceRecord{}
	for _, record := range s.data.attendance {
		if record.SubjectID == subjectID && record.StudentID == studentID {
			items = append(items, record)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Date.After(items[j].Date) })
	return items, nil
}

func (s *Store) DeleteAttendance(ctx context.Context, id string) error {
	defer s.lock()()
	if _, ok := s.data.attendance[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.data.attendance, id)
	return nil
}

func (s *Store) DeleteAttendanceBySubject(ctx context.Context, subjectID string) (int, error) {
	defer s.lock()()
	removed := 0
	for id, record := range s.data.attendance {
		if record.SubjectID == subjectID {
			delete(s.data.attendance, id)
			removed++
		}
	}
	return removed, nil
}

// documents

func (s *Store) CreateDocument(ctx context.Context, doc models.Document) error {
	defer s.lock()()
	s.data.documents[doc.ID] = doc
	return nil
}

func (s *Store) DocumentByID(ctx context.Context, kind, id string) (models.Document, error) {
	defer s.rlock()()
	doc, ok := s.data.documents[id]
	if !ok || doc.Kind != kind {
		return models.Document{}, store.ErrNotFound
	}
	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]models.Document, error) {
	defer s.rlock()()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	items := []models.Document{}
	for _, doc := range s.data.documents {
		if filter.Kind != "" && doc.Kind != filter.Kind {
			continue
		}
		if filter.AddedBy != "" && doc.AddedBy != filter.AddedBy {
			continue
		}
		if filter.Semester != 0 && doc.Semester != filter.Semester {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(doc.Title), search) {
			continue
		}
		items = append(items, doc)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc models.Document) error {
	defer s.lock()()
	existing, ok := s.data.documents[doc.ID]
	if !ok || existing.Kind != doc.Kind {
		return store.ErrNotFound
	}
	s.data.documents[doc.ID] = doc
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, kind, id string) error {
	defer s.lock()()
	existing, ok := s.data.documents[id]
	if !ok || existing.Kind != kind {
		return store.ErrNotFound
	}
	delete(s.data.documents, id)
	return nil
}

func copyStrings(items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	return out
}

func copyMemberships(items []models.ClubMembership) []models.ClubMembership {
	out := make([]models.ClubMembership, len(items))
	for i, m := range items {
		out[i] = models.ClubMembership{ClubType: m.ClubType, Subclubs: copyStrings(m.Subclubs)}
	}
	return out
}

func copyStudent(student models.Student) models.Student {
	student.JoinedClubs = copyStrings(student.JoinedClubs)
	student.ClubMemberships = copyMemberships(student.ClubMemberships)
	return student
}
