// Package postgres implements store.Repository on sqlx over the pgx
// stdlib driver. Member lists live in text[] columns and the identity-side
// sub-club summary in a JSONB column.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"collegehub-backend/internal/models"
	"collegehub-backend/internal/store"
)

const uniqueViolation = "23505"

type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
	tx *sqlx.Tx
}

var _ store.Repository = (*Store)(nil)

func New(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// WithinTx opens a transaction unless one is already running, in which
// case fn joins it.
func (s *Store) WithinTx(ctx context.Context, fn func(repo store.Repository) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&Store{db: s.db, q: tx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// forUpdate locks rows read inside a transaction so concurrent membership
// changes serialize instead of overwriting each other's lists.
func (s *Store) forUpdate() string {
	if s.tx != nil {
		return " FOR UPDATE"
	}
	return ""
}

// insert runs an INSERT behind a savepoint when inside a transaction, so
// a unique violation can be reported without aborting the transaction.
func (s *Store) insert(ctx context.Context, query string, args ...interface{}) error {
	if s.tx == nil {
		_, err := s.q.ExecContext(ctx, query, args...)
		return mapError(err)
	}
	if _, err := s.tx.ExecContext(ctx, `SAVEPOINT repo_insert`); err != nil {
		return err
	}
	if _, err := s.tx.ExecContext(ctx, query, args...); err != nil {
		_, _ = s.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT repo_insert`)
		return mapError(err)
	}
	_, err := s.tx.ExecContext(ctx, `RELEASE SAVEPOINT repo_insert`)
	return err
}

func (s *Store) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) execCount(ctx context.Context, query string, args ...interface{}) (int, error) {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, s.q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) selectRows(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, s.q, dest, query, args...)
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// memberships stores []models.ClubMembership as JSONB.
type memberships []models.ClubMembership

func (m memberships) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]models.ClubMembership(m))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (m *memberships) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = memberships{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("memberships: cannot scan %T", src)
	}
	items := []models.ClubMembership{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	*m = items
	return nil
}

func stringArray(items []string) pq.StringArray {
	if items == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(items)
}

func strs(a pq.StringArray) []string {
	if a == nil {
		return []string{}
	}
	return []string(a)
}

// students

type studentRow struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	Email           string         `db:"email"`
	PasswordHash    string         `db:"password_hash"`
	Role            string         `db:"role"`
	JoinedClubs     pq.StringArray `db:"joined_clubs"`
	ClubMemberships memberships    `db:"club_memberships"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r studentRow) model() models.Student {
	ms := []models.ClubMembership(r.ClubMemberships)
	if ms == nil {
		ms = []models.ClubMembership{}
	}
	return models.Student{
		ID:              r.ID,
		Name:            r.Name,
		Email:           r.Email,
		PasswordHash:    r.PasswordHash,
		Role:            r.Role,
		JoinedClubs:     strs(r.JoinedClubs),
		ClubMemberships: ms,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

const studentColumns = `id, name, email, password_hash, role, joined_clubs, club_memberships, created_at`

func (s *Store) CreateStudent(ctx context.Context, student models.Student) error {
	return s.insert(ctx, `
INSERT INTO users (id, name, email, password_hash, role, joined_clubs, club_memberships, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, student.ID, student.Name, student.Email, student.PasswordHash, student.Role,
		stringArray(student.JoinedClubs), memberships(student.ClubMemberships), student.CreatedAt)
}

func (s *Store) StudentByID(ctx context.Context, id string) (models.Student, error) {
	var row studentRow
	if err := s.get(ctx, &row, `SELECT `+studentColumns+` FROM users WHERE id = $1`+s.forUpdate(), id); err != nil {
		return models.Student{}, err
	}
	return row.model(), nil
}

func (s *Store) StudentByEmail(ctx context.Context, email string) (models.Student, error) {
	var row studentRow
	if err := s.get(ctx, &row, `SELECT `+studentColumns+` FROM users WHERE lower(email) = lower($1)`+s.forUpdate(), email); err != nil {
		return models.Student{}, err
	}
	return row.model(), nil
}

func (s *Store) ListStudents(ctx context.Context, role string) ([]models.Student, error) {
	rows := []studentRow{}
	query := `SELECT ` + studentColumns + ` FROM users`
	args := []interface{}{}
	if role != "" {
		query += ` WHERE role = $1`
		args = append(args, role)
	}
	query += ` ORDER BY name, email` + s.forUpdate()
	if err := s.selectRows(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	items := make([]models.Student, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.model())
	}
	return items, nil
}

func (s *Store) UpdateStudentMemberships(ctx context.Context, student models.Student) error {
	return s.execOne(ctx, `UPDATE users SET joined_clubs = $2, club_memberships = $3 WHERE id = $1`,
		student.ID, stringArray(student.JoinedClubs), memberships(student.ClubMemberships))
}

// clubs

type clubRow struct {
	ID          string         `db:"id"`
	Type        string         `db:"type"`
	Description string         `db:"description"`
	Members     pq.StringArray `db:"members"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

type subclubRow struct {
	ID          string         `db:"id"`
	ClubID      string         `db:"club_id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Members     pq.StringArray `db:"members"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r subclubRow) model() models.Subclub {
	return models.Subclub{
		ID:          r.ID,
		ClubID:      r.ClubID,
		Name:        r.Name,
		Description: r.Description,
		Members:     strs(r.Members),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

const clubColumns = `id, type, description, members, created_at, updated_at`

func (s *Store) CreateClub(ctx context.Context, club models.Club) error {
	return s.insert(ctx, `
INSERT INTO clubs (id, type, description, members, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, club.ID, club.Type, club.Description, stringArray(club.Members), club.CreatedAt, club.UpdatedAt)
}

func (s *Store) ClubByType(ctx context.Context, clubType string) (models.Club, error) {
	var row clubRow
	if err := s.get(ctx, &row, `SELECT `+clubColumns+` FROM clubs WHERE lower(type) = lower($1)`+s.forUpdate(), clubType); err != nil {
		return models.Club{}, err
	}
	clubs, err := s.attachSubclubs(ctx, []clubRow{row})
	if err != nil {
		return models.Club{}, err
	}
	return clubs[0], nil
}

func (s *Store) ListClubs(ctx context.Context) ([]models.Club, error) {
	rows := []clubRow{}
	if err := s.selectRows(ctx, &rows, `SELECT `+clubColumns+` FROM clubs ORDER BY type`+s.forUpdate()); err != nil {
		return nil, err
	}
	return s.attachSubclubs(ctx, rows)
}

func (s *Store) attachSubclubs(ctx context.Context, rows []clubRow) ([]models.Club, error) {
	clubs := make([]models.Club, 0, len(rows))
	if len(rows) == 0 {
		return clubs, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	subs := []subclubRow{}
	if err := s.selectRows(ctx, &subs, `
SELECT id, club_id, name, description, members, created_at
FROM subclubs
WHERE club_id = ANY($1)
ORDER BY created_at, name`+s.forUpdate(), pq.StringArray(ids)); err != nil {
		return nil, err
	}
	byClub := map[string][]models.Subclub{}
	for _, sub := range subs {
		byClub[sub.ClubID] = append(byClub[sub.ClubID], sub.model())
	}
	for _, row := range rows {
		subclubs := byClub[row.ID]
		if subclubs == nil {
			subclubs = []models.Subclub{}
		}
		clubs = append(clubs, models.Club{
			ID:          row.ID,
			Type:        row.Type,
			Description: row.Description,
			Members:     strs(row.Members),
			Subclubs:    subclubs,
			CreatedAt:   row.CreatedAt.UTC(),
			UpdatedAt:   row.UpdatedAt.UTC(),
		})
	}
	return clubs, nil
}

func (s *Store) UpdateClubMembers(ctx context.Context, clubID string, members []string) error {
	return s.execOne(ctx, `UPDATE clubs SET members = $2, updated_at = now() WHERE id = $1`, clubID, stringArray(members))
}

func (s *Store) DeleteClub(ctx context.Context, clubID string) error {
	return s.execOne(ctx, `DELETE FROM clubs WHERE id = $1`, clubID)
}

func (s *Store) CreateSubclub(ctx context.Context, subclub models.Subclub) error {
	err := s.insert(ctx, `
INSERT INTO subclubs (id, club_id, name, description, members, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, subclub.ID, subclub.ClubID, subclub.Name, subclub.Description, stringArray(subclub.Members), subclub.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) UpdateSubclubMembers(ctx context.Context, subclubID string, members []string) error {
	return s.execOne(ctx, `UPDATE subclubs SET members = $2 WHERE id = $1`, subclubID, stringArray(members))
}

func (s *Store) DeleteSubclub(ctx context.Context, subclubID string) error {
	return s.execOne(ctx, `DELETE FROM subclubs WHERE id = $1`, subclubID)
}

// events

type eventRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Date        time.Time `db:"date"`
	ClubType    string    `db:"club_type"`
	Location    string    `db:"location"`
	OrganizerID string    `db:"organizer_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r eventRow) model() models.Event {
	return models.Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Date:        r.Date.UTC(),
		ClubType:    r.ClubType,
		Location:    r.Location,
		OrganizerID: r.OrganizerID,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

const eventColumns = `id, title, description, date, club_type, location, organizer_id, created_at, updated_at`

func (s *Store) CreateEvent(ctx context.Context, event models.Event) error {
	return s.insert(ctx, `
INSERT INTO events (id, title, description, date, club_type, location, organizer_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, event.ID, event.Title, event.Description, event.Date, event.ClubType, event.Location,
		event.OrganizerID, event.CreatedAt, event.UpdatedAt)
}

func (s *Store) EventByID(ctx context.Context, id string) (models.Event, error) {
	var row eventRow
	if err := s.get(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id); err != nil {
		return models.Event{}, err
	}
	return row.model(), nil
}

func (s *Store) ListEvents(ctx context.Context, clubType string) ([]models.Event, error) {
	rows := []eventRow{}
	query := `SELECT ` + eventColumns + ` FROM events`
	args := []interface{}{}
	if clubType != "" {
		query += ` WHERE lower(club_type) = lower($1)`
		args = append(args, clubType)
	}
	query += ` ORDER BY date, created_at`
	if err := s.selectRows(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	items := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.model())
	}
	return items, nil
}

func (s *Store) UpdateEvent(ctx context.Context, event models.Event) error {
	return s.execOne(ctx, `
UPDATE events
SET title = $2, description = $3, date = $4, club_type = $5, location = $6, updated_at = $7
WHERE id = $1
`, event.ID, event.Title, event.Description, event.Date, event.ClubType, event.Location, event.UpdatedAt)
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM events WHERE id = $1`, id)
}

func (s *Store) DeleteEventsByClubType(ctx context.Context, clubType string) (int, error) {
	return s.execCount(ctx, `DELETE FROM events WHERE lower(club_type) = lower($1)`, clubType)
}

// subjects

type subjectRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	StudentID string    `db:"student_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (r subjectRow) model() models.Subject {
	return models.Subject{ID: r.ID, Name: r.Name, StudentID: r.StudentID, CreatedAt: r.CreatedAt.UTC()}
}

func (s *Store) CreateSubject(ctx context.Context, subject models.Subject) error {
	return s.insert(ctx, `INSERT INTO subjects (id, name, student_id, created_at) VALUES ($1, $2, $3, $4)`,
		subject.ID, subject.Name, subject.StudentID, subject.CreatedAt)
}

func (s *Store) SubjectByID(ctx context.Context, id string) (models.Subject, error) {
	var row subjectRow
	if err := s.get(ctx, &row, `SELECT id, name, student_id, created_at FROM subjects WHERE id = $1`, id); err != nil {
		return models.Subject{}, err
	}
	return row.model(), nil
}

func (s *Store) ListSubjects(ctx context.Context, studentID string) ([]models.Subject, error) {
	rows := []subjectRow{}
	if err := s.selectRows(ctx, &rows, `
SELECT id, name, student_id, created_at FROM subjects WHERE student_id = $1 ORDER BY name
`, studentID); err != nil {
		return nil, err
	}
	items := make([]models.Subject, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.model())
	}
	return items, nil
}

func (s *Store) DeleteSubject(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM subjects WHERE id = $1`, id)
}

// attendance

type attendanceRow struct {
	ID        string    `db:"id"`
	SubjectID string    `db:"subject_id"`
	StudentID string    `db:"student_id"`
	Date      time.Time `db:"date"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r attendanceRow) model() models.AttendanceRecord {
	return models.AttendanceRecord{
		ID:        r.ID,
		SubjectID: r.SubjectID,
		StudentID: r.StudentID,
		Date:      r.Date.UTC(),
		Status:    r.Status,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

const attendanceColumns = `id, subject_id, student_id, date, status, created_at, updated_at`

func (s *Store) InsertAttendance(ctx context.Context, record models.AttendanceRecord) error {
	return s.insert(ctx, `
INSERT INTO attendance (id, subject_id, student_id, date, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, record.ID, record.SubjectID, record.StudentID, store.DayOf(record.Date), record.Status, record.CreatedAt, record.UpdatedAt)
}

func (s *Store) AttendanceOnDay(ctx context.Context, subjectID, studentID string, day time.Time) (models.AttendanceRecord, error) {
	var row attendanceRow
	if err := s.get(ctx, &row, `
SELECT `+attendanceColumns+` FROM attendance
WHERE subject_id = $1 AND student_id = $2 AND date = $3
`, subjectID, studentID, store.DayOf(day)); err != nil {
		return models.AttendanceRecord{}, err
	}
	return row.model(), nil
}

func (s *Store) AttendanceByID(ctx context.Context, id string) (models.AttendanceRecord, error) {
	var row attendanceRow
	if err := s.get(ctx, &row, `SELECT `+attendanceColumns+` FROM attendance WHERE id = $1`, id); err != nil {
		return models.AttendanceRecord{}, err
	}
	return row.model(), nil
}

func (s *Store) UpdateAttendanceStatus(ctx context.Context, id, status string) error {
	return s.execOne(ctx, `UPDATE attendance SET status = $2, updated_at = now() WHERE id = $1`, id, status)
}

func (s *Store) ListAttendance(ctx context.Context, subjectID, studentID string) ([]models.AttendanceRecord, error) {
	rows := []attendanceRow{}
	if err := s.selectRows(ctx, &rows, `
SELECT `+attendanceColumns+` FROM attendance
WHERE subject_id = $1 AND student_id = $2
ORDER BY date DESC
`, subjectID, studentID); err != nil {
		return nil, err
	}
	items := make([]models.AttendanceRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.model())
	}
	return items, nil
}

func (s *Store) DeleteAttendance(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM attendance WHERE id = $1`, id)
}

func (s *Store) DeleteAttendanceBySubject(ctx context.Context, subjectID string) (int, error) {
	return s.execCount(ctx, `DELETE FROM attendance WHERE subject_id = $1`, subjectID)
}

// documents

type documentRow struct {
	ID          string    `db:"id"`
	Kind        string    `db:"kind"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Semester    int       `db:"semester"`
	FileLink    string    `db:"file_link"`
	FilePath    string    `db:"file_path"`
	AddedBy     string    `db:"added_by"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r documentRow) model() models.Document {
	return models.Document{
		ID:          r.ID,
		Kind:        r.Kind,
		Title:       r.Title,
		Description: r.Description,
		Semester:    r.Semester,
		FileLink:    r.FileLink,
		FilePath:    r.FilePath,
		AddedBy:     r.AddedBy,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

const documentColumns = `id, kind, title, description, semester, file_link, file_path, added_by, created_at, updated_at`

func (s *Store) CreateDocument(ctx context.Context, doc models.Document) error {
	return s.insert(ctx, `
INSERT INTO documents (id, kind, title, description, semester, file_link, file_path, added_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, doc.ID, doc.Kind, doc.Title, doc.Description, doc.Semester, doc.FileLink, doc.FilePath,
		doc.AddedBy, doc.CreatedAt, doc.UpdatedAt)
}

func (s *Store) DocumentByID(ctx context.Context, kind, id string) (models.Document, error) {
	var row documentRow
	if err := s.get(ctx, &row, `SELECT `+documentColumns+` FROM documents WHERE id = $1 AND kind = $2`, id, kind); err != nil {
		return models.Document{}, err
	}
	return row.model(), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]models.Document, error) {
	where := []string{}
	args := []interface{}{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Kind != "" {
		add("kind = $%d", filter.Kind)
	}
	if filter.AddedBy != "" {
		add("added_by = $%d", filter.AddedBy)
	}
	if filter.Semester != 0 {
		add("semester = $%d", filter.Semester)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		add("title ILIKE '%%' || $%d || '%%'", likeEscaper.Replace(search))
	}
	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows := []documentRow{}
	if err := s.selectRows(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	items := make([]models.Document, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.model())
	}
	return items, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc models.Document) error {
	return s.execOne(ctx, `
UPDATE documents
SET title = $3, description = $4, semester = $5, file_link = $6, file_path = $7, updated_at = $8
WHERE id = $1 AND kind = $2
`, doc.ID, doc.Kind, doc.Title, doc.Description, doc.Semester, doc.FileLink, doc.FilePath, doc.UpdatedAt)
}

func (s *Store) DeleteDocument(ctx context.Context, kind, id string) error {
	return s.execOne(ctx, `DELETE FROM documents WHERE id = $1 AND kind = $2`, id, kind)
}
