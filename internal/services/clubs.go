package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"collegehub-backend/internal/models"
	"collegehub-backend/internal/store"
)

var ClubTypes = []string{"Technical", "Cultural", "Sports"}

const maxSubclubNameLength = 80

// NormalizeClubType capitalizes the first letter and lowercases the rest,
// then checks the result against ClubTypes. Every club operation calls it
// once before touching the store, so stored types are always canonical.
func NormalizeClubType(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", ErrValidation("Club type is required")
	}
	runes := []rune(strings.ToLower(value))
	runes[0] = unicode.ToUpper(runes[0])
	normalized := string(runes)
	for _, t := range ClubTypes {
		if t == normalized {
			return normalized, nil
		}
	}
	return "", ErrValidation("Club type must be one of " + strings.Join(ClubTypes, ", "))
}

func normalizeSubclubName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrValidation("Sub-club name is required")
	}
	if len([]rune(name)) > maxSubclubNameLength {
		return "", ErrValidation("Sub-club name is too long")
	}
	return name, nil
}

// MembershipResult is what a membership change leaves behind on both sides.
type MembershipResult struct {
	Club    models.Club    `json:"club"`
	Student models.Student `json:"student"`
}

type ReconcileReport struct {
	ClubsRepaired   int `json:"clubsRepaired"`
	StudentsUpdated int `json:"studentsUpdated"`
}

// ClubService keeps both sides of a membership in step. Every transaction
// reads (and so locks) identity rows before club rows.
type ClubService struct {
	repo store.Repository
}

func NewClubService(repo store.Repository) *ClubService {
	return &ClubService{repo: repo}
}

func (s *ClubService) List(ctx context.Context) ([]models.Club, error) {
	return s.repo.ListClubs(ctx)
}

// Get returns the club for rawType, creating it on first reference.
func (s *ClubService) Get(ctx context.Context, rawType string) (models.Club, error) {
	clubType, err := NormalizeClubType(rawType)
	if err != nil {
		return models.Club{}, err
	}
	var club models.Club
	err = s.repo.WithinTx(ctx, func(repo store.Repository) error {
		club, err = ensureClub(ctx, repo, clubType)
		return err
	})
	return club, err
}

func (s *ClubService) Create(ctx context.Context, rawType, description string) (models.Club, error) {
	clubType, err := NormalizeClubType(rawType)
	if err != nil {
		return models.Club{}, err
	}
	club := newClub(clubType, strings.TrimSpace(description))
	if err := s.repo.CreateClub(ctx, club); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.Club{}, ErrAlreadyExists("Club already exists")
		}
		return models.Club{}, WrapError(err, "create club")
	}
	return club, nil
}

func (s *ClubService) Join(ctx context.Context, studentID, rawType string) (MembershipResult, error) {
	clubType, err := NormalizeClubType(rawType)
	if err != nil {
		return MembershipResult{}, err
	}
	var result MembershipResult
	err = s.repo.WithinTx(ctx, func(repo store.Repository) error {
		student, err := loadStudent(ctx, repo, studentID)
		if err != nil {
			return err
		}
		club, err := ensureClub(ctx, repo, clubType)
		if err != nil {
			return err
		}
		if club.HasMember(studentID) {
			return ErrAlreadyMember("Already a member of this club")
		}
		if err := joinClub(ctx, repo, &club, &student); err != nil {
			return err
		}
		result = MembershipResult{Club: club, Student: student}
		return nil
	})
	return result, err
}

// Leave removes the student from the club, its sub-clubs, and the
// matching entries of the student's membership summary.
func (s *ClubService) Leave(ctx context.Context, studentID, rawType string) (MembershipResult, error) {
	clubType, err := NormalizeClubType(rawType)
	if err != nil {
		return MembershipResult{}, err
	}
	var result MembershipResult
	err = s.repo.WithinTx(ctx, func(repo store.Repository) error {
		student, err := loadStudent(ctx, repo, studentID)
		if err != nil {
			return err
		}
		club, err := loadClub(ctx, repo, clubType)
		if err != nil {
			return err
		}
		if !club.HasMember(studentID) {
			return ErrNotMember("Not a member of this club")
		}
		club.Members = without(club.Members, studentID)
		if err := repo.UpdateClubMembers(ctx, club.ID, club.Members); err != nil {
			return WrapError(err, "update club members")
		}
		for i, sc := range club.Subclubs {
			if !sc.HasMember(studentID) {
				continue
			}
			club.Subclubs[i].Members = without(sc.Members, studentID)
			if err := repo.UpdateSubclubMembers(ctx, sc.ID, club.Subclubs[i].Members); err != nil {
				return WrapError(err, "update sub-club members")
			}
		}
		removeJoinedClub(&student, clubType)
		dropClubMembership(&student, clubType)
		if err := repo.UpdateStudentMemberships(ctx, student); err != nil {
			return WrapError(err, "update student memberships")
		}
		result = MembershipResult{Club: club, Student: student}
		return nil
	})
	return result, err
}

func (s *ClubService) ListSubclubs(ctx context.Context, rawType string) ([]models.Subclub, error) {
	club, err := s.Get(ctx, rawType)
	if err != nil {
		return nil, err
	}
	return club.Subclubs, nil
}

func (s *ClubService) GetSubclub(ctx context.Context, rawType, rawName string) (models.Subclub, error) {
	clubType, err := NormalizeClubType(rawType)
	if err != nil {
		return models.Subclub{}, err
	}
	name, err := normalizeSubclubName(rawName)
	if err != nil {
		return models.Subclub{}, err
	}
	club, err := loadClub(ctx, s.repo, clubType)
	if err != nil {
		return models.Subclub{}, err
	}
	sc, ok := club.Subclub(name)
	if !ok {
		return models.Subclub{}, ErrNotFound("Sub-club not found")
	}
	return sc, nil
}

func (s *ClubService) CreateSubclub(ctx context.Context, rawType, rawName, description string) (models.Subclub, error) {
	clubType, err := NormalizeClubType(rawType)
	if err != nil {
		return models.Subclub{}, err
	}
	name, err := normalizeSubclubName(rawName)
	if err != nil {
		return models.Subclub{}, err
	}
	var created models.Subclub
	err = s.repo.WithinTx(ctx, func(repo store.Repository) error {
		club, err := ensureClub(ctx, repo, clubType)
		if err != nil {
			return err
		}
		if _, ok := club.Subclub(name); ok {
			return ErrAlreadyExists("Sub-club already exists")
		}
		created = newSubclub(club.ID, name, strings.TrimSpace(description))
		if err := repo.CreateSubclub(ctx, created); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrAlreadyExists("Sub-club already exists")
			}
			return WrapError(err, "create sub-club")
		}
		return nil
	})
	return created, err
}

// JoinSubclub joins the parent club first when needed, then the sub-club,
// creating the sub-club if it does not exist yet.
func (s *ClubService) JoinSubclub(ctx context.Context, studentID, rawType, rawName string) (MembershipResult, error) {
	clubType, err := NormalizeClubType(rawType)
	if err != nil {
		return MembershipResult{}, err
	}
	name, err := normalizeSubclubName(rawName)
	if err != nil {
		return MembershipResult{}, err
	}
	var result MembershipResult
	err = s.repo.WithinTx(ctx, func(repo store.Repository) error {
		student, err := loadStudent(ctx, repo, studentID)
		if err != nil {
			return err
		}
		club, err := ensureClub(ctx, repo, clubType)
		if err != nil {
			return err
		}
		idx, err := ensureSubclub(ctx, repo, &club, name)
		if err != nil {
			return err
		}
		if club.Subclubs[idx].HasMember(studentID) {
			return ErrAlreadyMember("Already a member of this sub-club")
		}
		if !club.HasMember(studentID) {
			if err := joinClub(ctx, repo, &club, &student); err != nil {
				return err
			}
		}
		if err := joinSubclub(ctx, repo, &club, idx, &student); err != nil {
			return err
		}
		result = MembershipResult{Club: club, Student: student}
		return nil
	})
	return result, err
}

// AddStudent is the coordinator path: every step checks before it
// appends, so repeating the call changes nothing.
func (s *ClubService) AddStudent(ctx context.Context, email, rawType, rawSubclub string) (MembershipResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return MembershipResult{}, ErrValidation("Email is required")
	}
	clubType, err := NormalizeClubType(rawType)
	if err != nil {
		return MembershipResult{}, err
	}
	subclubName := strings.TrimSpace(rawSubclub)
	if subclubName != "" {
		if subclubName, err = normalizeSubclubName(subclubName); err != nil {
			return MembershipResult{}, err
		}
	}
	var result MembershipResult
	err = s.repo.WithinTx(ctx, func(repo store.Repository) error {
		student, err := repo.StudentByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound("Student not found")
			}
			return WrapError(err, "load student")
		}
		club, err := ensureClub(ctx, repo, clubType)
		if err != nil {
			return err
		}
		if !club.HasMember(student.ID) || !student.HasJoined(clubType) {
			if err := joinClub(ctx, repo, &club, &student); err != nil {
				return err
			}
		}
		if subclubName != "" {
			idx, err := ensureSubclub(ctx, repo, &club, subclubName)
			if err != nil {
				return err
			}
			if err := joinSubclub(ctx, repo, &club, idx, &student); err != nil {
				return err
			}
		}
		result = MembershipResult{Club: club, Student: student}
		return nil
	})
	return result, err
}

// DeleteClub removes the club's events, strips the club from every
// identity, then deletes the club and its sub-clubs.
func (s *ClubService) DeleteClub(ctx context.Context, rawType string) error {
	clubType, err := NormalizeClubType(rawType)
	if err != nil {
		return err
	}
	return s.repo.WithinTx(ctx, func(repo store.Repository) error {
		students, err := repo.ListStudents(ctx, "")
		if err != nil {
			return WrapError(err, "list students")
		}
		club, err := loadClub(ctx, repo, clubType)
		if err != nil {
			return err
		}
		if _, err := repo.DeleteEventsByClubType(ctx, clubType); err != nil {
			return WrapError(err, "delete club events")
		}
		for _, student := range students {
			changed := removeJoinedClub(&student, clubType)
			if dropClubMembership(&student, clubType) {
				changed = true
			}
			if !changed {
				continue
			}
			if err := repo.UpdateStudentMemberships(ctx, student); err != nil {
				return WrapError(err, "update student memberships")
			}
		}
		if err := repo.DeleteClub(ctx, club.ID); err != nil {
			return WrapError(err, "delete club")
		}
		return nil
	})
}

// DeleteSubclub removes the sub-club and its name from every member's
// membership summary.
func (s *ClubService) DeleteSubclub(ctx context.Context, rawType, rawName string) error {
	clubType, err := NormalizeClubType(rawType)
	if err != nil {
		return err
	}
	name, err := normalizeSubclubName(rawName)
	if err != nil {
		return err
	}
	return s.repo.WithinTx(ctx, func(repo store.Repository) error {
		students, err := repo.ListStudents(ctx, "")
		if err != nil {
			return WrapError(err, "list students")
		}
		byID := make(map[string]models.Student, len(students))
		for _, student := range students {
			byID[student.ID] = student
		}
		club, err := loadClub(ctx, repo, clubType)
		if err != nil {
			return err
		}
		sc, ok := club.Subclub(name)
		if !ok {
			return ErrNotFound("Sub-club not found")
		}
		for _, memberID := range sc.Members {
			student, ok := byID[memberID]
			if !ok {
				continue
			}
			if removeSubclubMembership(&student, clubType, sc.Name) {
				if err := repo.UpdateStudentMemberships(ctx, student); err != nil {
					return WrapError(err, "update student memberships")
				}
			}
		}
		if err := repo.DeleteSubclub(ctx, sc.ID); err != nil {
			return WrapError(err, "delete sub-club")
		}
		return nil
	})
}

func (s *ClubService) RemoveSubclubMember(ctx context.Context, rawType, rawName, studentID string) (MembershipResult, error) {
	clubType, err := NormalizeClubType(rawType)
	if err != nil {
		return MembershipResult{}, err
	}
	name, err := normalizeSubclubName(rawName)
	if err != nil {
		return MembershipResult{}, err
	}
	var result MembershipResult
	err = s.repo.WithinTx(ctx, func(repo store.Repository) error {
		student, err := repo.StudentByID(ctx, studentID)
		found := err == nil
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return WrapError(err, "load student")
		}
		club, err := loadClub(ctx, repo, clubType)
		if err != nil {
			return err
		}
		idx := subclubIndex(club, name)
		if idx < 0 {
			return ErrNotFound("Sub-club not found")
		}
		sc := club.Subclubs[idx]
		if !sc.HasMember(studentID) {
			return ErrNotMember("Student is not a member of this sub-club")
		}
		club.Subclubs[idx].Members = without(sc.Members, studentID)
		if err := repo.UpdateSubclubMembers(ctx, sc.ID, club.Subclubs[idx].Members); err != nil {
			return WrapError(err, "update sub-club members")
		}
		if found && removeSubclubMembership(&student, clubType, sc.Name) {
			if err := repo.UpdateStudentMemberships(ctx, student); err != nil {
				return WrapError(err, "update student memberships")
			}
		}
		result = MembershipResult{Club: club, Student: student}
		return nil
	})
	return result, err
}

// Reconcile treats the club documents as authoritative and rewrites every
// identity's membership summary to match. Sub-club members missing from
// the parent club are added to it; ids that no longer resolve are dropped.
func (s *ClubService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	err := s.repo.WithinTx(ctx, func(repo store.Repository) error {
		report = ReconcileReport{}
		students, err := repo.ListStudents(ctx, "")
		if err != nil {
			return WrapError(err, "list students")
		}
		known := make(map[string]bool, len(students))
		for _, student := range students {
			known[student.ID] = true
		}
		clubs, err := repo.ListClubs(ctx)
		if err != nil {
			return WrapError(err, "list clubs")
		}

		joined := map[string][]string{}
		memberships := map[string][]models.ClubMembership{}
		for _, club := range clubs {
			members := filterKnown(club.Members, known)
			clubChanged := len(members) != len(club.Members)
			for i, sc := range club.Subclubs {
				scMembers := filterKnown(sc.Members, known)
				if len(scMembers) != len(sc.Members) {
					club.Subclubs[i].Members = scMembers
					if err := repo.UpdateSubclubMembers(ctx, sc.ID, scMembers); err != nil {
						return WrapError(err, "update sub-club members")
					}
					clubChanged = true
				}
				for _, id := range scMembers {
					if !contains(members, id) {
						members = append(members, id)
						clubChanged = true
					}
				}
			}
			if clubChanged {
				if err := repo.UpdateClubMembers(ctx, club.ID, members); err != nil {
					return WrapError(err, "update club members")
				}
				report.ClubsRepaired++
			}
			for _, id := range members {
				joined[id] = append(joined[id], club.Type)
			}
			for _, sc := range club.Subclubs {
				for _, id := range sc.Members {
					memberships[id] = appendMembership(memberships[id], club.Type, sc.Name)
				}
			}
		}

		for _, student := range students {
			wantJoined := joined[student.ID]
			wantMemberships := memberships[student.ID]
			if sameSet(student.JoinedClubs, wantJoined) && sameMemberships(student.ClubMemberships, wantMemberships) {
				continue
			}
			student.JoinedClubs = append([]string{}, wantJoined...)
			student.ClubMemberships = append([]models.ClubMembership{}, wantMemberships...)
			if err := repo.UpdateStudentMemberships(ctx, student); err != nil {
				return WrapError(err, "update student memberships")
			}
			report.StudentsUpdated++
		}
		return nil
	})
	return report, err
}

func newClub(clubType, description string) models.Club {
	now := time.Now().UTC()
	if description == "" {
		description = clubType + " club"
	}
	return models.Club{
		ID:          uuid.NewString(),
		Type:        clubType,
		Description: description,
		Members:     []string{},
		Subclubs:    []models.Subclub{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newSubclub(clubID, name, description string) models.Subclub {
	return models.Subclub{
		ID:          uuid.NewString(),
		ClubID:      clubID,
		Name:        name,
		Description: description,
		Members:     []string{},
		CreatedAt:   time.Now().UTC(),
	}
}

func loadStudent(ctx context.Context, repo store.Repository, id string) (models.Student, error) {
	student, err := repo.StudentByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Student{}, ErrNotFound("User not found")
		}
		return models.Student{}, WrapError(err, "load student")
	}
	return student, nil
}

func loadClub(ctx context.Context, repo store.Repository, clubType string) (models.Club, error) {
	club, err := repo.ClubByType(ctx, clubType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Club{}, ErrNotFound("Club not found")
		}
		return models.Club{}, WrapError(err, "load club")
	}
	return club, nil
}

func ensureClub(ctx context.Context, repo store.Repository, clubType string) (models.Club, error) {
	club, err := repo.ClubByType(ctx, clubType)
	if err == nil {
		return club, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Club{}, WrapError(err, "load club")
	}
	club = newClub(clubType, "")
	if err := repo.CreateClub(ctx, club); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return loadClub(ctx, repo, clubType)
		}
		return models.Club{}, WrapError(err, "create club")
	}
	return club, nil
}

// ensureSubclub returns the index of name within club.Subclubs, creating
// the sub-club when missing.
func ensureSubclub(ctx context.Context, repo store.Repository, club *models.Club, name string) (int, error) {
	if idx := subclubIndex(*club, name); idx >= 0 {
		return idx, nil
	}
	sc := newSubclub(club.ID, name, "")
	if err := repo.CreateSubclub(ctx, sc); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return -1, ErrConflict("Sub-club was created concurrently, retry the request")
		}
		return -1, WrapError(err, "create sub-club")
	}
	club.Subclubs = append(club.Subclubs, sc)
	return len(club.Subclubs) - 1, nil
}

func subclubIndex(club models.Club, name string) int {
	for i, sc := range club.Subclubs {
		if strings.EqualFold(sc.Name, name) {
			return i
		}
	}
	return -1
}

func joinClub(ctx context.Context, repo store.Repository, club *models.Club, student *models.Student) error {
	if !club.HasMember(student.ID) {
		club.Members = append(club.Members, student.ID)
		if err := repo.UpdateClubMembers(ctx, club.ID, club.Members); err != nil {
			return WrapError(err, "update club members")
		}
	}
	if addJoinedClub(student, club.Type) {
		if err := repo.UpdateStudentMemberships(ctx, *student); err != nil {
			return WrapError(err, "update student memberships")
		}
	}
	return nil
}

func joinSubclub(ctx context.Context, repo store.Repository, club *models.Club, idx int, student *models.Student) error {
	sc := &club.Subclubs[idx]
	if !sc.HasMember(student.ID) {
		sc.Members = append(sc.Members, student.ID)
		if err := repo.UpdateSubclubMembers(ctx, sc.ID, sc.Members); err != nil {
			return WrapError(err, "update sub-club members")
		}
	}
	if addSubclubMembership(student, club.Type, sc.Name) {
		if err := repo.UpdateStudentMemberships(ctx, *student); err != nil {
			return WrapError(err, "update student memberships")
		}
	}
	return nil
}

func addJoinedClub(student *models.Student, clubType string) bool {
	if student.HasJoined(clubType) {
		return false
	}
	student.JoinedClubs = append(student.JoinedClubs, clubType)
	return true
}

func removeJoinedClub(student *models.Student, clubType string) bool {
	kept := make([]string, 0, len(student.JoinedClubs))
	for _, t := range student.JoinedClubs {
		if !strings.EqualFold(t, clubType) {
			kept = append(kept, t)
		}
	}
	changed := len(kept) != len(student.JoinedClubs)
	student.JoinedClubs = kept
	return changed
}

func addSubclubMembership(student *models.Student, clubType, name string) bool {
	idx, ok := student.Membership(clubType)
	if !ok {
		student.ClubMemberships = append(student.ClubMemberships, models.ClubMembership{ClubType: clubType, Subclubs: []string{name}})
		return true
	}
	if containsFold(student.ClubMemberships[idx].Subclubs, name) {
		return false
	}
	student.ClubMemberships[idx].Subclubs = append(student.ClubMemberships[idx].Subclubs, name)
	return true
}

// removeSubclubMembership drops name from the clubType entry and removes
// the entry once it is empty.
func removeSubclubMembership(student *models.Student, clubType, name string) bool {
	idx, ok := student.Membership(clubType)
	if !ok {
		return false
	}
	entry := student.ClubMemberships[idx]
	kept := make([]string, 0, len(entry.Subclubs))
	for _, sc := range entry.Subclubs {
		if !strings.EqualFold(sc, name) {
			kept = append(kept, sc)
		}
	}
	if len(kept) == len(entry.Subclubs) {
		return false
	}
	if len(kept) == 0 {
		student.ClubMemberships = append(student.ClubMemberships[:idx], student.ClubMemberships[idx+1:]...)
		return true
	}
	student.ClubMemberships[idx].Subclubs = kept
	return true
}

func dropClubMembership(student *models.Student, clubType string) bool {
	idx, ok := student.Membership(clubType)
	if !ok {
		return false
	}
	student.ClubMemberships = append(student.ClubMemberships[:idx], student.ClubMemberships[idx+1:]...)
	return true
}

func appendMembership(items []models.ClubMembership, clubType, name string) []models.ClubMembership {
	for i := range items {
		if items[i].ClubType == clubType {
			items[i].Subclubs = append(items[i].Subclubs, name)
			return items
		}
	}
	return append(items, models.ClubMembership{ClubType: clubType, Subclubs: []string{name}})
}

func without(items []string, value string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item != value {
			out = append(out, item)
		}
	}
	return out
}

func contains(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}

func containsFold(items []string, value string) bool {
	for _, item := range items {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

func filterKnown(ids []string, known map[string]bool) []string {
	out := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		if known[id] && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string{}, a...)
	y := append([]string{}, b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func sameMemberships(a, b []models.ClubMembership) bool {
	if len(a) != len(b) {
		return false
	}
	index := make(map[string][]string, len(a))
	for _, m := range a {
		index[m.ClubType] = m.Subclubs
	}
	for _, m := range b {
		got, ok := index[m.ClubType]
		if !ok || !sameSet(got, m.Subclubs) {
			return false
		}
	}
	return true
}
