package models

import (
	"strings"
	"time"
)

const (
	RoleStudent     = "student"
	RoleTeacher     = "teacher"
	RoleCoordinator = "coordinator"
)

const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)

const (
	KindCurriculum = "curriculum"
	KindLibrary    = "library"
)

// Student is the only identity record; Role decides what it may do.
type Student struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Email           string           `json:"email"`
	PasswordHash    string           `json:"-"`
	Role            string           `json:"role"`
	JoinedClubs     []string         `json:"joinedClubs"`
	ClubMemberships []ClubMembership `json:"clubMemberships"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// ClubMembership is the identity-side summary of sub-club membership.
type ClubMembership struct {
	ClubType string   `json:"clubType"`
	Subclubs []string `json:"subclubs"`
}

func (s Student) HasJoined(clubType string) bool {
	return containsFold(s.JoinedClubs, clubType)
}

func (s Student) Membership(clubType string) (int, bool) {
	for i, m := range s.ClubMemberships {
		if strings.EqualFold(m.ClubType, clubType) {
			return i, true
		}
	}
	return -1, false
}

type Club struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Members     []string  `json:"members"`
	Subclubs    []Subclub `json:"subclubs"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (c Club) HasMember(studentID string) bool {
	return contains(c.Members, studentID)
}

// Subclub looks a sub-club up by case-insensitive name.
func (c Club) Subclub(name string) (Subclub, bool) {
	name = strings.TrimSpace(name)
	for _, sc := range c.Subclubs {
		if strings.EqualFold(sc.Name, name) {
			return sc, true
		}
	}
	return Subclub{}, false
}

type Subclub struct {
	ID          string    `json:"id"`
	ClubID      string    `json:"clubId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s Subclub) HasMember(studentID string) bool {
	return contains(s.Members, studentID)
}

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	ClubType    string    `json:"clubType"`
	Location    string    `json:"location"`
	OrganizerID string    `json:"organizerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StudentID string    `json:"studentId"`
	CreatedAt time.Time `json:"createdAt"`
}

// AttendanceRecord holds one mark per (subject, student, day); Date is
// always truncated to midnight UTC.
type AttendanceRecord struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subjectId"`
	StudentID string    `json:"studentId"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document backs both curriculum and library items, told apart by Kind.
type Document struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Semester    int       `json:"semester"`
	FileLink    string    `json:"fileLink,omitempty"`
	FilePath    string    `json:"filePath,omitempty"`
	AddedBy     string    `json:"addedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
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
