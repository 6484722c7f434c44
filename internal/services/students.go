package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"collegehub-backend/internal/models"
	"collegehub-backend/internal/store"
)

const minPasswordLength = 6

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

type LoginInput struct {
	Email    string
	Password string
	Role     string
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Student   models.Student
}

type StudentService struct {
	repo   store.Repository
	tokens TokenService
}

func NewStudentService(repo store.Repository, tokens TokenService) *StudentService {
	return &StudentService{repo: repo, tokens: tokens}
}

func (s *StudentService) Register(ctx context.Context, in RegisterInput) (models.Student, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" || in.Password == "" {
		return models.Student{}, ErrValidation("Name, email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.Student{}, ErrValidation("Email is invalid")
	}
	if len(in.Password) < minPasswordLength {
		return models.Student{}, ErrValidation("Password must be at least 6 characters")
	}
	role, err := NormalizeRole(in.Role)
	if err != nil {
		return models.Student{}, err
	}
	hash, err := s.tokens.HashPassword(in.Password)
	if err != nil {
		return models.Student{}, WrapError(err, "hash password")
	}
	student := models.Student{
		ID:              uuid.NewString(),
		Name:            name,
		Email:           email,
		PasswordHash:    hash,
		Role:            role,
		JoinedClubs:     []string{},
		ClubMemberships: []models.ClubMembership{},
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.repo.CreateStudent(ctx, student); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.Student{}, ErrAlreadyExists("User already exists")
		}
		return models.Student{}, WrapError(err, "create student")
	}
	return student, nil
}

// Login verifies credentials. When in.Role is set it must match the
// stored role.
func (s *StudentService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return LoginResult{}, ErrValidation("Email and password are required")
	}
	student, err := s.repo.StudentByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrUnauthorized("Invalid credentials")
		}
		return LoginResult{}, WrapError(err, "load student")
	}
	if !s.tokens.VerifyPassword(in.Password, student.PasswordHash) {
		return LoginResult{}, ErrUnauthorized("Invalid credentials")
	}
	if requested := strings.ToLower(strings.TrimSpace(in.Role)); requested != "" && requested != student.Role {
		return LoginResult{}, ErrForbidden("Role mismatch: this account is registered as " + student.Role)
	}
	token, exp, err := s.tokens.Issue(student.ID)
	if err != nil {
		return LoginResult{}, WrapError(err, "issue token")
	}
	return LoginResult{Token: token, ExpiresAt: exp, Student: student}, nil
}

// Authenticate resolves a bearer token to a stored identity.
func (s *StudentService) Authenticate(ctx context.Context, token string) (models.Student, error) {
	studentID, err := s.tokens.Parse(token)
	if err != nil {
		return models.Student{}, ErrUnauthorized("Authentication failed")
	}
	student, err := s.repo.StudentByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Student{}, ErrUnauthorized("Authentication failed")
		}
		return models.Student{}, WrapError(err, "load student")
	}
	return student, nil
}

func (s *StudentService) Get(ctx context.Context, id string) (models.Student, error) {
	student, err := s.repo.StudentByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Student{}, ErrNotFound("User not found")
	}
	return student, err
}

func (s *StudentService) List(ctx context.Context, role string) ([]models.Student, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != "" && !ValidRole(role) {
		return nil, ErrValidation("Role must be one of student, teacher, coordinator")
	}
	return s.repo.ListStudents(ctx, role)
}
