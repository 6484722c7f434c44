package httpapi

import (
	"net/http"
	"time"

	"collegehub-backend/internal/models"
	"collegehub-backend/internal/services"
)

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role"`
}

type RegisterResponse struct {
	Message string         `json:"message"`
	User    models.Student `json:"user"`
}

type TokenResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      models.Student `json:"user"`
}

type PermissionsResponse struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	student, err := s.Students.Register(r.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, RegisterResponse{Message: "User registered successfully", User: student})
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.Students.Login(r.Context(), services.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, TokenResponse{Token: result.Token, ExpiresAt: result.ExpiresAt, User: result.Student})
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	student, _ := CurrentStudent(r)
	WriteJSON(w, http.StatusOK, student)
}

func (s *Server) Permissions(w http.ResponseWriter, r *http.Request) {
	student, _ := CurrentStudent(r)
	WriteJSON(w, http.StatusOK, PermissionsResponse{Role: student.Role, Permissions: services.Capabilities(student.Role)})
}
