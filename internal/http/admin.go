package httpapi

import (
	"net/http"
)

type AddStudentRequest struct {
	Email    string `json:"email" validate:"required,email"`
	ClubType string `json:"clubType" validate:"required"`
	Subclub  string `json:"subclub"`
}

// AddStudent enrolls an existing identity, creating the club or sub-club
// on first reference. Repeating the call is a no-op.
func (s *Server) AddStudent(w http.ResponseWriter, r *http.Request) {
	var req AddStudentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.Clubs.AddStudent(r.Context(), req.Email, req.ClubType, req.Subclub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.Students.List(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, students)
}

func (s *Server) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.Clubs.Reconcile(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}
