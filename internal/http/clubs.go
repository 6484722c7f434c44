package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type CreateClubRequest struct {
	Type        string `json:"type" validate:"required"`
	Description string `json:"description" validate:"max=500"`
}

type CreateSubclubRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"max=500"`
}

func (s *Server) ListClubs(w http.ResponseWriter, r *http.Request) {
	clubs, err := s.Clubs.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, clubs)
}

func (s *Server) CreateClub(w http.ResponseWriter, r *http.Request) {
	var req CreateClubRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	club, err := s.Clubs.Create(r.Context(), req.Type, req.Description)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, club)
}

func (s *Server) GetClub(w http.ResponseWriter, r *http.Request) {
	club, err := s.Clubs.Get(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, club)
}

func (s *Server) DeleteClub(w http.ResponseWriter, r *http.Request) {
	if err := s.Clubs.DeleteClub(r.Context(), chi.URLParam(r, "type")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Club deleted"})
}

func (s *Server) JoinClub(w http.ResponseWriter, r *http.Request) {
	student, _ := CurrentStudent(r)
	result, err := s.Clubs.Join(r.Context(), student.ID, chi.URLParam(r, "type"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) LeaveClub(w http.ResponseWriter, r *http.Request) {
	student, _ := CurrentStudent(r)
	result, err := s.Clubs.Leave(r.Context(), student.ID, chi.URLParam(r, "type"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) ListSubclubs(w http.ResponseWriter, r *http.Request) {
	subclubs, err := s.Clubs.ListSubclubs(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, subclubs)
}

func (s *Server) CreateSubclub(w http.ResponseWriter, r *http.Request) {
	var req CreateSubclubRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	subclub, err := s.Clubs.CreateSubclub(r.Context(), chi.URLParam(r, "type"), req.Name, req.Description)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, subclub)
}

func (s *Server) GetSubclub(w http.ResponseWriter, r *http.Request) {
	subclub, err := s.Clubs.GetSubclub(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, subclub)
}

func (s *Server) JoinSubclub(w http.ResponseWriter, r *http.Request) {
	student, _ := CurrentStudent(r)
	result, err := s.Clubs.JoinSubclub(r.Context(), student.ID, chi.URLParam(r, "type"), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) DeleteSubclub(w http.ResponseWriter, r *http.Request) {
	if err := s.Clubs.DeleteSubclub(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Sub-club deleted"})
}

func (s *Server) RemoveSubclubMember(w http.ResponseWriter, r *http.Request) {
	result, err := s.Clubs.RemoveSubclubMember(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "name"), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
