package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type CreateSubjectRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type MarkAttendanceRequest struct {
	Status string `json:"status" validate:"required"`
	Date   string `json:"date"`
}

func (s *Server) ListSubjects(w http.ResponseWriter, r *http.Request) {
	student, _ := CurrentStudent(r)
	subjects, err := s.Attendance.ListSubjects(r.Context(), student.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, subjects)
}

func (s *Server) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req CreateSubjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	student, _ := CurrentStudent(r)
	subject, err := s.Attendance.CreateSubject(r.Context(), student.ID, req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, subject)
}

func (s *Server) DeleteSubject(w http.ResponseWriter, r *http.Request) {
	student, _ := CurrentStudent(r)
	if err := s.Attendance.DeleteSubject(r.Context(), student.ID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Subject deleted"})
}

func (s *Server) ListAttendance(w http.ResponseWriter, r *http.Request) {
	student, _ := CurrentStudent(r)
	records, err := s.Attendance.ListRecords(r.Context(), student.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, records)
}

// MarkAttendance records today's status unless a date is given. A second
// mark on the same day overwrites the first.
func (s *Server) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	var req MarkAttendanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var date *time.Time
	if req.Date != "" {
		parsed, err := parseDate(req.Date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		date = &parsed
	}
	student, _ := CurrentStudent(r)
	record, err := s.Attendance.Mark(r.Context(), student.ID, chi.URLParam(r, "id"), req.Status, date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

func (s *Server) SubjectPercentage(w http.ResponseWriter, r *http.Request) {
	student, _ := CurrentStudent(r)
	percentage, err := s.Attendance.Percentage(r.Context(), student.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, percentage)
}

func (s *Server) OverallPercentage(w http.ResponseWriter, r *http.Request) {
	student, _ := CurrentStudent(r)
	overall, err := s.Attendance.Overall(r.Context(), student.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, overall)
}

func (s *Server) DeleteAttendance(w http.ResponseWriter, r *http.Request) {
	student, _ := CurrentStudent(r)
	if err := s.Attendance.DeleteRecord(r.Context(), student.ID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Attendance record deleted"})
}
