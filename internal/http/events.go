package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"collegehub-backend/internal/services"
)

type EventRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Date        string `json:"date" validate:"required"`
	ClubType    string `json:"clubType" validate:"required"`
	Location    string `json:"location" validate:"max=200"`
}

func (req EventRequest) input() (services.EventInput, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return services.EventInput{}, err
	}
	return services.EventInput{
		Title:       req.Title,
		Description: req.Description,
		Date:        date,
		ClubType:    req.ClubType,
		Location:    req.Location,
	}, nil
}

// parseDate accepts RFC 3339 timestamps and bare YYYY-MM-DD dates.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, services.ErrValidation("Date must be YYYY-MM-DD or RFC 3339")
}

func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.Events.List(r.Context(), r.URL.Query().Get("clubType"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, events)
}

func (s *Server) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.Events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, event)
}

func (s *Server) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	student, _ := CurrentStudent(r)
	event, err := s.Events.Create(r.Context(), student, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, event)
}

func (s *Server) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	student, _ := CurrentStudent(r)
	event, err := s.Events.Update(r.Context(), student, chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, event)
}

func (s *Server) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	student, _ := CurrentStudent(r)
	if err := s.Events.Delete(r.Context(), student, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Event deleted"})
}
