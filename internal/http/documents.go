package httpapi

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"collegehub-backend/internal/services"
)

const (
	multipartMemory   = 8 << 20
	multipartOverhead = 1 << 20
)

// DocumentRequest is the JSON form of a document write, for callers that
// only send a link.
type DocumentRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Semester    *int    `json:"semester" validate:"omitempty,min=1,max=8"`
	FileLink    *string `json:"fileLink" validate:"omitempty,max=2048"`
}

func (s *Server) ListDocuments(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		docs, err := s.Documents.List(r.Context(), kind, parseInt(query.Get("semester"), 0), strings.TrimSpace(query.Get("q")))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, docs)
	}
}

func (s *Server) ListMyDocuments(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		student, _ := CurrentStudent(r)
		docs, err := s.Documents.ListMine(r.Context(), kind, student.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, docs)
	}
}

func (s *Server) GetDocument(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := s.Documents.Get(r.Context(), kind, chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, doc)
	}
}

func (s *Server) CreateDocument(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, cleanup, ok := s.readDocumentInput(w, r)
		if !ok {
			return
		}
		defer cleanup()
		student, _ := CurrentStudent(r)
		doc, err := s.Documents.Create(r.Context(), kind, student, in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, doc)
	}
}

func (s *Server) UpdateDocument(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, cleanup, ok := s.readDocumentInput(w, r)
		if !ok {
			return
		}
		defer cleanup()
		student, _ := CurrentStudent(r)
		doc, err := s.Documents.Update(r.Context(), kind, student, chi.URLParam(r, "id"), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, doc)
	}
}

func (s *Server) DeleteDocument(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		student, _ := CurrentStudent(r)
		if err := s.Documents.Delete(r.Context(), kind, student, chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, MessageResponse{Message: "Document deleted"})
	}
}

// readDocumentInput accepts multipart forms (with an optional "file"
// part) and plain JSON. Only fields present in the request are set. The
// returned cleanup releases the uploaded part and any temp files.
func (s *Server) readDocumentInput(w http.ResponseWriter, r *http.Request) (services.DocumentInput, func(), bool) {
	noop := func() {}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var req DocumentRequest
		if !decodeJSON(w, r, &req) {
			return services.DocumentInput{}, noop, false
		}
		return services.DocumentInput{
			Title:       req.Title,
			Description: req.Description,
			Semester:    req.Semester,
			FileLink:    req.FileLink,
		}, noop, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.Config.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "File exceeds the upload size limit")
			return services.DocumentInput{}, noop, false
		}
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return services.DocumentInput{}, noop, false
	}
	form := r.MultipartForm
	cleanup := func() { _ = form.RemoveAll() }

	in := services.DocumentInput{
		Title:       formValue(form, "title"),
		Description: formValue(form, "description"),
		FileLink:    formValue(form, "fileLink"),
	}
	if raw := formValue(form, "semester"); raw != nil {
		semester, err := strconv.Atoi(strings.TrimSpace(*raw))
		if err != nil {
			cleanup()
			WriteError(w, http.StatusBadRequest, "Semester must be a number")
			return services.DocumentInput{}, noop, false
		}
		in.Semester = &semester
	}
	if headers := form.File["file"]; len(headers) > 0 {
		file, err := headers[0].Open()
		if err != nil {
			cleanup()
			WriteError(w, http.StatusBadRequest, "Invalid file")
			return services.DocumentInput{}, noop, false
		}
		in.File = &services.UploadedFile{Name: headers[0].Filename, Body: file}
		cleanup = func() {
			_ = file.Close()
			_ = form.RemoveAll()
		}
	}
	return in, cleanup, true
}

func formValue(form *multipart.Form, key string) *string {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	value := values[0]
	return &value
}
