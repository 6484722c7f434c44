package httpapi

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collegehub-backend/internal/models"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type formFile struct {
	name string
	body []byte
}

func (e *testEnv) doMultipart(t *testing.T, method, path, token string, fields map[string]string, file *formFile) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if file != nil {
		part, err := writer.CreateFormFile("file", file.name)
		require.NoError(t, err)
		_, err = part.Write(file.body)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestCurriculumUploadAndServe(t *testing.T) {
	e := newTestEnv(t, nil)
	_, teacher := e.signup(t, "T", "t@example.com", models.RoleTeacher)
	_, student := e.signup(t, "S", "s@example.com", "")

	fields := map[string]string{"title": "Data Structures", "semester": "3", "description": "Syllabus"}
	rec := e.doMultipart(t, http.MethodPost, "/api/curriculum", student, fields, &formFile{"ds.pdf", samplePDF})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.doMultipart(t, http.MethodPost, "/api/curriculum", teacher, fields, &formFile{"ds syllabus.pdf", samplePDF})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[models.Document](t, rec)
	assert.Equal(t, 3, doc.Semester)
	require.True(t, strings.HasPrefix(doc.FilePath, "/uploads/curriculum/"), doc.FilePath)

	rec = e.do(http.MethodGet, doc.FilePath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, samplePDF, rec.Body.Bytes())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = e.do(http.MethodGet, "/uploads/curriculum/", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodGet, "/api/curriculum?semester=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Document](t, rec), 1)
	rec = e.do(http.MethodGet, "/api/curriculum?semester=4", "", nil)
	assert.Empty(t, decode[[]models.Document](t, rec))
	rec = e.do(http.MethodGet, "/api/curriculum/"+doc.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.doMultipart(t, http.MethodPost, "/api/curriculum", teacher, map[string]string{"title": "Bad", "semester": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.doMultipart(t, http.MethodPost, "/api/curriculum", teacher, map[string]string{"title": "Bad", "semester": "1"}, &formFile{"tool.exe", []byte("MZ\x90\x00")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodDelete, "/api/curriculum/"+doc.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = e.do(http.MethodDelete, "/api/curriculum/"+doc.ID, teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(http.MethodGet, doc.FilePath, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLibraryOwnership(t *testing.T) {
	e := newTestEnv(t, nil)
	_, author := e.signup(t, "A", "a@example.com", "")
	_, other := e.signup(t, "O", "o@example.com", "")
	_, coordinator := e.signup(t, "C", "c@example.com", models.RoleCoordinator)

	title, semester, link := "Compiler notes", 5, "https://notes.example.com/compilers.pdf"
	rec := e.do(http.MethodPost, "/api/library", author, DocumentRequest{Title: &title, Semester: &semester, FileLink: &link})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[models.Document](t, rec)
	assert.Equal(t, models.KindLibrary, doc.Kind)

	rec = e.do(http.MethodPost, "/api/library", author, DocumentRequest{Title: &title, Semester: &semester})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "file or link is required")

	rec = e.do(http.MethodGet, "/api/library/my-uploads", author, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Document](t, rec), 1)
	rec = e.do(http.MethodGet, "/api/library/my-uploads", other, nil)
	assert.Empty(t, decode[[]models.Document](t, rec))

	rec = e.do(http.MethodGet, "/api/library?q=COMPILER", "", nil)
	assert.Len(t, decode[[]models.Document](t, rec), 1)

	rec = e.doMultipart(t, http.MethodPut, "/api/library/"+doc.ID, other, map[string]string{"title": "Mine"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.doMultipart(t, http.MethodPut, "/api/library/"+doc.ID, author, map[string]string{"title": "Compiler notes v2"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.Document](t, rec)
	assert.Equal(t, "Compiler notes v2", updated.Title)
	assert.Equal(t, 5, updated.Semester)
	assert.Equal(t, link, updated.FileLink)

	rec = e.do(http.MethodGet, "/api/curriculum/"+doc.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodDelete, "/api/library/"+doc.ID, coordinator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(http.MethodGet, "/api/library/"+doc.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
