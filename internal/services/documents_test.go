package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collegehub-backend/internal/models"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func newDocuments(t *testing.T, f fixture) (*DocumentService, string) {
	t.Helper()
	root := t.TempDir()
	return NewDocumentService(f.repo, NewUploadStore(root, 1<<20)), root
}

func diskPath(root, public string) string {
	return filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(public, UploadURLPrefix)))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Lecture Notes (1).pdf":     "Lecture-Notes-1-.pdf",
		"../../etc/passwd":          "passwd",
		`C:\Users\me\syllabus.docx`: "syllabus.docx",
		"???":                       "file",
		"ok_name-2.txt":             "ok_name-2.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestUploadStoreValidation(t *testing.T) {
	u := NewUploadStore(t.TempDir(), 64)
	tests := []struct {
		name string
		file UploadedFile
	}{
		{"bad extension", UploadedFile{Name: "run.exe", Body: bytes.NewReader(pdfBytes)}},
		{"empty", UploadedFile{Name: "a.pdf", Body: bytes.NewReader(nil)}},
		{"mismatched content", UploadedFile{Name: "a.pdf", Body: strings.NewReader("just some text")}},
		{"html disguised as text", UploadedFile{Name: "a.txt", Body: strings.NewReader("<html><body><script>x</script></body></html>")}},
		{"too large", UploadedFile{Name: "a.txt", Body: strings.NewReader(strings.Repeat("a", 65))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Save(models.KindLibrary, tt.file)
			requireKind(t, err, KindValidation)
		})
	}
	entries, _ := os.ReadDir(filepath.Join(u.Root, models.KindLibrary))
	assert.Empty(t, entries, "rejected uploads leave nothing on disk")
}

func TestUploadStoreSaveAndRemove(t *testing.T) {
	root := t.TempDir()
	u := NewUploadStore(root, 1<<20)
	public, err := u.Save(models.KindCurriculum, UploadedFile{Name: "Syllabus 2026.pdf", Body: bytes.NewReader(pdfBytes)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(public, "/uploads/curriculum/"))
	assert.True(t, strings.HasSuffix(public, "-Syllabus-2026.pdf"))

	content, err := os.ReadFile(diskPath(root, public))
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, content)

	u.Remove(public)
	_, err = os.Stat(diskPath(root, public))
	assert.True(t, os.IsNotExist(err))

	u.Remove("https://example.com/elsewhere.pdf")
}

func TestUploadStoreSameNameSameInstant(t *testing.T) {
	root := t.TempDir()
	u := NewUploadStore(root, 1<<20)
	instant := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)
	u.now = func() time.Time { return instant }

	first, err := u.Save(models.KindLibrary, UploadedFile{Name: "notes.pdf", Body: bytes.NewReader(pdfBytes)})
	require.NoError(t, err)
	second, err := u.Save(models.KindLibrary, UploadedFile{Name: "notes.pdf", Body: bytes.NewReader(pdfBytes)})
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	u.Remove(first)
	_, err = os.Stat(diskPath(root, second))
	assert.NoError(t, err, "removing one upload keeps the other")
}

func TestCreateDocumentRules(t *testing.T) {
	f := setup(t)
	docs, _ := newDocuments(t, f)
	ctx := context.Background()
	teacher := f.register(t, "T", "t@example.com", models.RoleTeacher)

	_, err := docs.Create(ctx, models.KindCurriculum, teacher, DocumentInput{Title: strPtr("Algebra"), Semester: intPtr(2)})
	requireKind(t, err, KindValidation)
	_, err = docs.Create(ctx, models.KindCurriculum, teacher, DocumentInput{Title: strPtr("Algebra"), Semester: intPtr(9), FileLink: strPtr("https://x.io/a")})
	requireKind(t, err, KindValidation)
	_, err = docs.Create(ctx, models.KindCurriculum, teacher, DocumentInput{Title: strPtr("Algebra"), Semester: intPtr(2), FileLink: strPtr("ftp://x.io/a")})
	requireKind(t, err, KindValidation)
	_, err = docs.Create(ctx, models.KindCurriculum, teacher, DocumentInput{Title: strPtr(" "), Semester: intPtr(2), FileLink: strPtr("https://x.io/a")})
	requireKind(t, err, KindValidation)
	_, err = docs.Create(ctx, "memes", teacher, DocumentInput{})
	requireKind(t, err, KindNotFound)

	doc, err := docs.Create(ctx, models.KindCurriculum, teacher, DocumentInput{
		Title:       strPtr("Algebra"),
		Description: strPtr("Course outline"),
		Semester:    intPtr(2),
		FileLink:    strPtr("https://x.io/algebra.pdf"),
	})
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, doc.AddedBy)
	assert.Equal(t, models.KindCurriculum, doc.Kind)

	_, err = docs.Get(ctx, models.KindLibrary, doc.ID)
	requireKind(t, err, KindNotFound)
}

func TestListDocumentsFilters(t *testing.T) {
	f := setup(t)
	docs, _ := newDocuments(t, f)
	ctx := context.Background()
	s := f.register(t, "S", "s@example.com", "")
	other := f.register(t, "O", "o@example.com", "")
	add := func(by models.Student, title string, sem int) {
		_, err := docs.Create(ctx, models.KindLibrary, by, DocumentInput{Title: strPtr(title), Semester: intPtr(sem), FileLink: strPtr("https://x.io/" + title)})
		require.NoError(t, err)
	}
	add(s, "Operating Systems", 3)
	add(s, "Networks", 4)
	add(other, "Operating Theatre", 4)

	all, err := docs.List(ctx, models.KindLibrary, 0, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	sem4, err := docs.List(ctx, models.KindLibrary, 4, "")
	require.NoError(t, err)
	assert.Len(t, sem4, 2)

	search, err := docs.List(ctx, models.KindLibrary, 0, "operating")
	require.NoError(t, err)
	assert.Len(t, search, 2)

	mine, err := docs.ListMine(ctx, models.KindLibrary, s.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	curriculum, err := docs.List(ctx, models.KindCurriculum, 0, "")
	require.NoError(t, err)
	assert.Empty(t, curriculum)

	_, err = docs.List(ctx, models.KindLibrary, 12, "")
	requireKind(t, err, KindValidation)
}

func TestDocumentPermissions(t *testing.T) {
	f := setup(t)
	docs, _ := newDocuments(t, f)
	ctx := context.Background()
	author := f.register(t, "Author", "a@example.com", "")
	teacher := f.register(t, "Teacher", "t@example.com", models.RoleTeacher)
	coordinator := f.register(t, "Coord", "c@example.com", models.RoleCoordinator)
	stranger := f.register(t, "Stranger", "s@example.com", "")

	lib, err := docs.Create(ctx, models.KindLibrary, author, DocumentInput{Title: strPtr("Notes"), Semester: intPtr(1), FileLink: strPtr("https://x.io/n")})
	require.NoError(t, err)
	cur, err := docs.Create(ctx, models.KindCurriculum, coordinator, DocumentInput{Title: strPtr("Plan"), Semester: intPtr(1), FileLink: strPtr("https://x.io/p")})
	require.NoError(t, err)

	_, err = docs.Update(ctx, models.KindLibrary, teacher, lib.ID, DocumentInput{Title: strPtr("Mine now")})
	requireKind(t, err, KindForbidden)
	_, err = docs.Update(ctx, models.KindLibrary, stranger, lib.ID, DocumentInput{Title: strPtr("Mine now")})
	requireKind(t, err, KindForbidden)

	updated, err := docs.Update(ctx, models.KindCurriculum, teacher, cur.ID, DocumentInput{Title: strPtr("Plan v2")})
	require.NoError(t, err)
	assert.Equal(t, "Plan v2", updated.Title)
	assert.Equal(t, 1, updated.Semester)

	requireKind(t, docs.Delete(ctx, models.KindCurriculum, stranger, cur.ID), KindForbidden)
	require.NoError(t, docs.Delete(ctx, models.KindLibrary, coordinator, lib.ID))
	require.NoError(t, docs.Delete(ctx, models.KindCurriculum, teacher, cur.ID))
	_, err = docs.Get(ctx, models.KindCurriculum, cur.ID)
	requireKind(t, err, KindNotFound)
}

func TestUpdateReplacesStoredFile(t *testing.T) {
	f := setup(t)
	docs, root := newDocuments(t, f)
	ctx := context.Background()
	author := f.register(t, "Author", "a@example.com", "")

	doc, err := docs.Create(ctx, models.KindLibrary, author, DocumentInput{
		Title:    strPtr("Scan"),
		Semester: intPtr(5),
		File:     &UploadedFile{Name: "first.pdf", Body: bytes.NewReader(pdfBytes)},
	})
	require.NoError(t, err)
	first := doc.FilePath
	require.FileExists(t, diskPath(root, first))

	doc, err = docs.Update(ctx, models.KindLibrary, author, doc.ID, DocumentInput{
		File: &UploadedFile{Name: "second.txt", Body: strings.NewReader("plain notes")},
	})
	require.NoError(t, err)
	assert.NotEqual(t, first, doc.FilePath)
	assert.NoFileExists(t, diskPath(root, first))
	assert.FileExists(t, diskPath(root, doc.FilePath))

	require.NoError(t, docs.Delete(ctx, models.KindLibrary, author, doc.ID))
	assert.NoFileExists(t, diskPath(root, doc.FilePath))
}
