package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"collegehub-backend/internal/models"
	"collegehub-backend/internal/store"
)

const (
	minSemester = 1
	maxSemester = 8
)

// DocumentInput is a create request. Exactly the fields present in the
// multipart form are set on an update; nil means unchanged.
type DocumentInput struct {
	Title       *string
	Description *string
	Semester    *int
	FileLink    *string
	File        *UploadedFile
}

type DocumentService struct {
	repo    store.Repository
	uploads *UploadStore
}

func NewDocumentService(repo store.Repository, uploads *UploadStore) *DocumentService {
	return &DocumentService{repo: repo, uploads: uploads}
}

func validKind(kind string) bool {
	return kind == models.KindCurriculum || kind == models.KindLibrary
}

func (s *DocumentService) List(ctx context.Context, kind string, semester int, search string) ([]models.Document, error) {
	if !validKind(kind) {
		return nil, ErrNotFound("Unknown document kind")
	}
	if semester != 0 && (semester < minSemester || semester > maxSemester) {
		return nil, ErrValidation("Semester must be between 1 and 8")
	}
	return s.repo.ListDocuments(ctx, store.DocumentFilter{Kind: kind, Semester: semester, Search: search})
}

func (s *DocumentService) ListMine(ctx context.Context, kind, studentID string) ([]models.Document, error) {
	return s.repo.ListDocuments(ctx, store.DocumentFilter{Kind: kind, AddedBy: studentID})
}

func (s *DocumentService) Get(ctx context.Context, kind, id string) (models.Document, error) {
	doc, err := s.repo.DocumentByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Document{}, ErrNotFound("Document not found")
		}
		return models.Document{}, WrapError(err, "load document")
	}
	return doc, nil
}

func (s *DocumentService) Create(ctx context.Context, kind string, caller models.Student, in DocumentInput) (models.Document, error) {
	if !validKind(kind) {
		return models.Document{}, ErrNotFound("Unknown document kind")
	}
	now := time.Now().UTC()
	doc := models.Document{
		ID:        uuid.NewString(),
		Kind:      kind,
		AddedBy:   caller.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Title == nil || in.Semester == nil {
		return models.Document{}, ErrValidation("Title and semester are required")
	}
	if err := applyDocumentFields(&doc, in); err != nil {
		return models.Document{}, err
	}
	if in.File == nil && doc.FileLink == "" {
		return models.Document{}, ErrValidation("Either a file or a file link is required")
	}
	if in.File != nil {
		path, err := s.uploads.Save(kind, *in.File)
		if err != nil {
			return models.Document{}, err
		}
		doc.FilePath = path
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		s.uploads.Remove(doc.FilePath)
		return models.Document{}, WrapError(err, "create document")
	}
	return doc, nil
}

// Update applies the set fields of in. A new file replaces the stored one,
// which is removed from disk once the record is saved.
func (s *DocumentService) Update(ctx context.Context, kind string, caller models.Student, id string, in DocumentInput) (models.Document, error) {
	doc, err := s.Get(ctx, kind, id)
	if err != nil {
		return models.Document{}, err
	}
	if !canManageDocument(caller, doc) {
		return models.Document{}, ErrForbidden("You are not allowed to change this document")
	}
	if err := applyDocumentFields(&doc, in); err != nil {
		return models.Document{}, err
	}
	previous := ""
	if in.File != nil {
		path, err := s.uploads.Save(kind, *in.File)
		if err != nil {
			return models.Document{}, err
		}
		previous = doc.FilePath
		doc.FilePath = path
	}
	if doc.FilePath == "" && doc.FileLink == "" {
		return models.Document{}, ErrValidation("Either a file or a file link is required")
	}
	doc.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateDocument(ctx, doc); err != nil {
		if in.File != nil {
			s.uploads.Remove(doc.FilePath)
		}
		if errors.Is(err, store.ErrNotFound) {
			return models.Document{}, ErrNotFound("Document not found")
		}
		return models.Document{}, WrapError(err, "update document")
	}
	if previous != "" {
		s.uploads.Remove(previous)
	}
	return doc, nil
}

func (s *DocumentService) Delete(ctx context.Context, kind string, caller models.Student, id string) error {
	doc, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if !canManageDocument(caller, doc) {
		return ErrForbidden("You are not allowed to delete this document")
	}
	if err := s.repo.DeleteDocument(ctx, kind, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound("Document not found")
		}
		return WrapError(err, "delete document")
	}
	s.uploads.Remove(doc.FilePath)
	return nil
}

// canManageDocument: the creator and coordinators always; teachers only
// for curriculum items.
func canManageDocument(caller models.Student, doc models.Document) bool {
	if caller.ID == doc.AddedBy || caller.Role == models.RoleCoordinator {
		return true
	}
	return doc.Kind == models.KindCurriculum && caller.Role == models.RoleTeacher
}

func applyDocumentFields(doc *models.Document, in DocumentInput) error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return ErrValidation("Title is required")
		}
		doc.Title = title
	}
	if in.Description != nil {
		doc.Description = strings.TrimSpace(*in.Description)
	}
	if in.Semester != nil {
		if *in.Semester < minSemester || *in.Semester > maxSemester {
			return ErrValidation("Semester must be between 1 and 8")
		}
		doc.Semester = *in.Semester
	}
	if in.FileLink != nil {
		link := strings.TrimSpace(*in.FileLink)
		if link != "" {
			parsed, err := url.Parse(link)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
				return ErrValidation("File link must be an http or https URL")
			}
		}
		doc.FileLink = link
	}
	return nil
}
