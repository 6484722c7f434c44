package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"collegehub-backend/internal/models"
	"collegehub-backend/internal/store"
)

type EventInput struct {
	Title       string
	Description string
	Date        time.Time
	ClubType    string
	Location    string
}

type EventService struct {
	repo store.Repository
}

func NewEventService(repo store.Repository) *EventService {
	return &EventService{repo: repo}
}

// List returns events by date ascending, optionally narrowed to one club.
func (s *EventService) List(ctx context.Context, rawClubType string) ([]models.Event, error) {
	clubType := ""
	if strings.TrimSpace(rawClubType) != "" {
		normalized, err := NormalizeClubType(rawClubType)
		if err != nil {
			return nil, err
		}
		clubType = normalized
	}
	return s.repo.ListEvents(ctx, clubType)
}

func (s *EventService) Get(ctx context.Context, id string) (models.Event, error) {
	event, err := s.repo.EventByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Event{}, ErrNotFound("Event not found")
		}
		return models.Event{}, WrapError(err, "load event")
	}
	return event, nil
}

func (s *EventService) Create(ctx context.Context, organizer models.Student, in EventInput) (models.Event, error) {
	clubType, err := validateEvent(in)
	if err != nil {
		return models.Event{}, err
	}
	club, err := loadClub(ctx, s.repo, clubType)
	if err != nil {
		return models.Event{}, err
	}
	// Staff cannot join clubs, so only students need membership.
	if organizer.Role == models.RoleStudent && !club.HasMember(organizer.ID) {
		return models.Event{}, ErrForbidden("Only club members can create events for this club")
	}
	now := time.Now().UTC()
	event := models.Event{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Date:        in.Date.UTC(),
		ClubType:    clubType,
		Location:    strings.TrimSpace(in.Location),
		OrganizerID: organizer.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return models.Event{}, WrapError(err, "create event")
	}
	return event, nil
}

func (s *EventService) Update(ctx context.Context, caller models.Student, id string, in EventInput) (models.Event, error) {
	clubType, err := validateEvent(in)
	if err != nil {
		return models.Event{}, err
	}
	event, err := s.Get(ctx, id)
	if err != nil {
		return models.Event{}, err
	}
	if !canManageEvent(caller, event) {
		return models.Event{}, ErrForbidden("Only the organizer or a coordinator can change this event")
	}
	if clubType != event.ClubType {
		if _, err := loadClub(ctx, s.repo, clubType); err != nil {
			return models.Event{}, err
		}
	}
	event.Title = strings.TrimSpace(in.Title)
	event.Description = strings.TrimSpace(in.Description)
	event.Date = in.Date.UTC()
	event.ClubType = clubType
	event.Location = strings.TrimSpace(in.Location)
	event.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateEvent(ctx, event); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Event{}, ErrNotFound("Event not found")
		}
		return models.Event{}, WrapError(err, "update event")
	}
	return event, nil
}

func (s *EventService) Delete(ctx context.Context, caller models.Student, id string) error {
	event, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canManageEvent(caller, event) {
		return ErrForbidden("Only the organizer or a coordinator can delete this event")
	}
	if err := s.repo.DeleteEvent(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound("Event not found")
		}
		return WrapError(err, "delete event")
	}
	return nil
}

func canManageEvent(caller models.Student, event models.Event) bool {
	return caller.Role == models.RoleCoordinator || caller.ID == event.OrganizerID
}

func validateEvent(in EventInput) (string, error) {
	if strings.TrimSpace(in.Title) == "" {
		return "", ErrValidation("Title is required")
	}
	if in.Date.IsZero() {
		return "", ErrValidation("Date is required")
	}
	return NormalizeClubType(in.ClubType)
}
