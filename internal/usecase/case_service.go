package usecase

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bcromer77/prooftimelines/internal/domain"
)

const (
	maxCaseTitleLen  = 120
	maxEventTitleLen = 200
	maxNoteLen       = 5000
	maxSourceRefLen  = 500
	eventListLimit   = 2000
)

type CaseService struct {
	Cases  CaseRepository
	Events EventRepository
	Clock  func() time.Time
}

type CreateEventInput struct {
	CaseID     string
	UserID     string
	Date       string
	Title      string
	Note       string
	SourceType string
	SourceRef  string
}

func NewCaseService(cases CaseRepository, events EventRepository) *CaseService {
	return &CaseService{
		Cases:  cases,
		Events: events,
		Clock:  time.Now,
	}
}

func (s *CaseService) CreateCase(ctx context.Context, userID, title string) (domain.Case, error) {
	if userID == "" {
		return domain.Case{}, domain.ErrUnauthorized
	}
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n == 0 || n > maxCaseTitleLen {
		return domain.Case{}, domain.InvalidInput("INVALID_TITLE", "title must be 1-120 characters")
	}
	now := now(s.Clock)
	return s.Cases.Create(ctx, domain.Case{
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *CaseService) ListCases(ctx context.Context, userID string) ([]domain.Case, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.Cases.ListByUser(ctx, userID, 0)
}

func (s *CaseService) GetCase(ctx context.Context, userID, caseID string) (domain.Case, error) {
	if userID == "" {
		return domain.Case{}, domain.ErrUnauthorized
	}
	return s.Cases.GetOwned(ctx, caseID, userID)
}

func (s *CaseService) CreateEvent(ctx context.Context, input CreateEventInput) (domain.Event, error) {
	if input.UserID == "" {
		return domain.Event{}, domain.ErrUnauthorized
	}
	if _, err := s.Cases.GetOwned(ctx, input.CaseID, input.UserID); err != nil {
		return domain.Event{}, err
	}

	date, err := ParseEventDate(input.Date)
	if err != nil {
		return domain.Event{}, domain.InvalidInput("INVALID_DATE", "date must be RFC3339 or YYYY-MM-DD")
	}
	title := strings.TrimSpace(input.Title)
	if n := utf8.RuneCountInString(title); n == 0 || n > maxEventTitleLen {
		return domain.Event{}, domain.InvalidInput("INVALID_TITLE", "title must be 1-200 characters")
	}
	note := strings.TrimSpace(input.Note)
	if utf8.RuneCountInString(note) > maxNoteLen {
		return domain.Event{}, domain.InvalidInput("INVALID_NOTE", "note must be at most 5000 characters")
	}
	sourceType := domain.SourceNote
	if raw := strings.TrimSpace(input.SourceType); raw != "" {
		sourceType = domain.SourceType(strings.ToUpper(raw))
		if !sourceType.Valid() {
			return domain.Event{}, domain.InvalidInput("INVALID_SOURCE_TYPE", "source_type must be one of NOTE, EMAIL, MESSAGE, DOCUMENT, PHOTO, OTHER")
		}
	}
	sourceRef := strings.TrimSpace(input.SourceRef)
	if utf8.RuneCountInString(sourceRef) > maxSourceRefLen {
		return domain.Event{}, domain.InvalidInput("INVALID_SOURCE_REF", "source_ref must be at most 500 characters")
	}

	now := now(s.Clock)
	return s.Events.Create(ctx, domain.Event{
		CaseID:     input.CaseID,
		UserID:     input.UserID,
		Date:       date,
		Title:      title,
		Note:       note,
		SourceType: sourceType,
		SourceRef:  sourceRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (s *CaseService) ListEvents(ctx context.Context, userID, caseID string) ([]domain.Event, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	if _, err := s.Cases.GetOwned(ctx, caseID, userID); err != nil {
		return nil, err
	}
	return s.Events.ListByCase(ctx, caseID, userID, domain.EventFilter{Limit: eventListLimit})
}

// ParseEventDate accepts RFC3339 timestamps and bare YYYY-MM-DD dates, the
// latter as midnight UTC.
func ParseEventDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func now(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock().UTC()
}
