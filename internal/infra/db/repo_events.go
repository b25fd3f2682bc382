package db

import (
	"context"
	"errors"

	"github.com/bcromer77/prooftimelines/internal/domain"

	"gorm.io/gorm"
)

const maxEventListLimit = 5000

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts the event and bumps the owning case's updated_at in one
// transaction.
func (r *EventRepository) Create(ctx context.Context, event domain.Event) (domain.Event, error) {
	if r.db == nil {
		return domain.Event{}, errDBUnavailable
	}
	if event.ID == "" {
		event.ID = newID()
	}
	model := eventModelFromDomain(event)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return touchCase(ctx, tx, event.CaseID, event.UserID, model.CreatedAt)
	})
	if err != nil {
		return domain.Event{}, err
	}
	return eventFromModel(model), nil
}

func (r *EventRepository) GetOwned(ctx context.Context, eventID, caseID, userID string) (domain.Event, error) {
	if r.db == nil {
		return domain.Event{}, errDBUnavailable
	}
	var model EventModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND case_id = ? AND user_id = ?", eventID, caseID, userID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Event{}, domain.ErrEventNotFound
	}
	if err != nil {
		return domain.Event{}, err
	}
	return eventFromModel(model), nil
}

// ListByCase returns events in timeline order: date, then created_at, then id.
// A positive limit is capped at maxEventListLimit; no limit lists everything.
func (r *EventRepository) ListByCase(ctx context.Context, caseID, userID string, filter domain.EventFilter) ([]domain.Event, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	q := r.db.WithContext(ctx).Where("case_id = ? AND user_id = ?", caseID, userID)
	if limit := filter.Limit; limit > 0 {
		q = q.Limit(min(limit, maxEventListLimit))
	}
	if filter.From != nil {
		q = q.Where("event_date >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("event_date <= ?", filter.To.UTC())
	}
	var models []EventModel
	if err := q.
		Order("event_date ASC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(models))
	for _, model := range models {
		out = append(out, eventFromModel(model))
	}
	return out, nil
}

func eventModelFromDomain(event domain.Event) EventModel {
	return EventModel{
		ID:         event.ID,
		CaseID:     event.CaseID,
		UserID:     event.UserID,
		Date:       event.Date.UTC(),
		Title:      event.Title,
		Note:       stringPtrIfNotEmpty(event.Note),
		SourceType: string(event.SourceType),
		SourceRef:  stringPtrIfNotEmpty(event.SourceRef),
		CreatedAt:  event.CreatedAt.UTC(),
		UpdatedAt:  event.UpdatedAt.UTC(),
	}
}

func eventFromModel(model EventModel) domain.Event {
	return domain.Event{
		ID:         model.ID,
		CaseID:     model.CaseID,
		UserID:     model.UserID,
		Date:       model.Date.UTC(),
		Title:      model.Title,
		Note:       stringValue(model.Note),
		SourceType: domain.SourceType(model.SourceType),
		SourceRef:  stringValue(model.SourceRef),
		CreatedAt:  model.CreatedAt.UTC(),
		UpdatedAt:  model.UpdatedAt.UTC(),
	}
}
