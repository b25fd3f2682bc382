package db

import (
	"context"
	"errors"
	"time"

	"github.com/bcromer77/prooftimelines/internal/domain"

	"gorm.io/gorm"
)

const defaultCaseListLimit = 500

type CaseRepository struct {
	db *gorm.DB
}

func NewCaseRepository(db *gorm.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

func (r *CaseRepository) Create(ctx context.Context, c domain.Case) (domain.Case, error) {
	if r.db == nil {
		return domain.Case{}, errDBUnavailable
	}
	if c.ID == "" {
		c.ID = newID()
	}
	model := caseModelFromDomain(c)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Case{}, err
	}
	return caseFromModel(model), nil
}

// GetOwned never distinguishes a missing case from one owned by someone else.
func (r *CaseRepository) GetOwned(ctx context.Context, caseID, userID string) (domain.Case, error) {
	if r.db == nil {
		return domain.Case{}, errDBUnavailable
	}
	var model CaseModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", caseID, userID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Case{}, domain.ErrCaseNotFound
	}
	if err != nil {
		return domain.Case{}, err
	}
	return caseFromModel(model), nil
}

func (r *CaseRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Case, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if limit <= 0 {
		limit = defaultCaseListLimit
	}
	var models []CaseModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Order("id ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Case, 0, len(models))
	for _, model := range models {
		out = append(out, caseFromModel(model))
	}
	return out, nil
}

func caseModelFromDomain(c domain.Case) CaseModel {
	return CaseModel{
		ID:        c.ID,
		UserID:    c.UserID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
}

func caseFromModel(model CaseModel) domain.Case {
	return domain.Case{
		ID:        model.ID,
		UserID:    model.UserID,
		Title:     model.Title,
		CreatedAt: model.CreatedAt.UTC(),
		UpdatedAt: model.UpdatedAt.UTC(),
	}
}

func touchCase(ctx context.Context, tx *gorm.DB, caseID, userID string, at time.Time) error {
	res := tx.WithContext(ctx).
		Model(&CaseModel{}).
		Where("id = ? AND user_id = ?", caseID, userID).
		Update("updated_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCaseNotFound
	}
	return nil
}
