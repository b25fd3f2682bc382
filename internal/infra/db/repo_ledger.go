package db

import (
	"context"

	"github.com/bcromer77/prooftimelines/internal/domain"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// ListByCase returns the full chain for a case, genesis first.
func (r *LedgerRepository) ListByCase(ctx context.Context, caseID, userID string) ([]domain.LedgerEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("case_id = ? AND user_id = ?", caseID, userID).
		Order("sequence_number ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.LedgerEntry, 0, len(models))
	for _, model := range models {
		out = append(out, ledgerFromModel(model))
	}
	return out, nil
}

func ledgerModelFromDomain(entry domain.LedgerEntry) LedgerEntryModel {
	return LedgerEntryModel{
		ID:             entry.ID,
		CaseID:         entry.CaseID,
		UserID:         entry.UserID,
		SequenceNumber: entry.SequenceNumber,
		PrevHash:       entry.PrevHash,
		Hash:           entry.Hash,
		EvidenceID:     entry.EvidenceID,
		EvidenceSHA256: entry.EvidenceSHA256,
		CapturedAt:     entry.CapturedAt,
		CreatedAt:      entry.CreatedAt.UTC(),
	}
}

func ledgerFromModel(model LedgerEntryModel) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:             model.ID,
		CaseID:         model.CaseID,
		UserID:         model.UserID,
		SequenceNumber: model.SequenceNumber,
		PrevHash:       model.PrevHash,
		Hash:           model.Hash,
		EvidenceID:     model.EvidenceID,
		EvidenceSHA256: model.EvidenceSHA256,
		CapturedAt:     model.CapturedAt,
		CreatedAt:      model.CreatedAt.UTC(),
	}
}
