package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bcromer77/prooftimelines/internal/domain"
	"github.com/bcromer77/prooftimelines/internal/ledger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxCommitAttempts bounds retries when two writers race for the same
// sequence number of a case.
const maxCommitAttempts = 3

type EvidenceRepository struct {
	db *gorm.DB
}

func NewEvidenceRepository(db *gorm.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

func (r *EvidenceRepository) FindByDigest(ctx context.Context, caseID, userID, digest string) (domain.EvidenceItem, bool, error) {
	if r.db == nil {
		return domain.EvidenceItem{}, false, errDBUnavailable
	}
	var model EvidenceItemModel
	err := r.db.WithContext(ctx).
		Where("case_id = ? AND user_id = ? AND sha256 = ?", caseID, userID, digest).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.EvidenceItem{}, false, nil
	}
	if err != nil {
		return domain.EvidenceItem{}, false, err
	}
	return evidenceFromModel(model), true, nil
}

func (r *EvidenceRepository) GetOwned(ctx context.Context, evidenceID, caseID, userID string) (domain.EvidenceItem, error) {
	if r.db == nil {
		return domain.EvidenceItem{}, errDBUnavailable
	}
	var model EvidenceItemModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND case_id = ? AND user_id = ?", evidenceID, caseID, userID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.EvidenceItem{}, domain.ErrEvidenceNotFound
	}
	if err != nil {
		return domain.EvidenceItem{}, err
	}
	return evidenceFromModel(model), nil
}

// ListByCase returns evidence in insertion order. Callers that need ledger
// order sort by sequence number themselves.
func (r *EvidenceRepository) ListByCase(ctx context.Context, caseID, userID string) ([]domain.EvidenceItem, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []EvidenceItemModel
	if err := r.db.WithContext(ctx).
		Where("case_id = ? AND user_id = ?", caseID, userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.EvidenceItem, 0, len(models))
	for _, model := range models {
		out = append(out, evidenceFromModel(model))
	}
	return out, nil
}

// Commit atomically inserts the evidence row, appends its ledger entry at
// the case tail and touches the case. Nothing is written when any step fails.
// A sequence collision is retried against the new tail; a digest collision
// means a concurrent upload of the same bytes won and is reported as a
// duplicate.
func (r *EvidenceRepository) Commit(ctx context.Context, item domain.EvidenceItem) (domain.EvidenceItem, domain.LedgerEntry, error) {
	if r.db == nil {
		return domain.EvidenceItem{}, domain.LedgerEntry{}, errDBUnavailable
	}
	if item.CaseID == "" || item.UserID == "" {
		return domain.EvidenceItem{}, domain.LedgerEntry{}, errors.New("case_id and user_id are required")
	}
	if !ledger.IsDigest(item.SHA256) {
		return domain.EvidenceItem{}, domain.LedgerEntry{}, fmt.Errorf("invalid sha256 %q", item.SHA256)
	}
	if item.ID == "" {
		item.ID = newID()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.CreatedAt = item.CreatedAt.UTC()
	if item.CapturedAt.IsZero() {
		item.CapturedAt = item.CreatedAt
	}
	item.CapturedAt = ledger.CaptureTime(item.CapturedAt)

	var lastErr error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		entry, err := r.commitOnce(ctx, item)
		if err == nil {
			return item, entry, nil
		}
		if !isUniqueViolation(err) {
			return domain.EvidenceItem{}, domain.LedgerEntry{}, err
		}
		existing, found, findErr := r.FindByDigest(ctx, item.CaseID, item.UserID, item.SHA256)
		if findErr != nil {
			return domain.EvidenceItem{}, domain.LedgerEntry{}, findErr
		}
		if found {
			return domain.EvidenceItem{}, domain.LedgerEntry{}, &domain.DuplicateEvidenceError{EvidenceID: existing.ID}
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return domain.EvidenceItem{}, domain.LedgerEntry{}, fmt.Errorf("ledger append failed after %d attempts: %w", maxCommitAttempts, lastErr)
}

func (r *EvidenceRepository) commitOnce(ctx context.Context, item domain.EvidenceItem) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockCase(ctx, tx, item.CaseID, item.UserID); err != nil {
			return err
		}
		seq, prevHash, err := ledgerTail(ctx, tx, item.CaseID)
		if err != nil {
			return err
		}
		capturedAt := ledger.FormatCapturedAt(item.CapturedAt)
		entry = domain.LedgerEntry{
			ID:             newID(),
			CaseID:         item.CaseID,
			UserID:         item.UserID,
			SequenceNumber: seq + 1,
			PrevHash:       prevHash,
			Hash:           ledger.NextHash(prevHash, item.SHA256, capturedAt, item.UserID, item.CaseID),
			EvidenceID:     item.ID,
			EvidenceSHA256: item.SHA256,
			CapturedAt:     capturedAt,
			CreatedAt:      item.CreatedAt,
		}

		evidence := evidenceModelFromDomain(item)
		if err := tx.Create(&evidence).Error; err != nil {
			return err
		}
		link := ledgerModelFromDomain(entry)
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
		return touchCase(ctx, tx, item.CaseID, item.UserID, item.CreatedAt)
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

// lockCase takes the case row lock that serializes appends per case on
// postgres and doubles as the ownership check inside the transaction.
func lockCase(ctx context.Context, tx *gorm.DB, caseID, userID string) error {
	q := tx.WithContext(ctx)
	if supportsRowLocks(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model CaseModel
	err := q.Where("id = ? AND user_id = ?", caseID, userID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrCaseNotFound
	}
	return err
}

func ledgerTail(ctx context.Context, tx *gorm.DB, caseID string) (int64, string, error) {
	var tail LedgerEntryModel
	err := tx.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("sequence_number DESC").
		Take(&tail).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ledger.Genesis, nil
	}
	if err != nil {
		return 0, "", err
	}
	if tail.Hash == "" {
		return 0, "", fmt.Errorf("missing hash at sequence %d for case %s", tail.SequenceNumber, caseID)
	}
	return tail.SequenceNumber, tail.Hash, nil
}

func evidenceModelFromDomain(item domain.EvidenceItem) EvidenceItemModel {
	return EvidenceItemModel{
		ID:                item.ID,
		CaseID:            item.CaseID,
		UserID:            item.UserID,
		EventID:           stringPtrIfNotEmpty(item.EventID),
		Filename:          item.Filename,
		MimeType:          item.MimeType,
		ByteLength:        item.ByteLength,
		SHA256:            item.SHA256,
		CapturedAt:        item.CapturedAt.UTC(),
		StorageRef:        item.StorageRef,
		IngestionStatus:   item.IngestionStatus,
		ExtractionVersion: item.ExtractionVersion,
		CreatedAt:         item.CreatedAt.UTC(),
	}
}

func evidenceFromModel(model EvidenceItemModel) domain.EvidenceItem {
	return domain.EvidenceItem{
		ID:                model.ID,
		CaseID:            model.CaseID,
		UserID:            model.UserID,
		EventID:           stringValue(model.EventID),
		Filename:          model.Filename,
		MimeType:          model.MimeType,
		ByteLength:        model.ByteLength,
		SHA256:            model.SHA256,
		CapturedAt:        model.CapturedAt.UTC(),
		StorageRef:        model.StorageRef,
		IngestionStatus:   model.IngestionStatus,
		ExtractionVersion: model.ExtractionVersion,
		CreatedAt:         model.CreatedAt.UTC(),
	}
}
