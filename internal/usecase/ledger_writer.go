package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bcromer77/prooftimelines/internal/domain"
	"github.com/bcromer77/prooftimelines/internal/ledger"
	"github.com/bcromer77/prooftimelines/internal/logging"
)

// LedgerWriter ingests evidence uploads and appends them to the case chain.
type LedgerWriter struct {
	Cases          CaseRepository
	Events         EventRepository
	Evidence       EvidenceRepository
	Blobs          domain.BlobStore
	Policy         domain.UploadPolicy
	Logger         logging.Logger
	Clock          func() time.Time
	MaxUploadBytes int64
}

type IngestInput struct {
	CaseID   string
	UserID   string
	EventID  string
	Filename string
	MimeType string
	Data     []byte
}

// CommitResult is what a successful ingest reports back: the evidence row
// and the ledger link it was committed with.
type CommitResult struct {
	Evidence domain.EvidenceItem
	Ledger   domain.LedgerEntry
}

func (w *LedgerWriter) Ingest(ctx context.Context, input IngestInput) (CommitResult, error) {
	if input.UserID == "" {
		return CommitResult{}, domain.ErrUnauthorized
	}
	if w.Cases == nil || w.Evidence == nil || w.Blobs == nil {
		return CommitResult{}, errors.New("ledger writer is not configured")
	}
	log := w.logger().With("case_id", input.CaseID, "user_id", input.UserID)

	if _, err := w.Cases.GetOwned(ctx, input.CaseID, input.UserID); err != nil {
		return CommitResult{}, err
	}
	eventID := strings.TrimSpace(input.EventID)
	if eventID != "" {
		if w.Events == nil {
			return CommitResult{}, domain.ErrEventNotFound
		}
		if _, err := w.Events.GetOwned(ctx, eventID, input.CaseID, input.UserID); err != nil {
			return CommitResult{}, err
		}
	}

	filename := strings.TrimSpace(input.Filename)
	mimeType := strings.TrimSpace(input.MimeType)
	if mimeType == "" {
		mimeType = domain.DefaultMimeType
	}
	if err := w.checkPolicy(ctx, domain.UploadCandidate{
		Filename:   filename,
		MimeType:   mimeType,
		ByteLength: int64(len(input.Data)),
	}); err != nil {
		log.Warn(ctx, "upload rejected", "error", err)
		return CommitResult{}, err
	}

	digest := ledger.Digest(input.Data)
	existing, found, err := w.Evidence.FindByDigest(ctx, input.CaseID, input.UserID, digest)
	if err != nil {
		return CommitResult{}, fmt.Errorf("dedup lookup: %w: %w", domain.ErrTransaction, err)
	}
	if found {
		log.Warn(ctx, "duplicate evidence", "evidence_id", existing.ID, "sha256", digest)
		return CommitResult{}, &domain.DuplicateEvidenceError{EvidenceID: existing.ID}
	}

	key := ledger.StorageKey(input.CaseID, digest, filename)
	ref, err := w.Blobs.Put(ctx, key, input.Data, mimeType, map[string]string{
		"filename": filename,
		"sha256":   digest,
		"user_id":  input.UserID,
		"case_id":  input.CaseID,
	})
	if err != nil {
		log.Error(ctx, "blob write failed", "key", key, "error", err)
		return CommitResult{}, fmt.Errorf("blob write: %w: %w", domain.ErrStorage, err)
	}

	capturedAt := ledger.CaptureTime(now(w.Clock))
	item, entry, err := w.Evidence.Commit(ctx, domain.EvidenceItem{
		CaseID:            input.CaseID,
		UserID:            input.UserID,
		EventID:           eventID,
		Filename:          filename,
		MimeType:          mimeType,
		ByteLength:        int64(len(input.Data)),
		SHA256:            digest,
		CapturedAt:        capturedAt,
		StorageRef:        ref,
		IngestionStatus:   domain.IngestionPending,
		ExtractionVersion: domain.ExtractionVersion,
		CreatedAt:         capturedAt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
			log.Warn(ctx, "evidence commit rejected", "error", err)
			return CommitResult{}, err
		}
		log.Error(ctx, "evidence commit failed", "error", err)
		return CommitResult{}, fmt.Errorf("evidence commit: %w: %w", domain.ErrTransaction, err)
	}
	log.Info(ctx, "evidence committed",
		"evidence_id", item.ID,
		"sequence_number", entry.SequenceNumber,
		"sha256", digest,
	)
	return CommitResult{Evidence: item, Ledger: entry}, nil
}

func (w *LedgerWriter) checkPolicy(ctx context.Context, candidate domain.UploadCandidate) error {
	var violations []domain.PolicyViolation
	if w.Policy != nil {
		var err error
		violations, err = w.Policy.Evaluate(ctx, candidate)
		if err != nil {
			return fmt.Errorf("upload policy: %w", err)
		}
	} else {
		violations = basicUploadChecks(candidate, w.MaxUploadBytes)
	}
	if len(violations) == 0 {
		return nil
	}
	invalid := domain.InvalidInput("INVALID_UPLOAD", violations[0].Message)
	invalid.Details = map[string]any{"violations": violations}
	return invalid
}

// basicUploadChecks applies the minimum rules when no policy engine is wired.
func basicUploadChecks(candidate domain.UploadCandidate, maxBytes int64) []domain.PolicyViolation {
	var out []domain.PolicyViolation
	if candidate.ByteLength == 0 {
		out = append(out, domain.PolicyViolation{Code: "EMPTY_FILE", Message: "file is empty"})
	}
	if maxBytes > 0 && candidate.ByteLength > maxBytes {
		out = append(out, domain.PolicyViolation{Code: "FILE_TOO_LARGE", Message: fmt.Sprintf("file exceeds %d bytes", maxBytes)})
	}
	if candidate.Filename == "" {
		out = append(out, domain.PolicyViolation{Code: "MISSING_FILENAME", Message: "filename is required"})
	}
	return out
}

func (w *LedgerWriter) logger() logging.Logger {
	if w.Logger == nil {
		return logging.Nop()
	}
	return w.Logger
}
