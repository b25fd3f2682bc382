package ledger

import (
	"fmt"

	"github.com/bcromer77/prooftimelines/internal/domain"
)

// ChainError pinpoints the first entry at which a chain stops verifying.
type ChainError struct {
	Seq    int64
	Reason string
}

func (e *ChainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("ledger chain %s at seq %d", e.Reason, e.Seq)
}

// VerifyChain walks entries, which must already be ordered by sequence
// number, from Genesis and recomputes every link. An empty chain is valid.
// caseID may be empty to skip the case check.
func VerifyChain(caseID string, entries []domain.LedgerEntry) error {
	expectedSeq := int64(1)
	prevHash := Genesis
	for _, entry := range entries {
		if caseID != "" && entry.CaseID != caseID {
			return &ChainError{Seq: entry.SequenceNumber, Reason: "case mismatch"}
		}
		if entry.SequenceNumber != expectedSeq {
			return &ChainError{Seq: entry.SequenceNumber, Reason: fmt.Sprintf("seq mismatch: expected %d", expectedSeq)}
		}
		if entry.PrevHash != prevHash {
			return &ChainError{Seq: entry.SequenceNumber, Reason: "prev hash mismatch"}
		}
		if _, err := ParseCapturedAt(entry.CapturedAt); err != nil {
			return &ChainError{Seq: entry.SequenceNumber, Reason: "invalid captured_at"}
		}
		expected := NextHash(entry.PrevHash, entry.EvidenceSHA256, entry.CapturedAt, entry.UserID, entry.CaseID)
		if expected != entry.Hash {
			return &ChainError{Seq: entry.SequenceNumber, Reason: "hash mismatch"}
		}
		prevHash = entry.Hash
		expectedSeq++
	}
	return nil
}

// Head returns the tail sequence number and hash, or 0 and Genesis.
func Head(entries []domain.LedgerEntry) (int64, string) {
	if len(entries) == 0 {
		return 0, Genesis
	}
	last := entries[len(entries)-1]
	return last.SequenceNumber, last.Hash
}
