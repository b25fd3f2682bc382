package bundles

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bcromer77/prooftimelines/internal/domain"
	"github.com/bcromer77/prooftimelines/internal/ledger"
)

var ErrUnsupportedVersion = errors.New("unsupported export version")

// VerificationError names the first check an export failed.
type VerificationError struct {
	Check  string
	Detail string
}

func (e *VerificationError) Error() string {
	if e == nil {
		return ""
	}
	return "export " + e.Check + ": " + e.Detail
}

type Report struct {
	CaseID        string
	Events        int
	Evidence      int
	Entries       int
	HeadSequence  int64
	HeadHash      string
	Digest        string
	DigestMatched bool
}

// Parse decodes an export file.
func Parse(data []byte) (Bundle, error) {
	var bundle Bundle
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&bundle); err != nil {
		return Bundle{}, fmt.Errorf("decode export: %w", err)
	}
	return bundle, nil
}

// VerifyJSON parses and verifies an export file without any database.
func VerifyJSON(data []byte) (Report, error) {
	bundle, err := Parse(data)
	if err != nil {
		return Report{}, err
	}
	return Verify(bundle)
}

// Verify checks, in order: version, the hash chain from GENESIS, that every
// evidence item matches exactly one ledger entry, the event grouping and
// the bundle digest.
func Verify(bundle Bundle) (Report, error) {
	report := Report{
		CaseID:   bundle.Case.ID,
		Events:   len(bundle.Events),
		Evidence: len(bundle.Evidence),
		Entries:  len(bundle.Ledger),
		Digest:   bundle.Digest,
	}
	if bundle.Version != ExportVersion {
		return report, fmt.Errorf("%w: %q", ErrUnsupportedVersion, bundle.Version)
	}

	entries := make([]domain.LedgerEntry, 0, len(bundle.Ledger))
	for _, l := range bundle.Ledger {
		if l.UserID != bundle.Case.UserID {
			return report, &VerificationError{Check: "ledger", Detail: fmt.Sprintf("seq %d belongs to another user", l.SequenceNumber)}
		}
		entries = append(entries, l.toDomain())
	}
	if err := ledger.VerifyChain(bundle.Case.ID, entries); err != nil {
		return report, &VerificationError{Check: "chain", Detail: err.Error()}
	}
	report.HeadSequence, report.HeadHash = ledger.Head(entries)

	if err := crossCheck(bundle); err != nil {
		return report, err
	}

	digest, err := ComputeDigest(bundle)
	if err != nil {
		return report, err
	}
	if digest != bundle.Digest {
		return report, &VerificationError{Check: "digest", Detail: fmt.Sprintf("expected %s, got %s", digest, bundle.Digest)}
	}
	report.DigestMatched = true
	return report, nil
}

func crossCheck(bundle Bundle) error {
	if len(bundle.Evidence) != len(bundle.Ledger) {
		return &VerificationError{Check: "evidence", Detail: fmt.Sprintf("%d evidence items for %d ledger entries", len(bundle.Evidence), len(bundle.Ledger))}
	}
	byEvidence := make(map[string]LedgerView, len(bundle.Ledger))
	for _, l := range bundle.Ledger {
		if _, dup := byEvidence[l.EvidenceID]; dup {
			return &VerificationError{Check: "ledger", Detail: "evidence " + l.EvidenceID + " committed twice"}
		}
		byEvidence[l.EvidenceID] = l
	}
	var prevSeq int64
	for _, item := range bundle.Evidence {
		entry, ok := byEvidence[item.ID]
		if !ok {
			return &VerificationError{Check: "evidence", Detail: "no ledger entry for " + item.ID}
		}
		if item.SHA256 != entry.EvidenceSHA256 {
			return &VerificationError{Check: "evidence", Detail: "sha256 mismatch for " + item.ID}
		}
		if item.CapturedAt != entry.CapturedAt {
			return &VerificationError{Check: "evidence", Detail: "captured_at mismatch for " + item.ID}
		}
		if item.Ledger == nil || item.Ledger.SequenceNumber != entry.SequenceNumber ||
			item.Ledger.PrevHash != entry.PrevHash || item.Ledger.Hash != entry.Hash {
			return &VerificationError{Check: "evidence", Detail: "ledger triple mismatch for " + item.ID}
		}
		if item.Ledger.SequenceNumber <= prevSeq {
			return &VerificationError{Check: "evidence", Detail: "evidence not in ledger order at " + item.ID}
		}
		prevSeq = item.Ledger.SequenceNumber
	}

	events := make(map[string]bool, len(bundle.Events))
	for _, e := range bundle.Events {
		events[e.ID] = true
	}
	for eventID, items := range bundle.EvidenceByEvent {
		if !events[eventID] {
			return &VerificationError{Check: "events", Detail: "evidence grouped under unknown event " + eventID}
		}
		for _, item := range items {
			if item.EventID != eventID {
				return &VerificationError{Check: "events", Detail: "evidence " + item.ID + " grouped under the wrong event"}
			}
		}
	}
	return nil
}
