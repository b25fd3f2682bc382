// Package bundles defines the JSON wire format of timelines and case
// exports, and the offline verifier for exported files.
package bundles

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bcromer77/prooftimelines/internal/domain"
	"github.com/bcromer77/prooftimelines/internal/ledger"
	"github.com/bcromer77/prooftimelines/internal/usecase"
)

const ExportVersion = "prooftimelines.export.v1"

type CaseView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type EventView struct {
	ID         string    `json:"id"`
	CaseID     string    `json:"case_id"`
	Date       time.Time `json:"date"`
	Title      string    `json:"title"`
	Note       string    `json:"note,omitempty"`
	SourceType string    `json:"source_type"`
	SourceRef  string    `json:"source_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// LedgerTriple is the denormalized chain position carried by each evidence
// item.
type LedgerTriple struct {
	SequenceNumber int64  `json:"sequence_number"`
	PrevHash       string `json:"prev_hash"`
	Hash           string `json:"hash"`
}

type EvidenceView struct {
	ID                string        `json:"id"`
	CaseID            string        `json:"case_id"`
	EventID           string        `json:"event_id,omitempty"`
	Filename          string        `json:"filename"`
	MimeType          string        `json:"mime_type"`
	ByteLength        int64         `json:"byte_length"`
	SHA256            string        `json:"sha256"`
	CapturedAt        string        `json:"captured_at"`
	StorageRef        string        `json:"storage_ref"`
	IngestionStatus   string        `json:"ingestion_status"`
	ExtractionVersion string        `json:"extraction_version"`
	CreatedAt         time.Time     `json:"created_at"`
	Ledger            *LedgerTriple `json:"ledger"`
}

type LedgerView struct {
	ID             string    `json:"id"`
	CaseID         string    `json:"case_id"`
	UserID         string    `json:"user_id"`
	SequenceNumber int64     `json:"sequence_number"`
	PrevHash       string    `json:"prev_hash"`
	Hash           string    `json:"hash"`
	EvidenceID     string    `json:"evidence_id"`
	EvidenceSHA256 string    `json:"evidence_sha256"`
	CapturedAt     string    `json:"captured_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type TimelineView struct {
	Case            CaseView                  `json:"case"`
	Events          []EventView               `json:"events"`
	Evidence        []EvidenceView            `json:"evidence"`
	EvidenceByEvent map[string][]EvidenceView `json:"evidence_by_event"`
}

// Bundle is the export document. ExportedAt and Digest are excluded from
// the digest input, so unchanged data always exports to the same digest.
type Bundle struct {
	Version string `json:"version"`
	TimelineView
	Ledger     []LedgerView `json:"ledger"`
	ExportedAt string       `json:"exported_at"`
	Digest     string       `json:"digest"`
}

func CaseFromDomain(c domain.Case) CaseView {
	return CaseView{
		ID:        c.ID,
		UserID:    c.UserID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
}

func EventFromDomain(e domain.Event) EventView {
	return EventView{
		ID:         e.ID,
		CaseID:     e.CaseID,
		Date:       e.Date.UTC(),
		Title:      e.Title,
		Note:       e.Note,
		SourceType: string(e.SourceType),
		SourceRef:  e.SourceRef,
		CreatedAt:  e.CreatedAt.UTC(),
	}
}

func EvidenceFromRecord(r usecase.EvidenceRecord) EvidenceView {
	item := r.Item
	view := EvidenceView{
		ID:                item.ID,
		CaseID:            item.CaseID,
		EventID:           item.EventID,
		Filename:          item.Filename,
		MimeType:          item.MimeType,
		ByteLength:        item.ByteLength,
		SHA256:            item.SHA256,
		CapturedAt:        ledger.FormatCapturedAt(item.CapturedAt),
		StorageRef:        item.StorageRef,
		IngestionStatus:   item.IngestionStatus,
		ExtractionVersion: item.ExtractionVersion,
		CreatedAt:         item.CreatedAt.UTC(),
	}
	if r.Ledger != nil {
		view.CapturedAt = r.Ledger.CapturedAt
		view.Ledger = &LedgerTriple{
			SequenceNumber: r.Ledger.SequenceNumber,
			PrevHash:       r.Ledger.PrevHash,
			Hash:           r.Ledger.Hash,
		}
	}
	return view
}

func LedgerFromDomain(e domain.LedgerEntry) LedgerView {
	return LedgerView{
		ID:             e.ID,
		CaseID:         e.CaseID,
		UserID:         e.UserID,
		SequenceNumber: e.SequenceNumber,
		PrevHash:       e.PrevHash,
		Hash:           e.Hash,
		EvidenceID:     e.EvidenceID,
		EvidenceSHA256: e.EvidenceSHA256,
		CapturedAt:     e.CapturedAt,
		CreatedAt:      e.CreatedAt.UTC(),
	}
}

func (l LedgerView) toDomain() domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:             l.ID,
		CaseID:         l.CaseID,
		UserID:         l.UserID,
		SequenceNumber: l.SequenceNumber,
		PrevHash:       l.PrevHash,
		Hash:           l.Hash,
		EvidenceID:     l.EvidenceID,
		EvidenceSHA256: l.EvidenceSHA256,
		CapturedAt:     l.CapturedAt,
		CreatedAt:      l.CreatedAt,
	}
}

func TimelineFromDomain(t usecase.Timeline) TimelineView {
	view := TimelineView{
		Case:            CaseFromDomain(t.Case),
		Events:          make([]EventView, 0, len(t.Events)),
		Evidence:        make([]EvidenceView, 0, len(t.Evidence)),
		EvidenceByEvent: make(map[string][]EvidenceView, len(t.EvidenceByEvent)),
	}
	for _, e := range t.Events {
		view.Events = append(view.Events, EventFromDomain(e))
	}
	for _, r := range t.Evidence {
		view.Evidence = append(view.Evidence, EvidenceFromRecord(r))
	}
	for eventID, records := range t.EvidenceByEvent {
		items := make([]EvidenceView, 0, len(records))
		for _, r := range records {
			items = append(items, EvidenceFromRecord(r))
		}
		view.EvidenceByEvent[eventID] = items
	}
	return view
}

// FromExport converts an export into a bundle and stamps its digest.
func FromExport(export usecase.Export) (Bundle, error) {
	bundle := Bundle{
		Version:      ExportVersion,
		TimelineView: TimelineFromDomain(export.Timeline),
		Ledger:       make([]LedgerView, 0, len(export.Ledger)),
		ExportedAt:   export.ExportedAt.UTC().Format(time.RFC3339Nano),
	}
	for _, e := range export.Ledger {
		bundle.Ledger = append(bundle.Ledger, LedgerFromDomain(e))
	}
	digest, err := ComputeDigest(bundle)
	if err != nil {
		return Bundle{}, err
	}
	bundle.Digest = digest
	return bundle, nil
}

// Marshal renders the bundle as indented JSON for download.
func Marshal(bundle Bundle) ([]byte, error) {
	return json.MarshalIndent(bundle, "", "  ")
}

// ComputeDigest hashes the canonical form of the bundle with exported_at and
// digest blanked.
func ComputeDigest(bundle Bundle) (string, error) {
	bundle.ExportedAt = ""
	bundle.Digest = ""
	raw, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}
	canonical, err := CanonicalizeJSON(raw)
	if err != nil {
		return "", err
	}
	return ledger.Digest(canonical), nil
}
