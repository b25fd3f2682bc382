package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bcromer77/prooftimelines/internal/domain"
	"github.com/bcromer77/prooftimelines/internal/ledger"
)

// timelineEventLimit caps the interactive timeline only. Exports and
// summaries always read every event.
const timelineEventLimit = 5000

// TimelineReader reconstructs the read side of a case: the ordered timeline,
// the export with its full ledger, the summary and a chain check.
//
// When Snapshots is set, every multi-query read runs inside one snapshot so
// an ingest committing mid-read cannot leave evidence and ledger out of step.
type TimelineReader struct {
	Cases     CaseRepository
	Events    EventRepository
	Evidence  EvidenceRepository
	Ledger    LedgerRepository
	Blobs     domain.BlobStore
	Snapshots Snapshotter
	Clock     func() time.Time
}

// EvidenceRecord pairs an evidence item with its ledger link. Ledger is nil
// only if the store is inconsistent.
type EvidenceRecord struct {
	Item   domain.EvidenceItem
	Ledger *domain.LedgerEntry
}

func (r EvidenceRecord) sequence() int64 {
	if r.Ledger == nil {
		return math.MaxInt64
	}
	return r.Ledger.SequenceNumber
}

type Timeline struct {
	Case     domain.Case
	Events   []domain.Event
	Evidence []EvidenceRecord
	// EvidenceByEvent has a key for every returned event, empty when
	// nothing is attached.
	EvidenceByEvent map[string][]EvidenceRecord
}

type Export struct {
	Timeline
	Ledger     []domain.LedgerEntry
	ExportedAt time.Time
}

type Summary struct {
	CaseID         string
	EventCount     int
	EvidenceCount  int
	FirstEventDate *time.Time
	LastEventDate  *time.Time
	HeadSequence   int64
	HeadHash       string
}

type ChainReport struct {
	Valid        bool
	Entries      int
	HeadSequence int64
	HeadHash     string
	Error        string
}

func NewTimelineReader(cases CaseRepository, events EventRepository, evidence EvidenceRepository, ledgerRepo LedgerRepository, blobs domain.BlobStore) *TimelineReader {
	return &TimelineReader{
		Cases:    cases,
		Events:   events,
		Evidence: evidence,
		Ledger:   ledgerRepo,
		Blobs:    blobs,
		Clock:    time.Now,
	}
}

func (r *TimelineReader) BuildTimeline(ctx context.Context, userID, caseID string, filter domain.EventFilter) (Timeline, error) {
	if filter.Limit <= 0 {
		filter.Limit = timelineEventLimit
	}
	timeline, _, err := r.build(ctx, userID, caseID, filter)
	return timeline, err
}

// BuildExport reads the whole case, every event included, from one snapshot.
func (r *TimelineReader) BuildExport(ctx context.Context, userID, caseID string) (Export, error) {
	timeline, entries, err := r.build(ctx, userID, caseID, domain.EventFilter{})
	if err != nil {
		return Export{}, err
	}
	return Export{
		Timeline:   timeline,
		Ledger:     entries,
		ExportedAt: now(r.Clock),
	}, nil
}

func (r *TimelineReader) Summary(ctx context.Context, userID, caseID string) (Summary, error) {
	timeline, entries, err := r.build(ctx, userID, caseID, domain.EventFilter{})
	if err != nil {
		return Summary{}, err
	}
	out := Summary{
		CaseID:        timeline.Case.ID,
		EventCount:    len(timeline.Events),
		EvidenceCount: len(timeline.Evidence),
	}
	if n := len(timeline.Events); n > 0 {
		first := timeline.Events[0].Date
		last := timeline.Events[n-1].Date
		out.FirstEventDate = &first
		out.LastEventDate = &last
	}
	out.HeadSequence, out.HeadHash = ledger.Head(entries)
	return out, nil
}

// VerifyCaseChain recomputes the stored chain. A broken chain is reported in
// the result, not as an error.
func (r *TimelineReader) VerifyCaseChain(ctx context.Context, userID, caseID string) (ChainReport, error) {
	if userID == "" {
		return ChainReport{}, domain.ErrUnauthorized
	}
	var entries []domain.LedgerEntry
	err := r.snapshot(ctx, func(repos ReadRepositories) error {
		if _, err := repos.Cases.GetOwned(ctx, caseID, userID); err != nil {
			return err
		}
		var err error
		entries, err = repos.Ledger.ListByCase(ctx, caseID, userID)
		return err
	})
	if err != nil {
		return ChainReport{}, err
	}
	sortLedger(entries)
	report := ChainReport{Valid: true, Entries: len(entries)}
	report.HeadSequence, report.HeadHash = ledger.Head(entries)
	if err := ledger.VerifyChain(caseID, entries); err != nil {
		report.Valid = false
		report.Error = err.Error()
	}
	return report, nil
}

// Content returns an owned evidence item and its stored bytes.
func (r *TimelineReader) Content(ctx context.Context, userID, caseID, evidenceID string) (domain.EvidenceItem, []byte, error) {
	if userID == "" {
		return domain.EvidenceItem{}, nil, domain.ErrUnauthorized
	}
	if _, err := r.Cases.GetOwned(ctx, caseID, userID); err != nil {
		return domain.EvidenceItem{}, nil, err
	}
	item, err := r.Evidence.GetOwned(ctx, evidenceID, caseID, userID)
	if err != nil {
		return domain.EvidenceItem{}, nil, err
	}
	if r.Blobs == nil {
		return domain.EvidenceItem{}, nil, fmt.Errorf("read evidence %s: %w: no blob store", item.ID, domain.ErrStorage)
	}
	data, err := r.Blobs.Get(ctx, item.StorageRef)
	if err != nil {
		return domain.EvidenceItem{}, nil, fmt.Errorf("read evidence %s: %w: %w", item.ID, domain.ErrStorage, err)
	}
	return item, data, nil
}

func (r *TimelineReader) snapshot(ctx context.Context, fn func(ReadRepositories) error) error {
	if r.Snapshots == nil {
		return fn(ReadRepositories{Cases: r.Cases, Events: r.Events, Evidence: r.Evidence, Ledger: r.Ledger})
	}
	return r.Snapshots.ReadSnapshot(ctx, fn)
}

func (r *TimelineReader) build(ctx context.Context, userID, caseID string, filter domain.EventFilter) (Timeline, []domain.LedgerEntry, error) {
	if userID == "" {
		return Timeline{}, nil, domain.ErrUnauthorized
	}
	var (
		c       domain.Case
		events  []domain.Event
		items   []domain.EvidenceItem
		entries []domain.LedgerEntry
	)
	err := r.snapshot(ctx, func(repos ReadRepositories) error {
		var err error
		if c, err = repos.Cases.GetOwned(ctx, caseID, userID); err != nil {
			return err
		}
		if events, err = repos.Events.ListByCase(ctx, caseID, userID, filter); err != nil {
			return err
		}
		if items, err = repos.Evidence.ListByCase(ctx, caseID, userID); err != nil {
			return err
		}
		entries, err = repos.Ledger.ListByCase(ctx, caseID, userID)
		return err
	})
	if err != nil {
		return Timeline{}, nil, err
	}

	SortEvents(events)
	sortLedger(entries)

	byEvidence := make(map[string]*domain.LedgerEntry, len(entries))
	for i := range entries {
		byEvidence[entries[i].EvidenceID] = &entries[i]
	}
	records := make([]EvidenceRecord, 0, len(items))
	for _, item := range items {
		records = append(records, EvidenceRecord{Item: item, Ledger: byEvidence[item.ID]})
	}
	SortEvidence(records)

	byEvent := make(map[string][]EvidenceRecord, len(events))
	for _, event := range events {
		byEvent[event.ID] = []EvidenceRecord{}
	}
	for _, record := range records {
		if _, ok := byEvent[record.Item.EventID]; ok {
			byEvent[record.Item.EventID] = append(byEvent[record.Item.EventID], record)
		}
	}

	return Timeline{
		Case:            c,
		Events:          events,
		Evidence:        records,
		EvidenceByEvent: byEvent,
	}, entries, nil
}

// SortEvents orders events on the truth axis: date, then created_at, then id.
func SortEvents(events []domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// SortEvidence orders evidence by ledger sequence number only. Capture and
// creation times are never consulted.
func SortEvidence(records []EvidenceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		si, sj := records[i].sequence(), records[j].sequence()
		if si != sj {
			return si < sj
		}
		return records[i].Item.ID < records[j].Item.ID
	})
}

func sortLedger(entries []domain.LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].SequenceNumber < entries[j].SequenceNumber
	})
}

// ParseTimelineRange turns optional from/to query values into an event
// filter. Both bounds are inclusive.
func ParseTimelineRange(from, to string) (domain.EventFilter, error) {
	var filter domain.EventFilter
	if from = strings.TrimSpace(from); from != "" {
		t, err := ParseEventDate(from)
		if err != nil {
			return domain.EventFilter{}, domain.InvalidInput("INVALID_FROM", "from must be RFC3339 or YYYY-MM-DD")
		}
		filter.From = &t
	}
	if to = strings.TrimSpace(to); to != "" {
		t, err := ParseEventDate(to)
		if err != nil {
			return domain.EventFilter{}, domain.InvalidInput("INVALID_TO", "to must be RFC3339 or YYYY-MM-DD")
		}
		filter.To = &t
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return domain.EventFilter{}, domain.InvalidInput("INVALID_RANGE", "from must not be after to")
	}
	return filter, nil
}
