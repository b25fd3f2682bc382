package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/bcromer77/prooftimelines/internal/domain"
	"github.com/bcromer77/prooftimelines/internal/ledger"

	"github.com/google/uuid"
)

type fakeCases struct {
	mu    sync.Mutex
	cases map[string]domain.Case
}

func newFakeCases(cases ...domain.Case) *fakeCases {
	f := &fakeCases{cases: map[string]domain.Case{}}
	for _, c := range cases {
		f.cases[c.ID] = c
	}
	return f
}

func (f *fakeCases) Create(_ context.Context, c domain.Case) (domain.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	f.cases[c.ID] = c
	return c, nil
}

func (f *fakeCases) GetOwned(_ context.Context, caseID, userID string) (domain.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[caseID]
	if !ok || c.UserID != userID {
		return domain.Case{}, domain.ErrCaseNotFound
	}
	return c, nil
}

func (f *fakeCases) ListByUser(_ context.Context, userID string, _ int) ([]domain.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Case
	for _, c := range f.cases {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakeEvents) Create(_ context.Context, event domain.Event) (domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	f.events = append(f.events, event)
	return event, nil
}

func (f *fakeEvents) GetOwned(_ context.Context, eventID, caseID, userID string) (domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == eventID && e.CaseID == caseID && e.UserID == userID {
			return e, nil
		}
	}
	return domain.Event{}, domain.ErrEventNotFound
}

// ListByCase deliberately returns insertion order so callers must sort.
func (f *fakeEvents) ListByCase(_ context.Context, caseID, userID string, filter domain.EventFilter) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Event
	for _, e := range f.events {
		if e.CaseID != caseID || e.UserID != userID {
			continue
		}
		if filter.From != nil && e.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Date.After(*filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type fakeEvidence struct {
	mu        sync.Mutex
	items     []domain.EvidenceItem
	entries   []domain.LedgerEntry
	commitErr error
	commits   int
}

func (f *fakeEvidence) FindByDigest(_ context.Context, caseID, userID, digest string) (domain.EvidenceItem, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.CaseID == caseID && item.UserID == userID && item.SHA256 == digest {
			return item, true, nil
		}
	}
	return domain.EvidenceItem{}, false, nil
}

func (f *fakeEvidence) GetOwned(_ context.Context, evidenceID, caseID, userID string) (domain.EvidenceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ID == evidenceID && item.CaseID == caseID && item.UserID == userID {
			return item, nil
		}
	}
	return domain.EvidenceItem{}, domain.ErrEvidenceNotFound
}

func (f *fakeEvidence) ListByCase(_ context.Context, caseID, userID string) ([]domain.EvidenceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EvidenceItem
	for _, item := range f.items {
		if item.CaseID == caseID && item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeEvidence) Commit(_ context.Context, item domain.EvidenceItem) (domain.EvidenceItem, domain.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	if f.commitErr != nil {
		return domain.EvidenceItem{}, domain.LedgerEntry{}, f.commitErr
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	var tailSeq int64
	prev := ledger.Genesis
	for _, e := range f.entries {
		if e.CaseID == item.CaseID && e.SequenceNumber > tailSeq {
			tailSeq, prev = e.SequenceNumber, e.Hash
		}
	}
	capturedAt := ledger.FormatCapturedAt(item.CapturedAt)
	entry := domain.LedgerEntry{
		ID:             uuid.NewString(),
		CaseID:         item.CaseID,
		UserID:         item.UserID,
		SequenceNumber: tailSeq + 1,
		PrevHash:       prev,
		Hash:           ledger.NextHash(prev, item.SHA256, capturedAt, item.UserID, item.CaseID),
		EvidenceID:     item.ID,
		EvidenceSHA256: item.SHA256,
		CapturedAt:     capturedAt,
		CreatedAt:      item.CreatedAt,
	}
	f.items = append(f.items, item)
	f.entries = append(f.entries, entry)
	return item, entry, nil
}

// ledger exposes the stored entries newest first, so readers must sort.
func (f *fakeEvidence) ledger() LedgerRepository {
	return fakeLedger{f}
}

type fakeLedger struct {
	f *fakeEvidence
}

func (l fakeLedger) ListByCase(_ context.Context, caseID, userID string) ([]domain.LedgerEntry, error) {
	l.f.mu.Lock()
	defer l.f.mu.Unlock()
	var out []domain.LedgerEntry
	for i := len(l.f.entries) - 1; i >= 0; i-- {
		e := l.f.entries[i]
		if e.CaseID == caseID && e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeBlobs struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	meta   map[string]map[string]string
	puts   int
	putErr error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (b *fakeBlobs) Put(_ context.Context, key string, data []byte, _ string, metadata map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.putErr != nil {
		return "", b.putErr
	}
	b.blobs[key] = append([]byte(nil), data...)
	b.meta[key] = metadata
	return "mem:" + key, nil
}

func (b *fakeBlobs) Get(_ context.Context, ref string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[strings.TrimPrefix(ref, "mem:")]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return data, nil
}

type fakePolicy struct {
	violations []domain.PolicyViolation
	seen       []domain.UploadCandidate
}

func (p *fakePolicy) Evaluate(_ context.Context, candidate domain.UploadCandidate) ([]domain.PolicyViolation, error) {
	p.seen = append(p.seen, candidate)
	return p.violations, nil
}

// fakeSnapshotter serves reads from the fixture and records each snapshot
// and the event limit requested inside it.
type fakeSnapshotter struct {
	repos  ReadRepositories
	calls  int
	limits []int
}

func (s *fakeSnapshotter) ReadSnapshot(_ context.Context, fn func(ReadRepositories) error) error {
	s.calls++
	repos := s.repos
	repos.Events = limitRecorder{EventRepository: s.repos.Events, s: s}
	return fn(repos)
}

type limitRecorder struct {
	EventRepository
	s *fakeSnapshotter
}

func (r limitRecorder) ListByCase(ctx context.Context, caseID, userID string, filter domain.EventFilter) ([]domain.Event, error) {
	r.s.limits = append(r.s.limits, filter.Limit)
	return r.EventRepository.ListByCase(ctx, caseID, userID, filter)
}
