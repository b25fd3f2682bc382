package usecase

import (
	"context"

	"github.com/bcromer77/prooftimelines/internal/domain"
)

type CaseRepository interface {
	Create(ctx context.Context, c domain.Case) (domain.Case, error)
	GetOwned(ctx context.Context, caseID, userID string) (domain.Case, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Case, error)
}

type EventRepository interface {
	Create(ctx context.Context, event domain.Event) (domain.Event, error)
	GetOwned(ctx context.Context, eventID, caseID, userID string) (domain.Event, error)
	ListByCase(ctx context.Context, caseID, userID string, filter domain.EventFilter) ([]domain.Event, error)
}

type EvidenceRepository interface {
	FindByDigest(ctx context.Context, caseID, userID, digest string) (domain.EvidenceItem, bool, error)
	GetOwned(ctx context.Context, evidenceID, caseID, userID string) (domain.EvidenceItem, error)
	ListByCase(ctx context.Context, caseID, userID string) ([]domain.EvidenceItem, error)
	Commit(ctx context.Context, item domain.EvidenceItem) (domain.EvidenceItem, domain.LedgerEntry, error)
}

type LedgerRepository interface {
	ListByCase(ctx context.Context, caseID, userID string) ([]domain.LedgerEntry, error)
}

// ReadRepositories is the read side of the store. Repositories obtained
// through a Snapshotter all see the same committed state.
type ReadRepositories struct {
	Cases    CaseRepository
	Events   EventRepository
	Evidence EvidenceRepository
	Ledger   LedgerRepository
}

// Snapshotter runs fn against repositories bound to one read-only
// transaction, so writes committed while fn runs are not observed.
type Snapshotter interface {
	ReadSnapshot(ctx context.Context, fn func(ReadRepositories) error) error
}
