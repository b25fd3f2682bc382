package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bcromer77/prooftimelines/internal/domain"
	"github.com/bcromer77/prooftimelines/internal/ledger"
)

const (
	testCaseID = "11111111-1111-1111-1111-111111111111"
	testUserID = "user-1"
)

var fixedNow = time.Date(2026, 3, 1, 12, 30, 45, 987654321, time.UTC)

type writerFixture struct {
	writer   *LedgerWriter
	cases    *fakeCases
	events   *fakeEvents
	evidence *fakeEvidence
	blobs    *fakeBlobs
}

func newWriterFixture() writerFixture {
	cases := newFakeCases(domain.Case{ID: testCaseID, UserID: testUserID, Title: "case"})
	events := &fakeEvents{}
	evidence := &fakeEvidence{}
	blobs := newFakeBlobs()
	return writerFixture{
		writer: &LedgerWriter{
			Cases:          cases,
			Events:         events,
			Evidence:       evidence,
			Blobs:          blobs,
			Clock:          func() time.Time { return fixedNow },
			MaxUploadBytes: 1 << 20,
		},
		cases:    cases,
		events:   events,
		evidence: evidence,
		blobs:    blobs,
	}
}

func ingestInput(content string) IngestInput {
	return IngestInput{
		CaseID:   testCaseID,
		UserID:   testUserID,
		Filename: "Receipt.PDF",
		MimeType: "application/pdf",
		Data:     []byte(content),
	}
}

func TestIngestAppendsToChain(t *testing.T) {
	fx := newWriterFixture()
	ctx := context.Background()

	first, err := fx.writer.Ingest(ctx, ingestInput("one"))
	if err != nil {
		t.Fatalf("ingest first: %v", err)
	}
	second, err := fx.writer.Ingest(ctx, ingestInput("two"))
	if err != nil {
		t.Fatalf("ingest second: %v", err)
	}

	if first.Ledger.SequenceNumber != 1 || first.Ledger.PrevHash != ledger.Genesis {
		t.Fatalf("unexpected first link: %+v", first.Ledger)
	}
	if second.Ledger.SequenceNumber != 2 || second.Ledger.PrevHash != first.Ledger.Hash {
		t.Fatalf("unexpected second link: %+v", second.Ledger)
	}

	digest := ledger.Digest([]byte("one"))
	if first.Evidence.SHA256 != digest {
		t.Fatalf("expected digest %s, got %s", digest, first.Evidence.SHA256)
	}
	wantKey := "evidence/" + testCaseID + "/" + digest + ".pdf"
	if first.Evidence.StorageRef != "mem:"+wantKey {
		t.Fatalf("unexpected storage ref %q", first.Evidence.StorageRef)
	}
	if fx.blobs.meta[wantKey]["sha256"] != digest || fx.blobs.meta[wantKey]["filename"] != "Receipt.PDF" {
		t.Fatalf("unexpected blob metadata: %v", fx.blobs.meta[wantKey])
	}
	if !first.Evidence.CapturedAt.Equal(fixedNow.Truncate(time.Millisecond)) {
		t.Fatalf("expected millisecond capture time, got %s", first.Evidence.CapturedAt)
	}
	if first.Ledger.CapturedAt != "2026-03-01T12:30:45.987Z" {
		t.Fatalf("unexpected hashed captured_at %q", first.Ledger.CapturedAt)
	}
	if first.Evidence.IngestionStatus != domain.IngestionPending || first.Evidence.ExtractionVersion != domain.ExtractionVersion {
		t.Fatalf("unexpected defaults: %+v", first.Evidence)
	}
	want := ledger.NextHash(ledger.Genesis, digest, first.Ledger.CapturedAt, testUserID, testCaseID)
	if first.Ledger.Hash != want {
		t.Fatalf("hash is not recomputable from its inputs")
	}
}

func TestIngestDuplicateReportsExistingID(t *testing.T) {
	fx := newWriterFixture()
	ctx := context.Background()

	first, err := fx.writer.Ingest(ctx, ingestInput("same"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	_, err = fx.writer.Ingest(ctx, ingestInput("same"))
	dup, ok := domain.AsDuplicateEvidence(err)
	if !ok {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if dup.EvidenceID != first.Evidence.ID {
		t.Fatalf("expected existing id %s, got %s", first.Evidence.ID, dup.EvidenceID)
	}
	if fx.blobs.puts != 1 || fx.evidence.commits != 1 {
		t.Fatalf("duplicate must not write: puts=%d commits=%d", fx.blobs.puts, fx.evidence.commits)
	}
}

func TestIngestFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(fx *writerFixture, in *IngestInput)
		wantErr error
		code    string
	}{
		{
			name:    "missing user",
			mutate:  func(_ *writerFixture, in *IngestInput) { in.UserID = "" },
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "case owned by someone else",
			mutate:  func(_ *writerFixture, in *IngestInput) { in.UserID = "user-2" },
			wantErr: domain.ErrCaseNotFound,
		},
		{
			name:    "unknown case",
			mutate:  func(_ *writerFixture, in *IngestInput) { in.CaseID = "22222222-2222-2222-2222-222222222222" },
			wantErr: domain.ErrCaseNotFound,
		},
		{
			name:    "unknown event",
			mutate:  func(_ *writerFixture, in *IngestInput) { in.EventID = "33333333-3333-3333-3333-333333333333" },
			wantErr: domain.ErrEventNotFound,
		},
		{
			name:    "empty file",
			mutate:  func(_ *writerFixture, in *IngestInput) { in.Data = nil },
			wantErr: domain.ErrInvalidArgument,
			code:    "INVALID_UPLOAD",
		},
		{
			name:    "oversized file",
			mutate:  func(fx *writerFixture, _ *IngestInput) { fx.writer.MaxUploadBytes = 2 },
			wantErr: domain.ErrInvalidArgument,
			code:    "INVALID_UPLOAD",
		},
		{
			name:    "missing filename",
			mutate:  func(_ *writerFixture, in *IngestInput) { in.Filename = "  " },
			wantErr: domain.ErrInvalidArgument,
			code:    "INVALID_UPLOAD",
		},
		{
			name:    "blob store down",
			mutate:  func(fx *writerFixture, _ *IngestInput) { fx.blobs.putErr = errors.New("bucket unreachable") },
			wantErr: domain.ErrStorage,
		},
		{
			name:    "commit aborted",
			mutate:  func(fx *writerFixture, _ *IngestInput) { fx.evidence.commitErr = errors.New("connection reset") },
			wantErr: domain.ErrTransaction,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newWriterFixture()
			in := ingestInput("payload")
			tt.mutate(&fx, &in)
			_, err := fx.writer.Ingest(context.Background(), in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.code != "" {
				invalid, ok := domain.AsInvalidInput(err)
				if !ok || invalid.Code != tt.code {
					t.Fatalf("expected code %s, got %v", tt.code, err)
				}
				if _, ok := invalid.Details["violations"]; !ok {
					t.Fatalf("expected violations in details")
				}
			}
			if len(fx.evidence.entries) != 0 {
				t.Fatalf("failed ingest must not leave ledger entries")
			}
		})
	}
}

func TestIngestStorageFailureSkipsCommit(t *testing.T) {
	fx := newWriterFixture()
	fx.blobs.putErr = errors.New("s3 down")
	if _, err := fx.writer.Ingest(context.Background(), ingestInput("x")); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	if fx.evidence.commits != 0 {
		t.Fatalf("no commit may be attempted after a blob failure")
	}
}

func TestIngestRetryAfterAbortedCommitTakesNextSequence(t *testing.T) {
	fx := newWriterFixture()
	ctx := context.Background()
	if _, err := fx.writer.Ingest(ctx, ingestInput("first")); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	fx.evidence.commitErr = errors.New("deadlock detected")
	if _, err := fx.writer.Ingest(ctx, ingestInput("second")); !errors.Is(err, domain.ErrTransaction) {
		t.Fatalf("expected transaction failure, got %v", err)
	}
	fx.evidence.commitErr = nil

	res, err := fx.writer.Ingest(ctx, ingestInput("second"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Ledger.SequenceNumber != 2 {
		t.Fatalf("expected seq 2 after retry, got %d", res.Ledger.SequenceNumber)
	}
}

func TestIngestLinksEventAndDefaultsMime(t *testing.T) {
	fx := newWriterFixture()
	ctx := context.Background()
	event, err := fx.events.Create(ctx, domain.Event{CaseID: testCaseID, UserID: testUserID, Title: "call"})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	in := ingestInput("linked")
	in.EventID = event.ID
	in.MimeType = ""
	in.Filename = "noext"
	res, err := fx.writer.Ingest(ctx, in)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Evidence.EventID != event.ID {
		t.Fatalf("expected event link, got %q", res.Evidence.EventID)
	}
	if res.Evidence.MimeType != domain.DefaultMimeType {
		t.Fatalf("expected default mime, got %q", res.Evidence.MimeType)
	}
	if !strings.HasSuffix(res.Evidence.StorageRef, ".bin") {
		t.Fatalf("expected bin extension, got %q", res.Evidence.StorageRef)
	}
}

func TestIngestUsesPolicyWhenConfigured(t *testing.T) {
	fx := newWriterFixture()
	policy := &fakePolicy{violations: []domain.PolicyViolation{{Code: "MIME_NOT_ALLOWED", Message: "mime type not allowed"}}}
	fx.writer.Policy = policy

	_, err := fx.writer.Ingest(context.Background(), ingestInput("x"))
	invalid, ok := domain.AsInvalidInput(err)
	if !ok || invalid.Code != "INVALID_UPLOAD" {
		t.Fatalf("expected INVALID_UPLOAD, got %v", err)
	}
	if len(policy.seen) != 1 || policy.seen[0].MimeType != "application/pdf" || policy.seen[0].ByteLength != 1 {
		t.Fatalf("unexpected policy input: %+v", policy.seen)
	}
	if fx.blobs.puts != 0 {
		t.Fatalf("rejected upload must not reach the blob store")
	}
}
