package domain

import (
	"context"
	"time"
)

// BlobStore persists raw evidence bytes. Put must be idempotent for a given key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

type UploadCandidate struct {
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	ByteLength int64  `json:"byte_length"`
}

type PolicyViolation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UploadPolicy decides whether an upload may enter the ledger. An empty
// result means the upload is accepted.
type UploadPolicy interface {
	Evaluate(ctx context.Context, candidate UploadCandidate) ([]PolicyViolation, error)
}

type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
