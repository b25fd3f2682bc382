// Package blob holds the evidence store adapters. Every store is keyed by
// the content-addressed key from ledger.StorageKey, so writing the same
// bytes twice is an idempotent overwrite.
package blob

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bcromer77/prooftimelines/internal/config"
	"github.com/bcromer77/prooftimelines/internal/domain"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
	ErrForeignRef = errors.New("storage ref belongs to another backend")
)

// NewStoreFromConfig builds the store selected by BLOB_BACKEND.
func NewStoreFromConfig(cfg config.Config) (domain.BlobStore, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendMemory:
		return NewMemoryStore(), nil
	case config.BlobBackendFilesystem:
		if cfg.BlobRoot == "" {
			return nil, fmt.Errorf("filesystem blob store requires BLOB_ROOT")
		}
		store, err := NewFilesystemStore(cfg.BlobRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BlobBackendS3:
		store, err := NewS3StoreFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", cfg.BlobBackend)
	}
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func trimRef(ref, prefix string) (string, error) {
	if !strings.HasPrefix(ref, prefix) {
		return "", fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	key := strings.TrimPrefix(ref, prefix)
	if err := validateKey(key); err != nil {
		return "", err
	}
	return key, nil
}
