package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	filesystemRefPrefix = "local:"
	metadataSuffix      = ".meta.json"
)

// FilesystemStore writes blobs under a root directory, one file per key,
// with a JSON sidecar holding the content type and metadata.
type FilesystemStore struct {
	root string
}

type sidecar struct {
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

func (s *FilesystemStore) Put(_ context.Context, key string, data []byte, contentType string, metadata map[string]string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	dest := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := writeAtomic(dest, data); err != nil {
		return "", err
	}
	meta, err := json.Marshal(sidecar{ContentType: contentType, Metadata: metadata})
	if err != nil {
		return "", fmt.Errorf("encode blob metadata: %w", err)
	}
	if err := writeAtomic(dest+metadataSuffix, meta); err != nil {
		return "", err
	}
	return filesystemRefPrefix + key, nil
}

func (s *FilesystemStore) Get(_ context.Context, ref string) ([]byte, error) {
	key, err := trimRef(ref, filesystemRefPrefix)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *FilesystemStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// writeAtomic writes through a temp file in the destination directory and
// renames it into place, so readers never observe a partial blob.
func writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename blob: %w", err)
	}
	success = true
	return nil
}
