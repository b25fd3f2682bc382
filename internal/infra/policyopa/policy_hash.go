package policyopa

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type policyHashFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// ComputePolicyHashFromPath fingerprints the .rego sources under path so the
// active policy can be identified in logs.
func ComputePolicyHashFromPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return hashFiles([]policyHashFile{{Path: filepath.Base(path), SHA256: sha256Hex(data)}})
	}
	return ComputePolicyHashFromFS(os.DirFS(path))
}

func ComputePolicyHashFromFS(fsys fs.FS) (string, error) {
	var files []policyHashFile
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, "_test.rego") {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		files = append(files, policyHashFile{Path: filepath.ToSlash(path), SHA256: sha256Hex(data)})
		return nil
	})
	if err != nil {
		return "", err
	}
	return hashFiles(files)
}

func hashFiles(files []policyHashFile) (string, error) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	payload, err := json.Marshal(files)
	if err != nil {
		return "", err
	}
	return sha256Hex(payload), nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
