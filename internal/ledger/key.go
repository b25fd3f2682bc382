package ledger

import (
	"path"
	"strings"
)

const (
	defaultExtension = "bin"
	maxExtensionLen  = 10
)

// StorageKey derives the blob key for a piece of evidence. Identical content
// in the same case always maps to the same key.
func StorageKey(caseID, digest, filename string) string {
	return "evidence/" + caseID + "/" + digest + "." + extension(filename)
}

func extension(filename string) string {
	ext := strings.TrimPrefix(path.Ext(strings.TrimSpace(filename)), ".")
	ext = strings.ToLower(ext)
	if ext == "" || strings.ContainsAny(ext, `/\ `) {
		return defaultExtension
	}
	if len(ext) > maxExtensionLen {
		ext = ext[:maxExtensionLen]
	}
	return ext
}
