// Package ledger holds the pure functions behind the per-case evidence chain:
// content digests, chain links, the capture-time encoding that feeds them, and
// the verifier that walks a chain back to its genesis sentinel.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Genesis is the prevHash of the first entry of every case chain.
const Genesis = "GENESIS"

// CapturedAtLayout is the only accepted encoding of capture time inside a
// chain hash: UTC, millisecond precision, literal Z.
const CapturedAtLayout = "2006-01-02T15:04:05.000Z"

// Digest returns the lowercase hex sha256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NextHash links a new evidence digest onto the chain. The inputs are
// concatenated without separators in this order: prevHash, evidenceDigest,
// capturedAt, userID, caseID.
func NextHash(prevHash, evidenceDigest, capturedAt, userID, caseID string) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte(evidenceDigest))
	h.Write([]byte(capturedAt))
	h.Write([]byte(userID))
	h.Write([]byte(caseID))
	return hex.EncodeToString(h.Sum(nil))
}

// CaptureTime normalizes t to the precision that survives FormatCapturedAt.
func CaptureTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FormatCapturedAt renders t as the capture time string that is fed to
// NextHash and stored on the ledger row: UTC, millisecond precision, a
// literal Z suffix. Changing the layout changes every recomputed hash.
func FormatCapturedAt(t time.Time) string {
	return CaptureTime(t).Format(CapturedAtLayout)
}

// ParseCapturedAt accepts only strings produced by FormatCapturedAt.
func ParseCapturedAt(value string) (time.Time, error) {
	parsed, err := time.Parse(CapturedAtLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("captured_at %q: %w", value, err)
	}
	if parsed.Format(CapturedAtLayout) != value {
		return time.Time{}, fmt.Errorf("captured_at %q is not canonical", value)
	}
	return parsed, nil
}

// IsDigest reports whether value looks like a lowercase hex sha256.
func IsDigest(value string) bool {
	if len(value) != sha256.Size*2 {
		return false
	}
	return strings.Trim(value, "0123456789abcdef") == ""
}
