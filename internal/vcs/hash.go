package vcs

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// computeCommitHash derives the content-addressed commit hash. The hash is
// computed once at creation time and never recomputed afterwards.
func computeCommitHash(content, message, authorID, parentID string, ts time.Time) string {
	payload := strings.Join([]string{
		content,
		message,
		authorID,
		parentID,
		ts.Format(time.RFC3339Nano),
	}, "\n")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
