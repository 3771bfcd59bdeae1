// Package checksum names revisions of project content. The live document,
// the published evaluation and the HTTP ETag all use the same digest.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// shortLen is enough to tell revisions apart in log lines.
const shortLen = 12

// Sum returns the hex SHA-256 of data.
func Sum(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// Short is a prefix of Sum.
func Short(data []byte) string {
	return Sum(data)[:shortLen]
}
