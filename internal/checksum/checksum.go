// Package checksum provides a cheap content hash used for change detection.
// The hash is advisory (re-index skipping, change events), not an integrity
// check, so a fast non-cryptographic function is enough.
package checksum

import (
	"encoding/hex"
	"hash/fnv"
)

// Sum returns the hex-encoded 64-bit FNV-1a digest of data.
func Sum(data []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
