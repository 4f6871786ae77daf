package streamblocks

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// hashPrefixBytes bounds how much of a block's raw text feeds hashID, so a
// multi-megabyte block costs the same to fingerprint as a one-line one.
const hashPrefixBytes = 64

// hashID fingerprints a completed block's raw text into an 8-hex-character
// id, stable across re-runs of the same input, for consumers that want to
// deduplicate blocks without hashing the full content themselves.
func hashID(rawText string) string {
	prefix := rawText
	if len(prefix) > hashPrefixBytes {
		prefix = prefix[:hashPrefixBytes]
	}
	sum := xxhash.Sum64String(prefix)
	return fmt.Sprintf("%08x", uint32(sum))
}
