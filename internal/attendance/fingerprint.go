package attendance

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// PhotoHash is a non-cryptographic fingerprint of photo bytes, used to spot
// re-submitted captures. Empty input has no fingerprint.
func PhotoHash(photo []byte) string {
	if len(photo) == 0 {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(photo))
}
