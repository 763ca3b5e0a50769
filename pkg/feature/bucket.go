package feature

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Bucket places identifier on a 0..100 scale for featureKey. The first four
// bytes of SHA-256(featureKey + ":" + identifier), read as a big-endian
// uint32, are divided by 0xFFFFFFFF. Changing any of these choices moves
// every caller to a different bucket.
func Bucket(featureKey, identifier string) float64 {
	sum := sha256.Sum256([]byte(featureKey + ":" + identifier))
	h := binary.BigEndian.Uint32(sum[:4])
	return float64(h) / float64(math.MaxUint32) * 100
}

// InRollout reports whether identifier falls within the first percentage
// points of featureKey's rollout.
func InRollout(featureKey, identifier string, percentage float64) bool {
	return Bucket(featureKey, identifier) < percentage
}
