package lockmgr

import (
	"crypto/rand"
)

const (
	ownerIDLength = 32 // bytes (256 bit)
)

// generateOwnerID creates a new unique owner ID
// The owner ID is a random byte slice of length ownerIDLength.
func generateOwnerID() ([]byte, error) {
	randomBytes := make([]byte, ownerIDLength)
	_, err := rand.Read(randomBytes)
	return randomBytes, err
}
