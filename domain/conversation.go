package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the unordered pair of two identities. At most one
// conversation exists per pair; the repository enforces that with its
// canonical pair key.
type Conversation struct {
	ID           uuid.UUID
	ParticipantA string // lexicographically smaller participant ID
	ParticipantB string
	CreatedAt    time.Time
}

// PairKey returns the two participant IDs in canonical order.
func PairKey(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
