// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event, ordered inside its
// conversation by creation time.
type Message struct {
	ID             uuid.UUID // unique identifier
	ConversationID uuid.UUID
	SenderID       string
	ReceiverID     string
	Text           string
	CreatedAt      time.Time
}
