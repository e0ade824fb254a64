// Package domain contains core concepts of the chat system.
// This file defines the closed set of outbound envelope variants and
// their wire JSON shapes. Envelopes are transient: one delivery, no storage.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeInformation = "information"
	TypeChatMessage = "chat_message"
)

// Envelope is a tagged payload delivered over a live connection.
type Envelope interface {
	EnvelopeType() string
}

// Information is sent once on connect and carries the unread counter.
type Information struct {
	NewMessages int
}

func (Information) EnvelopeType() string { return TypeInformation }

func (e Information) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireInformation{
		Type:        TypeInformation,
		NewMessages: e.NewMessages,
	})
}

// ChatInformation identifies the conversation and the other party,
// viewer-relative: the sender's copy embeds the receiver's profile and
// vice versa.
type ChatInformation struct {
	ID   uuid.UUID
	User Profile
}

// ChatMessage carries one persisted message. Both recipients get an
// identical message view; only ChatInformation differs between the two.
type ChatMessage struct {
	Message Message
	Sender  Profile
	NewChat bool
	Chat    ChatInformation
}

func (ChatMessage) EnvelopeType() string { return TypeChatMessage }

func (e ChatMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireChatMessage{
		Type: TypeChatMessage,
		Message: messageView{
			ID:        e.Message.ID,
			Text:      e.Message.Text,
			CreatedAt: e.Message.CreatedAt,
			User: messageAuthor{
				ID:     e.Sender.ID,
				Name:   e.Sender.Name,
				Avatar: e.Sender.Avatar,
			},
		},
		NewChat: e.NewChat,
		Chat: wireChatInformation{
			ID:   e.Chat.ID,
			User: e.Chat.User,
		},
	})
}

// EncodeEnvelope is the serialization boundary towards the transport.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

type wireInformation struct {
	Type        string `json:"type"`
	NewMessages int    `json:"new_messages"`
}

type wireChatMessage struct {
	Type    string              `json:"type"`
	Message messageView         `json:"message_information"`
	NewChat bool                `json:"new_chat"`
	Chat    wireChatInformation `json:"chat_information"`
}

// messageView follows the chat-display shape the mobile client renders,
// hence the underscore-prefixed identifiers.
type messageView struct {
	ID        uuid.UUID     `json:"_id"`
	Text      string        `json:"text"`
	CreatedAt time.Time     `json:"createdAt"`
	User      messageAuthor `json:"user"`
}

type messageAuthor struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type wireChatInformation struct {
	ID   uuid.UUID `json:"id"`
	User Profile   `json:"user"`
}
