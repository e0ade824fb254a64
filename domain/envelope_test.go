package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Information_Wire_Shape(t *testing.T) {
	req := require.New(t)

	data, err := EncodeEnvelope(Information{NewMessages: 0})
	req.NoError(err)
	req.JSONEq(`{"type":"information","new_messages":0}`, string(data))
}

func Test_ChatMessage_Wire_Shape(t *testing.T) {
	req := require.New(t)

	messageID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	conversationID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	at := time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)

	envelope := ChatMessage{
		Message: Message{
			ID:             messageID,
			ConversationID: conversationID,
			SenderID:       "u1",
			ReceiverID:     "u2",
			Text:           "hi",
			CreatedAt:      at,
		},
		Sender:  Profile{ID: "u1", Name: "Alice", Avatar: "a.png"},
		NewChat: true,
		Chat: ChatInformation{
			ID:   conversationID,
			User: Profile{ID: "u2", Name: "Bob", Avatar: "b.png"},
		},
	}

	data, err := EncodeEnvelope(envelope)
	req.NoError(err)
	req.JSONEq(`{
		"type": "chat_message",
		"message_information": {
			"_id": "11111111-1111-1111-1111-111111111111",
			"text": "hi",
			"createdAt": "2024-05-17T10:30:00Z",
			"user": {"_id": "u1", "name": "Alice", "avatar": "a.png"}
		},
		"new_chat": true,
		"chat_information": {
			"id": "22222222-2222-2222-2222-222222222222",
			"user": {"id": "u2", "name": "Bob", "avatar": "b.png"}
		}
	}`, string(data))
}

func Test_Envelope_Type_Tag_Drives_Decoding(t *testing.T) {
	req := require.New(t)

	data, err := EncodeEnvelope(Information{NewMessages: 3})
	req.NoError(err)

	var tagged struct {
		Type string `json:"type"`
	}
	req.NoError(json.Unmarshal(data, &tagged))
	req.Equal(TypeInformation, tagged.Type)
}
