//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"rodina-chat/domain"
)

type IConversationRepository interface {
	GetOrCreate(a, b string) (domain.Conversation, bool, error)
	AppendMessage(conversation domain.Conversation, text, senderID, receiverID string) (domain.Message, error)
	CountUnread(userID string) (int, error)
	MarkConversationRead(userID string, conversationID uuid.UUID) error
	GetMessages(conversationID uuid.UUID, cursor *string) ([]domain.Message, *string, error)
}

type ConversationRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewConversationRepository(db *badger.DB, log *slog.Logger, limitMessages *int) ConversationRepository {
	return ConversationRepository{db: db, log: log, limitMessages: limitMessages}
}

// GetOrCreate looks up the conversation for an unordered pair of
// participants, creating it on first contact. Both participants may race
// here from their own sessions: the canonical pair key plus Badger's SSI
// conflict detection resolve the race to a single row. On ErrConflict the
// transaction is retried and re-reads the winner's conversation.
func (r ConversationRepository) GetOrCreate(a, b string) (domain.Conversation, bool, error) {
	first, second := domain.PairKey(a, b)
	key := []byte(fmt.Sprintf("conv:%s:%s", first, second))

	for {
		var conv domain.Conversation
		var isNew bool
		err := r.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err == nil {
				isNew = false
				return item.Value(func(val []byte) error {
					conv, err = toConversation(val)
					return err
				})
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			conv = domain.Conversation{
				ID:           uuid.New(),
				ParticipantA: first,
				ParticipantB: second,
				CreatedAt:    time.Now().UTC(),
			}
			isNew = true
			data, err := json.Marshal(fromConversation(conv))
			if err != nil {
				return err
			}
			return txn.Set(key, data)
		})
		if errors.Is(err, badger.ErrConflict) {
			r.log.Debug("Concurrent conversation creation, retrying", "key", string(key))
			continue
		}
		if err != nil {
			return domain.Conversation{}, false, err
		}
		return conv, isNew, nil
	}
}

// AppendMessage persists a message and its unread marker for the receiver
// in a single transaction: either both commit or neither does.
//
// The message key is formatted as "msg:{conversation_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func (r ConversationRepository) AppendMessage(conversation domain.Conversation, text, senderID, receiverID string) (domain.Message, error) {
	msg := domain.Message{
		ID:             uuid.New(),
		ConversationID: conversation.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return domain.Message{}, err
	}

	key := messageKey(conversation.ID, msg.CreatedAt, msg.ID)
	unreadKey := unreadKey(receiverID, conversation.ID, msg.ID)
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(unreadKey, nil)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// CountUnread counts unread markers for a user. It is a key-only prefix
// scan used for the connect-time hint; eventual consistency is fine here.
func (r ConversationRepository) CountUnread(userID string) (int, error) {
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(fmt.Sprintf("unread:%s:", userID))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// MarkConversationRead drops every unread marker the user holds for one
// conversation. Called when the client opens the chat.
func (r ConversationRepository) MarkConversationRead(userID string, conversationID uuid.UUID) error {
	prefix := []byte(fmt.Sprintf("unread:%s:%s:", userID, conversationID))
	var keys [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetMessages retrieves the newest messages of a conversation using a
// reverse prefix scan. Thanks to the padded timestamp in the key, messages
// are naturally sorted by time. It stops collecting messages once the
// configured limitMessages is reached and returns a cursor for the next page.
func (r ConversationRepository) GetMessages(conversationID uuid.UUID, cursor *string) ([]domain.Message, *string, error) {
	var rawMessages [][]byte
	var lastKey string
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", conversationID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible key, then walk backwards
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && len(rawMessages) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d message reached", *r.limitMessages))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				rawMessages = append(rawMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var messages []domain.Message
	for _, raw := range rawMessages {
		message, err := toMessage(raw)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	return messages, lo.ToPtr(lastKey), nil
}

func messageKey(conversationID uuid.UUID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversationID, at.UnixNano(), id))
}

func unreadKey(receiverID string, conversationID, messageID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("unread:%s:%s:%s", receiverID, conversationID, messageID))
}

type diskConversation struct {
	ID           string `json:"id"`
	ParticipantA string `json:"participant_a"`
	ParticipantB string `json:"participant_b"`
	CreatedAt    int64  `json:"created_at"`
}

type diskMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Sender         string `json:"sender"`
	Receiver       string `json:"receiver"`
	Text           string `json:"text"`
	At             int64  `json:"at"`
}

func fromConversation(c domain.Conversation) diskConversation {
	return diskConversation{
		ID:           c.ID.String(),
		ParticipantA: c.ParticipantA,
		ParticipantB: c.ParticipantB,
		CreatedAt:    c.CreatedAt.UnixNano(),
	}
}

func toConversation(data []byte) (domain.Conversation, error) {
	var disk diskConversation
	if err := json.Unmarshal(data, &disk); err != nil {
		return domain.Conversation{}, err
	}
	parsedID, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		ID:           parsedID,
		ParticipantA: disk.ParticipantA,
		ParticipantB: disk.ParticipantB,
		CreatedAt:    time.Unix(0, disk.CreatedAt).UTC(),
	}, nil
}

func fromMessage(m domain.Message) diskMessage {
	return diskMessage{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		Sender:         m.SenderID,
		Receiver:       m.ReceiverID,
		Text:           m.Text,
		At:             m.CreatedAt.UnixNano(),
	}
}

func toMessage(data []byte) (domain.Message, error) {
	var disk diskMessage
	if err := json.Unmarshal(data, &disk); err != nil {
		return domain.Message{}, err
	}
	parsedID, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	parsedConversationID, err := uuid.Parse(disk.ConversationID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             parsedID,
		ConversationID: parsedConversationID,
		SenderID:       disk.Sender,
		ReceiverID:     disk.Receiver,
		Text:           disk.Text,
		CreatedAt:      time.Unix(0, disk.At).UTC(),
	}, nil
}
