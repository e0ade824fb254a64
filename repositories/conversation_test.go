package repositories

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_GetOrCreate_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewConversationRepository(db, logs.GetLoggerFromLevel(slog.LevelError), nil)

	first, isNew, err := repository.GetOrCreate("u1", "u2")
	req.NoError(err)
	req.True(isNew)

	// Reversed participant order must resolve to the same conversation
	second, isNew, err := repository.GetOrCreate("u2", "u1")
	req.NoError(err)
	req.False(isNew)
	req.Equal(first.ID, second.ID)
	req.Equal("u1", second.ParticipantA)
	req.Equal("u2", second.ParticipantB)
}

func Test_GetOrCreate_Resolves_Concurrent_Creation_To_One_Row(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewConversationRepository(db, logs.GetLoggerFromLevel(slog.LevelError), nil)

	const sessions = 16
	var wg sync.WaitGroup
	ids := make([]string, sessions)
	created := make([]bool, sessions)
	errs := make([]error, sessions)

	// Half the sessions call with (u1,u2), half with (u2,u1), all at once
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			a, b := "u1", "u2"
			if n%2 == 1 {
				a, b = b, a
			}
			conversation, isNew, err := repository.GetOrCreate(a, b)
			ids[n] = conversation.ID.String()
			created[n] = isNew
			errs[n] = err
		}(i)
	}
	wg.Wait()

	newCount := 0
	for i := 0; i < sessions; i++ {
		req.NoError(errs[i])
		req.Equal(ids[0], ids[i])
		if created[i] {
			newCount++
		}
	}
	req.Equal(1, newCount, "exactly one caller must observe the creation")
}

func Test_Append_Message_Tracks_Unread_For_Receiver(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewConversationRepository(db, logs.GetLoggerFromLevel(slog.LevelError), nil)

	conversation, _, err := repository.GetOrCreate("u1", "u2")
	req.NoError(err)

	message, err := repository.AppendMessage(conversation, "hi", "u1", "u2")
	req.NoError(err)
	req.Equal(conversation.ID, message.ConversationID)
	req.Equal("u1", message.SenderID)
	req.Equal("u2", message.ReceiverID)

	count, err := repository.CountUnread("u2")
	req.NoError(err)
	req.Equal(1, count)

	// The sender holds no unread marker for their own message
	count, err = repository.CountUnread("u1")
	req.NoError(err)
	req.Equal(0, count)
}

func Test_Mark_Conversation_Read_Clears_Unread(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewConversationRepository(db, logs.GetLoggerFromLevel(slog.LevelError), nil)

	conversation, _, err := repository.GetOrCreate("u1", "u2")
	req.NoError(err)
	for i := 0; i < 3; i++ {
		_, err = repository.AppendMessage(conversation, fmt.Sprintf("msg %d", i), "u1", "u2")
		req.NoError(err)
	}

	other, _, err := repository.GetOrCreate("u3", "u2")
	req.NoError(err)
	_, err = repository.AppendMessage(other, "unrelated", "u3", "u2")
	req.NoError(err)

	req.NoError(repository.MarkConversationRead("u2", conversation.ID))

	// Only the marker of the other conversation survives
	count, err := repository.CountUnread("u2")
	req.NoError(err)
	req.Equal(1, count)
}

func Test_Get_Messages_Returns_Newest_First_With_Limit(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewConversationRepository(db, logs.GetLoggerFromLevel(slog.LevelError), lo.ToPtr(2))

	conversation, _, err := repository.GetOrCreate("u1", "u2")
	req.NoError(err)
	for i := 0; i < 3; i++ {
		_, err = repository.AppendMessage(conversation, fmt.Sprintf("msg %d", i), "u1", "u2")
		req.NoError(err)
	}

	page, cursor, err := repository.GetMessages(conversation.ID, nil)
	req.NoError(err)
	req.Len(page, 2)
	req.Equal("msg 2", page[0].Text)
	req.Equal("msg 1", page[1].Text)
	req.NotNil(cursor)

	rest, _, err := repository.GetMessages(conversation.ID, cursor)
	req.NoError(err)
	req.Len(rest, 1)
	req.Equal("msg 0", rest[0].Text)
}
