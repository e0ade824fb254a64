package test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"rodina-chat/domain"
	"rodina-chat/moderation"
	"rodina-chat/repositories"
	"rodina-chat/runtime"
	"rodina-chat/services"
)

// collectorSink records every envelope a session receives, standing in
// for a live websocket connection.
type collectorSink struct {
	envelopes chan domain.Envelope
}

func newCollectorSink() *collectorSink {
	return &collectorSink{envelopes: make(chan domain.Envelope, 16)}
}

func (s *collectorSink) Deliver(_ context.Context, e domain.Envelope) error {
	s.envelopes <- e
	return nil
}

func (s *collectorSink) next(t *testing.T) domain.Envelope {
	t.Helper()
	select {
	case e := <-s.envelopes:
		return e
	case <-time.After(time.Second):
		t.Fatal("no envelope received")
		return nil
	}
}

func (s *collectorSink) expectEmpty(t *testing.T) {
	t.Helper()
	select {
	case e := <-s.envelopes:
		t.Fatalf("unexpected envelope: %#v", e)
	default:
	}
}

func Test_Scenario(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := runtime.NewRegistry(log, time.Second)
	presenceRepository := repositories.NewPresenceRepository(db)
	conversationRepository := repositories.NewConversationRepository(db, log, nil)
	userRepository := repositories.NewUserRepository(db)
	moderator, err := moderation.NewModerator([]string{"flood"}, '*')
	req.NoError(err)

	u1, err := userRepository.CreateUser("Alice", "alice.png")
	req.NoError(err)
	u2, err := userRepository.CreateUser("Bob", "bob.png")
	req.NoError(err)

	newSession := func(userID string, sink *collectorSink) *services.Session {
		return services.NewSession(log, userID, presenceRepository,
			conversationRepository, userRepository, registry, sink, moderator)
	}

	// 1. u1 connects with an empty mailbox
	sink1 := newCollectorSink()
	session1 := newSession(u1, sink1)
	req.NoError(session1.Connect(ctx))
	req.Equal(domain.Information{NewMessages: 0}, sink1.next(t))

	online, err := presenceRepository.IsOnline(u1)
	req.NoError(err)
	req.True(online)

	// 2. u1 writes to u2 while u2 is offline: the message is stored and
	// only the sender gets a live envelope
	req.NoError(session1.HandleFrame(ctx, []byte(`{"text":"hello","receiver":"`+u2+`"}`)))

	toSender := sink1.next(t).(domain.ChatMessage)
	req.Equal("hello", toSender.Message.Text)
	req.True(toSender.NewChat)
	req.Equal("Bob", toSender.Chat.User.Name)

	// 3. u2 connects and is told one message waits
	sink2 := newCollectorSink()
	session2 := newSession(u2, sink2)
	req.NoError(session2.Connect(ctx))
	req.Equal(domain.Information{NewMessages: 1}, sink2.next(t))

	// 4. u1 writes again, now both sides get the live envelope and the
	// conversation is no longer new
	req.NoError(session1.HandleFrame(ctx, []byte(`{"text":"you flood me","receiver":"`+u2+`"}`)))

	toSender = sink1.next(t).(domain.ChatMessage)
	toReceiver := sink2.next(t).(domain.ChatMessage)
	req.False(toSender.NewChat)
	req.Equal(toSender.Message.ID, toReceiver.Message.ID)
	req.Equal("you ***** me", toReceiver.Message.Text)

	// Each viewer sees the other participant on the conversation label
	req.Equal("Bob", toSender.Chat.User.Name)
	req.Equal("Alice", toReceiver.Chat.User.Name)

	// 5. u2 reads the conversation and the backlog is cleared
	req.NoError(conversationRepository.MarkConversationRead(u2, toReceiver.Chat.ID))
	count, err := conversationRepository.CountUnread(u2)
	req.NoError(err)
	req.Equal(0, count)

	// 6. u2 disconnects: offline again, and later messages from u1 are
	// stored without reaching the dead sink
	session2.Disconnect()
	online, err = presenceRepository.IsOnline(u2)
	req.NoError(err)
	req.False(online)

	req.NoError(session1.HandleFrame(ctx, []byte(`{"text":"still there?","receiver":"`+u2+`"}`)))
	sink1.next(t)
	sink2.expectEmpty(t)

	count, err = conversationRepository.CountUnread(u2)
	req.NoError(err)
	req.Equal(1, count)

	// History keeps everything in reverse chronological order
	messages, _, err := conversationRepository.GetMessages(toReceiver.Chat.ID, nil)
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal("still there?", messages[0].Text)
	req.Equal("hello", messages[2].Text)

	session1.Disconnect()
	online, err = presenceRepository.IsOnline(u1)
	req.NoError(err)
	req.False(online)
}
