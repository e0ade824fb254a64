//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../mocks/mock_session.go -package=mocks
package services

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"rodina-chat/contract"
	"rodina-chat/domain"
	"rodina-chat/errors"
	"rodina-chat/moderation"
	"rodina-chat/repositories"
)

// State is the lifecycle of one connection: Connecting -> Open -> Closed.
// Closed is terminal; a new socket always starts a fresh session.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

type ISession interface {
	Connect(ctx context.Context) error
	HandleFrame(ctx context.Context, data []byte) error
	Disconnect()
}

// Session orchestrates one live connection: it owns the presence flag of
// its identity, the subscription to the identity's fan-out group, and the
// translation of inbound frames into conversation writes.
//
// Frames are handled one at a time by the transport's read loop, so no
// internal synchronization is needed on the message path. State and
// closeOnce only guard against the transport racing a disconnect.
type Session struct {
	log           *slog.Logger
	userID        string
	profile       domain.Profile
	presence      repositories.IPresenceRepository
	conversations repositories.IConversationRepository
	users         repositories.IUserRepository
	registry      contract.IRegistry
	sink          contract.Sink
	moderator     *moderation.Moderator

	state     atomic.Int32
	closeOnce sync.Once
}

func NewSession(
	log *slog.Logger,
	userID string,
	presence repositories.IPresenceRepository,
	conversations repositories.IConversationRepository,
	users repositories.IUserRepository,
	registry contract.IRegistry,
	sink contract.Sink,
	moderator *moderation.Moderator,
) *Session {
	return &Session{
		log:           log,
		userID:        userID,
		presence:      presence,
		conversations: conversations,
		users:         users,
		registry:      registry,
		sink:          sink,
		moderator:     moderator,
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Connect performs the Connecting -> Open transition. Side effects run in
// a fixed order: presence first, then the group subscription, then the
// unread counter hint. A presence failure aborts the connect before any
// subscription exists; a later storage failure unwinds both.
func (s *Session) Connect(ctx context.Context) error {
	if State(s.state.Load()) != StateConnecting {
		return errors.ErrSessionNotOpen
	}

	user, err := s.users.GetUser(s.userID)
	if err != nil {
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("identity lookup failed: %w", err)
	}
	s.profile = user.Profile()

	if err := s.presence.SetOnline(s.userID, true); err != nil {
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("presence update failed: %w", err)
	}

	s.registry.Subscribe(s.userID, s.sink)

	count, err := s.conversations.CountUnread(s.userID)
	if err != nil {
		s.registry.Unsubscribe(s.userID, s.sink)
		if offlineErr := s.presence.SetOnline(s.userID, false); offlineErr != nil {
			s.log.Error("Presence rollback failed", "user", s.userID, "error", offlineErr)
		}
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("unread count failed: %w", err)
	}

	s.state.Store(int32(StateOpen))

	if err := s.sink.Deliver(ctx, domain.Information{NewMessages: count}); err != nil {
		// The socket may already be gone; the read loop will notice.
		s.log.Warn("Information envelope delivery failed", "user", s.userID, "error", err)
	}
	return nil
}

// HandleFrame runs the message protocol for one inbound frame.
// Malformed frames, self-addressed frames and unknown receivers are
// dropped without acknowledgment: the client protocol has no error frame.
// A storage error aborts this single run and leaves the session Open.
func (s *Session) HandleFrame(ctx context.Context, data []byte) error {
	if State(s.state.Load()) != StateOpen {
		return errors.ErrSessionNotOpen
	}

	frame, err := domain.DecodeFrame(data)
	if err != nil {
		s.log.Warn("Dropping malformed frame", "user", s.userID, "error", err)
		return nil
	}

	receiverID := string(frame.Receiver)
	if receiverID == s.userID {
		// No self-messaging.
		return nil
	}

	err = s.deliverMessage(ctx, *frame.Text, receiverID)
	if goerrors.Is(err, errors.ErrUnknownReceiver) {
		s.log.Warn("Dropping frame for unknown receiver", "user", s.userID, "receiver", receiverID)
		return nil
	}
	return err
}

// Disconnect performs the Open -> Closed transition. The presence update
// is attempted exactly once however the disconnect happened, even on an
// abrupt socket error. Unsubscription is explicit so the group never
// keeps a dead handle.
func (s *Session) Disconnect() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.registry.Unsubscribe(s.userID, s.sink)
		if err := s.presence.SetOnline(s.userID, false); err != nil {
			s.log.Error("Presence offline update failed", "user", s.userID, "error", err)
		}
	})
}

// deliverMessage is steps 1-5 of the message protocol. Steps 1-3 are
// atomic: any failure there means no message row and no envelope. Once the
// append committed, publish failures no longer roll anything back, the
// message exists even if nobody was online to receive the live push.
func (s *Session) deliverMessage(ctx context.Context, text, receiverID string) error {
	receiver, err := s.users.GetUser(receiverID)
	if goerrors.Is(err, errors.ErrUnknownUser) {
		return errors.ErrUnknownReceiver
	}
	if err != nil {
		return fmt.Errorf("receiver lookup failed: %w", err)
	}

	conversation, isNew, err := s.conversations.GetOrCreate(s.userID, receiverID)
	if err != nil {
		return fmt.Errorf("conversation lookup failed: %w", err)
	}

	if s.moderator != nil {
		text = s.moderator.Censor(text)
	}

	message, err := s.conversations.AppendMessage(conversation, text, s.userID, receiverID)
	if err != nil {
		return fmt.Errorf("message append failed: %w", err)
	}

	senderEnvelope := domain.ChatMessage{
		Message: message,
		Sender:  s.profile,
		NewChat: isNew,
		Chat:    domain.ChatInformation{ID: conversation.ID, User: receiver.Profile()},
	}
	receiverEnvelope := domain.ChatMessage{
		Message: message,
		Sender:  s.profile,
		NewChat: isNew,
		Chat:    domain.ChatInformation{ID: conversation.ID, User: s.profile},
	}

	s.registry.Publish(ctx, s.userID, senderEnvelope)
	s.registry.Publish(ctx, receiverID, receiverEnvelope)
	return nil
}
