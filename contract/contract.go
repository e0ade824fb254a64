//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"

	"rodina-chat/domain"
)

// Sink is one live delivery target, usually a websocket connection.
// Deliver must be safe for concurrent use; a failed delivery only
// concerns this sink and never the rest of its group.
type Sink interface {
	Deliver(ctx context.Context, e domain.Envelope) error
}

// IRegistry is the fan-out router: it maps a group name (one group per
// identity) to the set of that identity's live connections.
type IRegistry interface {
	Subscribe(groupID string, sink Sink)
	Unsubscribe(groupID string, sink Sink)
	Publish(ctx context.Context, groupID string, e domain.Envelope) int
}
