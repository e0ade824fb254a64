//go:generate go run go.uber.org/mock/mockgen -source=presence.go -destination=../mocks/mock_presence_repository.go -package=mocks
package repositories

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
)

type IPresenceRepository interface {
	SetOnline(userID string, online bool) error
	IsOnline(userID string) (bool, error)
}

// PresenceRepository persists the online flag of a user. Writes are
// synchronous and never retried: presence must reflect reality or not
// change at all.
type PresenceRepository struct {
	db *badger.DB
}

func NewPresenceRepository(db *badger.DB) IPresenceRepository {
	return &PresenceRepository{db: db}
}

func (p PresenceRepository) SetOnline(userID string, online bool) error {
	value := []byte("0")
	if online {
		value = []byte("1")
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("presence:"+userID), value)
	})
}

func (p PresenceRepository) IsOnline(userID string) (bool, error) {
	var online bool
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("presence:" + userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			online = len(val) == 1 && val[0] == '1'
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return online, err
}
