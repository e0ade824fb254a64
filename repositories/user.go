//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	goerrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"rodina-chat/domain"
	"rodina-chat/errors"
)

type IUserRepository interface {
	CreateUser(name, avatar string) (string, error)
	GetUser(id string) (domain.User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// diskUser is the repository-layer representation of a user profile.
// The online flag lives under its own presence key, not here.
type diskUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// CreateUser persists a new profile and returns the generated user ID.
func (u UserRepository) CreateUser(name, avatar string) (string, error) {
	newID := uuid.New().String()
	data, err := json.Marshal(diskUser{ID: newID, Name: name, Avatar: avatar})
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("user:"+newID), data)
	})
	return newID, err
}

// GetUser retrieves a profile by ID. A missing key maps to ErrUnknownUser
// so callers can distinguish "no such identity" from storage failures.
func (u UserRepository) GetUser(id string) (domain.User, error) {
	var disk diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:" + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		})
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUnknownUser
	}
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: disk.ID, Name: disk.Name, Avatar: disk.Avatar}, nil
}
