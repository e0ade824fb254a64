package repositories

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rodina-chat/errors"
)

func Test_Create_And_Get_User(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	id, err := repository.CreateUser("Alice", "alice.png")
	req.NoError(err)
	req.NotEmpty(id)

	user, err := repository.GetUser(id)
	req.NoError(err)
	req.Equal("Alice", user.Name)
	req.Equal("alice.png", user.Avatar)
	req.Equal(id, user.ID)
}

func Test_Get_Unknown_User(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	_, err := repository.GetUser("nobody")
	req.ErrorIs(err, errors.ErrUnknownUser)
}
