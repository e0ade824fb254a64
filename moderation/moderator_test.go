package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestModerator(t *testing.T, words ...string) *Moderator {
	t.Helper()
	moderator, err := NewModerator(words, '*')
	require.NoError(t, err)
	return moderator
}

func Test_Censor_Masks_Forbidden_Word(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "idiot")

	req.Equal("you *****", moderator.Censor("you idiot"))
	req.Equal("*****!", moderator.Censor("Idiot!"))
}

func Test_Censor_Leaves_Clean_Text_Untouched(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "idiot")

	req.Equal("hello there", moderator.Censor("hello there"))
	req.Equal("", moderator.Censor(""))
}

func Test_Censor_Catches_Leet_Speak(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "idiot")

	req.Equal("*****", moderator.Censor("1d10t"))
	req.Equal("*******!", moderator.Censor("id_10_t!"))
}

func Test_Censor_Catches_Spaced_Out_Words(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "idiot")

	// Separators inside the word are masked along with it
	req.Equal("*********", moderator.Censor("i d i o t"))
}

func Test_Censor_Preserves_Surrounding_Text(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t, "merde")

	req.Equal("oh ***** alors", moderator.Censor("oh merde alors"))
}

func Test_Default_Moderator_Loads_Embedded_Dictionaries(t *testing.T) {
	req := require.New(t)

	moderator, err := NewDefaultModerator('*')
	req.NoError(err)
	req.NotNil(moderator)
}

func Test_Loader_Merges_Languages(t *testing.T) {
	req := require.New(t)

	data, err := NewCensoredLoader(censoredFS).LoadAll("censored")
	req.NoError(err)
	req.NotEmpty(data.Words)
	req.Contains(data.Languages, "en")
	req.Contains(data.Languages, "fr")
}
