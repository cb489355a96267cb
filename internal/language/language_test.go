package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	d, err := New([]string{"en", "de", "fr"})
	require.NoError(t, err)

	cases := []struct {
		text string
		want string
	}{
		{"this is a transcript of a video about cooking pasta at home", "en"},
		{"das ist eine Abschrift eines Videos über das Kochen von Nudeln zu Hause", "de"},
		{"ceci est la transcription d'une vidéo sur la cuisine des pâtes à la maison", "fr"},
	}
	for _, tc := range cases {
		got, ok := d.Detect(tc.text)
		assert.True(t, ok, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}
}

func TestDetectShortText(t *testing.T) {
	d, err := New([]string{"en", "de"})
	require.NoError(t, err)

	_, ok := d.Detect("hello")
	assert.False(t, ok)
}

func TestNewRejectsBadCodes(t *testing.T) {
	_, err := New([]string{"en", "xx"})
	assert.Error(t, err)

	_, err = New([]string{"en"})
	assert.Error(t, err)
}
