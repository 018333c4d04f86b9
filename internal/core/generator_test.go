package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curaai.dev/cura/internal/store"
)

func TestAlternate(t *testing.T) {
	history := alternate([]Turn{
		{Role: store.RoleAI, Text: "greeting"},
		{Role: store.RoleUser, Text: "a"},
		{Role: store.RoleUser, Text: "b"},
		{Role: store.RoleAI, Text: "c"},
		{Role: store.RoleUser, Text: ""},
		{Role: store.RoleUser, Text: "dangling"},
	})
	assert.Equal(t, []Turn{
		{Role: store.RoleUser, Text: "a\n\nb"},
		{Role: store.RoleAI, Text: "c"},
	}, history)

	assert.Empty(t, alternate(nil))
	assert.Empty(t, alternate([]Turn{{Role: store.RoleUser, Text: "only a failed turn"}}))
}

func TestDecodeImage(t *testing.T) {
	img, err := DecodeImage("")
	require.NoError(t, err)
	assert.Nil(t, img)

	img, err = DecodeImage("data:image/webp;base64,UklGRg==")
	require.NoError(t, err)
	assert.Equal(t, "image/webp", img.MIMEType)
	assert.Equal(t, []byte("RIFF"), img.Data)

	// bare PNG signature is sniffed
	img, err = DecodeImage("iVBORw0KGgoAAAANSUhEUg==")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)

	// unknown bytes fall back to png
	img, err = DecodeImage("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)

	// unpadded
	img, err = DecodeImage("aGVsbG8")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), img.Data)

	_, err = DecodeImage("not base64 at all!")
	assert.ErrorIs(t, err, ErrInvalidImage)

	// a declared non-image type is refused, not relabelled
	_, err = DecodeImage("data:application/pdf;base64,JVBERi0xLjQ=")
	assert.ErrorIs(t, err, ErrInvalidImage)

	// an empty declared type is sniffed
	img, err = DecodeImage("data:;base64,iVBORw0KGgoAAAANSUhEUg==")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
}
