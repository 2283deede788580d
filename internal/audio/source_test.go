package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/meetsense/internal/utils"
)

func TestSelectPrefersPrimary(t *testing.T) {
	display := NewChannelSource(KindDisplay, "audio/webm", true, 1)
	mic := NewChannelSource(KindMicrophone, "audio/webm", true, 1)

	got, err := Select(display, mic)
	require.NoError(t, err)
	assert.Equal(t, KindDisplay, got.Kind())
	assert.False(t, mic.Push([]byte{1}), "unused fallback is closed")
}

func TestSelectFallsBack(t *testing.T) {
	display := NewChannelSource(KindDisplay, "audio/webm", false, 1)
	mic := NewChannelSource(KindMicrophone, "audio/ogg", true, 1)

	got, err := Select(display, mic)
	require.NoError(t, err)
	assert.Equal(t, KindMicrophone, got.Kind())
	assert.Equal(t, "audio/ogg", got.MediaType())
}

func TestSelectNoAudio(t *testing.T) {
	_, err := Select(NewChannelSource(KindDisplay, "", false, 1), nil)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeNoAudioSource))

	_, err = Select(nil, nil)
	assert.True(t, utils.IsCode(err, utils.CodeNoAudioSource))
}

func TestChannelSourcePushAndClose(t *testing.T) {
	s := NewChannelSource(KindDisplay, "audio/webm", true, 1)
	require.True(t, s.Push([]byte("a")))
	assert.False(t, s.Push([]byte("b")), "full buffer drops")

	c := <-s.Chunks()
	assert.Equal(t, []byte("a"), c.Data)
	assert.Equal(t, "audio/webm", c.MediaType)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.Push([]byte("c")))
	_, ok := <-s.Chunks()
	assert.False(t, ok)
}
