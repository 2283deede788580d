package stt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/utils"
)

const resultsMsg = `{
  "type": "Results",
  "is_final": true,
  "speech_final": true,
  "channel": {"alternatives": [{
    "transcript": "Hello everyone welcome",
    "confidence": 0.97,
    "words": [
      {"word": "hello", "start": 0.08, "end": 0.4, "confidence": 0.99, "speaker": 1},
      {"word": "everyone", "start": 0.4, "end": 0.9, "confidence": 0.98, "speaker": 1},
      {"word": "welcome", "start": 0.9, "end": 1.5, "confidence": 0.95, "speaker": 1}
    ]
  }]}
}`

func TestParseMessage(t *testing.T) {
	at := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	ev, ok, err := ParseMessage([]byte(resultsMsg), 0, at)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "Hello everyone welcome", ev.Text)
	assert.Equal(t, 1, ev.SpeakerIndex)
	assert.True(t, ev.IsFinal)
	assert.True(t, ev.SpeechFinal)
	assert.Equal(t, at, ev.ReceivedAt)
	require.Len(t, ev.Words, 3)
	assert.Equal(t, int64(80), ev.Words[0].StartMs)
	assert.Equal(t, int64(1500), ev.Words[2].EndMs)
}

func TestParseMessageAppliesOffset(t *testing.T) {
	ev, ok, err := ParseMessage([]byte(resultsMsg), 12_000, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(12_080), ev.Words[0].StartMs)
}

func TestParseMessageSkipsEmptyAndMetadata(t *testing.T) {
	for _, raw := range []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"","words":[]}]}}`,
		`{"type":"Metadata","request_id":"abc"}`,
		`{"type":"UtteranceEnd","last_word_end":3.1}`,
		`{"channel":{"alternatives":[]}}`,
	} {
		_, ok, err := ParseMessage([]byte(raw), 0, time.Now())
		assert.NoError(t, err, raw)
		assert.False(t, ok, raw)
	}
}

func TestParseMessageMalformed(t *testing.T) {
	_, ok, err := ParseMessage([]byte(`{"channel":`), 0, time.Now())
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeMalformedMessage))
}

func TestParseMessageWithoutSpeaker(t *testing.T) {
	raw := `{"is_final":false,"channel":{"alternatives":[{"transcript":"hmm","confidence":1.2,"words":[{"word":"hmm","start":1,"end":1.2,"confidence":0.5}]}]}}`
	ev, ok, err := ParseMessage([]byte(raw), 0, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, ev.SpeakerIndex)
	assert.Equal(t, 1.0, ev.Confidence)
	assert.Nil(t, ev.Words[0].Speaker)
}

func TestOptionsURL(t *testing.T) {
	u, err := DefaultOptions().URL()
	require.NoError(t, err)
	assert.Equal(t,
		"wss://api.deepgram.com/v1/listen?diarize=true&endpointing=300&interim_results=true&language=en-US&model=nova-2&profanity_filter=false&punctuate=true",
		u)
}

func TestParseMessageDominantSpeaker(t *testing.T) {
	raw := `{"is_final":true,"channel":{"alternatives":[{"transcript":"yes so as I said","confidence":0.9,"words":[
      {"word": "yes", "start": 0.1, "end": 0.3, "speaker": 0},
      {"word": "so", "start": 0.4, "end": 0.5, "speaker": 2},
      {"word": "as", "start": 0.5, "end": 0.6, "speaker": 2},
      {"word": "I", "start": 0.6, "end": 0.7},
      {"word": "said", "start": 0.7, "end": 0.9, "speaker": 2}
    ]}]}}`
	ev, ok, err := ParseMessage([]byte(raw), 0, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, ev.SpeakerIndex)
}

func TestDominantSpeakerTieGoesToFirstHeard(t *testing.T) {
	sp := func(i int) *int { return &i }
	words := []models.Word{{Speaker: sp(3)}, {Speaker: sp(1)}, {Speaker: sp(1)}, {Speaker: sp(3)}}
	assert.Equal(t, 3, dominantSpeaker(words))
	assert.Equal(t, 0, dominantSpeaker([]models.Word{{Word: "untagged"}}))
}
