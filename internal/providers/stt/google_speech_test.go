package stt

import (
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

func TestEventsFromResults(t *testing.T) {
	results := []*speechpb.SpeechRecognitionResult{
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: ""}}},
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{
			Transcript: "ship it",
			Confidence: 0.9,
			Words: []*speechpb.WordInfo{
				{Word: "ship", StartTime: durationpb.New(200 * time.Millisecond), EndTime: durationpb.New(500 * time.Millisecond), SpeakerTag: 2},
				{Word: "it", StartTime: durationpb.New(500 * time.Millisecond), EndTime: durationpb.New(700 * time.Millisecond), SpeakerTag: 2},
			},
		}}},
	}

	evs := eventsFromResults(results, 60_000, time.Now())
	require.Len(t, evs, 1)
	ev := evs[0]
	assert.True(t, ev.IsFinal)
	assert.Equal(t, 1, ev.SpeakerIndex)
	assert.Equal(t, int64(60_200), ev.Words[0].StartMs)
	assert.Equal(t, int64(60_700), ev.Words[1].EndMs)
	assert.InDelta(t, 0.9, ev.Confidence, 1e-6)
}
