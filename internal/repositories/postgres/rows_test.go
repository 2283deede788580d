package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/meetsense/internal/models"
)

func TestRowsFromSession(t *testing.T) {
	start := time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)
	sp := 0
	s := &models.MeetingSession{
		SessionID: "5d6f0e4e-8f0c-4b38-9b65-3f1f9c0c2d11",
		StartedAt: start,
		Transcript: []models.TranscriptSegment{
			{SpeakerLabel: "Speaker 0", Text: "hello there", StartMs: 0, EndMs: 900,
				Words: []models.Word{{Word: "hello", StartMs: 0, EndMs: 400, Speaker: &sp}}},
			{SpeakerLabel: "Speaker 1", SpeakerIndex: 1, Text: "hi", StartMs: 1000, EndMs: 1200},
		},
		Participants: map[string]*models.ParticipantRecord{
			"unknown_1": {ParticipantID: "unknown_1", SpeakerIndexes: []int{1}, SpeakingMs: 200,
				Transcript: []models.TranscriptSegment{{Text: "hi"}}},
			"u-1": {ParticipantID: "u-1", DisplayName: "Ada", SpeakerIndexes: []int{0, 2}, SpeakingMs: 900,
				Sentiment:  models.SentimentScore{Label: models.SentimentPositive, Score: 0.5, Emotions: map[string]float64{"joy": 1}},
				Transcript: []models.TranscriptSegment{{Text: "hello there"}}},
		},
	}

	segs, err := SegmentRows(s, start)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, 1, segs[1].Position)
	assert.NotEmpty(t, segs[0].ID)
	var words []models.Word
	require.NoError(t, json.Unmarshal(segs[0].Words, &words))
	assert.Equal(t, "hello", words[0].Word)

	parts, err := ParticipantRows(s, start)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "u-1", parts[0].ParticipantID)
	assert.Equal(t, pq.Int64Array{0, 2}, parts[0].SpeakerIndexes)
	assert.Equal(t, 2, parts[0].WordCount)
	assert.JSONEq(t, `{"joy":1}`, string(parts[0].Emotions))
	assert.Equal(t, "", parts[1].Sentiment)
}
