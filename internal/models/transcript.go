package models

import "time"

type AudioChunk struct {
	Data       []byte    `json:"-"`
	MediaType  string    `json:"media_type"` // ex: audio/webm;codecs=opus
	ReceivedAt time.Time `json:"received_at"`
}

type Word struct {
	Word       string  `bson:"word" json:"word"`
	StartMs    int64   `bson:"start_ms" json:"start_ms"`
	EndMs      int64   `bson:"end_ms" json:"end_ms"`
	Confidence float64 `bson:"confidence" json:"confidence"`
	Speaker    *int    `bson:"speaker,omitempty" json:"speaker,omitempty"`
}

// RecognitionEvent is one hypothesis emitted by the recognition backend.
type RecognitionEvent struct {
	SpeakerIndex int       `json:"speaker_index"`
	Text         string    `json:"text"`
	Words        []Word    `json:"words,omitempty"`
	Confidence   float64   `json:"confidence"`
	IsFinal      bool      `json:"is_final"`
	SpeechFinal  bool      `json:"speech_final"`
	ReceivedAt   time.Time `json:"received_at"`
}

type TranscriptSegment struct {
	SpeakerLabel string  `bson:"speaker_label" json:"speaker_label"`
	SpeakerIndex int     `bson:"speaker_index" json:"speaker_index"`
	Text         string  `bson:"text" json:"text"`
	StartMs      int64   `bson:"start_ms" json:"start_ms"`
	EndMs        int64   `bson:"end_ms" json:"end_ms"`
	Confidence   float64 `bson:"confidence" json:"confidence"`
	Words        []Word  `bson:"words,omitempty" json:"words,omitempty"`
	Final        bool    `bson:"final" json:"final"`
	Degraded     bool    `bson:"degraded,omitempty" json:"degraded,omitempty"` // no word timing from backend
}

func (s TranscriptSegment) DurationMs() int64 {
	if s.EndMs <= s.StartMs {
		return 0
	}
	return s.EndMs - s.StartMs
}

// ClampConfidence keeps c inside [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
