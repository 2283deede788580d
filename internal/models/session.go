package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

type SentimentScore struct {
	Label    SentimentLabel     `bson:"label" json:"label"`
	Score    float64            `bson:"score" json:"score"` // [-1, 1]
	Emotions map[string]float64 `bson:"emotions,omitempty" json:"emotions,omitempty"`
}

type ParticipantRecord struct {
	ParticipantID  string              `bson:"participant_id" json:"participant_id"`
	DisplayName    string              `bson:"display_name" json:"display_name"`
	SpeakerIndexes []int               `bson:"speaker_indexes" json:"speaker_indexes"`
	JoinedAt       time.Time           `bson:"joined_at" json:"joined_at"`
	LeftAt         *time.Time          `bson:"left_at,omitempty" json:"left_at,omitempty"`
	SpeakingMs     int64               `bson:"speaking_ms" json:"speaking_ms"`
	Sentiment      SentimentScore      `bson:"sentiment" json:"sentiment"`
	Transcript     []TranscriptSegment `bson:"transcript" json:"transcript"`
}

// AttendanceMs is zero until the participant has left.
func (p *ParticipantRecord) AttendanceMs() int64 {
	if p.LeftAt == nil {
		return 0
	}
	d := p.LeftAt.Sub(p.JoinedAt).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

type MeetingSession struct {
	ID           primitive.ObjectID            `bson:"_id,omitempty" json:"-"`
	SessionID    string                        `bson:"session_id" json:"session_id"` // uuid v4
	OwnerID      string                        `bson:"owner_id,omitempty" json:"owner_id,omitempty"`
	SourceURL    string                        `bson:"source_url" json:"source_url"`
	Status       SessionStatus                 `bson:"status" json:"status"`
	StartedAt    time.Time                     `bson:"started_at" json:"started_at"`
	EndedAt      *time.Time                    `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	Participants map[string]*ParticipantRecord `bson:"participants" json:"participants"`
	Transcript   []TranscriptSegment           `bson:"transcript" json:"transcript"`
	AudioChunks  int64                         `bson:"audio_chunks" json:"audio_chunks"`
	AudioBytes   int64                         `bson:"audio_bytes" json:"audio_bytes"`
	Degraded     bool                          `bson:"degraded,omitempty" json:"degraded,omitempty"`
}

func (s *MeetingSession) DurationMs(now time.Time) int64 {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	d := end.Sub(s.StartedAt).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

type SentimentDistribution struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

type SessionSummary struct {
	ParticipantCount      int                   `json:"participant_count"`
	TotalDurationMs       int64                 `json:"total_duration_ms"`
	TotalWordCount        int                   `json:"total_word_count"`
	AverageParticipation  float64               `json:"average_participation"`
	SentimentDistribution SentimentDistribution `json:"sentiment_distribution"`
}
