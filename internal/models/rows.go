package models

import (
	"time"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/datatypes"
)

type SegmentRow struct {
	ID           string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID    string         `gorm:"column:session_id;type:uuid;index" json:"session_id"`
	Position     int            `gorm:"column:position;type:integer" json:"position"`
	SpeakerIndex int            `gorm:"column:speaker_index;type:integer" json:"speaker_index"`
	SpeakerLabel string         `gorm:"column:speaker_label;type:text" json:"speaker_label"`
	Text         string         `gorm:"column:text;type:text" json:"text"`
	StartMs      int64          `gorm:"column:start_ms;type:bigint" json:"start_ms"`
	EndMs        int64          `gorm:"column:end_ms;type:bigint" json:"end_ms"`
	Confidence   float64        `gorm:"column:confidence;type:double precision" json:"confidence"`
	Degraded     bool           `gorm:"column:degraded;type:boolean" json:"degraded"`
	Words        datatypes.JSON `gorm:"column:words;type:jsonb" json:"words"`
	CreatedAt    time.Time      `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (SegmentRow) TableName() string { return "transcript_segments" }

type ParticipantRow struct {
	SessionID      string         `gorm:"column:session_id;type:uuid;primaryKey" json:"session_id"`
	ParticipantID  string         `gorm:"column:participant_id;type:text;primaryKey" json:"participant_id"`
	DisplayName    string         `gorm:"column:display_name;type:text" json:"display_name"`
	SpeakerIndexes pq.Int64Array  `gorm:"column:speaker_indexes;type:bigint[]" json:"speaker_indexes"`
	JoinedAt       time.Time      `gorm:"column:joined_at;type:timestamptz" json:"joined_at"`
	LeftAt         *time.Time     `gorm:"column:left_at;type:timestamptz" json:"left_at"`
	SpeakingMs     int64          `gorm:"column:speaking_ms;type:bigint" json:"speaking_ms"`
	WordCount      int            `gorm:"column:word_count;type:integer" json:"word_count"`
	Sentiment      string         `gorm:"column:sentiment;type:text" json:"sentiment"`
	SentimentScore float64        `gorm:"column:sentiment_score;type:double precision" json:"sentiment_score"`
	Emotions       datatypes.JSON `gorm:"column:emotions;type:jsonb" json:"emotions"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (ParticipantRow) TableName() string { return "participant_reports" }

// AudioBufferDoc holds audio captured while the live recognizer is unavailable.
type AudioBufferDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID  string             `bson:"session_id" json:"session_id"`
	ChunkIndex int64              `bson:"chunk_index" json:"chunk_index"`
	MediaType  string             `bson:"media_type" json:"media_type"`
	Data       []byte             `bson:"data" json:"-"`
	Status     string             `bson:"status" json:"status"` // pending|done|failed
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}

type UserRole string

const (
	RoleParticipant UserRole = "participant"
	RoleHost        UserRole = "host"
	RoleAdmin       UserRole = "admin"
)
