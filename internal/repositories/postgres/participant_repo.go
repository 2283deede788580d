package postgres

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/yoockh/meetsense/internal/analytics"
	"github.com/yoockh/meetsense/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ParticipantRepository interface {
	UpsertMany(ctx context.Context, rows []models.ParticipantRow) error
}

type participantRepo struct {
	db *gorm.DB
}

func NewParticipantRepo(db *gorm.DB) ParticipantRepository {
	return &participantRepo{db: db}
}

func (r *participantRepo) UpsertMany(ctx context.Context, rows []models.ParticipantRow) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}, {Name: "participant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name", "speaker_indexes", "joined_at", "left_at", "speaking_ms",
				"word_count", "sentiment", "sentiment_score", "emotions", "updated_at",
			}),
		}).
		Create(&rows).Error
}

// ParticipantRows builds one report row per participant.
func ParticipantRows(s *models.MeetingSession, at time.Time) ([]models.ParticipantRow, error) {
	rows := make([]models.ParticipantRow, 0, len(s.Participants))
	for _, p := range s.Participants {
		emotions, err := json.Marshal(p.Sentiment.Emotions)
		if err != nil {
			return nil, err
		}
		idx := make(pq.Int64Array, 0, len(p.SpeakerIndexes))
		for _, i := range p.SpeakerIndexes {
			idx = append(idx, int64(i))
		}
		rows = append(rows, models.ParticipantRow{
			SessionID:      s.SessionID,
			ParticipantID:  p.ParticipantID,
			DisplayName:    p.DisplayName,
			SpeakerIndexes: idx,
			JoinedAt:       p.JoinedAt,
			LeftAt:         p.LeftAt,
			SpeakingMs:     p.SpeakingMs,
			WordCount:      analytics.ParticipantWordCount(p),
			Sentiment:      string(p.Sentiment.Label),
			SentimentScore: p.Sentiment.Score,
			Emotions:       datatypes.JSON(emotions),
			UpdatedAt:      at.UTC(),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ParticipantID < rows[j].ParticipantID })
	return rows, nil
}
