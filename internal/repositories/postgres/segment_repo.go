package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/yoockh/meetsense/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SegmentRepository interface {
	// ReplaceSession swaps the stored transcript of a session in one transaction.
	ReplaceSession(ctx context.Context, sessionID string, rows []models.SegmentRow) error
}

type segmentRepo struct {
	db *gorm.DB
}

func NewSegmentRepo(db *gorm.DB) SegmentRepository {
	return &segmentRepo{db: db}
}

func (r *segmentRepo) ReplaceSession(ctx context.Context, sessionID string, rows []models.SegmentRow) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.SegmentRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
}

// SegmentRows flattens a session transcript into table rows.
func SegmentRows(s *models.MeetingSession, at time.Time) ([]models.SegmentRow, error) {
	rows := make([]models.SegmentRow, 0, len(s.Transcript))
	for i, seg := range s.Transcript {
		words, err := json.Marshal(seg.Words)
		if err != nil {
			return nil, err
		}
		rows = append(rows, models.SegmentRow{
			ID:           uuid.NewString(),
			SessionID:    s.SessionID,
			Position:     i,
			SpeakerIndex: seg.SpeakerIndex,
			SpeakerLabel: seg.SpeakerLabel,
			Text:         seg.Text,
			StartMs:      seg.StartMs,
			EndMs:        seg.EndMs,
			Confidence:   seg.Confidence,
			Degraded:     seg.Degraded,
			Words:        datatypes.JSON(words),
			CreatedAt:    at.UTC(),
		})
	}
	return rows, nil
}
