package mongo

import (
	"context"
	"errors"

	"github.com/yoockh/meetsense/internal/models"
	"github.com/yoockh/meetsense/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SessionRepository interface {
	Save(ctx context.Context, s *models.MeetingSession) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.MeetingSession, error)
	ListByOwner(ctx context.Context, ownerID string, limit int64) ([]models.MeetingSession, error)
}

type sessionRepo struct {
	col *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepository {
	return &sessionRepo{col: db.Collection("sessions")}
}

// Save replaces the stored document for the session, inserting it if missing.
func (r *sessionRepo) Save(ctx context.Context, s *models.MeetingSession) error {
	doc := *s
	doc.ID = primitive.NilObjectID
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"session_id": s.SessionID},
		&doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *sessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.MeetingSession, error) {
	var s models.MeetingSession
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *sessionRepo) ListByOwner(ctx context.Context, ownerID string, limit int64) ([]models.MeetingSession, error) {
	if limit <= 0 {
		limit = 20
	}
	cur, err := r.col.Find(ctx,
		bson.M{"owner_id": ownerID},
		options.Find().
			SetSort(bson.D{{Key: "started_at", Value: -1}}).
			SetLimit(limit).
			SetProjection(bson.M{"transcript": 0, "participants.transcript": 0}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.MeetingSession
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
