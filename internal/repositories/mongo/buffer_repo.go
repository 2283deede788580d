package mongo

import (
	"context"
	"time"

	"github.com/yoockh/meetsense/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	BufferPending = "pending"
	BufferDone    = "done"
	BufferFailed  = "failed"
)

// BufferRepository stores audio captured while recognition runs degraded.
type BufferRepository interface {
	InsertChunk(ctx context.Context, b *models.AudioBufferDoc) error
	ListPending(ctx context.Context, sessionID string, limit int64) ([]models.AudioBufferDoc, error)
	MarkStatus(ctx context.Context, sessionID string, chunkIndexes []int64, status string) error
}

type bufferRepo struct {
	col *mongo.Collection
	ttl time.Duration
}

func NewBufferRepo(db *mongo.Database, ttl time.Duration) BufferRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &bufferRepo{col: db.Collection("audio_buffer"), ttl: ttl}
}

func (r *bufferRepo) InsertChunk(ctx context.Context, b *models.AudioBufferDoc) error {
	if b.Timestamp.IsZero() {
		b.Timestamp = time.Now().UTC()
	}
	if b.ExpiresAt.IsZero() {
		b.ExpiresAt = b.Timestamp.Add(r.ttl)
	}
	if b.Status == "" {
		b.Status = BufferPending
	}
	_, err := r.col.InsertOne(ctx, b)
	return err
}

func (r *bufferRepo) ListPending(ctx context.Context, sessionID string, limit int64) ([]models.AudioBufferDoc, error) {
	if limit <= 0 {
		limit = 200
	}

	cur, err := r.col.Find(ctx,
		bson.M{"session_id": sessionID, "status": BufferPending},
		options.Find().
			SetSort(bson.D{{Key: "chunk_index", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.AudioBufferDoc
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *bufferRepo) MarkStatus(ctx context.Context, sessionID string, chunkIndexes []int64, status string) error {
	if len(chunkIndexes) == 0 {
		return nil
	}
	_, err := r.col.UpdateMany(ctx,
		bson.M{"session_id": sessionID, "chunk_index": bson.M{"$in": chunkIndexes}},
		bson.M{"$set": bson.M{"status": status}},
	)
	return err
}
