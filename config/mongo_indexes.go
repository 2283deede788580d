package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes() error {
	if MongoDB == nil {
		return errors.New("MongoDB is nil; call InitMongo() first")
	}
	db := MongoDB

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// audio_buffer indexes
	buffer := db.Collection("audio_buffer")
	_, err := buffer.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// TTL index: expire at ExpiresAt (must be Date)
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("ttl_expires_at").
				SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "chunk_index", Value: 1}},
			Options: options.Index().
				SetName("uniq_session_chunk").
				SetUnique(true),
		},
		// ListPending
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "status", Value: 1}, {Key: "chunk_index", Value: 1}},
			Options: options.Index().SetName("by_session_status_chunk"),
		},
	})
	if err != nil {
		return err
	}

	sessions := db.Collection("sessions")
	_, err = sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_session_id").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "started_at", Value: -1}},
			Options: options.Index().SetName("by_owner_started"),
		},
	})
	return err
}
