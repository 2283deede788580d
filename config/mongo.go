package config

import (
	"context"
	"crypto/tls"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	MongoClient *mongo.Client
	MongoDB     *mongo.Database
)

// InitMongo connects and pings. Session documents and the degraded-mode
// audio buffer live here.
func InitMongo(cfg MongoConfig) error {
	if cfg.URI == "" {
		return errors.New("mongo uri is not set (MONGO_URI or [mongo].uri)")
	}
	uri := cfg.URI

	// Context with timeout for initial connection
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(uri).
		SetServerSelectionTimeout(20 * time.Second).
		SetConnectTimeout(15 * time.Second).
		SetMaxPoolSize(10).
		SetMinPoolSize(1)

	// Atlas clusters that reject the default TLS negotiation
	if os.Getenv("MONGO_FORCE_TLS_CONFIG") == "true" || os.Getenv("GO_ENV") == "development" {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: os.Getenv("MONGO_INSECURE_TLS") == "true",
			MinVersion:         tls.VersionTLS12,
			MaxVersion:         tls.VersionTLS12,
		}
		clientOpts = clientOpts.SetTLSConfig(tlsConfig)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return err
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return err
	}

	MongoClient = client
	MongoDB = client.Database(cfg.DB)
	return nil
}
