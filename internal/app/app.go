package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/meetsense/config"
	"github.com/yoockh/meetsense/internal/analytics"
	"github.com/yoockh/meetsense/internal/bot"
	"github.com/yoockh/meetsense/internal/cache"
	"github.com/yoockh/meetsense/internal/providers/llm"
	"github.com/yoockh/meetsense/internal/providers/stt"
	mongorepo "github.com/yoockh/meetsense/internal/repositories/mongo"
	pgrepo "github.com/yoockh/meetsense/internal/repositories/postgres"
	"github.com/yoockh/meetsense/internal/services"
	"github.com/yoockh/meetsense/internal/shell"
	"github.com/yoockh/meetsense/internal/storage"
	"github.com/yoockh/meetsense/internal/workers"
)

const botSystemPrompt = "You are a meeting assistant listening to a live call. Answer in one or two short spoken sentences."

type App struct {
	Sessions services.SessionService
	Buffers  services.BufferService
	Shell    shell.Service
	Redis    *cache.RedisCache

	closers []func() error
}

// New connects every store named in cfg and wires the services. Call Close
// when done.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	a := &App{}

	if err := config.InitMongo(cfg.Mongo); err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Warn("mongo index setup failed")
	}
	a.closers = append(a.closers, func() error { return config.MongoClient.Disconnect(context.Background()) })

	if err := config.InitPostgres(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := config.InitRedis(cfg.Redis); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.closers = append(a.closers, config.RedisClient.Close)
	a.Redis = cache.NewRedisCache(config.RedisClient)

	buffers := mongorepo.NewBufferRepo(config.MongoDB, cfg.Mongo.BufferTTL)

	var batch stt.BatchRecognizer
	if cfg.Recognition.BatchFallback {
		gs, err := stt.NewGoogleSpeech(ctx, cfg.Recognition.Language)
		if err != nil {
			log.WithError(err).Warn("batch recognition disabled")
		} else {
			batch = gs
			a.closers = append(a.closers, gs.Close)
		}
	}

	uploader, closeUploader, err := NewUploader(ctx, cfg.Storage)
	if err != nil {
		log.WithError(err).Warn("report archive disabled")
	}
	if closeUploader != nil {
		a.closers = append(a.closers, closeUploader)
	}

	var newBot func() *bot.Dispatcher
	if cfg.Bot.Enabled {
		responder, closeResponder := NewResponder(ctx, cfg.Bot, log)
		if closeResponder != nil {
			a.closers = append(a.closers, closeResponder)
		}
		newBot = func() *bot.Dispatcher {
			return &bot.Dispatcher{
				Trigger:   bot.NewTrigger(cfg.Bot.Phrases...),
				Responder: responder,
				Sink:      bot.PublisherSink{Pub: a.Redis},
				Logger:    log,
			}
		}
	}

	liveOpts := stt.DefaultOptions()
	liveOpts.APIKey = cfg.Recognition.APIKey
	liveOpts.Endpoint = cfg.Recognition.Endpoint
	liveOpts.Model = cfg.Recognition.Model
	liveOpts.Language = cfg.Recognition.Language
	liveOpts.MaxRetries = cfg.Recognition.MaxRetries

	a.Sessions = services.NewSessionService(services.SessionDeps{
		Aggregator: analytics.NewAggregator(),
		NewLive: func() workers.LiveRecognizer {
			return stt.NewLiveClient(liveOpts, log)
		},
		Sessions:     mongorepo.NewSessionRepo(config.MongoDB),
		Batch:        batch,
		Buffers:      buffers,
		Segments:     pgrepo.NewSegmentRepo(config.PostgresDB),
		Participants: pgrepo.NewParticipantRepo(config.PostgresDB),
		Cache:        a.Redis,
		Publisher:    a.Redis,
		Uploader:     uploader,
		NewBot:       newBot,
		Logger:       log,
		BatchChunks:  cfg.Recognition.BatchChunks,
		LeaveTimeout: cfg.Server.LeaveTimeout,
		SummaryTTL:   cfg.Redis.SummaryTTL,
		LinkTTL:      cfg.Storage.LinkTTL,
	})
	a.Buffers = services.NewBufferService(buffers)
	a.Shell = shell.NewService(shell.NewMemoryHost(), log)

	return a, nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewUploader returns nil when archiving is switched off.
func NewUploader(ctx context.Context, cfg config.StorageConfig) (storage.Uploader, func() error, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil, nil
	case "gcs":
		if cfg.Bucket == "" {
			return nil, nil, errors.New("storage bucket is not set")
		}
		u, err := storage.NewGCSUploader(ctx, cfg.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return u, u.Close, nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, nil, errors.New("storage bucket is not set")
		}
		client := storage.NewS3Client(storage.S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		return storage.NewS3Uploader(client, s3.NewPresignClient(client), cfg.Bucket, cfg.Prefix), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// NewResponder picks the bot's answer source. Providers that fail to
// initialise fall back to templates.
func NewResponder(ctx context.Context, cfg config.BotConfig, log *logrus.Logger) (bot.Responder, func() error) {
	var p llm.Provider
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIKey == "" {
			log.Warn("bot provider openai without OPENAI_API_KEY, using templates")
			return bot.TemplateResponder{}, nil
		}
		p = llm.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, botSystemPrompt)
	case "vertex":
		v, err := llm.NewVertexGemini(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.VertexModel, botSystemPrompt)
		if err != nil {
			log.WithError(err).Warn("vertex init failed, using templates")
			return bot.TemplateResponder{}, nil
		}
		p = v
	default:
		return bot.TemplateResponder{}, nil
	}
	return &bot.LLMResponder{Provider: p, Fallback: bot.TemplateResponder{}, MaxContext: 12}, p.Close
}
