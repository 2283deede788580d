package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig      `toml:"server"`
	Auth        AuthConfig        `toml:"auth"`
	Mongo       MongoConfig       `toml:"mongo"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	Recognition RecognitionConfig `toml:"recognition"`
	Bot         BotConfig         `toml:"bot"`
	Storage     StorageConfig     `toml:"storage"`
}

type ServerConfig struct {
	Port         string        `toml:"port"`
	GinMode      string        `toml:"gin_mode"`
	LeaveTimeout time.Duration `toml:"leave_timeout"`
}

type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`
	JWTIssuer   string `toml:"jwt_issuer"`
	JWTAudience string `toml:"jwt_audience"`
}

type MongoConfig struct {
	URI       string        `toml:"uri"`
	DB        string        `toml:"db"`
	BufferTTL time.Duration `toml:"buffer_ttl"`
}

type PostgresConfig struct {
	URI         string `toml:"uri"`
	AutoMigrate bool   `toml:"auto_migrate"`
}

type RedisConfig struct {
	Addr       string        `toml:"addr"`
	SummaryTTL time.Duration `toml:"summary_ttl"`
}

type RecognitionConfig struct {
	APIKey      string `toml:"api_key"`
	Endpoint    string `toml:"endpoint"`
	Model       string `toml:"model"`
	Language    string `toml:"language"`
	MaxRetries  int    `toml:"max_retries"`
	BatchChunks int    `toml:"batch_chunks"`
	// BatchFallback enables Google Speech for audio captured while degraded.
	BatchFallback bool `toml:"batch_fallback"`
}

type BotConfig struct {
	Enabled  bool     `toml:"enabled"`
	Phrases  []string `toml:"phrases"`
	Provider string   `toml:"provider"` // template|openai|vertex

	OpenAIKey      string `toml:"openai_key"`
	OpenAIModel    string `toml:"openai_model"`
	VertexProject  string `toml:"vertex_project"`
	VertexLocation string `toml:"vertex_location"`
	VertexModel    string `toml:"vertex_model"`
}

type StorageConfig struct {
	Provider string `toml:"provider"` // none|gcs|s3
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	// LinkTTL is how long signed report links stay valid.
	LinkTTL time.Duration `toml:"link_ttl"`

	S3Region    string `toml:"s3_region"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{Port: "8080", GinMode: "release", LeaveTimeout: 10 * time.Second},
		Mongo:  MongoConfig{DB: "meetsense", BufferTTL: 24 * time.Hour},
		Redis:  RedisConfig{SummaryTTL: 24 * time.Hour},
		Recognition: RecognitionConfig{
			Endpoint:    "wss://api.deepgram.com/v1/listen",
			Model:       "nova-2",
			Language:    "en-US",
			MaxRetries:  3,
			BatchChunks: 15,
		},
		Bot: BotConfig{
			Phrases:        []string{"hey meetsense", "ok meetsense"},
			Provider:       "template",
			OpenAIModel:    "gpt-4o-mini",
			VertexLocation: "us-central1",
			VertexModel:    "gemini-1.5-flash",
		},
		Storage: StorageConfig{Provider: "none", Prefix: "meetsense", LinkTTL: time.Hour, S3Region: "us-east-1"},
	}
}

// Load reads defaults, then the TOML file, then environment overrides.
// A missing file is fine; a malformed one is not.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := FilePath(); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("config %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FilePath is MEETSENSE_CONFIG, else $XDG_CONFIG_HOME/meetsense/config.toml.
func FilePath() string {
	if p := os.Getenv("MEETSENSE_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "meetsense", "config.toml")
}

func applyEnv(cfg *Config) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	str(&cfg.Server.Port, "PORT")
	str(&cfg.Server.GinMode, "GIN_MODE")
	str(&cfg.Auth.JWTSecret, "JWT_SECRET", "SUPABASE_JWT_SECRET")
	str(&cfg.Auth.JWTIssuer, "JWT_ISSUER")
	str(&cfg.Auth.JWTAudience, "JWT_AUDIENCE")
	str(&cfg.Mongo.URI, "MONGO_URI")
	str(&cfg.Mongo.DB, "MONGO_DB")
	str(&cfg.Postgres.URI, "POSTGRES_URI")
	str(&cfg.Redis.Addr, "REDIS_ADDR", "REDIS_URI", "REDIS_URL")
	str(&cfg.Recognition.APIKey, "DEEPGRAM_API_KEY")
	str(&cfg.Recognition.Endpoint, "DEEPGRAM_ENDPOINT")
	str(&cfg.Recognition.Language, "RECOGNITION_LANGUAGE")
	str(&cfg.Bot.Provider, "BOT_PROVIDER")
	str(&cfg.Bot.OpenAIKey, "OPENAI_API_KEY")
	str(&cfg.Bot.VertexProject, "GOOGLE_CLOUD_PROJECT")
	str(&cfg.Storage.Provider, "STORAGE_PROVIDER")
	str(&cfg.Storage.Bucket, "STORAGE_BUCKET", "GCS_BUCKET")
	str(&cfg.Storage.S3Endpoint, "S3_ENDPOINT")
	str(&cfg.Storage.S3Region, "AWS_REGION")
	str(&cfg.Storage.S3AccessKey, "AWS_ACCESS_KEY_ID")
	str(&cfg.Storage.S3SecretKey, "AWS_SECRET_ACCESS_KEY")

	if v := os.Getenv("BOT_PHRASES"); v != "" {
		cfg.Bot.Phrases = splitList(v)
	}
	if v := os.Getenv("BOT_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BOT_ENABLED: %w", err)
		}
		cfg.Bot.Enabled = b
	}
	if v := os.Getenv("POSTGRES_AUTO_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("POSTGRES_AUTO_MIGRATE: %w", err)
		}
		cfg.Postgres.AutoMigrate = b
	}
	if v := os.Getenv("RECOGNITION_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("RECOGNITION_MAX_RETRIES must be a non-negative integer: %q", v)
		}
		cfg.Recognition.MaxRetries = n
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
