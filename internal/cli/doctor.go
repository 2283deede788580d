package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/yoockh/meetsense/config"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and backing services",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := NewFormatter(cmd.OutOrStdout())
			cfg := deps.Config
			ok := true

			check := func(name string, good bool, detail string) {
				f.Check(name, good, detail)
				ok = ok && good
			}

			if p := config.FilePath(); p != "" {
				if _, err := os.Stat(p); err == nil {
					f.Check("Config file", true, p)
				} else {
					f.Check("Config file", true, "none, using defaults and environment")
				}
			}

			check("JWT secret", cfg.Auth.JWTSecret != "", setOr(cfg.Auth.JWTSecret, "not set. Set JWT_SECRET"))
			check("Recognition API key", cfg.Recognition.APIKey != "", setOr(cfg.Recognition.APIKey, "not set. Set DEEPGRAM_API_KEY"))

			if err := config.InitMongo(cfg.Mongo); err != nil {
				check("MongoDB", false, err.Error())
			} else {
				check("MongoDB", true, "connected, db "+cfg.Mongo.DB)
				_ = config.MongoClient.Disconnect(context.Background())
			}

			if err := config.InitPostgres(cfg.Postgres); err != nil {
				check("PostgreSQL", false, err.Error())
			} else if sqlDB, err := config.PostgresDB.DB(); err != nil || sqlDB.PingContext(cmd.Context()) != nil {
				check("PostgreSQL", false, "ping failed")
			} else {
				check("PostgreSQL", true, "connected")
				_ = sqlDB.Close()
			}

			if err := config.InitRedis(cfg.Redis); err != nil {
				check("Redis", false, err.Error())
			} else {
				check("Redis", true, "connected")
				_ = config.RedisClient.Close()
			}

			f.Check("Report storage", true, cfg.Storage.Provider)
			if cfg.Bot.Enabled {
				f.Check("Bot", true, cfg.Bot.Provider)
			} else {
				f.Check("Bot", true, "disabled")
			}

			if ok {
				f.Success("\nReady.")
			} else {
				f.Warning("\nSome checks failed.")
			}
			return nil
		},
	}
}

func setOr(v, missing string) string {
	if v != "" {
		return "configured"
	}
	return missing
}
