package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/meetsense/config"
	"github.com/yoockh/meetsense/internal/api/handlers"
	"github.com/yoockh/meetsense/internal/api/middleware"
	"github.com/yoockh/meetsense/internal/api/routes"
	"github.com/yoockh/meetsense/internal/app"
	"github.com/yoockh/meetsense/internal/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("init failed")
	}
	defer a.Close()
	log.Info("MongoDB, PostgreSQL and Redis connected")

	gin.SetMode(cfg.Server.GinMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Session: handlers.NewSessionHandler(a.Sessions, a.Buffers),
		Meeting: handlers.NewMeetingHandler(a.Shell),
		WS:      handlers.NewWSHandler(a.Sessions, a.Redis, log),
		JWT: middleware.JWTConfig{
			Secret:   cfg.Auth.JWTSecret,
			Issuer:   cfg.Auth.JWTIssuer,
			Audience: cfg.Auth.JWTAudience,
		},
	})

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: r}
	go func() {
		log.WithField("port", cfg.Server.Port).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown")
	}
}
