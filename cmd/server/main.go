package main

import (
	"context"
	"time"

	"wholesale-backend/internal/cache"
	"wholesale-backend/internal/config"
	"wholesale-backend/internal/database"
	"wholesale-backend/internal/inventory"
	"wholesale-backend/internal/server"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)
	logger := config.GetLogger()

	var idem inventory.IdempotencyStore
	if cfg.RedisAddress != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddress)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, idempotency keys are ignored")
		} else {
			idem = cache.NewRedisIdempotency(client)
		}
	}

	app := server.New(cfg, database.DB, idem)

	logger.WithField("port", cfg.HTTPPort).Info("server listening")
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}
