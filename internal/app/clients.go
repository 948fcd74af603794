package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/clients/redis"
	"github.com/yungbote/neurobridge-tutor/internal/platform/llm"
	"github.com/yungbote/neurobridge-tutor/internal/platform/lock"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type Clients struct {
	Redis  *goredis.Client
	LLM    llm.Provider
	Locker lock.Locker
}

func wireClients(ctx context.Context, db *gorm.DB, log *logger.Logger, cfg *Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	provider, err := llm.NewProvider(llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		MaxAttempts: cfg.LLM.MaxAttempts,
		RetryDelay:  cfg.LLM.RetryDelay,
	}, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init llm provider: %w", err)
	}
	out.LLM = provider

	// Redis (optional): leases move out of the database when configured.
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
		out.Locker = lock.NewRedisLocker(rdb, cfg.Redis.LeasePrefix, log)
	} else {
		out.Locker = lock.NewLeaseLocker(db, log)
	}
	return out, nil
}

func (c Clients) Close() error {
	if c.Redis != nil {
		return c.Redis.Close()
	}
	return nil
}
