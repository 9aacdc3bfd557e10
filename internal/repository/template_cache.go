package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/regflow-io/regflow-api/internal/models"
)

type templateSource interface {
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
}

// CachedTemplateRepository decorates the template source with a Redis cache.
// Bulk imports hit template metadata once per row batch; the TTL keeps stale
// key-field configuration from lingering after admins change it.
type CachedTemplateRepository struct {
	source templateSource
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedTemplateRepository constructs the decorator. A nil client disables
// caching transparently.
func NewCachedTemplateRepository(source templateSource, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedTemplateRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedTemplateRepository{source: source, client: client, ttl: ttl, logger: logger}
}

// GetTemplate serves from cache when possible, falling through on any cache
// failure.
func (r *CachedTemplateRepository) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	key := fmt.Sprintf("template:%s", id)
	if r.client != nil {
		raw, err := r.client.Get(ctx, key).Bytes()
		if err == nil {
			var template models.Template
			if err := json.Unmarshal(raw, &template); err == nil {
				return &template, nil
			}
			r.logger.Warn("corrupt template cache entry", zap.String("key", key))
		} else if err != redis.Nil {
			r.logger.Warn("template cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	template, err := r.source.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.client != nil {
		if payload, err := json.Marshal(template); err == nil {
			if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
				r.logger.Warn("template cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return template, nil
}
