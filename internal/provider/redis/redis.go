// Package redis implements the Provider interface using Redis/Valkey.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/driftlock-systems/driftlock/internal/provider"
	"github.com/driftlock-systems/driftlock/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*Provider)(nil)

// Defaults applied when the config leaves fields zero.
const (
	defaultPrefix        = "driftlock:"
	defaultRetentionTTL  = 168 * time.Hour // 7 days
	defaultPredictionMax = 10000
	defaultEventMax      = 10000
)

// compareAndSwap atomically replaces a model version record when the stored
// version counter matches. KEYS[1] = model key, ARGV[1] = expected version,
// ARGV[2] = new JSON value.
const compareAndSwap = `
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 0
end
local obj = cjson.decode(cur)
if tonumber(obj.version) ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`

// Provider implements the storage interface backed by Redis/Valkey.
type Provider struct {
	client        *goredis.Client
	prefix        string
	retentionTTL  time.Duration
	predictionMax int64
	eventMax      int64
	casScript     *goredis.Script
	logger        *slog.Logger
}

// New creates a Redis-backed provider.
func New(cfg *types.RedisConfig, logger *slog.Logger) *Provider {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newProvider(client, cfg, logger)
}

// NewFromClient creates a provider from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, cfg *types.RedisConfig, logger *slog.Logger) *Provider {
	return newProvider(client, cfg, logger)
}

func newProvider(client *goredis.Client, cfg *types.RedisConfig, logger *slog.Logger) *Provider {
	p := &Provider{
		client:        client,
		prefix:        cfg.KeyPrefix,
		retentionTTL:  defaultRetentionTTL,
		predictionMax: cfg.PredictionMax,
		eventMax:      cfg.EventMax,
		casScript:     goredis.NewScript(compareAndSwap),
		logger:        logger,
	}
	if p.prefix == "" {
		p.prefix = defaultPrefix
	}
	if cfg.RetentionTTL != "" {
		if d, err := time.ParseDuration(cfg.RetentionTTL); err == nil && d > 0 {
			p.retentionTTL = d
		}
	}
	if p.predictionMax <= 0 {
		p.predictionMax = defaultPredictionMax
	}
	if p.eventMax <= 0 {
		p.eventMax = defaultEventMax
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Start initializes the provider connection.
func (p *Provider) Start(ctx context.Context) error {
	return p.Ping(ctx)
}

// Stop closes the provider connection.
func (p *Provider) Stop(_ context.Context) error {
	return p.client.Close()
}

// Ping checks connectivity to the Redis server.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Client returns the underlying Redis client (for advanced usage/testing).
func (p *Provider) Client() *goredis.Client {
	return p.client
}
