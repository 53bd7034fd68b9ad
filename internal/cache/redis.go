package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c010r/backyardbarpass/internal/models"
)

const (
	keyActiveEvents = "byb:events:active"
	keyEventPrefix  = "byb:events:"
	keyStats        = "byb:stats"
)

type Config struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	EventsTTL time.Duration
	StatsTTL  time.Duration
}

// RedisCache keeps short-lived read models: the public catalog and the staff stats.
// Stock never comes from here.
type RedisCache struct {
	client    *redis.Client
	eventsTTL time.Duration
	statsTTL  time.Duration
}

func NewRedisCache(cfg Config) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(rdb, cfg), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, cfg Config) *RedisCache {
	return &RedisCache{
		client:    client,
		eventsTTL: cfg.EventsTTL,
		statsTTL:  cfg.StatsTTL,
	}
}

func (c *RedisCache) GetActiveEvents(ctx context.Context) (models.ListEventsResponse, bool) {
	var events models.ListEventsResponse
	return events, c.getJSON(ctx, keyActiveEvents, &events)
}

func (c *RedisCache) SetActiveEvents(ctx context.Context, events models.ListEventsResponse) {
	c.setJSON(ctx, keyActiveEvents, events, c.eventsTTL)
}

func (c *RedisCache) GetEvent(ctx context.Context, id int64) (*models.EventResponse, bool) {
	var event models.EventResponse
	if !c.getJSON(ctx, eventKey(id), &event) {
		return nil, false
	}
	return &event, true
}

func (c *RedisCache) SetEvent(ctx context.Context, event *models.EventResponse) {
	c.setJSON(ctx, eventKey(event.ID), event, c.eventsTTL)
}

func (c *RedisCache) GetStats(ctx context.Context) (*models.StatsResponse, bool) {
	var stats models.StatsResponse
	if !c.getJSON(ctx, keyStats, &stats) {
		return nil, false
	}
	return &stats, true
}

func (c *RedisCache) SetStats(ctx context.Context, stats *models.StatsResponse) {
	c.setJSON(ctx, keyStats, stats, c.statsTTL)
}

// InvalidateEvent drops everything derived from an event's stock or catalog data
func (c *RedisCache) InvalidateEvent(ctx context.Context, eventID int64) {
	if err := c.client.Del(ctx, keyActiveEvents, eventKey(eventID), keyStats).Err(); err != nil {
		slog.Warn("Failed to invalidate event cache", "event_id", eventID, "error", err)
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) getJSON(ctx context.Context, key string, dest any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Cache lookup failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		slog.Warn("Discarding undecodable cache entry", "key", key, "error", err)
		return false
	}
	return true
}

func (c *RedisCache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		slog.Warn("Failed to encode cache entry", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		slog.Warn("Cache write failed", "key", key, "error", err)
	}
}

func eventKey(id int64) string {
	return keyEventPrefix + strconv.FormatInt(id, 10)
}

// Nop is used when Redis is disabled; every lookup misses
type Nop struct{}

func (Nop) GetActiveEvents(context.Context) (models.ListEventsResponse, bool) { return nil, false }
func (Nop) SetActiveEvents(context.Context, models.ListEventsResponse)        {}
func (Nop) GetEvent(context.Context, int64) (*models.EventResponse, bool)     { return nil, false }
func (Nop) SetEvent(context.Context, *models.EventResponse)                   {}
func (Nop) GetStats(context.Context) (*models.StatsResponse, bool)            { return nil, false }
func (Nop) SetStats(context.Context, *models.StatsResponse)                   {}
func (Nop) InvalidateEvent(context.Context, int64)                            {}
