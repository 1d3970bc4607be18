package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/newsfeed-client/pkg/article"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const layerRedis = "redis"

// RedisConfig holds Redis store configuration.
type RedisConfig struct {
	// Namespace prefixes every key.
	Namespace string

	// Session scopes keys to one cache lifetime. Two stores with the same
	// session share pages.
	Session string

	// TTL applied to stored pages. Zero keeps pages until Clear.
	TTL time.Duration

	// ScanCount is the SCAN batch hint used by Clear and Len.
	ScanCount int64
}

// DefaultRedisConfig returns a configuration with a fresh random session.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Namespace: "news",
		Session:   uuid.NewString(),
		TTL:       0,
		ScanCount: 100,
	}
}

// RedisStore keeps pages in Redis as JSON arrays.
type RedisStore struct {
	redis  *redis.Client
	config RedisConfig
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client, cfg RedisConfig) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.Session == "" {
		cfg.Session = uuid.NewString()
	}
	if cfg.ScanCount <= 0 {
		cfg.ScanCount = 100
	}
	return &RedisStore{
		redis:  redisClient,
		config: cfg,
	}
}

// Session returns the session the store's keys are scoped to.
func (s *RedisStore) Session() string {
	return s.config.Session
}

func (s *RedisStore) key(page int) PageKey {
	return PageKey{Namespace: s.config.Namespace, Session: s.config.Session, Page: page}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, page int) ([]article.Article, error) {
	data, err := s.redis.Get(ctx, s.key(page).String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(layerRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(layerRedis, "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var articles []article.Article
	if err := json.Unmarshal(data, &articles); err != nil {
		CacheErrors.WithLabelValues(layerRedis, "get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if articles == nil {
		articles = []article.Article{}
	}

	CacheHits.WithLabelValues(layerRedis).Inc()
	return articles, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, page int, articles []article.Article) error {
	if articles == nil {
		articles = []article.Article{}
	}

	data, err := json.Marshal(articles)
	if err != nil {
		CacheErrors.WithLabelValues(layerRedis, "set").Inc()
		return fmt.Errorf("marshal page %d: %w", page, err)
	}

	if err := s.redis.Set(ctx, s.key(page).String(), data, s.config.TTL).Err(); err != nil {
		CacheErrors.WithLabelValues(layerRedis, "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheEntries.WithLabelValues(layerRedis).Inc()
	return nil
}

// Clear implements Store. Only this session's keys are removed.
func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		CacheErrors.WithLabelValues(layerRedis, "clear").Inc()
		return err
	}

	for start := 0; start < len(keys); start += int(s.config.ScanCount) {
		end := start + int(s.config.ScanCount)
		if end > len(keys) {
			end = len(keys)
		}
		if err := s.redis.Del(ctx, keys[start:end]...).Err(); err != nil {
			CacheErrors.WithLabelValues(layerRedis, "clear").Inc()
			return fmt.Errorf("redis del: %w", err)
		}
	}

	CacheEntries.WithLabelValues(layerRedis).Set(0)
	return nil
}

// Len implements Store.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		CacheErrors.WithLabelValues(layerRedis, "len").Inc()
		return 0, err
	}
	return len(keys), nil
}

func (s *RedisStore) scanKeys(ctx context.Context) ([]string, error) {
	match := s.key(0).Prefix() + "*"

	var keys []string
	iter := s.redis.Scan(ctx, 0, match, s.config.ScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}
