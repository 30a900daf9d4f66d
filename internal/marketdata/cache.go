package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by a Store when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Store is the narrow TTL key-value surface CachedProvider needs. Values
// round-trip through JSON.
type Store interface {
	Get(ctx context.Context, key string, v any) error
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

// RedisConfig holds Redis connection configuration for the market data
// cache.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix (default: "finsight:md:").
	Prefix string
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// RedisStore keeps cache entries in Redis so multiple engine processes can
// share one quota of upstream requests.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "finsight:md:"
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

// NewRedisStoreFromClient builds a store around an existing client. This is
// useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "finsight:md:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal cached %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Ping verifies the Redis connection is still alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is the in-process fallback used when no Redis is configured.
// Entries expire lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// NewMemoryStore builds an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, key string, v any) error {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return ErrCacheMiss
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return ErrCacheMiss
	}
	if err := json.Unmarshal(entry.data, v); err != nil {
		return fmt.Errorf("unmarshal cached %s: %w", key, err)
	}
	return nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = memoryEntry{data: data, expires: expires}
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// TTLConfig sets per-kind cache lifetimes. Quotes go stale in minutes;
// fundamentals barely move within a session.
type TTLConfig struct {
	Quote        time.Duration
	History      time.Duration
	Fundamentals time.Duration
}

// Cache lifetime defaults.
const (
	DefaultQuoteTTL        = 5 * time.Minute
	DefaultHistoryTTL      = 30 * time.Minute
	DefaultFundamentalsTTL = time.Hour
)

func (c TTLConfig) withDefaults() TTLConfig {
	if c.Quote <= 0 {
		c.Quote = DefaultQuoteTTL
	}
	if c.History <= 0 {
		c.History = DefaultHistoryTTL
	}
	if c.Fundamentals <= 0 {
		c.Fundamentals = DefaultFundamentalsTTL
	}
	return c
}

// CachedProvider fronts a Provider with a Store. Cache failures never fail a
// fetch; the source is authoritative and the cache is best effort.
type CachedProvider struct {
	source Provider
	store  Store
	ttl    TTLConfig
}

// NewCachedProvider wraps source with the given store. Zero TTLs take the
// defaults.
func NewCachedProvider(source Provider, store Store, ttl TTLConfig) *CachedProvider {
	return &CachedProvider{
		source: source,
		store:  store,
		ttl:    ttl.withDefaults(),
	}
}

func (p *CachedProvider) Quote(ctx context.Context, symbol string) (*Quote, error) {
	key := "quote:" + symbol
	var cached Quote
	if err := p.lookup(ctx, key, &cached); err == nil {
		return &cached, nil
	}
	quote, err := p.source.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	p.write(ctx, key, quote, p.ttl.Quote)
	return quote, nil
}

func (p *CachedProvider) History(ctx context.Context, symbol string, days int) ([]Bar, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	key := fmt.Sprintf("hist:%s:%d", symbol, days)
	var cached []Bar
	if err := p.lookup(ctx, key, &cached); err == nil {
		return cached, nil
	}
	bars, err := p.source.History(ctx, symbol, days)
	if err != nil {
		return nil, err
	}
	p.write(ctx, key, bars, p.ttl.History)
	return bars, nil
}

func (p *CachedProvider) Fundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	key := "fund:" + symbol
	var cached Fundamentals
	if err := p.lookup(ctx, key, &cached); err == nil {
		return &cached, nil
	}
	fund, err := p.source.Fundamentals(ctx, symbol)
	if err != nil {
		return nil, err
	}
	p.write(ctx, key, fund, p.ttl.Fundamentals)
	return fund, nil
}

func (p *CachedProvider) lookup(ctx context.Context, key string, v any) error {
	err := p.store.Get(ctx, key, v)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		log.Printf("[MarketData] Cache read failed for %s: %v", key, err)
	}
	return err
}

func (p *CachedProvider) write(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := p.store.Set(ctx, key, v, ttl); err != nil {
		log.Printf("[MarketData] Cache write failed for %s: %v", key, err)
	}
}
