package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/utils"
)

// EmbedCache memoizes embedding vectors by content hash so repeated
// retrievals of the same source text skip the embedding provider.
type EmbedCache struct {
	log    *logger.Logger
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type cachedVector struct {
	Model  string    `json:"model"`
	Dim    int       `json:"dim"`
	Values []float32 `json:"values"`
}

func NewEmbedCache(log *logger.Logger) (*EmbedCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := utils.GetEnv("REDIS_ADDR", "localhost:6379", log)
	password := utils.GetEnv("REDIS_PASSWORD", "", log)
	db := utils.GetEnvAsInt("REDIS_DB", 0, log)
	ttlHours := utils.GetEnvAsInt("EMBED_CACHE_TTL_HOURS", 72, log)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("Redis embed cache connected", "addr", addr, "db", db, "ttl_hours", ttlHours)
	return &EmbedCache{
		log:    log.With("client", "EmbedCache"),
		client: client,
		prefix: utils.GetEnv("EMBED_CACHE_PREFIX", "sb:embed", log),
		ttl:    time.Duration(ttlHours) * time.Hour,
	}, nil
}

func (c *EmbedCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Get returns the cached vector for (model, text), or (nil, false) on miss.
// Cache errors degrade to a miss; the caller falls through to the provider.
func (c *EmbedCache) Get(ctx context.Context, model, text string) ([]float32, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, c.key(model, text)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn("embed cache read failed", "error", err)
		return nil, false
	}

	var entry cachedVector
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.log.Warn("embed cache entry corrupt, evicting", "error", err)
		_ = c.client.Del(ctx, c.key(model, text)).Err()
		return nil, false
	}
	if entry.Model != model || len(entry.Values) == 0 || entry.Dim != len(entry.Values) {
		return nil, false
	}
	return entry.Values, true
}

func (c *EmbedCache) Set(ctx context.Context, model, text string, values []float32) {
	if c == nil || c.client == nil || len(values) == 0 {
		return
	}

	raw, err := json.Marshal(cachedVector{
		Model:  model,
		Dim:    len(values),
		Values: values,
	})
	if err != nil {
		c.log.Warn("embed cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(model, text), raw, c.ttl).Err(); err != nil {
		c.log.Warn("embed cache write failed", "error", err)
	}
}

func (c *EmbedCache) key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + strings.TrimSpace(text)))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}
