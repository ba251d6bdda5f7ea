// Package cache holds the Redis-backed available-cells projection.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gridreg/internal/grid/models"
)

const (
	availableKeyPrefix  = "gridreg:available:"
	generationKeyPrefix = "gridreg:available-gen:"
	defaultTTL          = 15 * time.Second
)

var errGenerationMoved = errors.New("available cells generation moved")

// RedisAvailability caches AvailableCells per project. Every invalidation
// bumps a per-project generation; a fill is stored only while the generation
// it started under is still current, so a read that raced a commit cannot
// put its older projection back.
type RedisAvailability struct {
	client *redis.Client
	ttl    time.Duration
}

type Option func(*RedisAvailability)

func WithTTL(ttl time.Duration) Option {
	return func(c *RedisAvailability) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func NewRedis(client *redis.Client, opts ...Option) *RedisAvailability {
	c := &RedisAvailability{client: client, ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func availableKey(projectID string) string {
	return availableKeyPrefix + projectID
}

func generationKey(projectID string) string {
	return generationKeyPrefix + projectID
}

// GetAvailable reports ok=false on a miss.
func (c *RedisAvailability) GetAvailable(ctx context.Context, projectID string) ([]models.AvailableCell, bool, error) {
	raw, err := c.client.Get(ctx, availableKey(projectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get available cells: %w", err)
	}
	var cells []models.AvailableCell
	if err := json.Unmarshal(raw, &cells); err != nil {
		// A corrupt entry is a miss; the next write replaces it.
		return nil, false, fmt.Errorf("decode available cells: %w", err)
	}
	return cells, true, nil
}

// Generation returns the project's invalidation counter; 0 when never invalidated.
func (c *RedisAvailability) Generation(ctx context.Context, projectID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(projectID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get available cells generation: %w", err)
	}
	return gen, nil
}

// SetAvailable stores cells if the generation is still gen. It reports
// stored=false, without error, when an invalidation happened in between.
func (c *RedisAvailability) SetAvailable(ctx context.Context, projectID string, gen int64, cells []models.AvailableCell) (bool, error) {
	if cells == nil {
		cells = []models.AvailableCell{}
	}
	raw, err := json.Marshal(cells)
	if err != nil {
		return false, fmt.Errorf("encode available cells: %w", err)
	}

	genKey := generationKey(projectID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errGenerationMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, availableKey(projectID), raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errGenerationMoved), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("set available cells: %w", err)
	}
}

// Invalidate drops the projection and bumps the generation in one MULTI.
func (c *RedisAvailability) Invalidate(ctx context.Context, projectID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(projectID))
		pipe.Del(ctx, availableKey(projectID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate available cells: %w", err)
	}
	return nil
}
