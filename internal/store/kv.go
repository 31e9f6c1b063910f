package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/thereayou/flashquiz/internal/models"
)

// KV: JSON-записи в Redis с общим префиксом и TTL
type KV struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewKV(rdb redis.Cmdable, prefix string, ttl time.Duration) *KV {
	return &KV{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (k *KV) TTL() time.Duration {
	return k.ttl
}

// Key собирает ключ вида <prefix>:part:part
func (k *KV) Key(parts ...any) string {
	b := strings.Builder{}
	b.WriteString(k.prefix)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(fmt.Sprint(p))
	}
	return b.String()
}

// SetJSON пишет запись и обновляет TTL
func (k *KV) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := k.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", models.ErrPersistence, key, err)
	}
	return nil
}

func (k *KV) GetJSON(ctx context.Context, key string, v any) error {
	data, err := k.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: get %s: %w", models.ErrPersistence, key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", models.ErrPersistence, key, err)
	}
	return nil
}

func (k *KV) Exists(ctx context.Context, key string) (bool, error) {
	n, err := k.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %w", models.ErrPersistence, key, err)
	}
	return n > 0, nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if err := k.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %w", models.ErrPersistence, key, err)
	}
	return nil
}

// Scan возвращает ключи по шаблону; для больших баз не использовать в горячем пути
func (k *KV) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := k.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", models.ErrPersistence, pattern, err)
	}
	return keys, nil
}
