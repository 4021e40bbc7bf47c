package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines cache operations. Values are stored as JSON.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Remember returns the cached value for key, or calls load, caches its result
// for ttl and returns it. Cache read and write failures fall through to load;
// hit reports whether the value came from the cache.
func Remember[T any](ctx context.Context, c Service, key string, ttl time.Duration, load func(context.Context) (T, error)) (value T, hit bool, err error) {
	if c != nil {
		if err := c.Get(ctx, key, &value); err == nil {
			return value, true, nil
		}
	}

	value, err = load(ctx)
	if err != nil {
		return value, false, err
	}
	if c != nil {
		_ = c.Set(ctx, key, value, ttl)
	}
	return value, false, nil
}

// RequestKey builds "prefix:sha256(json(req))" so that equal requests share a
// cache entry.
func RequestKey(prefix string, req interface{}) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return GenerateKey(prefix, hex.EncodeToString(sum[:16])), nil
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(value)
	}
}

func decode(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = string(data)
		return nil
	case *[]byte:
		*d = append((*d)[:0], data...)
		return nil
	default:
		return json.Unmarshal(data, dest)
	}
}
