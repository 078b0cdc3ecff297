package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
	"github.com/rs/zerolog"
)

const presignedURLExpiration = 15 * time.Minute

// slightly less than expiration
const cacheCleanupInterval = 12 * time.Minute

type Presigner interface {
	PresignRead(ctx context.Context, objectKey string) (string, error)
}

// URLCacheService hands out read links for job results without presigning on every poll.
type URLCacheService struct {
	cache *cache.LoadableCache[string]
}

func NewURLCacheService(presigner Presigner, logger zerolog.Logger) (*URLCacheService, error) {
	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}

	load := func(ctx context.Context, key any) (string, []store.Option, error) {
		objectKey, ok := key.(string)
		if !ok {
			return "", nil, fmt.Errorf("invalid key type provided to URL cache: expected string, got %T", key)
		}
		logger.Debug().Str("object_key", objectKey).Msg("presigning read url")
		url, err := presigner.PresignRead(ctx, objectKey)
		return url, []store.Option{store.WithExpiration(cacheCleanupInterval)}, err
	}

	return &URLCacheService{
		cache: cache.NewLoadable[string](load, cache.New[string](ristretto_store.NewRistretto(ristrettoCache))),
	}, nil
}

func (s *URLCacheService) GetReadURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", nil
	}
	return s.cache.Get(ctx, objectKey)
}
