package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"fashionstudio/models"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "studio:session:"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session id")
)

var sessionIDRule = regexp.MustCompile(`^[A-Za-z0-9_-]{1,96}$`)

func ValidateSessionID(id string) error {
	if !sessionIDRule.MatchString(id) {
		return ErrInvalidSessionID
	}
	return nil
}

// SessionStore persists wizard sessions. It is the only place session
// state lives between requests.
type SessionStore interface {
	Load(ctx context.Context, id string) (models.StudioSession, error)
	Save(ctx context.Context, session models.StudioSession) error
	Delete(ctx context.Context, id string) error
}

func encodeSession(session models.StudioSession) ([]byte, error) {
	if err := ValidateSessionID(session.ID); err != nil {
		return nil, err
	}
	return json.Marshal(session)
}

func decodeSession(data []byte) (models.StudioSession, error) {
	var session models.StudioSession
	if err := json.Unmarshal(data, &session); err != nil {
		return session, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

// CacheSessionStore keeps sessions in process memory.
type CacheSessionStore struct {
	ristretto *ristretto.Cache
	cache     *cache.Cache[[]byte]
	ttl       time.Duration
}

func NewCacheSessionStore(ttl time.Duration) (*CacheSessionStore, error) {
	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 28, // 256MB of encoded sessions
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}
	return &CacheSessionStore{
		ristretto: ristrettoCache,
		cache:     cache.New[[]byte](ristretto_store.NewRistretto(ristrettoCache)),
		ttl:       ttl,
	}, nil
}

func (s *CacheSessionStore) Load(ctx context.Context, id string) (models.StudioSession, error) {
	if err := ValidateSessionID(id); err != nil {
		return models.StudioSession{}, err
	}
	data, err := s.cache.Get(ctx, sessionKeyPrefix+id)
	if err != nil {
		return models.StudioSession{}, ErrSessionNotFound
	}
	return decodeSession(data)
}

func (s *CacheSessionStore) Save(ctx context.Context, session models.StudioSession) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}
	err = s.cache.Set(ctx, sessionKeyPrefix+session.ID, data,
		store.WithExpiration(s.ttl),
		store.WithCost(int64(len(data))),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.ristretto.Wait()
	return nil
}

func (s *CacheSessionStore) Delete(ctx context.Context, id string) error {
	if err := ValidateSessionID(id); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, sessionKeyPrefix+id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.ristretto.Wait()
	return nil
}

// RedisSessionStore shares sessions between api replicas.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) Load(ctx context.Context, id string) (models.StudioSession, error) {
	if err := ValidateSessionID(id); err != nil {
		return models.StudioSession{}, err
	}
	data, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.StudioSession{}, ErrSessionNotFound
	}
	if err != nil {
		return models.StudioSession{}, fmt.Errorf("load session: %w", err)
	}
	return decodeSession(data)
}

func (s *RedisSessionStore) Save(ctx context.Context, session models.StudioSession) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := ValidateSessionID(id); err != nil {
		return err
	}
	if err := s.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
