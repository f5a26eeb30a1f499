package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/meridianhq/corpweb/internal/apperror"
)

// keyPrefix is the Redis key prefix for session data.
const keyPrefix = "session:"

// idBytes is the number of random bytes in a session ID.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const idBytes = 32

// Store owns every Session. Handlers read through Get and write only
// through Create, Replace and Destroy.
type Store interface {
	// Create stores a new session and returns the opaque ID for the cookie.
	Create(ctx context.Context, s *Session, ttl time.Duration) (string, error)

	// Get returns the session for an ID, or an unauthorized AppError if it
	// has expired or never existed.
	Get(ctx context.Context, id string) (*Session, error)

	// Replace swaps the stored value for s in one write, keeping the
	// remaining TTL. Fails if the session no longer exists.
	Replace(ctx context.Context, id string, s *Session) error

	// Destroy removes the session. Destroying a missing session is not an error.
	Destroy(ctx context.Context, id string) error
}

// redisStore implements Store with JSON values in Redis.
type redisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a session store backed by the given client.
func NewRedisStore(rdb *redis.Client) Store {
	return &redisStore{redis: rdb}
}

// Create generates a random ID and stores the session with the given TTL.
func (r *redisStore) Create(ctx context.Context, s *Session, ttl time.Duration) (string, error) {
	id, err := NewID()
	if err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}

	if err := r.redis.Set(ctx, redisKey(id), data, ttl).Err(); err != nil {
		return "", fmt.Errorf("storing session in Redis: %w", err)
	}

	return id, nil
}

// Get looks up a session ID in Redis.
func (r *redisStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}

	data, err := r.redis.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading session from Redis: %w", err))
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling session: %w", err))
	}

	return &s, nil
}

// Replace overwrites an existing session with SET XX KEEPTTL.
func (r *redisStore) Replace(ctx context.Context, id string, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("marshaling session: %w", err))
	}

	err = r.redis.SetArgs(ctx, redisKey(id), data, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return apperror.NewUnauthorized("session expired or invalid")
	}
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("replacing session in Redis: %w", err))
	}

	return nil
}

// Destroy deletes the session key.
func (r *redisStore) Destroy(ctx context.Context, id string) error {
	if err := r.redis.Del(ctx, redisKey(id)).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting session from Redis: %w", err))
	}
	return nil
}

// NewID creates a cryptographically random hex-encoded session ID.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// redisKey hashes the cookie value so a Redis dump never contains a usable
// session cookie.
func redisKey(id string) string {
	sum := blake2b.Sum256([]byte(id))
	return keyPrefix + hex.EncodeToString(sum[:])
}
