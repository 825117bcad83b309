package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type redisCommands interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	SAdd(ctx context.Context, key string, members ...any) error
	SRem(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

type redisKeyer interface {
	SessionKey(sessionID string) string
	UserSessionIndexKey(userID string) string
}

// RedisStore persists sessions as JSON records with a per-user index set so
// multiple API instances see the same session state. Record keys expire with
// the session TTL; the index set is pruned lazily on reads.
type RedisStore struct {
	client redisCommands
	keyer  redisKeyer
	ttl    time.Duration
}

// NewRedisStore constructs a store over the shared Redis client.
func NewRedisStore(client interface {
	redisCommands
	redisKeyer
}, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &RedisStore{client: client, keyer: client, ttl: ttl}, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, s.keyer.SessionKey(id))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *RedisStore) Put(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.ID, err)
	}
	// Key TTL covers the remaining lifetime plus slack so a lazy delete can
	// still observe the expired record instead of a silent miss.
	ttl := time.Until(sess.ExpiresAt) + time.Hour
	if ttl < time.Minute {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, s.keyer.SessionKey(sess.ID), string(raw), ttl); err != nil {
		return err
	}
	return s.client.SAdd(ctx, s.keyer.UserSessionIndexKey(sess.UserID.String()), sess.ID)
}

func (s *RedisStore) Delete(ctx context.Context, sess *Session) error {
	if err := s.client.Del(ctx, s.keyer.SessionKey(sess.ID)); err != nil {
		return err
	}
	return s.client.SRem(ctx, s.keyer.UserSessionIndexKey(sess.UserID.String()), sess.ID)
}

func (s *RedisStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	indexKey := s.keyer.UserSessionIndexKey(userID.String())
	ids, err := s.client.SMembers(ctx, indexKey)
	if err != nil {
		return nil, err
	}
	var out []*Session
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Record key expired underneath the index; prune the entry.
				if remErr := s.client.SRem(ctx, indexKey, id); remErr != nil {
					return nil, remErr
				}
				continue
			}
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// Snapshot is not supported on the Redis backend; the sweep job is only
// needed for the in-memory store since Redis expires record keys itself.
// Callers get the sentinel rather than an empty snapshot so stats never
// report zero sessions as a success.
func (s *RedisStore) Snapshot(ctx context.Context) ([]*Session, error) {
	return nil, ErrSnapshotUnsupported
}
