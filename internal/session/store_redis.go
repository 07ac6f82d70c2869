package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const redisKeyPrefix = "session:"

// RedisStore keeps sessions as JSON blobs under session:{id}. No redis TTL is
// set: the gate must be able to tell an expired session apart from an unknown
// one, so expired entries stay readable until the sweep removes them.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisSession struct {
	UserID string `json:"user_id"`
	Expiry int64  `json:"expiry"`
}

func (s *RedisStore) Create(ctx context.Context, userID string, expiry time.Time) (Session, error) {
	id := uuid.NewString()
	buf, err := json.Marshal(redisSession{UserID: userID, Expiry: expiry.Unix()})
	if err != nil {
		return Session{}, err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+id, buf, 0).Err(); err != nil {
		return Session{}, err
	}
	return Session{ID: id, UserID: userID, Expiry: expiry.Truncate(time.Second)}, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	var rs redisSession
	if err := json.Unmarshal([]byte(val), &rs); err != nil {
		return Session{}, err
	}
	return Session{ID: id, UserID: rs.UserID, Expiry: time.Unix(rs.Expiry, 0)}, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var removed int
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := s.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var rs redisSession
		if err := json.Unmarshal([]byte(val), &rs); err != nil {
			continue
		}
		if !now.Before(time.Unix(rs.Expiry, 0)) {
			if s.client.Del(ctx, key).Err() == nil {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}
