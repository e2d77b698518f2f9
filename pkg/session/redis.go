package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "kiln:session:"

// RedisStore keeps sessions as JSON blobs keyed by token, with a per-user
// set of tokens for DeleteByUserID. Keys expire with the session.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix overrides the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore creates a RedisStore on top of an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (r *RedisStore) tokenKey(token string) string { return r.prefix + "t:" + token }
func (r *RedisStore) idKey(id string) string       { return r.prefix + "id:" + id }
func (r *RedisStore) userKey(uid string) string    { return r.prefix + "u:" + uid }

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	return r.write(ctx, s)
}

func (r *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := r.client.Get(ctx, r.tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "session: redis get")
	}
	s, err := decodeRecord(data)
	if err != nil {
		return nil, errors.Wrap(err, "session: decode")
	}
	if s.IsExpired() {
		return nil, ErrExpired
	}
	return s, nil
}

func (r *RedisStore) Update(ctx context.Context, s *Session) error {
	if prev := s.PreviousToken(); prev != "" {
		if err := r.client.Del(ctx, r.tokenKey(prev)).Err(); err != nil {
			return errors.Wrap(err, "session: redis drop rotated token")
		}
	}
	return r.write(ctx, s)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	token, err := r.client.Get(ctx, r.idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "session: redis lookup id")
	}
	return errors.Wrap(r.client.Del(ctx, r.tokenKey(token), r.idKey(id)).Err(), "session: redis delete")
}

func (r *RedisStore) DeleteByUserID(ctx context.Context, userID string) error {
	tokens, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return errors.Wrap(err, "session: redis list user tokens")
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, r.tokenKey(t))
	}
	keys = append(keys, r.userKey(userID))
	return errors.Wrap(r.client.Del(ctx, keys...).Err(), "session: redis delete user")
}

func (r *RedisStore) write(ctx context.Context, s *Session) error {
	data, err := encodeRecord(s)
	if err != nil {
		return errors.Wrap(err, "session: encode")
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return ErrExpired
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.tokenKey(s.Token), data, ttl)
		p.Set(ctx, r.idKey(s.ID), s.Token, ttl)
		if s.UserID != nil {
			p.SAdd(ctx, r.userKey(*s.UserID), s.Token)
			p.Expire(ctx, r.userKey(*s.UserID), ttl)
		}
		return nil
	})
	return errors.Wrap(err, "session: redis write")
}
