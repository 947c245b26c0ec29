// Package store wraps the fast shared state store (Redis) with the
// typed, non-blocking operations the rest of the engine is allowed to use.
// No other package talks to Redis directly — every hash read/write, lock,
// and cache lookup routes through here, mirroring how the teacher
// codebase centralizes all Redis access behind pkg/websocket's RedisHub.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a session hash or cache entry does not
// exist (including when it has expired).
var ErrNotFound = errors.New("store: not found")

// Store is the State Store Client described in the component design: a
// thin typed layer over the fast store's hash fields, locks, and caches.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Ping verifies connectivity to the fast store at startup.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// SessionHSet writes a single field of a session hash and refreshes its
// TTL, so the session's expiry always reflects the most recent mutation.
func (s *Store) SessionHSet(ctx context.Context, code, field, value string, ttl time.Duration) error {
	key := SessionKey(code)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, field, value)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: hset %s.%s: %w", key, field, err)
	}
	return nil
}

// SessionHSetMany writes several fields of a session hash atomically and
// refreshes the TTL.
func (s *Store) SessionHSetMany(ctx context.Context, code string, fields map[string]string, ttl time.Duration) error {
	key := SessionKey(code)
	values := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: hset many %s: %w", key, err)
	}
	return nil
}

// SessionHMGet reads a set of fields from a session hash. Missing fields
// come back as empty strings; callers that need presence should check
// SessionExists first.
func (s *Store) SessionHMGet(ctx context.Context, code string, fields ...string) (map[string]string, error) {
	key := SessionKey(code)
	res, err := s.rdb.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("store: hmget %s: %w", key, err)
	}
	out := make(map[string]string, len(fields))
	for i, f := range fields {
		if res[i] == nil {
			out[f] = ""
			continue
		}
		out[f], _ = res[i].(string)
	}
	return out, nil
}

// SessionHGetAll reads every field of a session hash.
func (s *Store) SessionHGetAll(ctx context.Context, code string) (map[string]string, error) {
	key := SessionKey(code)
	res, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("store: hgetall %s: %w", key, err)
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	return res, nil
}

// SessionExists reports whether a session hash is present (and therefore
// unexpired).
func (s *Store) SessionExists(ctx context.Context, code string) (bool, error) {
	n, err := s.rdb.Exists(ctx, SessionKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("store: exists %s: %w", SessionKey(code), err)
	}
	return n > 0, nil
}

// LockAcquire attempts to take a store-level lease: set-if-absent with a
// TTL. owner is recorded as the value so LockRelease can avoid releasing
// a lease it does not hold (e.g. after its own TTL already expired and
// someone else acquired it).
func (s *Store) LockAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("store: lock_acquire %s: %w", key, err)
	}
	return ok, nil
}

// lockReleaseScript only deletes the key if it still holds owner's value,
// so a lease that already expired and was re-acquired by someone else is
// left alone.
var lockReleaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// LockRelease releases a lease previously taken by LockAcquire.
func (s *Store) LockRelease(ctx context.Context, key, owner string) error {
	if err := lockReleaseScript.Run(ctx, s.rdb, []string{key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("store: lock_release %s: %w", key, err)
	}
	return nil
}

// WithLock acquires key with bounded retries, runs fn while holding it,
// and releases it on every exit path including panics propagated from fn.
// backoffMin/backoffMax implement the linear backoff the spec calls for
// between attempts.
func (s *Store) WithLock(ctx context.Context, key string, ttl time.Duration, maxAttempts int, backoffMin, backoffMax time.Duration, fn func() error) error {
	owner := fmt.Sprintf("%d", time.Now().UnixNano())
	step := time.Duration(0)
	if maxAttempts > 1 {
		step = (backoffMax - backoffMin) / time.Duration(maxAttempts-1)
	}

	var acquired bool
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ok, err := s.LockAcquire(ctx, key, owner, ttl)
		if err != nil {
			return err
		}
		if ok {
			acquired = true
			break
		}
		wait := backoffMin + step*time.Duration(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	if !acquired {
		return ErrLockExhausted
	}
	defer func() {
		if err := s.LockRelease(context.Background(), key, owner); err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to release lock")
		}
	}()
	return fn()
}

// ErrLockExhausted is returned when bounded lock-acquisition retries are
// exhausted; callers surface it to clients as a transient "server busy"
// error.
var ErrLockExhausted = errors.New("store: lock acquisition exhausted")

// TryLock attempts a single non-blocking acquisition (used by the
// completion-check lock, which is explicitly skip-if-held rather than
// retried).
func (s *Store) TryLock(ctx context.Context, key, owner string, ttl time.Duration, fn func() error) (ran bool, err error) {
	ok, err := s.LockAcquire(ctx, key, owner, ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		if releaseErr := s.LockRelease(context.Background(), key, owner); releaseErr != nil {
			log.Error().Err(releaseErr).Str("key", key).Msg("failed to release lock")
		}
	}()
	return true, fn()
}

// QuizCacheGet reads a cached quiz document JSON blob.
func (s *Store) QuizCacheGet(ctx context.Context, code string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, QuizCacheKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: quiz_cache_get %s: %w", code, err)
	}
	return val, true, nil
}

// QuizCacheSet caches a quiz document JSON blob for one hour.
func (s *Store) QuizCacheSet(ctx context.Context, code, blob string) error {
	if err := s.rdb.Set(ctx, QuizCacheKey(code), blob, time.Hour).Err(); err != nil {
		return fmt.Errorf("store: quiz_cache_set %s: %w", code, err)
	}
	return nil
}

// ParticipantIndexGet reads a player's current question index.
func (s *Store) ParticipantIndexGet(ctx context.Context, code, user string) (int, bool, error) {
	val, err := s.rdb.Get(ctx, ParticipantIndexKey(code, user)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: participant_index_get %s/%s: %w", code, user, err)
	}
	return val, true, nil
}

// ParticipantIndexSet writes a player's current question index, expiring
// with the session TTL.
func (s *Store) ParticipantIndexSet(ctx context.Context, code, user string, n int, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, ParticipantIndexKey(code, user), n, ttl).Err(); err != nil {
		return fmt.Errorf("store: participant_index_set %s/%s: %w", code, user, err)
	}
	return nil
}

// RateLimitSet is a set-if-absent with TTL; the caller interprets
// "already set" as "too soon".
func (s *Store) RateLimitSet(ctx context.Context, key string, ttl time.Duration) (accepted bool, err error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("store: rate_limit_set %s: %w", key, err)
	}
	return ok, nil
}

// SetString is a generic set-with-TTL, used for bookkeeping keys like
// user_active_session and the completed-dedupe flag.
func (s *Store) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

// GetString reads a plain string key.
func (s *Store) GetString(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get %s: %w", key, err)
	}
	return val, true, nil
}

var sessionHashKeyPattern = regexp.MustCompile(`^session:[A-Z0-9]{6}$`)

// ListSessionCodes scans the fast store for live session hashes, used by
// the operational CLI. It filters out the quiz-cache and per-player index
// sub-keys that share the "session:" prefix, since SCAN's MATCH glob
// cannot express "no further colon segments" on its own.
func (s *Store) ListSessionCodes(ctx context.Context) ([]string, error) {
	var codes []string
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, "session:*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("store: scan sessions: %w", err)
		}
		for _, k := range keys {
			if sessionHashKeyPattern.MatchString(k) {
				codes = append(codes, k[len("session:"):])
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return codes, nil
}

// Delete removes one or more keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("store: del %v: %w", keys, err)
	}
	return nil
}
